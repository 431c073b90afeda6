package layer

import (
	"math"
	"math/rand"
	"testing"

	"momenta/internal/tensor"
)

func TestDerivativeTable(t *testing.T) {
	cases := []struct {
		name string
		x    float64
		want float64
	}{
		{"identity", -3, 1},
		{"identity", 2, 1},
		{"relu", -1, 0},
		{"relu", 0, 0},
		{"relu", 1.5, 1},
		{"tanh", 0, 1},
		{"tanh", 1, 1 - math.Tanh(1)*math.Tanh(1)},
		{"sigmoid", 0, 0.25},
	}
	for _, tc := range cases {
		got, err := Derivative(tc.name, tc.x)
		if err != nil {
			t.Fatalf("%s'(%g): %v", tc.name, tc.x, err)
		}
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("%s'(%g) = %g, want %g", tc.name, tc.x, got, tc.want)
		}
	}
}

func TestActivationUnknownName(t *testing.T) {
	if _, err := Activation("swish"); err == nil {
		t.Fatal("expected error for unknown activation")
	}
	if _, err := Derivative("swish", 0); err == nil {
		t.Fatal("expected error for unknown derivative")
	}
	if _, err := Gain("swish"); err == nil {
		t.Fatal("expected error for unknown gain")
	}
}

func TestGainValues(t *testing.T) {
	g, err := Gain("relu")
	if err != nil {
		t.Fatalf("gain relu: %v", err)
	}
	if math.Abs(g-math.Sqrt2) > 1e-15 {
		t.Fatalf("relu gain %g, want sqrt(2)", g)
	}
	g, err = Gain("identity")
	if err != nil {
		t.Fatalf("gain identity: %v", err)
	}
	if g != 1 {
		t.Fatalf("identity gain %g, want 1", g)
	}
}

func TestApplyActivationLinearizesNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	sig, err := tensor.Randn(rng, 2, 4, 4, 3, 1)
	if err != nil {
		t.Fatalf("randn: %v", err)
	}
	noi, err := tensor.Randn(rng, 2, 4, 4, 3, 1)
	if err != nil {
		t.Fatalf("randn: %v", err)
	}

	outSig, outNoi, err := ApplyActivation(sig, noi, ActParams{Name: "relu"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	sigData := sig.Data()
	noiData := noi.Data()
	for i := range sigData {
		if sigData[i] > 0 {
			if outSig.Data()[i] != sigData[i] || outNoi.Data()[i] != noiData[i] {
				t.Fatalf("positive preimage not passed through at %d", i)
			}
		} else {
			if outSig.Data()[i] != 0 || outNoi.Data()[i] != 0 {
				t.Fatalf("negative preimage not zeroed at %d", i)
			}
		}
	}
}
