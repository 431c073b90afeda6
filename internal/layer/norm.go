package layer

import (
	"fmt"
	"math"
	"math/rand"

	"momenta/internal/tensor"
)

// DrawNormState draws the per-channel gain for one realization.
// GammaInit "one" keeps unit gains (the usual init-time batch norm);
// "normal" draws gains from N(1, 0.1^2).
func DrawNormState(rng *rand.Rand, p NormParams) (State, error) {
	gamma := make([]float64, p.Channels)
	switch p.GammaInit {
	case "", "one":
		for c := range gamma {
			gamma[c] = 1
		}
	case "normal":
		for c := range gamma {
			gamma[c] = 1 + 0.1*rng.NormFloat64()
		}
	default:
		return State{}, fmt.Errorf("unsupported gamma init: %s", p.GammaInit)
	}
	return State{Gamma: gamma}, nil
}

// ApplyNorm advances a (signal, noise) pair through batch normalization.
// Per-channel mean and variance come from the signal alone, over batch and
// spatial axes. The signal is centered and rescaled; the noise is rescaled
// by the same factor but keeps its mean, consistent with first-order
// perturbation theory (the shift cancels in the perturbation).
func ApplyNorm(sig, noi *tensor.Tensor, p NormParams, st State) (*tensor.Tensor, *tensor.Tensor, error) {
	if !sig.SameShape(noi) {
		return nil, nil, fmt.Errorf("norm: signal shape %s != noise shape %s", sig.ShapeString(), noi.ShapeString())
	}
	ch := sig.Channels()
	if ch != p.Channels {
		return nil, nil, fmt.Errorf("norm: input has %d channels, want %d", ch, p.Channels)
	}
	if len(st.Gamma) != ch {
		return nil, nil, fmt.Errorf("norm: gamma length %d does not match %d channels", len(st.Gamma), ch)
	}

	mean := make([]float64, ch)
	count := float64(sig.Numel() / ch)
	data := sig.Data()
	for i, v := range data {
		mean[i%ch] += v
	}
	for c := range mean {
		mean[c] /= count
	}
	variance := make([]float64, ch)
	for i, v := range data {
		d := v - mean[i%ch]
		variance[i%ch] += d * d
	}
	scale := make([]float64, ch)
	for c := range variance {
		variance[c] /= count
		scale[c] = st.Gamma[c] / math.Sqrt(variance[c]+p.Fuzz)
	}

	outSig := sig.Like()
	outNoi := noi.Like()
	outSigData := outSig.Data()
	outNoiData := outNoi.Data()
	noiData := noi.Data()
	for i, v := range data {
		c := i % ch
		outSigData[i] = (v - mean[c]) * scale[c]
		outNoiData[i] = noiData[i] * scale[c]
	}
	return outSig, outNoi, nil
}
