package layer

import (
	"fmt"
	"math"

	"momenta/internal/tensor"
)

// Activation returns the pointwise nonlinearity by name.
func Activation(name string) (func(float64) float64, error) {
	switch name {
	case "identity":
		return func(x float64) float64 { return x }, nil
	case "relu":
		return func(x float64) float64 {
			if x > 0 {
				return x
			}
			return 0
		}, nil
	case "tanh":
		return math.Tanh, nil
	case "sigmoid":
		return func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }, nil
	default:
		return nil, fmt.Errorf("unsupported activation: %s", name)
	}
}

// Derivative returns d/dx of the named nonlinearity evaluated at x.
func Derivative(name string, x float64) (float64, error) {
	switch name {
	case "identity":
		return 1, nil
	case "relu":
		if x > 0 {
			return 1, nil
		}
		return 0, nil
	case "tanh":
		y := math.Tanh(x)
		return 1 - (y * y), nil
	case "sigmoid":
		s := 1 / (1 + math.Exp(-x))
		return s * (1 - s), nil
	default:
		return 0, fmt.Errorf("unsupported derivative: %s", name)
	}
}

// Gain returns the critical kernel gain for a convolution feeding the named
// nonlinearity: the factor that keeps the expected squared norm constant
// across depth (sqrt(2) compensates ReLU halving the second moment).
func Gain(name string) (float64, error) {
	switch name {
	case "relu":
		return math.Sqrt2, nil
	case "identity", "tanh", "sigmoid":
		return 1, nil
	default:
		return 0, fmt.Errorf("unsupported activation: %s", name)
	}
}

// ApplyActivation advances a (signal, noise) pair through a pointwise
// nonlinearity. The signal passes through the nonlinearity; the noise passes
// through its local linearization at the signal's value, i.e.
// noise' = noise * f'(signal). The noise is a first-order perturbation of
// the same network, never an independently re-sampled field.
func ApplyActivation(sig, noi *tensor.Tensor, p ActParams) (*tensor.Tensor, *tensor.Tensor, error) {
	fn, err := Activation(p.Name)
	if err != nil {
		return nil, nil, err
	}
	outSig := sig.Like()
	outNoi := noi.Like()
	sigData := sig.Data()
	noiData := noi.Data()
	outSigData := outSig.Data()
	outNoiData := outNoi.Data()
	for i, v := range sigData {
		outSigData[i] = fn(v)
		d, err := Derivative(p.Name, v)
		if err != nil {
			return nil, nil, err
		}
		outNoiData[i] = noiData[i] * d
	}
	return outSig, outNoi, nil
}
