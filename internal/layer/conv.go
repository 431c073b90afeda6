package layer

import (
	"fmt"
	"math"
	"math/rand"

	"momenta/internal/tensor"
)

// DrawConvState draws a fresh random kernel for one realization. Entries are
// i.i.d. N(0, std^2) with std = Gain / sqrt(k*k*inChannels), the scaling
// that preserves the expected squared norm across depth (critical
// initialization). Layout is [ky, kx, in, out].
func DrawConvState(rng *rand.Rand, p ConvParams) State {
	k := p.KernelSize
	std := p.Gain / math.Sqrt(float64(k*k*p.InChannels))
	kernel := make([]float64, k*k*p.InChannels*p.OutChannels)
	for i := range kernel {
		kernel[i] = rng.NormFloat64() * std
	}
	return State{Kernel: kernel}
}

// ApplyConv advances a (signal, noise) pair through a convolution. Both
// tensors are convolved with the same kernel: the noise is an infinitesimal
// perturbation of the same network, so it sees the same weights.
func ApplyConv(sig, noi *tensor.Tensor, p ConvParams, st State) (*tensor.Tensor, *tensor.Tensor, error) {
	if !sig.SameShape(noi) {
		return nil, nil, fmt.Errorf("conv: signal shape %s != noise shape %s", sig.ShapeString(), noi.ShapeString())
	}
	if sig.Channels() != p.InChannels {
		return nil, nil, fmt.Errorf("conv: input has %d channels, want %d", sig.Channels(), p.InChannels)
	}
	k := p.KernelSize
	if len(st.Kernel) != k*k*p.InChannels*p.OutChannels {
		return nil, nil, fmt.Errorf("conv: kernel length %d does not match params", len(st.Kernel))
	}

	outSig, err := convolve(sig, p, st.Kernel)
	if err != nil {
		return nil, nil, err
	}
	outNoi, err := convolve(noi, p, st.Kernel)
	if err != nil {
		return nil, nil, err
	}
	return outSig, outNoi, nil
}

func convolve(in *tensor.Tensor, p ConvParams, kernel []float64) (*tensor.Tensor, error) {
	k := p.KernelSize
	off := k / 2
	out, err := tensor.New(in.Batch(), in.Height(), in.Width(), p.OutChannels)
	if err != nil {
		return nil, err
	}
	h, w := in.Height(), in.Width()

	for b := 0; b < in.Batch(); b++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for ky := 0; ky < k; ky++ {
					yy, okY := mapIndex(y+ky-off, h, p.Boundary)
					if !okY {
						continue
					}
					for kx := 0; kx < k; kx++ {
						xx, okX := mapIndex(x+kx-off, w, p.Boundary)
						if !okX {
							continue
						}
						for ci := 0; ci < p.InChannels; ci++ {
							v := in.At(b, yy, xx, ci)
							if v == 0 {
								continue
							}
							base := ((ky*k+kx)*p.InChannels + ci) * p.OutChannels
							for co := 0; co < p.OutChannels; co++ {
								out.Set(b, y, x, co, out.At(b, y, x, co)+v*kernel[base+co])
							}
						}
					}
				}
			}
		}
	}
	return out, nil
}

// mapIndex resolves an out-of-range spatial index under the boundary policy.
// The second result is false when the tap reads an implicit zero.
func mapIndex(i, n int, boundary Boundary) (int, bool) {
	if i >= 0 && i < n {
		return i, true
	}
	switch boundary {
	case BoundaryPeriodic:
		return ((i % n) + n) % n, true
	case BoundaryZeroPadding:
		return 0, false
	case BoundarySymmetric:
		// Edge-repeating reflection: -1 -> 0, -2 -> 1, n -> n-1.
		for i < 0 || i >= n {
			if i < 0 {
				i = -i - 1
			} else {
				i = 2*n - i - 1
			}
		}
		return i, true
	default:
		return 0, false
	}
}
