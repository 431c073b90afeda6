package moments

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"momenta/internal/tensor"
)

// Reduce collapses the current (signal, noise) pair to the full set of named
// scalar statistics for one depth. It reads the tensors and allocates only
// per-channel scratch, so the driver can discard the tensors immediately
// after the call. Non-finite inputs yield non-finite statistics, never an
// error: blow-up is a recordable outcome, not a failure.
func Reduce(sig, noi *tensor.Tensor) (map[string]float64, error) {
	if !sig.SameShape(noi) {
		return nil, fmt.Errorf("reduce: signal shape %s != noise shape %s", sig.ShapeString(), noi.ShapeString())
	}

	nu2Sig := meanSquare(sig)
	nu2Noi := meanSquare(noi)
	mu2Sig, mu4Sig := channelCentralMoments(sig)
	mu2Noi, _ := channelCentralMoments(noi)

	out := map[string]float64{
		StatNu1AbsSignal:    meanAbs(sig),
		StatNu2Signal:       nu2Sig,
		StatMu2Signal:       mu2Sig,
		StatMu4Signal:       mu4Sig,
		StatNu2Noise:        nu2Noi,
		StatMu2Noise:        mu2Noi,
		StatChi:             math.Sqrt(mu2Noi / mu2Sig),
		StatReffSignal:      nu2Sig / mu2Sig,
		StatReffNoise:       nu2Noi / mu2Noi,
		StatCorrSignalNoise: batchCosine(sig, noi),
	}
	if sig.Batch() >= 2 {
		out[StatCorrSignalInputs] = pairCosine(sig)
	}
	return out, nil
}

// meanSquare is the raw second moment nu2: the mean of value^2 over batch,
// spatial and channel axes. The primary "q" order parameter.
func meanSquare(t *tensor.Tensor) float64 {
	data := t.Data()
	return floats.Dot(data, data) / float64(len(data))
}

func meanAbs(t *tensor.Tensor) float64 {
	sum := 0.0
	for _, v := range t.Data() {
		sum += math.Abs(v)
	}
	return sum / float64(t.Numel())
}

// channelCentralMoments computes the per-channel central second and fourth
// moments over batch and spatial axes, averaged over channels.
func channelCentralMoments(t *tensor.Tensor) (mu2, mu4 float64) {
	ch := t.Channels()
	count := float64(t.Numel() / ch)
	data := t.Data()

	mean := make([]float64, ch)
	for i, v := range data {
		mean[i%ch] += v
	}
	for c := range mean {
		mean[c] /= count
	}

	m2 := make([]float64, ch)
	m4 := make([]float64, ch)
	for i, v := range data {
		c := i % ch
		d := v - mean[c]
		dd := d * d
		m2[c] += dd
		m4[c] += dd * dd
	}
	for c := 0; c < ch; c++ {
		mu2 += m2[c] / count
		mu4 += m4[c] / count
	}
	return mu2 / float64(ch), mu4 / float64(ch)
}

// batchCosine is the cosine similarity of two co-located tensors, computed
// per batch item and averaged. Scale-invariant by construction and clamped
// to [-1, 1] at numerical edges.
func batchCosine(a, b *tensor.Tensor) float64 {
	sum := 0.0
	for i := 0; i < a.Batch(); i++ {
		sum += cosine(a.BatchSlice(i), b.BatchSlice(i))
	}
	return sum / float64(a.Batch())
}

// pairCosine averages the cosine similarity of adjacent batch items of one
// tensor: a depth-separation proxy (collapsing inputs drive it to 1).
func pairCosine(t *tensor.Tensor) float64 {
	pairs := t.Batch() - 1
	sum := 0.0
	for i := 0; i < pairs; i++ {
		sum += cosine(t.BatchSlice(i), t.BatchSlice(i+1))
	}
	return sum / float64(pairs)
}

func cosine(a, b []float64) float64 {
	dot := floats.Dot(a, b)
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	return clamp(dot/(na*nb), -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	// NaN passes through: degenerate correlations stay visible.
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
