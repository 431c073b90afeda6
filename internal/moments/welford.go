package moments

import "math"

// Welford is a numerically stable running estimator of mean and variance.
// Squared-norm statistics under exploding initializations span hundreds of
// orders of magnitude, where naive sum-of-squares cancels catastrophically.
// Non-finite samples are counted separately instead of poisoning the
// accumulator, so a partially pathological ensemble still reports the
// moments of its finite part alongside the blow-up count.
type Welford struct {
	count     int64
	nonFinite int64
	mean      float64
	m2        float64
}

// Add folds one sample.
func (w *Welford) Add(x float64) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		w.nonFinite++
		return
	}
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (x - w.mean)
}

// Merge folds another accumulator into w. The combination is commutative
// and associative up to floating-point rounding, so aggregation order does
// not affect the result beyond tolerance.
func (w *Welford) Merge(o Welford) {
	w.nonFinite += o.nonFinite
	if o.count == 0 {
		return
	}
	if w.count == 0 {
		w.count = o.count
		w.mean = o.mean
		w.m2 = o.m2
		return
	}
	total := w.count + o.count
	delta := o.mean - w.mean
	w.mean += delta * float64(o.count) / float64(total)
	w.m2 += o.m2 + delta*delta*float64(w.count)*float64(o.count)/float64(total)
	w.count = total
}

// Mean returns the running mean of the finite samples, NaN if none.
func (w *Welford) Mean() float64 {
	if w.count == 0 {
		return math.NaN()
	}
	return w.mean
}

// Variance returns the unbiased sample variance of the finite samples.
func (w *Welford) Variance() float64 {
	if w.count < 2 {
		return 0
	}
	return w.m2 / float64(w.count-1)
}

// Count returns the number of finite samples folded.
func (w *Welford) Count() int64 { return w.count }

// NonFinite returns the number of Inf/NaN samples seen.
func (w *Welford) NonFinite() int64 { return w.nonFinite }
