package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Tensor is a batched feature map with channels-last layout
// [batch, height, width, channels] over a flat float64 backing.
// Transforms never mutate a tensor in place; they allocate a fresh output,
// so a retained reference (e.g. a residual skip) stays valid until dropped.
type Tensor struct {
	data     []float64
	batch    int
	height   int
	width    int
	channels int
}

// New allocates a zero tensor. All dimensions must be positive.
func New(batch, height, width, channels int) (*Tensor, error) {
	if batch <= 0 || height <= 0 || width <= 0 || channels <= 0 {
		return nil, fmt.Errorf("tensor dimensions must be positive: [%d %d %d %d]", batch, height, width, channels)
	}
	n := batch * height * width * channels
	return &Tensor{
		data:     make([]float64, n),
		batch:    batch,
		height:   height,
		width:    width,
		channels: channels,
	}, nil
}

// Randn fills a new tensor with i.i.d. N(0, std^2) draws from rng.
func Randn(rng *rand.Rand, batch, height, width, channels int, std float64) (*Tensor, error) {
	t, err := New(batch, height, width, channels)
	if err != nil {
		return nil, err
	}
	for i := range t.data {
		t.data[i] = rng.NormFloat64() * std
	}
	return t, nil
}

// RandUniform fills a new tensor with i.i.d. U(-limit, limit) draws.
func RandUniform(rng *rand.Rand, batch, height, width, channels int, limit float64) (*Tensor, error) {
	t, err := New(batch, height, width, channels)
	if err != nil {
		return nil, err
	}
	for i := range t.data {
		t.data[i] = (2*rng.Float64() - 1) * limit
	}
	return t, nil
}

func (t *Tensor) Batch() int    { return t.batch }
func (t *Tensor) Height() int   { return t.height }
func (t *Tensor) Width() int    { return t.width }
func (t *Tensor) Channels() int { return t.channels }

// Numel returns the total number of elements.
func (t *Tensor) Numel() int { return len(t.data) }

// Bytes returns the size of the backing array in bytes.
func (t *Tensor) Bytes() int { return len(t.data) * 8 }

// Data exposes the flat backing for reducers. Callers must not resize it.
func (t *Tensor) Data() []float64 { return t.data }

// BatchSlice returns the contiguous sub-slice holding batch item b.
func (t *Tensor) BatchSlice(b int) []float64 {
	stride := t.height * t.width * t.channels
	return t.data[b*stride : (b+1)*stride]
}

func (t *Tensor) index(b, y, x, c int) int {
	return ((b*t.height+y)*t.width+x)*t.channels + c
}

// At returns the element at [b, y, x, c].
func (t *Tensor) At(b, y, x, c int) float64 {
	return t.data[t.index(b, y, x, c)]
}

// Set writes the element at [b, y, x, c].
func (t *Tensor) Set(b, y, x, c int, v float64) {
	t.data[t.index(b, y, x, c)] = v
}

// Like allocates a zero tensor with the same shape as t.
func (t *Tensor) Like() *Tensor {
	out, _ := New(t.batch, t.height, t.width, t.channels)
	return out
}

// Clone returns a deep copy of t.
func (t *Tensor) Clone() *Tensor {
	out := t.Like()
	copy(out.data, t.data)
	return out
}

// SameShape reports whether t and o have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.batch == o.batch && t.height == o.height && t.width == o.width && t.channels == o.channels
}

// ShapeString renders the shape for error messages.
func (t *Tensor) ShapeString() string {
	return fmt.Sprintf("[%d %d %d %d]", t.batch, t.height, t.width, t.channels)
}

// AllFinite reports whether every element is finite.
func (t *Tensor) AllFinite() bool {
	for _, v := range t.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
