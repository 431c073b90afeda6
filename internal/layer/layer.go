package layer

// Kind enumerates the closed set of layer transforms. The set is fixed by
// the domain: convolution, normalization, activation, and the two halves of
// a residual connection.
type Kind string

const (
	KindConv          Kind = "conv"
	KindNorm          Kind = "norm"
	KindActivation    Kind = "activation"
	KindResidualSave  Kind = "residual_save"
	KindResidualMerge Kind = "residual_merge"
)

// Boundary selects the convolution edge-handling policy.
type Boundary string

const (
	BoundaryPeriodic    Boundary = "periodic"
	BoundaryZeroPadding Boundary = "zero_padding"
	BoundarySymmetric   Boundary = "symmetric"
)

// ConvParams are the static parameters of a convolution step.
// The kernel itself is drawn per realization into a State.
type ConvParams struct {
	KernelSize  int
	InChannels  int
	OutChannels int
	Boundary    Boundary
	Gain        float64
}

// NormParams are the static parameters of a normalization step.
// Fuzz is added to the signal variance estimate before the inverse square
// root; its effect on stability is itself an object of study, so it is
// always taken from configuration.
type NormParams struct {
	Channels  int
	Fuzz      float64
	GammaInit string
}

// ActParams name the pointwise nonlinearity of an activation step.
type ActParams struct {
	Name string
}

// State holds the per-realization random parameters of one step. It is
// drawn fresh for every realization and immutable afterwards.
type State struct {
	Kernel []float64
	Gamma  []float64
}
