package network

import (
	"fmt"

	"momenta/internal/layer"
)

const (
	TopologyFeedforward = "feedforward"
	TopologyResidual    = "residual"
)

// Config describes one architecture. It is constructed once per experiment
// and read-only afterwards; Build validates it before any realization runs.
type Config struct {
	Topology string `json:"topology"`
	// Depth is the number of convolution layers.
	Depth      int `json:"depth"`
	Channels   int `json:"channels"`
	KernelSize int `json:"kernel_size"`
	// ChannelSchedule optionally sets the output width of each convolution
	// layer (length Depth). Empty means constant Channels throughout.
	ChannelSchedule []int `json:"channel_schedule,omitempty"`
	SpatialSize     int   `json:"spatial_size"`
	BatchSize       int   `json:"batch_size"`

	Boundary   string `json:"boundary"`
	Activation string `json:"activation"`

	Normalize bool    `json:"normalize"`
	Fuzz      float64 `json:"fuzz"`
	GammaInit string  `json:"gamma_init"`

	// ResidualBlock is the number of convolution layers per residual block.
	ResidualBlock int `json:"residual_block"`

	InputInit  string  `json:"input_init"`
	NoiseInit  string  `json:"noise_init"`
	NoiseScale float64 `json:"noise_scale"`

	// KernelGain overrides the activation-derived critical gain when > 0.
	KernelGain float64 `json:"kernel_gain"`

	// MomentInterval is the number of layers between moment captures.
	MomentInterval int `json:"moment_interval"`
}

// WithDefaults fills zero values the way the reference experiments run.
func (c Config) WithDefaults() Config {
	if c.Topology == "" {
		c.Topology = TopologyFeedforward
	}
	if c.Channels == 0 {
		c.Channels = 64
	}
	if c.KernelSize == 0 {
		c.KernelSize = 3
	}
	if c.SpatialSize == 0 {
		if c.KernelSize == 1 {
			c.SpatialSize = 1
		} else {
			c.SpatialSize = 16
		}
	}
	if c.BatchSize == 0 {
		c.BatchSize = 16
	}
	if c.Boundary == "" {
		c.Boundary = string(layer.BoundaryPeriodic)
	}
	if c.Activation == "" {
		c.Activation = "relu"
	}
	if c.Fuzz == 0 {
		c.Fuzz = 1e-5
	}
	if c.GammaInit == "" {
		c.GammaInit = "one"
	}
	if c.ResidualBlock == 0 {
		c.ResidualBlock = 2
	}
	if c.InputInit == "" {
		c.InputInit = "normal"
	}
	if c.NoiseInit == "" {
		c.NoiseInit = "unit"
	}
	if c.NoiseScale == 0 {
		c.NoiseScale = 1e-3
	}
	if c.MomentInterval == 0 {
		c.MomentInterval = 1
	}
	return c
}

// widths returns the per-layer output channel counts, length Depth.
func (c Config) widths() []int {
	if len(c.ChannelSchedule) > 0 {
		return c.ChannelSchedule
	}
	widths := make([]int, c.Depth)
	for i := range widths {
		widths[i] = c.Channels
	}
	return widths
}

func (c Config) validate() error {
	if c.Depth <= 0 {
		return fmt.Errorf("depth must be positive, got %d", c.Depth)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.KernelSize <= 0 {
		return fmt.Errorf("kernel size must be positive, got %d", c.KernelSize)
	}
	if c.SpatialSize <= 0 {
		return fmt.Errorf("spatial size must be positive, got %d", c.SpatialSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	switch c.Topology {
	case TopologyFeedforward, TopologyResidual:
	default:
		return fmt.Errorf("unsupported topology: %s", c.Topology)
	}
	switch layer.Boundary(c.Boundary) {
	case layer.BoundaryPeriodic, layer.BoundaryZeroPadding:
	case layer.BoundarySymmetric:
		if c.KernelSize%2 == 0 {
			return fmt.Errorf("symmetric boundary requires an odd kernel size, got %d", c.KernelSize)
		}
	default:
		return fmt.Errorf("unsupported boundary: %s", c.Boundary)
	}
	if _, err := layer.Activation(c.Activation); err != nil {
		return err
	}
	if c.Normalize && c.Fuzz <= 0 {
		return fmt.Errorf("normalization fuzz must be positive, got %g", c.Fuzz)
	}
	switch c.GammaInit {
	case "one", "normal":
	default:
		return fmt.Errorf("unsupported gamma init: %s", c.GammaInit)
	}
	switch c.InputInit {
	case "normal", "uniform":
	default:
		return fmt.Errorf("unsupported input init: %s", c.InputInit)
	}
	switch c.NoiseInit {
	case "unit", "iid":
	default:
		return fmt.Errorf("unsupported noise init: %s", c.NoiseInit)
	}
	if c.NoiseInit == "iid" && c.NoiseScale <= 0 {
		return fmt.Errorf("noise scale must be positive, got %g", c.NoiseScale)
	}
	if c.KernelGain < 0 {
		return fmt.Errorf("kernel gain must not be negative, got %g", c.KernelGain)
	}
	if c.MomentInterval <= 0 {
		return fmt.Errorf("moment interval must be positive, got %d", c.MomentInterval)
	}
	if c.Depth%c.MomentInterval != 0 {
		return fmt.Errorf("depth %d must be a multiple of moment interval %d", c.Depth, c.MomentInterval)
	}
	if len(c.ChannelSchedule) > 0 {
		if len(c.ChannelSchedule) != c.Depth {
			return fmt.Errorf("channel schedule length %d must equal depth %d", len(c.ChannelSchedule), c.Depth)
		}
		for i, w := range c.ChannelSchedule {
			if w <= 0 {
				return fmt.Errorf("channel schedule entry %d must be positive, got %d", i, w)
			}
		}
	}
	if c.Topology == TopologyResidual {
		if c.ResidualBlock <= 0 {
			return fmt.Errorf("residual block length must be positive, got %d", c.ResidualBlock)
		}
		if c.Depth < c.ResidualBlock {
			return fmt.Errorf("residual topology needs depth >= block length: depth %d, block %d", c.Depth, c.ResidualBlock)
		}
		if c.Depth%c.ResidualBlock != 0 {
			return fmt.Errorf("residual depth %d must be a multiple of block length %d", c.Depth, c.ResidualBlock)
		}
	}
	return nil
}
