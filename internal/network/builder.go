package network

import (
	"fmt"

	"momenta/internal/layer"
)

// Step is one entry of a layer plan: a transform kind plus its static
// parameters. Depth is the 1-based convolution layer the step belongs to;
// Capture marks the step after which moments are reduced.
type Step struct {
	Kind    layer.Kind
	Depth   int
	Capture bool
	Conv    *layer.ConvParams
	Norm    *layer.NormParams
	Act     *layer.ActParams
}

// Plan is the ordered layer sequence for one architecture, shared read-only
// by all realizations.
type Plan struct {
	Config        Config
	Steps         []Step
	CaptureDepths []int
	// InputChannels is the channel count of the initial signal tensor.
	InputChannels int
}

// Build translates a configuration into a concrete layer plan, validating
// depth, width, topology, boundary and residual merge shapes. Every failure
// here aborts the experiment before any realization runs.
func Build(cfg Config) (Plan, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.validate(); err != nil {
		return Plan{}, fmt.Errorf("invalid architecture: %w", err)
	}

	gain := cfg.KernelGain
	if gain == 0 {
		g, err := layer.Gain(cfg.Activation)
		if err != nil {
			return Plan{}, err
		}
		gain = g
	}

	widths := cfg.widths()
	plan := Plan{Config: cfg, InputChannels: cfg.Channels}

	appendLayer := func(depth, inCh, outCh int) {
		plan.Steps = append(plan.Steps, Step{
			Kind:  layer.KindConv,
			Depth: depth,
			Conv: &layer.ConvParams{
				KernelSize:  cfg.KernelSize,
				InChannels:  inCh,
				OutChannels: outCh,
				Boundary:    layer.Boundary(cfg.Boundary),
				Gain:        gain,
			},
		})
		if cfg.Normalize {
			plan.Steps = append(plan.Steps, Step{
				Kind:  layer.KindNorm,
				Depth: depth,
				Norm: &layer.NormParams{
					Channels:  outCh,
					Fuzz:      cfg.Fuzz,
					GammaInit: cfg.GammaInit,
				},
			})
		}
		plan.Steps = append(plan.Steps, Step{
			Kind:  layer.KindActivation,
			Depth: depth,
			Act:   &layer.ActParams{Name: cfg.Activation},
		})
	}

	markCapture := func(depth int) {
		if depth%cfg.MomentInterval != 0 {
			return
		}
		plan.Steps[len(plan.Steps)-1].Capture = true
		plan.CaptureDepths = append(plan.CaptureDepths, depth)
	}

	switch cfg.Topology {
	case TopologyFeedforward:
		in := cfg.Channels
		for l := 1; l <= cfg.Depth; l++ {
			appendLayer(l, in, widths[l-1])
			markCapture(l)
			in = widths[l-1]
		}

	case TopologyResidual:
		in := cfg.Channels
		for block := 0; block < cfg.Depth/cfg.ResidualBlock; block++ {
			skipWidth := in
			first := block*cfg.ResidualBlock + 1
			last := first + cfg.ResidualBlock - 1
			plan.Steps = append(plan.Steps, Step{Kind: layer.KindResidualSave, Depth: first})
			for l := first; l <= last; l++ {
				if widths[l-1] != skipWidth {
					return Plan{}, fmt.Errorf(
						"invalid architecture: residual merge shape mismatch at layer %d: branch width %d, skip width %d",
						l, widths[l-1], skipWidth)
				}
				appendLayer(l, in, widths[l-1])
				if l < last {
					markCapture(l)
				}
				in = widths[l-1]
			}
			plan.Steps = append(plan.Steps, Step{Kind: layer.KindResidualMerge, Depth: last})
			markCapture(last)
		}
	}

	return plan, nil
}
