package propagation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"momenta/internal/layer"
	"momenta/internal/model"
	"momenta/internal/moments"
	"momenta/internal/network"
	"momenta/internal/tensor"
)

// Options configure one experiment: how many independent realizations to
// run, over how many workers, from which base seed.
type Options struct {
	RunID        string
	Realizations int
	Workers      int
	Seed         int64
	// EarlyStopNonFinite stops dispatching new realizations after this many
	// consecutive completions whose final-depth q statistic is non-finite.
	// Zero disables. This is an optimization: completed realizations are
	// still folded, so the aggregate remains a valid (smaller) ensemble.
	EarlyStopNonFinite int
	// MemoryLimitBytes rejects the experiment up front when one
	// realization's working set would exceed it. Zero disables.
	MemoryLimitBytes int
}

// Result is the outcome of an experiment.
type Result struct {
	Moments   model.AggregatedMoments
	Completed int
	Stopped   bool
}

// EstimateBytes approximates one realization's peak tensor working set:
// the current (signal, noise) pair, the pair being produced, and a retained
// skip pair for residual topologies.
func EstimateBytes(plan network.Plan) int {
	maxWidth := plan.InputChannels
	for _, step := range plan.Steps {
		if step.Conv != nil && step.Conv.OutChannels > maxWidth {
			maxWidth = step.Conv.OutChannels
		}
	}
	cfg := plan.Config
	pair := 2 * cfg.BatchSize * cfg.SpatialSize * cfg.SpatialSize * maxWidth * 8
	pairs := 2
	if cfg.Topology == network.TopologyResidual {
		pairs = 3
	}
	return pairs * pair
}

// RunRealizations runs the experiment: n independent realizations of the
// same plan, each with its own RNG and fresh layer states, folded into
// aggregate per-depth moments. Results are folded in realization-index
// order, so the aggregate is identical for any worker count.
func RunRealizations(ctx context.Context, plan network.Plan, opts Options) (Result, error) {
	if opts.Realizations <= 0 {
		return Result{}, fmt.Errorf("realizations must be positive, got %d", opts.Realizations)
	}
	if opts.MemoryLimitBytes > 0 {
		if est := EstimateBytes(plan); est > opts.MemoryLimitBytes {
			return Result{}, fmt.Errorf("realization working set %d bytes exceeds limit %d", est, opts.MemoryLimitBytes)
		}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > opts.Realizations {
		workers = opts.Realizations
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		idx int
		rec moments.Record
		err error
	}

	jobs := make(chan int)
	results := make(chan result, opts.Realizations)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := runCtx.Err(); err != nil {
					results <- result{idx: idx, err: err}
					continue
				}
				rng := rand.New(rand.NewSource(opts.Seed + int64(idx)))
				rec, err := runOne(plan, rng)
				results <- result{idx: idx, rec: rec, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < opts.Realizations; i++ {
			select {
			case jobs <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	records := make([]*moments.Record, opts.Realizations)
	consecutive := 0
	stopped := false
	var firstErr error
	for res := range results {
		if res.err != nil {
			// A realization is atomic: any failure aborts the experiment.
			// Cancellations triggered by the early stop are not failures.
			if firstErr == nil && !errors.Is(res.err, context.Canceled) {
				firstErr = res.err
				cancel()
			}
			continue
		}
		rec := res.rec
		records[res.idx] = &rec
		if opts.EarlyStopNonFinite > 0 {
			if rec.FinalNonFinite() {
				consecutive++
			} else {
				consecutive = 0
			}
			if consecutive >= opts.EarlyStopNonFinite && !stopped {
				stopped = true
				cancel()
			}
		}
	}
	if firstErr != nil {
		return Result{}, firstErr
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	acc := moments.NewAccumulator()
	completed := 0
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if err := acc.Fold(*rec); err != nil {
			return Result{}, err
		}
		completed++
	}
	if completed == 0 {
		return Result{}, errors.New("no realizations completed")
	}
	return Result{Moments: acc.Finalize(opts.RunID), Completed: completed, Stopped: stopped}, nil
}

// runOne advances a single realization: fresh layer states, fresh signal
// and noise tensors, one pass through the plan with moments reduced at each
// capture point. Prior-depth tensors are dropped as soon as the next pair
// exists, keeping the working set at O(current depth), not O(total depth).
func runOne(plan network.Plan, rng *rand.Rand) (moments.Record, error) {
	states, err := drawStates(plan, rng)
	if err != nil {
		return moments.Record{}, err
	}

	cfg := plan.Config
	sig, noi, err := initTensors(cfg, plan.InputChannels, rng)
	if err != nil {
		return moments.Record{}, err
	}

	var rec moments.Record
	var skipSig, skipNoi *tensor.Tensor
	for i, step := range plan.Steps {
		switch step.Kind {
		case layer.KindConv:
			sig, noi, err = layer.ApplyConv(sig, noi, *step.Conv, states[i])
		case layer.KindNorm:
			sig, noi, err = layer.ApplyNorm(sig, noi, *step.Norm, states[i])
		case layer.KindActivation:
			sig, noi, err = layer.ApplyActivation(sig, noi, *step.Act)
		case layer.KindResidualSave:
			skipSig, skipNoi = sig, noi
		case layer.KindResidualMerge:
			sig, err = layer.Merge(sig, skipSig)
			if err == nil {
				noi, err = layer.Merge(noi, skipNoi)
			}
			skipSig, skipNoi = nil, nil
		default:
			err = fmt.Errorf("unknown step kind: %s", step.Kind)
		}
		if err != nil {
			return moments.Record{}, fmt.Errorf("layer %d (%s): %w", step.Depth, step.Kind, err)
		}
		if step.Capture {
			values, err := moments.Reduce(sig, noi)
			if err != nil {
				return moments.Record{}, fmt.Errorf("layer %d: %w", step.Depth, err)
			}
			rec.Append(step.Depth, values)
		}
	}
	return rec, nil
}

// drawStates draws the per-realization random parameters for every step,
// in plan order so a given seed always yields the same network.
func drawStates(plan network.Plan, rng *rand.Rand) ([]layer.State, error) {
	states := make([]layer.State, len(plan.Steps))
	for i, step := range plan.Steps {
		switch step.Kind {
		case layer.KindConv:
			states[i] = layer.DrawConvState(rng, *step.Conv)
		case layer.KindNorm:
			st, err := layer.DrawNormState(rng, *step.Norm)
			if err != nil {
				return nil, err
			}
			states[i] = st
		}
	}
	return states, nil
}

func initTensors(cfg network.Config, channels int, rng *rand.Rand) (*tensor.Tensor, *tensor.Tensor, error) {
	var sig *tensor.Tensor
	var err error
	switch cfg.InputInit {
	case "normal":
		sig, err = tensor.Randn(rng, cfg.BatchSize, cfg.SpatialSize, cfg.SpatialSize, channels, 1)
	case "uniform":
		// Unit-variance uniform input.
		sig, err = tensor.RandUniform(rng, cfg.BatchSize, cfg.SpatialSize, cfg.SpatialSize, channels, math.Sqrt(3))
	default:
		err = fmt.Errorf("unsupported input init: %s", cfg.InputInit)
	}
	if err != nil {
		return nil, nil, err
	}

	std := 1.0
	if cfg.NoiseInit == "iid" {
		std = cfg.NoiseScale
	}
	noi, err := tensor.Randn(rng, cfg.BatchSize, cfg.SpatialSize, cfg.SpatialSize, channels, std)
	if err != nil {
		return nil, nil, err
	}
	return sig, noi, nil
}
