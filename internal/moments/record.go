package moments

import (
	"fmt"
	"math"

	"momenta/internal/model"
)

// Record is one realization's moments: an ordered sequence of per-depth
// statistic maps. Finalized at the end of the realization and never mutated
// afterwards.
type Record struct {
	Depths  []int
	Samples []map[string]float64
}

// Append adds one depth's reduced statistics.
func (r *Record) Append(depth int, values map[string]float64) {
	r.Depths = append(r.Depths, depth)
	r.Samples = append(r.Samples, values)
}

// FinalNonFinite reports whether the deepest captured signal q statistic is
// non-finite, the driver's early-stop signal.
func (r *Record) FinalNonFinite() bool {
	if len(r.Samples) == 0 {
		return false
	}
	v := r.Samples[len(r.Samples)-1][StatNu2Signal]
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Accumulator folds per-realization Records into aggregate per-depth
// statistics. The first record fixes the depth axis and statistic set; all
// later records must match it.
type Accumulator struct {
	depths []int
	stats  map[string][]Welford
	folded int64
}

func NewAccumulator() *Accumulator {
	return &Accumulator{stats: make(map[string][]Welford)}
}

// Fold adds one realization's record.
func (a *Accumulator) Fold(rec Record) error {
	if len(rec.Depths) != len(rec.Samples) {
		return fmt.Errorf("record has %d depths but %d samples", len(rec.Depths), len(rec.Samples))
	}
	if len(rec.Samples) == 0 {
		return fmt.Errorf("record has no samples")
	}
	if a.depths == nil {
		a.depths = append([]int(nil), rec.Depths...)
		for name := range rec.Samples[0] {
			a.stats[name] = make([]Welford, len(a.depths))
		}
	}
	if len(rec.Depths) != len(a.depths) {
		return fmt.Errorf("record depth axis length %d != %d", len(rec.Depths), len(a.depths))
	}
	for i, depth := range rec.Depths {
		if depth != a.depths[i] {
			return fmt.Errorf("record depth %d at index %d, want %d", depth, i, a.depths[i])
		}
		for name, ws := range a.stats {
			value, ok := rec.Samples[i][name]
			if !ok {
				return fmt.Errorf("record missing statistic %s at depth %d", name, depth)
			}
			ws[i].Add(value)
		}
	}
	a.folded++
	return nil
}

// Folded returns the number of records folded so far.
func (a *Accumulator) Folded() int64 { return a.folded }

// Finalize produces the persistable aggregate for the given run.
func (a *Accumulator) Finalize(runID string) model.AggregatedMoments {
	agg := model.AggregatedMoments{
		RunID:  runID,
		Depths: append([]int(nil), a.depths...),
		Stats:  make(map[string][]model.DepthStat, len(a.stats)),
	}
	for name, ws := range a.stats {
		col := make([]model.DepthStat, len(ws))
		for i := range ws {
			col[i] = model.DepthStat{
				Mean:      model.Float(ws[i].Mean()),
				Variance:  model.Float(ws[i].Variance()),
				Count:     ws[i].Count(),
				NonFinite: ws[i].NonFinite(),
			}
		}
		agg.Stats[name] = col
	}
	return agg
}
