package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ExperimentRecord is the persisted description of one experiment run.
type ExperimentRecord struct {
	VersionedRecord
	ID             string  `json:"id"`
	Topology       string  `json:"topology"`
	Depth          int     `json:"depth"`
	Channels       int     `json:"channels"`
	KernelSize     int     `json:"kernel_size"`
	SpatialSize    int     `json:"spatial_size"`
	BatchSize      int     `json:"batch_size"`
	Boundary       string  `json:"boundary"`
	Activation     string  `json:"activation"`
	Normalize      bool    `json:"normalize"`
	Fuzz           float64 `json:"fuzz"`
	NoiseInit      string  `json:"noise_init"`
	NoiseScale     float64 `json:"noise_scale"`
	InputInit      string  `json:"input_init"`
	Realizations   int     `json:"realizations"`
	Workers        int     `json:"workers"`
	Seed           int64   `json:"seed"`
	MomentInterval int     `json:"moment_interval"`
	CreatedAtUTC   string  `json:"created_at_utc"`
}

// DepthStat is the aggregate of one statistic at one depth over all folded
// realizations. NonFinite counts realizations whose value at this depth was
// Inf or NaN; Mean and Variance cover the finite ones.
type DepthStat struct {
	Mean      Float `json:"mean"`
	Variance  Float `json:"variance"`
	Count     int64 `json:"count"`
	NonFinite int64 `json:"non_finite"`
}

// Finite reports whether every folded realization produced a finite value.
func (d DepthStat) Finite() bool {
	return d.NonFinite == 0
}

// AggregatedMoments is the depth-indexed moment table for one run, the
// artifact handed to persistence. Stats maps a statistic name to one
// DepthStat per captured depth, aligned with Depths.
type AggregatedMoments struct {
	VersionedRecord
	RunID  string                 `json:"run_id"`
	Depths []int                  `json:"depths"`
	Stats  map[string][]DepthStat `json:"stats"`
}
