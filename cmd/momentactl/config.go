package main

import (
	"encoding/json"
	"fmt"
	"os"

	api "momenta/pkg/momenta"
)

// runFileConfig is the JSON shape of a run config file. Field names match
// the persisted run config so an exported config.json can be replayed.
type runFileConfig struct {
	Topology           string  `json:"topology"`
	Depth              int     `json:"depth"`
	Channels           int     `json:"channels"`
	KernelSize         int     `json:"kernel_size"`
	ChannelSchedule    []int   `json:"channel_schedule,omitempty"`
	SpatialSize        int     `json:"spatial_size"`
	BatchSize          int     `json:"batch_size"`
	Boundary           string  `json:"boundary"`
	Activation         string  `json:"activation"`
	Normalize          bool    `json:"normalize"`
	Fuzz               float64 `json:"fuzz"`
	GammaInit          string  `json:"gamma_init,omitempty"`
	ResidualBlock      int     `json:"residual_block,omitempty"`
	InputInit          string  `json:"input_init"`
	NoiseInit          string  `json:"noise_init"`
	NoiseScale         float64 `json:"noise_scale"`
	KernelGain         float64 `json:"kernel_gain,omitempty"`
	MomentInterval     int     `json:"moment_interval"`
	Realizations       int     `json:"realizations"`
	Workers            int     `json:"workers"`
	Seed               int64   `json:"seed"`
	EarlyStopNonFinite int     `json:"early_stop_non_finite,omitempty"`
	MemoryLimitBytes   int     `json:"memory_limit_bytes,omitempty"`
}

func loadRunRequest(path string) (api.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.RunRequest{}, err
	}

	var cfg runFileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return api.RunRequest{}, fmt.Errorf("parse run config %s: %w", path, err)
	}

	return api.RunRequest{
		Topology:           cfg.Topology,
		Depth:              cfg.Depth,
		Channels:           cfg.Channels,
		KernelSize:         cfg.KernelSize,
		ChannelSchedule:    cfg.ChannelSchedule,
		SpatialSize:        cfg.SpatialSize,
		BatchSize:          cfg.BatchSize,
		Boundary:           cfg.Boundary,
		Activation:         cfg.Activation,
		Normalize:          cfg.Normalize,
		Fuzz:               cfg.Fuzz,
		GammaInit:          cfg.GammaInit,
		ResidualBlock:      cfg.ResidualBlock,
		InputInit:          cfg.InputInit,
		NoiseInit:          cfg.NoiseInit,
		NoiseScale:         cfg.NoiseScale,
		KernelGain:         cfg.KernelGain,
		MomentInterval:     cfg.MomentInterval,
		Realizations:       cfg.Realizations,
		Workers:            cfg.Workers,
		Seed:               cfg.Seed,
		EarlyStopNonFinite: cfg.EarlyStopNonFinite,
		MemoryLimitBytes:   cfg.MemoryLimitBytes,
	}, nil
}

// mergeRunRequest overrides loaded config fields with flag values, but only
// for flags the user set explicitly.
func mergeRunRequest(req *api.RunRequest, flags api.RunRequest, set map[string]bool) {
	if set["topology"] {
		req.Topology = flags.Topology
	}
	if set["depth"] {
		req.Depth = flags.Depth
	}
	if set["channels"] {
		req.Channels = flags.Channels
	}
	if set["kernel"] {
		req.KernelSize = flags.KernelSize
	}
	if set["spatial"] {
		req.SpatialSize = flags.SpatialSize
	}
	if set["batch"] {
		req.BatchSize = flags.BatchSize
	}
	if set["boundary"] {
		req.Boundary = flags.Boundary
	}
	if set["activation"] {
		req.Activation = flags.Activation
	}
	if set["normalize"] {
		req.Normalize = flags.Normalize
	}
	if set["fuzz"] {
		req.Fuzz = flags.Fuzz
	}
	if set["gamma-init"] {
		req.GammaInit = flags.GammaInit
	}
	if set["residual-block"] {
		req.ResidualBlock = flags.ResidualBlock
	}
	if set["input-init"] {
		req.InputInit = flags.InputInit
	}
	if set["noise-init"] {
		req.NoiseInit = flags.NoiseInit
	}
	if set["noise-scale"] {
		req.NoiseScale = flags.NoiseScale
	}
	if set["kernel-gain"] {
		req.KernelGain = flags.KernelGain
	}
	if set["moment-interval"] {
		req.MomentInterval = flags.MomentInterval
	}
	if set["realizations"] {
		req.Realizations = flags.Realizations
	}
	if set["workers"] {
		req.Workers = flags.Workers
	}
	if set["seed"] {
		req.Seed = flags.Seed
	}
	if set["early-stop"] {
		req.EarlyStopNonFinite = flags.EarlyStopNonFinite
	}
	if set["memory-limit"] {
		req.MemoryLimitBytes = flags.MemoryLimitBytes
	}
}
