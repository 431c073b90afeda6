package main

import (
	"os"
	"path/filepath"
	"testing"

	api "momenta/pkg/momenta"
)

func TestLoadRunRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	payload := `{
  "topology": "residual",
  "depth": 8,
  "channels": 32,
  "kernel_size": 3,
  "spatial_size": 16,
  "batch_size": 8,
  "boundary": "periodic",
  "activation": "relu",
  "normalize": true,
  "fuzz": 1e-5,
  "residual_block": 2,
  "input_init": "normal",
  "noise_init": "unit",
  "noise_scale": 1,
  "moment_interval": 2,
  "realizations": 50,
  "workers": 4,
  "seed": 9
}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadRunRequest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if req.Topology != "residual" || req.Depth != 8 || !req.Normalize {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Realizations != 50 || req.Seed != 9 {
		t.Fatalf("run options lost: %+v", req)
	}
}

func TestLoadRunRequestRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadRunRequest(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestMergeRunRequestOverridesOnlySetFlags(t *testing.T) {
	req := api.RunRequest{Topology: "feedforward", Depth: 8, Channels: 32, Seed: 9}
	flags := api.RunRequest{Topology: "residual", Depth: 16, Channels: 64, Seed: 1}

	mergeRunRequest(&req, flags, map[string]bool{"depth": true, "seed": true})

	if req.Depth != 16 || req.Seed != 1 {
		t.Fatalf("set flags not applied: %+v", req)
	}
	if req.Topology != "feedforward" || req.Channels != 32 {
		t.Fatalf("unset flags applied: %+v", req)
	}
}
