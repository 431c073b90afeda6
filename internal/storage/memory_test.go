package storage

import (
	"context"
	"math"
	"testing"

	"momenta/internal/model"
)

func testExperiment(id string) model.ExperimentRecord {
	return model.ExperimentRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              id,
		Topology:        "feedforward",
		Depth:           10,
		Channels:        8,
		KernelSize:      1,
		SpatialSize:     1,
		BatchSize:       4,
		Boundary:        "periodic",
		Activation:      "relu",
		Realizations:    100,
		Seed:            7,
		MomentInterval:  1,
	}
}

func testMoments(runID string) model.AggregatedMoments {
	return model.AggregatedMoments{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		RunID:           runID,
		Depths:          []int{1, 2},
		Stats: map[string][]model.DepthStat{
			"nu2_signal": {
				{Mean: 1.02, Variance: 0.1, Count: 100},
				{Mean: model.Float(math.Inf(1)), Variance: 0, Count: 80, NonFinite: 20},
			},
		},
	}
}

func TestMemoryStoreExperimentRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := store.SaveExperiment(ctx, testExperiment("run-1")); err != nil {
		t.Fatalf("save experiment: %v", err)
	}
	out, ok, err := store.GetExperiment(ctx, "run-1")
	if err != nil {
		t.Fatalf("get experiment: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted experiment")
	}
	if out.Depth != 10 || out.Topology != "feedforward" {
		t.Fatalf("unexpected experiment: %+v", out)
	}

	if _, ok, err := store.GetExperiment(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing experiment: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreMomentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := store.SaveMoments(ctx, testMoments("run-1")); err != nil {
		t.Fatalf("save moments: %v", err)
	}
	out, ok, err := store.GetMoments(ctx, "run-1")
	if err != nil {
		t.Fatalf("get moments: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted moments")
	}
	col := out.Stats["nu2_signal"]
	if len(col) != 2 || col[1].NonFinite != 20 {
		t.Fatalf("unexpected moments: %+v", col)
	}
	if !math.IsInf(float64(col[1].Mean), 1) {
		t.Fatalf("non-finite mean lost: %g", float64(col[1].Mean))
	}

	// Mutating the returned copy must not affect the stored record.
	col[0].Count = 0
	again, _, err := store.GetMoments(ctx, "run-1")
	if err != nil {
		t.Fatalf("get moments again: %v", err)
	}
	if again.Stats["nu2_signal"][0].Count != 100 {
		t.Fatal("store returned a shared slice")
	}
}

func TestMemoryStoreListAndReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, id := range []string{"b", "a", "c"} {
		if err := store.SaveExperiment(ctx, testExperiment(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	ids, err := store.ListExperimentIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("ids %v, want sorted [a b c]", ids)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	ids, err = store.ListExperimentIDs(ctx)
	if err != nil {
		t.Fatalf("list after reset: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ids after reset %v, want empty", ids)
	}
}

func TestFactoryKinds(t *testing.T) {
	if _, err := NewStore("memory", ""); err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, err := NewStore("", ""); err != nil {
		t.Fatalf("default store: %v", err)
	}
	if _, err := NewStore("postgres", ""); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}
