package momenta

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"momenta/internal/moments"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{
		StoreKind:  "memory",
		RunsDir:    filepath.Join(t.TempDir(), "runs"),
		ExportsDir: filepath.Join(t.TempDir(), "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func smallRunRequest() RunRequest {
	return RunRequest{
		Topology:     "feedforward",
		Depth:        4,
		Channels:     4,
		KernelSize:   1,
		SpatialSize:  1,
		BatchSize:    2,
		Activation:   "relu",
		Realizations: 8,
		Workers:      2,
		Seed:         11,
	}
}

func TestClientRunPersistsEverything(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	if err := client.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	summary, err := client.Run(ctx, smallRunRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("empty run id")
	}
	if summary.Completed != 8 || summary.Stopped {
		t.Fatalf("summary %+v", summary)
	}
	if len(summary.Depths) != 4 {
		t.Fatalf("depths %v, want 4 capture points", summary.Depths)
	}

	for _, file := range []string{"config.json", "moments.json", "moments.csv"} {
		if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, file)); err != nil {
			t.Fatalf("missing %s: %v", file, err)
		}
	}

	agg, err := client.Moments(ctx, MomentsRequest{Latest: true})
	if err != nil {
		t.Fatalf("moments: %v", err)
	}
	if agg.RunID != summary.RunID {
		t.Fatalf("latest run %q, want %q", agg.RunID, summary.RunID)
	}
	col, ok := agg.Stats[moments.StatNu2Signal]
	if !ok || len(col) != 4 {
		t.Fatalf("nu2_signal column %v", col)
	}
	if col[0].Count != 8 {
		t.Fatalf("count %d, want 8", col[0].Count)
	}
}

func TestClientRunRejectsInvalidConfig(t *testing.T) {
	client := newTestClient(t)
	req := smallRunRequest()
	req.Topology = "hourglass"
	if _, err := client.Run(context.Background(), req); err == nil {
		t.Fatal("expected error for unknown topology")
	}
}

func TestClientRunsListing(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	first, err := client.Run(ctx, smallRunRequest())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := client.Run(ctx, smallRunRequest())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.RunID == second.RunID {
		t.Fatalf("run ids collide: %s", first.RunID)
	}

	items, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("%d runs, want 2", len(items))
	}
	if items[0].Topology != "feedforward" || items[0].Completed != 8 {
		t.Fatalf("item %+v", items[0])
	}

	items, err = client.Runs(ctx, RunsRequest{Limit: 1})
	if err != nil {
		t.Fatalf("runs limit: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("%d runs with limit 1", len(items))
	}
}

func TestClientPrune(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	if _, err := client.Run(ctx, smallRunRequest()); err != nil {
		t.Fatalf("run: %v", err)
	}

	pruned, err := client.Prune(ctx, PruneRequest{Latest: true, PlotKind: "vanilla"})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(pruned.Stats) != 4 {
		t.Fatalf("%d stats after prune, want 4", len(pruned.Stats))
	}
	for _, name := range []string{moments.StatNu2Signal, moments.StatMu2Noise, moments.StatChi, moments.StatReffSignal} {
		if _, ok := pruned.Stats[name]; !ok {
			t.Fatalf("missing %s", name)
		}
	}

	if _, err := client.Prune(ctx, PruneRequest{Latest: true}); err == nil {
		t.Fatal("expected error without plot kind")
	}
}

func TestClientExport(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	summary, err := client.Run(ctx, smallRunRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	exported, err := client.Export(ctx, ExportRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID {
		t.Fatalf("exported %q, want %q", exported.RunID, summary.RunID)
	}
	if _, err := os.Stat(filepath.Join(exported.Directory, "moments.csv")); err != nil {
		t.Fatalf("missing exported csv: %v", err)
	}

	if _, err := client.Export(ctx, ExportRequest{}); err == nil {
		t.Fatal("expected error without run id or latest")
	}
	if _, err := client.Export(ctx, ExportRequest{RunID: summary.RunID, Latest: true}); err == nil {
		t.Fatal("expected error for run id plus latest")
	}
}

func TestClientMomentsRequiresTarget(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.Moments(context.Background(), MomentsRequest{}); err == nil {
		t.Fatal("expected error without run id or latest")
	}
	if _, err := client.Moments(context.Background(), MomentsRequest{Latest: true}); err == nil {
		t.Fatal("expected error with no runs recorded")
	}
}

func TestClientResetClearsStore(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	summary, err := client.Run(ctx, smallRunRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := client.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	// The store forgets the run but the artifacts directory still serves it.
	agg, err := client.Moments(ctx, MomentsRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("moments after reset: %v", err)
	}
	if agg.RunID != summary.RunID {
		t.Fatalf("run %q, want %q", agg.RunID, summary.RunID)
	}
}
