package stats

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"momenta/internal/model"
	"momenta/internal/moments"
)

func testArtifacts(runID string) RunArtifacts {
	return RunArtifacts{
		Config: RunConfig{
			RunID:          runID,
			Topology:       "feedforward",
			Depth:          2,
			Channels:       8,
			KernelSize:     1,
			SpatialSize:    1,
			BatchSize:      4,
			Boundary:       "periodic",
			Activation:     "relu",
			NoiseInit:      "unit",
			NoiseScale:     1,
			InputInit:      "normal",
			Realizations:   10,
			Workers:        2,
			Seed:           7,
			MomentInterval: 1,
			CreatedAtUTC:   "2026-08-29T10:00:00Z",
		},
		Moments: model.AggregatedMoments{
			RunID:  runID,
			Depths: []int{1, 2},
			Stats: map[string][]model.DepthStat{
				moments.StatNu2Signal: {
					{Mean: 1.01, Variance: 0.02, Count: 10},
					{Mean: model.Float(math.Inf(1)), Count: 8, NonFinite: 2},
				},
				moments.StatMu2Noise: {
					{Mean: 0.98, Variance: 0.01, Count: 10},
					{Mean: 1.1, Variance: 0.03, Count: 10},
				},
				moments.StatCorrSignalNoise: {
					{Mean: 0.2, Variance: 0.05, Count: 10},
					{Mean: 0.1, Variance: 0.04, Count: 10},
				},
			},
		},
		Completed: 10,
	}
}

func TestWriteAndReadRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := testArtifacts("run-1")

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range []string{"config.json", "moments.json", "moments.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("missing %s: %v", file, err)
		}
	}

	cfg, ok, err := ReadRunConfig(baseDir, "run-1")
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !ok {
		t.Fatal("expected config")
	}
	if cfg.Depth != 2 || cfg.Activation != "relu" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	agg, ok, err := ReadMoments(baseDir, "run-1")
	if err != nil {
		t.Fatalf("read moments: %v", err)
	}
	if !ok {
		t.Fatal("expected moments")
	}
	if len(agg.Depths) != 2 {
		t.Fatalf("depths %v", agg.Depths)
	}
	if !math.IsInf(float64(agg.Stats[moments.StatNu2Signal][1].Mean), 1) {
		t.Fatal("+Inf mean lost through moments.json")
	}

	if _, ok, err := ReadRunConfig(baseDir, "missing"); err != nil || ok {
		t.Fatalf("missing config: ok=%v err=%v", ok, err)
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestMomentsCSVLongFormat(t *testing.T) {
	baseDir := t.TempDir()
	runDir, err := WriteRunArtifacts(baseDir, testArtifacts("run-1"))
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(runDir, "moments.csv"))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "depth,stat,mean,variance,count,non_finite" {
		t.Fatalf("header %q", lines[0])
	}
	// Three stats captured at two depths.
	if len(lines) != 7 {
		t.Fatalf("%d rows, want 7", len(lines))
	}
	// Stat names are sorted within each depth.
	if !strings.HasPrefix(lines[1], "1,"+moments.StatCorrSignalNoise) {
		t.Fatalf("first row %q", lines[1])
	}
	if !strings.Contains(lines[6], "+Inf") {
		t.Fatalf("non-finite mean row %q", lines[6])
	}
}

func TestRunIndexAppendReplaceAndOrder(t *testing.T) {
	baseDir := t.TempDir()

	entries := []RunIndexEntry{
		{RunID: "old", Topology: "feedforward", CreatedAtUTC: "2026-08-29T09:00:00Z"},
		{RunID: "new", Topology: "residual", CreatedAtUTC: "2026-08-29T11:00:00Z"},
		{RunID: "tie-a", CreatedAtUTC: "2026-08-29T10:00:00Z"},
		{RunID: "tie-b", CreatedAtUTC: "2026-08-29T10:00:00Z"},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(index) != 4 {
		t.Fatalf("%d entries, want 4", len(index))
	}
	if index[0].RunID != "new" || index[3].RunID != "old" {
		t.Fatalf("order %v", index)
	}
	// Equal timestamps resolve to the later appended entry first.
	if index[1].RunID != "tie-b" || index[2].RunID != "tie-a" {
		t.Fatalf("tie order %v", index)
	}

	// Re-appending a run id replaces its entry in place.
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "old", Topology: "residual", CreatedAtUTC: "2026-08-29T09:00:00Z"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	index, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list after replace: %v", err)
	}
	if len(index) != 4 {
		t.Fatalf("%d entries after replace, want 4", len(index))
	}
	if index[3].RunID != "old" || index[3].Topology != "residual" {
		t.Fatalf("replaced entry %+v", index[3])
	}
}

func TestListRunIndexEmptyDir(t *testing.T) {
	index, err := ListRunIndex(t.TempDir())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(index) != 0 {
		t.Fatalf("entries %v, want none", index)
	}
}

func TestExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := t.TempDir()
	if _, err := WriteRunArtifacts(baseDir, testArtifacts("run-1")); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	dst, err := ExportRunArtifacts(baseDir, "run-1", outDir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, file := range []string{"config.json", "moments.json", "moments.csv"} {
		src, err := os.ReadFile(filepath.Join(baseDir, "run-1", file))
		if err != nil {
			t.Fatalf("read src %s: %v", file, err)
		}
		got, err := os.ReadFile(filepath.Join(dst, file))
		if err != nil {
			t.Fatalf("read dst %s: %v", file, err)
		}
		if string(got) != string(src) {
			t.Fatalf("%s differs after export", file)
		}
	}

	if _, err := ExportRunArtifacts(baseDir, "missing", outDir); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestPruneKeepsPlotSubset(t *testing.T) {
	agg := testArtifacts("run-1").Moments

	pruned, err := Prune(agg, PlotVanilla)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	// Only the two captured stats from the vanilla subset remain; stats the
	// run never captured are skipped, stats outside the subset are dropped.
	if len(pruned.Stats) != 2 {
		t.Fatalf("stats %v", pruned.Stats)
	}
	if _, ok := pruned.Stats[moments.StatNu2Signal]; !ok {
		t.Fatal("nu2_signal dropped")
	}
	if _, ok := pruned.Stats[moments.StatCorrSignalNoise]; ok {
		t.Fatal("corr_signal_noise kept outside subset")
	}

	// The pruned copy must not alias the source.
	pruned.Stats[moments.StatNu2Signal][0].Count = 0
	if agg.Stats[moments.StatNu2Signal][0].Count != 10 {
		t.Fatal("prune returned shared slices")
	}
}

func TestPruneUnknownKind(t *testing.T) {
	_, err := Prune(model.AggregatedMoments{}, "waterfall")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), PlotVanilla) {
		t.Fatalf("error should list known kinds: %v", err)
	}
}
