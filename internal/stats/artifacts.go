package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"momenta/internal/model"
	"momenta/internal/moments"
)

const runIndexFile = "run_index.json"

// RunConfig is the plain-JSON mirror of an experiment configuration,
// written next to the moment tables so a run directory is self-describing.
type RunConfig struct {
	RunID          string  `json:"run_id"`
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

type RunArtifacts struct {
	Config    RunConfig               `json:"config"`
	Moments   model.AggregatedMoments `json:"moments"`
	Completed int                     `json:"completed"`
	Stopped   bool                    `json:"stopped"`
}

type RunIndexEntry struct {
	RunID        string `json:"run_id"`
	Topology     string `json:"topology"`
	Depth        int    `json:"depth"`
	Channels     int    `json:"channels"`
	Realizations int    `json:"realizations"`
	Completed    int    `json:"completed"`
	Stopped      bool   `json:"stopped"`
	Seed         int64  `json:"seed"`
	Workers      int    `json:"workers"`
	CreatedAtUTC string `json:"created_at_utc"`
}

// WriteRunArtifacts writes config.json, moments.json, and moments.csv under
// baseDir/<run_id> and returns the run directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "moments.json"), map[string]any{
		"moments":   artifacts.Moments,
		"completed": artifacts.Completed,
		"stopped":   artifacts.Stopped,
	}); err != nil {
		return "", err
	}
	if err := writeMomentsCSV(filepath.Join(runDir, "moments.csv"), artifacts.Moments); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"config.json", "moments.json", "moments.csv"}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func ReadMoments(baseDir, runID string) (model.AggregatedMoments, bool, error) {
	path := filepath.Join(baseDir, runID, "moments.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.AggregatedMoments{}, false, nil
		}
		return model.AggregatedMoments{}, false, err
	}

	var wrapper struct {
		Moments model.AggregatedMoments `json:"moments"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return model.AggregatedMoments{}, false, err
	}
	return wrapper.Moments, true, nil
}

// Plot kinds select the statistic subset worth keeping for a given figure
// family. Pruning discards the rest, giving a deliberately lossy view.
const (
	PlotVanilla   = "vanilla"
	PlotBatchNorm = "bn_ff"
	PlotResidual  = "bn_res"
)

var plotStats = map[string][]string{
	PlotVanilla: {
		moments.StatNu2Signal,
		moments.StatMu2Noise,
		moments.StatChi,
		moments.StatReffSignal,
	},
	PlotBatchNorm: {
		moments.StatNu2Signal,
		moments.StatMu2Noise,
		moments.StatChi,
		moments.StatReffSignal,
		moments.StatReffNoise,
		moments.StatMu4Signal,
		moments.StatNu1AbsSignal,
	},
	PlotResidual: {
		moments.StatNu2Signal,
		moments.StatMu2Noise,
		moments.StatChi,
		moments.StatReffSignal,
		moments.StatReffNoise,
		moments.StatMu4Signal,
		moments.StatNu1AbsSignal,
	},
}

// Prune keeps only the statistics the named plot kind uses. Statistics the
// run never captured are skipped silently; an unknown kind is an error.
func Prune(agg model.AggregatedMoments, plotKind string) (model.AggregatedMoments, error) {
	keep, ok := plotStats[plotKind]
	if !ok {
		known := make([]string, 0, len(plotStats))
		for kind := range plotStats {
			known = append(known, kind)
		}
		sort.Strings(known)
		return model.AggregatedMoments{}, fmt.Errorf("unknown plot kind %q (known: %s)", plotKind, strings.Join(known, ", "))
	}

	pruned := agg
	pruned.Depths = append([]int(nil), agg.Depths...)
	pruned.Stats = make(map[string][]model.DepthStat, len(keep))
	for _, name := range keep {
		stats, ok := agg.Stats[name]
		if !ok {
			continue
		}
		pruned.Stats[name] = append([]model.DepthStat(nil), stats...)
	}
	return pruned, nil
}

func writeMomentsCSV(path string, agg model.AggregatedMoments) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	names := make([]string, 0, len(agg.Stats))
	for name := range agg.Stats {
		names = append(names, name)
	}
	sort.Strings(names)

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"depth", "stat", "mean", "variance", "count", "non_finite"}); err != nil {
		return err
	}
	for i, depth := range agg.Depths {
		for _, name := range names {
			stats := agg.Stats[name]
			if i >= len(stats) {
				continue
			}
			stat := stats[i]
			if err := writer.Write([]string{
				strconv.Itoa(depth),
				name,
				strconv.FormatFloat(float64(stat.Mean), 'g', -1, 64),
				strconv.FormatFloat(float64(stat.Variance), 'g', -1, 64),
				strconv.FormatInt(stat.Count, 10),
				strconv.FormatInt(stat.NonFinite, 10),
			}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
