package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"

	"momenta/internal/model"
	"momenta/internal/network"
	"momenta/internal/propagation"
	"momenta/internal/storage"
	api "momenta/pkg/momenta"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "moments":
		return runMoments(ctx, args[1:])
	case "prune":
		return runPrune(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "info":
		return runInfo(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "momenta.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath, RunsDir: runsDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "momenta.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath, RunsDir: runsDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Reset(ctx); err != nil {
		return err
	}

	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	topology := fs.String("topology", "feedforward", "network topology: feedforward|residual")
	depth := fs.Int("depth", 100, "total network depth in layers")
	channels := fs.Int("channels", 64, "channel width")
	kernelSize := fs.Int("kernel", 3, "square kernel size")
	spatialSize := fs.Int("spatial", 16, "square spatial extent")
	batchSize := fs.Int("batch", 16, "batch size")
	boundary := fs.String("boundary", "periodic", "convolution boundary: periodic|zero_padding|symmetric")
	activation := fs.String("activation", "relu", "activation: identity|relu|tanh|sigmoid")
	normalize := fs.Bool("normalize", false, "insert normalization after each convolution")
	fuzz := fs.Float64("fuzz", 1e-5, "normalization variance fuzz")
	gammaInit := fs.String("gamma-init", "one", "normalization gain init: one|normal")
	residualBlock := fs.Int("residual-block", 2, "layers per residual block")
	inputInit := fs.String("input-init", "normal", "input distribution: normal|uniform")
	noiseInit := fs.String("noise-init", "unit", "noise distribution: unit|iid")
	noiseScale := fs.Float64("noise-scale", 1e-3, "noise std for noise-init=iid")
	kernelGain := fs.Float64("kernel-gain", 0, "kernel init gain override (0 derives from activation)")
	momentInterval := fs.Int("moment-interval", 1, "capture moments every N layers")
	realizations := fs.Int("realizations", 100, "independent realization count")
	workers := fs.Int("workers", 4, "worker count")
	seed := fs.Int64("seed", 1, "rng seed")
	earlyStop := fs.Int("early-stop", 0, "stop after N consecutive non-finite realizations (0 disables)")
	memoryLimit := fs.Int("memory-limit", 0, "per-realization working set limit in bytes (0 disables)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "momenta.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req := api.RunRequest{
		Topology:           *topology,
		Depth:              *depth,
		Channels:           *channels,
		KernelSize:         *kernelSize,
		SpatialSize:        *spatialSize,
		BatchSize:          *batchSize,
		Boundary:           *boundary,
		Activation:         *activation,
		Normalize:          *normalize,
		Fuzz:               *fuzz,
		GammaInit:          *gammaInit,
		ResidualBlock:      *residualBlock,
		InputInit:          *inputInit,
		NoiseInit:          *noiseInit,
		NoiseScale:         *noiseScale,
		KernelGain:         *kernelGain,
		MomentInterval:     *momentInterval,
		Realizations:       *realizations,
		Workers:            *workers,
		Seed:               *seed,
		EarlyStopNonFinite: *earlyStop,
		MemoryLimitBytes:   *memoryLimit,
	}
	if *configPath != "" {
		loaded, err := loadRunRequest(*configPath)
		if err != nil {
			return err
		}
		mergeRunRequest(&loaded, req, setFlags)
		req = loaded
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath, RunsDir: runsDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run completed run_id=%s topology=%s depth=%d realizations=%d completed=%d seed=%d\n",
		summary.RunID, req.Topology, req.Depth, req.Realizations, summary.Completed, req.Seed)
	if summary.Stopped {
		fmt.Println("stopped early: consecutive non-finite realizations")
	}
	fmt.Printf("captured_depths=%d\n", len(summary.Depths))
	fmt.Printf("artifacts_dir=%s\n", filepath.Clean(summary.ArtifactsDir))
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := api.New(api.Options{RunsDir: runsDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, api.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	for _, item := range items {
		status := "complete"
		if item.Stopped {
			status = "stopped"
		}
		fmt.Printf("run_id=%s created=%s topology=%s depth=%d channels=%d realizations=%d/%d status=%s seed=%d\n",
			item.RunID, item.CreatedAtUTC, item.Topology, item.Depth, item.Channels,
			item.Completed, item.Realizations, status, item.Seed)
	}
	return nil
}

func runMoments(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("moments", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show moments for the most recent run from run index")
	stat := fs.String("stat", "", "print only the named statistic")
	jsonOut := fs.Bool("json", false, "emit moments as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "momenta.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath, RunsDir: runsDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	agg, err := client.Moments(ctx, api.MomentsRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *stat != "" {
		rows, ok := agg.Stats[*stat]
		if !ok {
			return fmt.Errorf("statistic not captured: %s", *stat)
		}
		agg.Stats = map[string][]model.DepthStat{*stat: rows}
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(agg)
	}

	printMoments(agg.RunID, agg.Depths, agg.Stats)
	return nil
}

func runPrune(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "prune the most recent run from run index")
	plotKind := fs.String("plot", "", "plot kind: vanilla|bn_ff|bn_res")
	jsonOut := fs.Bool("json", false, "emit pruned moments as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "momenta.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath, RunsDir: runsDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	agg, err := client.Prune(ctx, api.PruneRequest{RunID: *runID, Latest: *latest, PlotKind: *plotKind})
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(agg)
	}

	printMoments(agg.RunID, agg.Depths, agg.Stats)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", "", "output directory (default exports/)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{RunsDir: runsDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, api.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
	return nil
}

func runInfo(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	topology := fs.String("topology", "feedforward", "network topology: feedforward|residual")
	depth := fs.Int("depth", 100, "total network depth in layers")
	channels := fs.Int("channels", 64, "channel width")
	kernelSize := fs.Int("kernel", 3, "square kernel size")
	spatialSize := fs.Int("spatial", 16, "square spatial extent")
	batchSize := fs.Int("batch", 16, "batch size")
	momentInterval := fs.Int("moment-interval", 1, "capture moments every N layers")
	if err := fs.Parse(args); err != nil {
		return err
	}

	plan, err := network.Build(network.Config{
		Topology:       *topology,
		Depth:          *depth,
		Channels:       *channels,
		KernelSize:     *kernelSize,
		SpatialSize:    *spatialSize,
		BatchSize:      *batchSize,
		MomentInterval: *momentInterval,
	})
	if err != nil {
		return err
	}

	bytes := propagation.EstimateBytes(plan)
	fmt.Printf("topology=%s depth=%d steps=%d captures=%d\n",
		plan.Config.Topology, plan.Config.Depth, len(plan.Steps), len(plan.CaptureDepths))
	fmt.Printf("working_set=%s per realization\n", humanize.Bytes(uint64(bytes)))
	return nil
}

func printMoments(runID string, depths []int, statTable map[string][]model.DepthStat) {
	fmt.Printf("run_id=%s depths=%d\n", runID, len(depths))
	names := make([]string, 0, len(statTable))
	for name := range statTable {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rows := statTable[name]
		for i, depth := range depths {
			if i >= len(rows) {
				break
			}
			row := rows[i]
			fmt.Printf("stat=%s depth=%d mean=%g variance=%g count=%d non_finite=%d\n",
				name, depth, float64(row.Mean), float64(row.Variance), row.Count, row.NonFinite)
		}
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: momentactl <init|reset|run|runs|moments|prune|export|info> [flags]", msg)
}
