package momenta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"momenta/internal/model"
	"momenta/internal/network"
	"momenta/internal/propagation"
	"momenta/internal/stats"
	"momenta/internal/storage"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "momenta.db"
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
}

type Client struct {
	store storage.Store

	runsDir     string
	exportsDir  string
	initialized bool
}

// RunRequest describes one experiment. Zero values take the documented
// defaults; invalid combinations are rejected before any work starts.
type RunRequest struct {
	Topology        string
	Depth           int
	Channels        int
	KernelSize      int
	ChannelSchedule []int
	SpatialSize     int
	BatchSize       int
	Boundary        string
	Activation      string
	Normalize       bool
	Fuzz            float64
	GammaInit       string
	ResidualBlock   int
	InputInit       string
	NoiseInit       string
	NoiseScale      float64
	KernelGain      float64
	MomentInterval  int

	Realizations       int
	Workers            int
	Seed               int64
	EarlyStopNonFinite int
	MemoryLimitBytes   int
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Depths       []int
	Completed    int
	Stopped      bool
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Topology     string
	Depth        int
	Channels     int
	Realizations int
	Completed    int
	Stopped      bool
	Seed         int64
}

type MomentsRequest struct {
	RunID  string
	Latest bool
}

type PruneRequest struct {
	RunID    string
	Latest   bool
	PlotKind string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

func (c *Client) Reset(ctx context.Context) error {
	if err := c.ensureStore(ctx); err != nil {
		return err
	}
	return c.store.Reset(ctx)
}

// Run builds the network plan, drives the realizations, and persists both
// the experiment record and the aggregated moments before returning.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Realizations <= 0 {
		req.Realizations = 100
	}
	if req.Workers <= 0 {
		req.Workers = 4
	}
	if req.Seed == 0 {
		req.Seed = 1
	}

	cfg := network.Config{
		Topology:        req.Topology,
		Depth:           req.Depth,
		Channels:        req.Channels,
		KernelSize:      req.KernelSize,
		ChannelSchedule: req.ChannelSchedule,
		SpatialSize:     req.SpatialSize,
		BatchSize:       req.BatchSize,
		Boundary:        req.Boundary,
		Activation:      req.Activation,
		Normalize:       req.Normalize,
		Fuzz:            req.Fuzz,
		GammaInit:       req.GammaInit,
		ResidualBlock:   req.ResidualBlock,
		InputInit:       req.InputInit,
		NoiseInit:       req.NoiseInit,
		NoiseScale:      req.NoiseScale,
		KernelGain:      req.KernelGain,
		MomentInterval:  req.MomentInterval,
	}
	plan, err := network.Build(cfg)
	if err != nil {
		return RunSummary{}, err
	}
	cfg = plan.Config

	now := time.Now().UTC()
	runID := c.newRunID(cfg.Topology, req.Seed, now)

	result, err := propagation.RunRealizations(ctx, plan, propagation.Options{
		RunID:              runID,
		Realizations:       req.Realizations,
		Workers:            req.Workers,
		Seed:               req.Seed,
		EarlyStopNonFinite: req.EarlyStopNonFinite,
		MemoryLimitBytes:   req.MemoryLimitBytes,
	})
	if err != nil {
		return RunSummary{}, err
	}

	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}

	created := now.Format(time.RFC3339Nano)
	exp := model.ExperimentRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:             runID,
		Topology:       cfg.Topology,
		Depth:          cfg.Depth,
		Channels:       cfg.Channels,
		KernelSize:     cfg.KernelSize,
		SpatialSize:    cfg.SpatialSize,
		BatchSize:      cfg.BatchSize,
		Boundary:       cfg.Boundary,
		Activation:     cfg.Activation,
		Normalize:      cfg.Normalize,
		Fuzz:           cfg.Fuzz,
		NoiseInit:      cfg.NoiseInit,
		NoiseScale:     cfg.NoiseScale,
		InputInit:      cfg.InputInit,
		Realizations:   req.Realizations,
		Workers:        req.Workers,
		Seed:           req.Seed,
		MomentInterval: cfg.MomentInterval,
		CreatedAtUTC:   created,
	}
	if err := c.store.SaveExperiment(ctx, exp); err != nil {
		return RunSummary{}, err
	}

	agg := result.Moments
	agg.SchemaVersion = storage.CurrentSchemaVersion
	agg.CodecVersion = storage.CurrentCodecVersion
	if err := c.store.SaveMoments(ctx, agg); err != nil {
		return RunSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:          runID,
			Topology:       cfg.Topology,
			Depth:          cfg.Depth,
			Channels:       cfg.Channels,
			KernelSize:     cfg.KernelSize,
			SpatialSize:    cfg.SpatialSize,
			BatchSize:      cfg.BatchSize,
			Boundary:       cfg.Boundary,
			Activation:     cfg.Activation,
			Normalize:      cfg.Normalize,
			Fuzz:           cfg.Fuzz,
			NoiseInit:      cfg.NoiseInit,
			NoiseScale:     cfg.NoiseScale,
			InputInit:      cfg.InputInit,
			Realizations:   req.Realizations,
			Workers:        req.Workers,
			Seed:           req.Seed,
			MomentInterval: cfg.MomentInterval,
			CreatedAtUTC:   created,
		},
		Moments:   agg,
		Completed: result.Completed,
		Stopped:   result.Stopped,
	})
	if err != nil {
		return RunSummary{}, err
	}

	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:        runID,
		Topology:     cfg.Topology,
		Depth:        cfg.Depth,
		Channels:     cfg.Channels,
		Realizations: req.Realizations,
		Completed:    result.Completed,
		Stopped:      result.Stopped,
		Seed:         req.Seed,
		Workers:      req.Workers,
		CreatedAtUTC: created,
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		Depths:       append([]int(nil), agg.Depths...),
		Completed:    result.Completed,
		Stopped:      result.Stopped,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Topology:     e.Topology,
			Depth:        e.Depth,
			Channels:     e.Channels,
			Realizations: e.Realizations,
			Completed:    e.Completed,
			Stopped:      e.Stopped,
			Seed:         e.Seed,
		})
	}
	return out, nil
}

func (c *Client) Moments(ctx context.Context, req MomentsRequest) (model.AggregatedMoments, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return model.AggregatedMoments{}, err
	}

	if err := c.ensureStore(ctx); err != nil {
		return model.AggregatedMoments{}, err
	}
	agg, ok, err := c.store.GetMoments(ctx, runID)
	if err != nil {
		return model.AggregatedMoments{}, err
	}
	if ok {
		return agg, nil
	}

	// Fall back to the run directory for runs persisted by earlier
	// processes with a memory store.
	agg, ok, err = stats.ReadMoments(c.runsDir, runID)
	if err != nil {
		return model.AggregatedMoments{}, err
	}
	if !ok {
		return model.AggregatedMoments{}, fmt.Errorf("moments not found for run id: %s", runID)
	}
	return agg, nil
}

func (c *Client) Prune(ctx context.Context, req PruneRequest) (model.AggregatedMoments, error) {
	if req.PlotKind == "" {
		return model.AggregatedMoments{}, errors.New("plot kind is required")
	}
	agg, err := c.Moments(ctx, MomentsRequest{RunID: req.RunID, Latest: req.Latest})
	if err != nil {
		return model.AggregatedMoments{}, err
	}
	return stats.Prune(agg, req.PlotKind)
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if latest {
		entries, err := stats.ListRunIndex(c.runsDir)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", errors.New("no runs available")
		}
		return entries[0].RunID, nil
	}
	if runID == "" {
		return "", errors.New("run id or latest is required")
	}
	return runID, nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// newRunID builds a readable run id from the topology, seed, and launch
// time. Back-to-back runs of the same configuration within one second get
// a uuid suffix so both run directories survive.
func (c *Client) newRunID(topology string, seed int64, now time.Time) string {
	id := fmt.Sprintf("%s-%d-%d", topology, seed, now.Unix())
	if _, err := os.Stat(filepath.Join(c.runsDir, id)); err == nil {
		id = fmt.Sprintf("%s-%s", id, uuid.NewString()[:8])
	}
	return id
}
