package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-quant/soakctl/pkg/artifacts"
	"github.com/fenwick-quant/soakctl/pkg/connector"
	"github.com/fenwick-quant/soakctl/pkg/metrics"
	"github.com/fenwick-quant/soakctl/pkg/storage"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig([]string{"BTC-USD"})
	cfg.IterationCount = 2
	cfg.IterationDuration = 120 * time.Millisecond
	cfg.TickInterval = 20 * time.Millisecond
	cfg.ArtifactsDir = t.TempDir()
	cfg.Store = storage.NewMemStore()
	cfg.Connector = connector.NewFakeDeterministic(
		connector.WithSeed(7),
		connector.WithFillProbability(0.9),
		connector.WithRejectProbability(0),
	)
	return cfg
}

func TestRun_WritesIterationArtifactsForEveryIteration(t *testing.T) {
	metrics.Reset()
	defer metrics.Reset()

	cfg := testConfig(t)
	e, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, e.Run(ctx))

	store, err := artifacts.New(cfg.ArtifactsDir)
	require.NoError(t, err)

	summaries, err := store.ListIterationSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, cfg.IterationCount)
	assert.Equal(t, 1, summaries[0].Iteration)
	assert.Equal(t, 2, summaries[1].Iteration)

	_, err = os.Stat(filepath.Join(cfg.ArtifactsDir, "POST_SOAK_SNAPSHOT.json"))
	assert.NoError(t, err)

	report, err := store.ReadTuningReport()
	require.NoError(t, err)
	assert.Len(t, report, cfg.IterationCount)
}

func TestRun_StopsEarlyOnCancelledContextButStillWritesSnapshot(t *testing.T) {
	metrics.Reset()
	defer metrics.Reset()

	cfg := testConfig(t)
	cfg.IterationCount = 5
	e, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, e.Run(ctx))

	store, err := artifacts.New(cfg.ArtifactsDir)
	require.NoError(t, err)

	summaries, err := store.ListIterationSummaries()
	require.NoError(t, err)
	assert.Less(t, len(summaries), cfg.IterationCount)

	_, err = os.Stat(filepath.Join(cfg.ArtifactsDir, "POST_SOAK_SNAPSHOT.json"))
	assert.NoError(t, err)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig(nil)
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_RejectsWidenedParamBoundOverride(t *testing.T) {
	cfg := DefaultConfig([]string{"BTC-USD"})
	cfg.ArtifactsDir = t.TempDir()
	cfg.Store = storage.NewMemStore()
	cfg.ParamBoundOverrides = map[string]types.ParamBound{
		"min_interval_ms": {Lo: 10, Hi: 90},
	}

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_AcceptsNarrowedParamBoundOverride(t *testing.T) {
	cfg := DefaultConfig([]string{"BTC-USD"})
	cfg.ArtifactsDir = t.TempDir()
	cfg.Store = storage.NewMemStore()
	cfg.ParamBoundOverrides = map[string]types.ParamBound{
		"min_interval_ms": {Lo: 60, Hi: 80},
	}

	e, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, types.ParamBound{Lo: 60, Hi: 80}, types.ParamBounds["min_interval_ms"])

	types.ParamBounds["min_interval_ms"] = types.ParamBound{Lo: 50, Hi: 90}
}
