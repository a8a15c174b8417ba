package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenwick-quant/soakctl/pkg/connector"
	"github.com/fenwick-quant/soakctl/pkg/engine"
	"github.com/fenwick-quant/soakctl/pkg/log"
	"github.com/fenwick-quant/soakctl/pkg/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a soak: N iterations of tuning-guarded market making",
	Long: `Run drives the Iteration Engine for the configured number of
iterations against either the deterministic fake connector or a live
exchange reached over HTTP, writing iteration summaries, a tuning report
and a post-soak KPI snapshot under --artifacts-path.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSlice("symbols", []string{"BTC-USD"}, "Symbols to quote, comma-separated")
	runCmd.Flags().Int("iterations", 10, "Number of iterations")
	runCmd.Flags().Duration("iteration-duration", 5*time.Minute, "Wall-clock budget per iteration")
	runCmd.Flags().Duration("tick-interval", 200*time.Millisecond, "Interval between ticks within an iteration")
	runCmd.Flags().Duration("between-iteration-pause", 0, "Pause between iterations")
	runCmd.Flags().String("artifacts-path", "./soak-artifacts", "Directory for iteration summaries, tuning report and snapshot")
	runCmd.Flags().String("data-dir", "./soak-data", "Directory for the bbolt order store, used with both --fake and --live")

	runCmd.Flags().Bool("fake", true, "Run against the deterministic fake connector")
	runCmd.Flags().Bool("live", false, "Run against a live exchange over --live-endpoint")
	runCmd.Flags().String("live-endpoint", "", "Base URL of the live exchange HTTP endpoint (required with --live)")
	runCmd.Flags().Duration("live-timeout", 5*time.Second, "Per-request timeout against --live-endpoint")

	runCmd.Flags().Int64("fake-seed", 1, "Deterministic RNG seed for the fake connector")
	runCmd.Flags().Float64("fake-fill-probability", 0.35, "Fake connector per-tick fill probability")
	runCmd.Flags().Float64("fake-reject-probability", 0.02, "Fake connector per-order reject probability")

	runCmd.Flags().Bool("chaos-reject-spike", false, "Enable the reject_spike chaos scenario")
	runCmd.Flags().Bool("chaos-latency-spike", false, "Enable the latency_spike chaos scenario")
	runCmd.Flags().Float64("chaos-intensity", 0.3, "Intensity in [0,1] shared by enabled chaos scenarios")

	runCmd.Flags().Int("freeze-hysteresis-iterations", 0, "Consecutive failing iterations required before a freeze releases; 0 releases on the first")
	runCmd.Flags().Float64("max-taker-share-pct", 0, "Taker-cap ceiling override; 0 keeps the package default")

	runCmd.Flags().String("metrics-addr", "", "Address to serve /metrics, /healthz, /startupz and /livez on (disabled if empty)")
}

// serveMetrics starts the Prometheus and health-check HTTP server on addr
// and returns a shutdown func.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", metrics.HealthHandler())
	mux.Handle("/startupz", metrics.StartupHandler())
	mux.Handle("/livez", metrics.LivenessHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	logger := log.WithComponent("metrics-server")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	symbols, _ := cmd.Flags().GetStringSlice("symbols")
	iterations, _ := cmd.Flags().GetInt("iterations")
	iterationDuration, _ := cmd.Flags().GetDuration("iteration-duration")
	tickInterval, _ := cmd.Flags().GetDuration("tick-interval")
	pause, _ := cmd.Flags().GetDuration("between-iteration-pause")
	artifactsPath, _ := cmd.Flags().GetString("artifacts-path")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	live, _ := cmd.Flags().GetBool("live")
	liveEndpoint, _ := cmd.Flags().GetString("live-endpoint")
	liveTimeout, _ := cmd.Flags().GetDuration("live-timeout")

	fakeSeed, _ := cmd.Flags().GetInt64("fake-seed")
	fakeFillProbability, _ := cmd.Flags().GetFloat64("fake-fill-probability")
	fakeRejectProbability, _ := cmd.Flags().GetFloat64("fake-reject-probability")

	chaosRejectSpike, _ := cmd.Flags().GetBool("chaos-reject-spike")
	chaosLatencySpike, _ := cmd.Flags().GetBool("chaos-latency-spike")
	chaosIntensity, _ := cmd.Flags().GetFloat64("chaos-intensity")

	freezeHysteresis, _ := cmd.Flags().GetInt("freeze-hysteresis-iterations")
	maxTakerShare, _ := cmd.Flags().GetFloat64("max-taker-share-pct")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	if live && liveEndpoint == "" {
		return fmt.Errorf("--live-endpoint is required with --live")
	}

	cfg := engine.DefaultConfig(symbols)
	cfg.IterationCount = iterations
	cfg.IterationDuration = iterationDuration
	cfg.TickInterval = tickInterval
	cfg.BetweenIterationPause = pause
	cfg.ArtifactsDir = artifactsPath
	cfg.DataDir = dataDir
	cfg.FakeSeed = fakeSeed
	cfg.FakeFillProbability = fakeFillProbability
	cfg.FakeRejectProbability = fakeRejectProbability
	cfg.Freeze.HysteresisIterations = freezeHysteresis
	if maxTakerShare > 0 {
		cfg.TakerCap.MaxTakerSharePct = maxTakerShare
	}

	if chaosRejectSpike || chaosLatencySpike {
		cfg.Chaos.Enabled = true
		cfg.Chaos.ScenarioIntensity = map[string]float64{}
		if chaosRejectSpike {
			cfg.Chaos.ScenarioIntensity[engine.ChaosScenarioRejectSpike] = chaosIntensity
		}
		if chaosLatencySpike {
			cfg.Chaos.ScenarioIntensity[engine.ChaosScenarioLatencySpike] = chaosIntensity
		}
	}

	if live {
		cfg.Connector = connector.NewLive(newHTTPTransport(liveEndpoint, liveTimeout))
	}

	e, err := engine.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct engine: %w", err)
	}

	if metricsAddr != "" {
		stopMetrics := serveMetrics(metricsAddr)
		defer stopMetrics()
		fmt.Printf("  Metrics/health: http://%s/{metrics,healthz,startupz,livez}\n", metricsAddr)
	}

	fmt.Println("Starting soakctl run...")
	fmt.Printf("  Symbols: %s\n", strings.Join(symbols, ","))
	fmt.Printf("  Iterations: %d\n", iterations)
	fmt.Printf("  Iteration duration: %s\n", iterationDuration)
	fmt.Printf("  Artifacts path: %s\n", artifactsPath)
	if live {
		fmt.Printf("  Connector: live (%s)\n", liveEndpoint)
	} else {
		fmt.Printf("  Connector: fake (seed=%d)\n", fakeSeed)
	}
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()
	defer signal.Stop(sigCh)

	if err := e.Run(ctx); err != nil {
		return fmt.Errorf("soak run failed: %w", err)
	}

	fmt.Println("✓ Soak run complete")
	fmt.Printf("  Artifacts written to %s\n", artifactsPath)
	return nil
}
