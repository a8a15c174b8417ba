package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenwick-quant/soakctl/pkg/artifacts"
	"github.com/fenwick-quant/soakctl/pkg/kpigate"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate the Readiness Gate over a completed soak's artifacts",
	Long: `Gate aggregates the last N iteration summaries under --path and
classifies the run PASS or FAIL against the four named thresholds. Exit
codes: 0 PASS, 1 FAIL, 2 for a malformed or unreadable artifact tree.
READINESS_OVERRIDE=1 forces exit 0.`,
	RunE: runGate,
}

func init() {
	gateCmd.Flags().String("path", "", "Artifact tree directory (required)")
	gateCmd.Flags().Float64("min_maker_taker", kpigate.DefaultConfig().MinMakerTakerRatioMean, "Minimum mean maker/taker ratio")
	gateCmd.Flags().Float64("min_edge", kpigate.DefaultConfig().MinNetBpsMean, "Minimum mean net edge in bps")
	gateCmd.Flags().Float64("max_latency", kpigate.DefaultConfig().MaxP95LatencyMsMax, "Maximum p95 latency in ms")
	gateCmd.Flags().Float64("max_risk", kpigate.DefaultConfig().MaxRiskRatioMedian, "Maximum median risk ratio")
	gateCmd.Flags().Int("window", kpigate.DefaultConfig().WindowSize, "Number of trailing iterations considered")
	_ = gateCmd.MarkFlagRequired("path")
}

func runGate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	minMakerTaker, _ := cmd.Flags().GetFloat64("min_maker_taker")
	minEdge, _ := cmd.Flags().GetFloat64("min_edge")
	maxLatency, _ := cmd.Flags().GetFloat64("max_latency")
	maxRisk, _ := cmd.Flags().GetFloat64("max_risk")
	window, _ := cmd.Flags().GetInt("window")

	store, err := artifacts.New(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gate: cannot open artifact tree: %v\n", err)
		os.Exit(2)
	}

	summaries, err := store.ListIterationSummaries()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gate: cannot list iteration summaries: %v\n", err)
		os.Exit(2)
	}
	if len(summaries) == 0 {
		fmt.Fprintf(os.Stderr, "gate: no iteration summaries found under %s\n", path)
		os.Exit(2)
	}

	gate := kpigate.New(kpigate.Config{
		WindowSize:             window,
		MinMakerTakerRatioMean: minMakerTaker,
		MinNetBpsMean:          minEdge,
		MaxP95LatencyMsMax:     maxLatency,
		MaxRiskRatioMedian:     maxRisk,
	})
	snapshot := gate.Evaluate(summaries, time.Now().UTC().Format(time.RFC3339))

	if err := store.WriteSnapshot(snapshot); err != nil {
		fmt.Fprintf(os.Stderr, "gate: failed to write snapshot: %v\n", err)
		os.Exit(2)
	}

	printSnapshot(snapshot)

	if snapshot.Verdict != types.VerdictPass {
		os.Exit(1)
	}
	return nil
}

func printSnapshot(snapshot types.PostSoakSnapshot) {
	fmt.Printf("Readiness Gate: %s\n", snapshot.Verdict)
	if snapshot.Overridden {
		fmt.Println("  (READINESS_OVERRIDE=1 forced PASS)")
	}
	fmt.Printf("  Iterations considered: %d\n", snapshot.IterationsConsidered)
	for _, key := range []string{"maker_taker_ratio", "net_bps", "p95_latency_ms", "risk_ratio"} {
		agg, ok := snapshot.Aggregates[key]
		if !ok {
			continue
		}
		fmt.Printf("  %-18s mean=%.4f median=%.4f min=%.4f max=%.4f\n", key, agg.Mean, agg.Median, agg.Min, agg.Max)
	}
}
