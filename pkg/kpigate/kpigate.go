package kpigate

import (
	"os"
	"sort"

	"github.com/rs/zerolog"

	"github.com/fenwick-quant/soakctl/pkg/log"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

// Config carries the gate's window size and threshold table.
type Config struct {
	WindowSize             int
	MinMakerTakerRatioMean float64
	MinNetBpsMean          float64
	MaxP95LatencyMsMax     float64
	MaxRiskRatioMedian     float64
}

// DefaultConfig returns the production readiness thresholds.
func DefaultConfig() Config {
	return Config{
		WindowSize:             8,
		MinMakerTakerRatioMean: 0.83,
		MinNetBpsMean:          2.9,
		MaxP95LatencyMsMax:     330,
		MaxRiskRatioMedian:     0.40,
	}
}

// Gate is the KPI Gate.
type Gate struct {
	cfg    Config
	logger zerolog.Logger
}

// New constructs a Gate.
func New(cfg Config) *Gate {
	return &Gate{cfg: cfg, logger: log.WithComponent("kpigate")}
}

// Evaluate aggregates the last cfg.WindowSize entries of summaries (or
// fewer if the run is shorter) and produces a PostSoakSnapshot. generatedUTC
// is the frozen or wall-clock timestamp the caller stamps the snapshot
// with; Evaluate itself makes no time calls so it stays deterministic under
// repeated test invocation.
func (g *Gate) Evaluate(summaries []types.IterationSummary, generatedUTC string) types.PostSoakSnapshot {
	window := summaries
	if len(window) > g.cfg.WindowSize {
		window = window[len(window)-g.cfg.WindowSize:]
	}

	aggregates := map[string]types.KPIAggregate{
		"maker_taker_ratio": aggregate(extract(window, func(s types.KPISummary) float64 { return s.MakerTakerRatio })),
		"net_bps":           aggregate(extract(window, func(s types.KPISummary) float64 { return s.NetBps })),
		"p95_latency_ms":    aggregate(extract(window, func(s types.KPISummary) float64 { return s.P95LatencyMs })),
		"risk_ratio":        aggregate(extract(window, func(s types.KPISummary) float64 { return s.RiskRatio })),
	}

	verdict := g.classify(aggregates)

	overridden := os.Getenv("READINESS_OVERRIDE") == "1"
	if overridden {
		if verdict != types.VerdictPass {
			g.logger.Warn().Str("actual_verdict", string(verdict)).Msg("readiness override forcing PASS")
		}
		verdict = types.VerdictPass
	}

	return types.PostSoakSnapshot{
		IterationsConsidered: len(window),
		Aggregates:           aggregates,
		Verdict:              verdict,
		Overridden:           overridden,
		GeneratedUTC:         generatedUTC,
	}
}

func (g *Gate) classify(aggregates map[string]types.KPIAggregate) types.KPIVerdict {
	if aggregates["maker_taker_ratio"].Mean < g.cfg.MinMakerTakerRatioMean {
		return types.VerdictFail
	}
	if aggregates["net_bps"].Mean < g.cfg.MinNetBpsMean {
		return types.VerdictFail
	}
	if aggregates["p95_latency_ms"].Max > g.cfg.MaxP95LatencyMsMax {
		return types.VerdictFail
	}
	if aggregates["risk_ratio"].Median > g.cfg.MaxRiskRatioMedian {
		return types.VerdictFail
	}
	return types.VerdictPass
}

func extract(summaries []types.IterationSummary, field func(types.KPISummary) float64) []float64 {
	values := make([]float64, len(summaries))
	for i, s := range summaries {
		values[i] = field(s.Summary)
	}
	return values
}

func aggregate(values []float64) types.KPIAggregate {
	if len(values) == 0 {
		return types.KPIAggregate{}
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}

	return types.KPIAggregate{
		Mean:   sum / float64(len(values)),
		Median: median(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

// median assumes sorted is already ascending.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
