package tuning

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fenwick-quant/soakctl/pkg/errs"
	"github.com/fenwick-quant/soakctl/pkg/jsonio"
	"github.com/fenwick-quant/soakctl/pkg/log"
	"github.com/fenwick-quant/soakctl/pkg/metrics"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

const overridesFile = "runtime_overrides.json"

// epsilon is the no-effective-change threshold: a merged delta smaller than
// this in absolute value is treated as a no-op rather than a real change.
const epsilon = 1e-9

// Config carries the pipeline's one tunable: how many iterations a param
// stays in cooldown after it is actually applied.
type Config struct {
	CooldownIterations int
}

// DefaultConfig matches the Guards Coordinator's DefaultConfig cooldown.
func DefaultConfig() Config {
	return Config{CooldownIterations: 2}
}

// Pipeline is the Delta Application Pipeline: merge, clamp, no-op
// detection, signature, atomic write.
type Pipeline struct {
	dir    string
	cfg    Config
	logger zerolog.Logger
}

// New constructs a Pipeline that writes runtime_overrides.json under dir.
func New(dir string, cfg Config) *Pipeline {
	return &Pipeline{dir: dir, cfg: cfg, logger: log.WithComponent("tuning")}
}

// Apply merges decision's deltas onto state's current overrides, clamps to
// bounds, writes the result if it is an effective change, and mutates
// state's history/cooldown/velocity bookkeeping for subsequent guard
// evaluations. It returns the TuningRecord for this iteration, plus an
// InvariantViolation error if decision proposed any non-whitelisted
// parameter key (that key is dropped from the merge; every other key is
// still applied normally).
func (p *Pipeline) Apply(iteration int, state *types.TuningState, decision types.GuardDecision) (types.TuningRecord, error) {
	record := types.TuningRecord{
		Rationale: decision.Proposal.Rationale,
		Deltas:    map[string]float64{},
	}
	record.SkipReason = append(record.SkipReason, decision.Tags...)

	current := state.Overrides.Clone()
	next := current.Clone()
	var touched, unknown []string

	for key, delta := range decision.Proposal.Deltas {
		if !types.IsWhitelisted(key) {
			unknown = append(unknown, key)
			continue
		}
		base, ok := current[key]
		if !ok {
			base = types.Clamp(key, 0)
		}
		next[key] = types.Clamp(key, base+delta)
		touched = append(touched, key)
	}
	sort.Strings(touched)

	var invariantErr error
	if len(unknown) > 0 {
		sort.Strings(unknown)
		invariantErr = errs.InvariantViolation(fmt.Sprintf("unknown parameter key(s) proposed: %s", strings.Join(unknown, ", ")), nil)
	}

	effective := map[string]float64{}
	maxAbs := 0.0
	for _, key := range touched {
		base, ok := current[key]
		if !ok {
			base = types.Clamp(key, 0)
		}
		d := next[key] - base
		effective[key] = d
		abs := d
		if abs < 0 {
			abs = -abs
		}
		if abs > maxAbs {
			maxAbs = abs
		}
	}

	if len(touched) == 0 || maxAbs <= epsilon {
		record.Applied = false
		record.SkipReason = append(record.SkipReason, types.SkipNoEffectiveChange)
		record.Signature = types.SignaturePair{Before: state.LastSignature, After: state.LastSignature}
		return record, invariantErr
	}

	signature, err := jsonio.SHA256Hex(next)
	if err != nil {
		return record, err
	}

	path := filepath.Join(p.dir, overridesFile)
	if err := jsonio.WriteAtomic(path, next); err != nil {
		metrics.WritesFailedTotal.Inc()
		record.Applied = false
		record.SkipReason = append(record.SkipReason, types.SkipWriteFailed)
		record.Signature = types.SignaturePair{Before: state.LastSignature, After: state.LastSignature}
		p.logger.Error().Err(err).Msg("runtime_overrides write failed")
		return record, nil
	}

	before := state.LastSignature
	state.Overrides = next
	state.LastSignature = signature
	for _, key := range touched {
		state.CooldownUntil[key] = iteration + p.cfg.CooldownIterations
		state.VelocityWindow[key] = append(state.VelocityWindow[key], types.VelocitySample{
			Iteration: iteration,
			AbsDelta:  absFloat(effective[key]),
		})
		state.History = append(state.History, types.AppliedDelta{
			Iteration: iteration,
			Param:     key,
			Delta:     effective[key],
		})
	}

	record.Applied = true
	record.ChangedKeys = touched
	record.Deltas = effective
	record.Signature = types.SignaturePair{Before: before, After: signature}
	metrics.DeltasAppliedTotal.Inc()
	return record, invariantErr
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
