package verifier

import (
	"github.com/fenwick-quant/soakctl/pkg/types"
)

// Classification is the per-pair verdict the Delta Verifier assigns.
type Classification string

const (
	ClassificationFull            Classification = "full_apply"
	ClassificationPartial         Classification = "partial"
	ClassificationFail            Classification = "fail"
	ClassificationSignatureStuck  Classification = "signature_stuck"
)

// Mode selects which full-apply-ratio threshold Verify enforces.
type Mode string

const (
	ModeDefault Mode = "default"
	ModeStrict  Mode = "strict"
	ModeSoft    Mode = "soft"
)

// epsilon matches the Delta Pipeline's no-effective-change tolerance.
const epsilon = 1e-9

// guardJustified is the subset of the skip-reason taxonomy that excuses a
// mismatch between a proposed delta and what was actually committed.
// write_failed and no_effective_change are deliberately excluded: the
// first is an I/O fault, not a guard decision, and the second means no
// mismatch could have occurred in the first place.
var guardJustified = map[types.SkipReason]bool{
	types.SkipVelocityExceeded:  true,
	types.SkipCooldownActive:    true,
	types.SkipOscillation:       true,
	types.SkipFreezeTriggered:   true,
	types.SkipWarmupSoftened:    true,
	types.SkipMultiFailSuppress: true,
}

// PairResult is one iteration's classification: IterationFrom proposed the
// deltas, IterationTo is the following iteration whose overrides should
// reflect them.
type PairResult struct {
	IterationFrom  int
	IterationTo    int
	Classification Classification
	Mismatches     []string
}

// Result is the verifier's full-run output.
type Result struct {
	Mode                Mode
	Pairs               []PairResult
	FullApplyRatio      float64
	SignatureStuckCount int
	Verdict             types.KPIVerdict
}

// Verify classifies every consecutive iteration pair in summaries where a
// proposal existed and produces an overall verdict for mode.
func Verify(mode Mode, summaries []types.IterationSummary) Result {
	var pairs []PairResult
	stuck := 0

	for i := 0; i+1 < len(summaries); i++ {
		prev := summaries[i]
		if len(prev.ProposedDeltas) == 0 {
			continue
		}

		pr := PairResult{IterationFrom: prev.Iteration, IterationTo: summaries[i+1].Iteration}

		if prev.Tuning.Applied && prev.Tuning.Signature.Before == prev.Tuning.Signature.After {
			pr.Classification = ClassificationSignatureStuck
			stuck++
			pairs = append(pairs, pr)
			continue
		}

		var mismatches []string
		for key, proposed := range prev.ProposedDeltas {
			observed := prev.Tuning.Deltas[key]
			if absFloat(observed-proposed) > epsilon {
				mismatches = append(mismatches, key)
			}
		}

		switch {
		case len(mismatches) == 0:
			pr.Classification = ClassificationFull
		case anyGuardJustified(prev.Tuning.SkipReason):
			pr.Classification = ClassificationPartial
			pr.Mismatches = mismatches
		default:
			pr.Classification = ClassificationFail
			pr.Mismatches = mismatches
		}
		pairs = append(pairs, pr)
	}

	var fullCount int
	for _, p := range pairs {
		if p.Classification == ClassificationFull {
			fullCount++
		}
	}

	var ratio float64
	if len(pairs) > 0 {
		ratio = float64(fullCount) / float64(len(pairs))
	}

	return Result{
		Mode:                mode,
		Pairs:               pairs,
		FullApplyRatio:       ratio,
		SignatureStuckCount: stuck,
		Verdict:             classify(mode, ratio, stuck, len(pairs)),
	}
}

func classify(mode Mode, ratio float64, stuckCount, pairCount int) types.KPIVerdict {
	switch mode {
	case ModeStrict:
		if ratio >= 0.95 {
			return types.VerdictPass
		}
	case ModeSoft:
		if pairCount == 0 || ratio >= 0.60 {
			return types.VerdictPass
		}
	default:
		if ratio >= 0.90 || (ratio >= 0.80 && stuckCount == 0) {
			return types.VerdictPass
		}
	}
	return types.VerdictFail
}

func anyGuardJustified(tags []types.SkipReason) bool {
	for _, t := range tags {
		if guardJustified[t] {
			return true
		}
	}
	return false
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
