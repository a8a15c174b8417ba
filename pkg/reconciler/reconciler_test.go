package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-quant/soakctl/pkg/types"
)

func TestEvaluate_WarmupIterationTagsButStillApplies(t *testing.T) {
	c := New(DefaultConfig())
	state := types.NewTuningState()

	proposal := types.Proposal{Deltas: map[string]float64{"spread_bps": 1}}
	decision := c.Evaluate(1, proposal, state, nil, types.VerdictWarn)

	assert.Equal(t, types.GuardApply, decision.Outcome)
	assert.Contains(t, decision.Tags, types.SkipWarmupSoftened)
	assert.Equal(t, 1.0, decision.Proposal.Deltas["spread_bps"])
}

func TestEvaluate_CooldownBlocksRecentlyTouchedParam(t *testing.T) {
	c := New(DefaultConfig())
	state := types.NewTuningState()
	state.CooldownUntil["spread_bps"] = 10

	proposal := types.Proposal{Deltas: map[string]float64{"spread_bps": 1}}
	decision := c.Evaluate(5, proposal, state, nil, types.VerdictFail)

	assert.Equal(t, types.GuardSkip, decision.Outcome)
	assert.Contains(t, decision.Tags, types.SkipCooldownActive)
	assert.Empty(t, decision.Proposal.Deltas)
}

func TestEvaluate_VelocityCapClampsExcessiveDelta(t *testing.T) {
	c := New(DefaultConfig())
	c.cfg.VelocityCap["spread_bps"] = 2
	state := types.NewTuningState()

	proposal := types.Proposal{Deltas: map[string]float64{"spread_bps": 10}}
	decision := c.Evaluate(10, proposal, state, nil, types.VerdictFail)

	require.Contains(t, decision.Proposal.Deltas, "spread_bps")
	assert.Equal(t, 2.0, decision.Proposal.Deltas["spread_bps"])
	assert.Equal(t, types.GuardApply, decision.Outcome)
}

func TestEvaluate_VelocityExhaustedDropsParam(t *testing.T) {
	c := New(DefaultConfig())
	c.cfg.VelocityCap["spread_bps"] = 2
	state := types.NewTuningState()
	state.VelocityWindow["spread_bps"] = []types.VelocitySample{
		{Iteration: 9, AbsDelta: 2},
	}

	proposal := types.Proposal{Deltas: map[string]float64{"spread_bps": 1}}
	decision := c.Evaluate(10, proposal, state, nil, types.VerdictFail)

	assert.Equal(t, types.GuardSkip, decision.Outcome)
	assert.Contains(t, decision.Tags, types.SkipVelocityExceeded)
}

func TestEvaluate_OscillationPatternFreezesParam(t *testing.T) {
	c := New(DefaultConfig())
	state := types.NewTuningState()
	state.History = []types.AppliedDelta{
		{Param: "spread_bps", Delta: 1},
		{Param: "spread_bps", Delta: -1},
		{Param: "spread_bps", Delta: 1},
	}

	proposal := types.Proposal{Deltas: map[string]float64{"spread_bps": -1}}
	decision := c.Evaluate(20, proposal, state, nil, types.VerdictFail)

	assert.Equal(t, types.GuardSkip, decision.Outcome)
	assert.Contains(t, decision.Tags, types.SkipOscillation)
	assert.Contains(t, state.OscillationFrozenTil, "spread_bps")
}

func TestEvaluate_FreezeArmsAfterConsecutivePasses(t *testing.T) {
	c := New(DefaultConfig())
	state := types.NewTuningState()
	state.ConsecutivePasses = c.cfg.FreezeConsecutivePass - 1

	proposal := types.Proposal{Deltas: map[string]float64{}}
	decision := c.Evaluate(30, proposal, state, nil, types.VerdictPass)

	assert.True(t, decision.FreezeOn)
	assert.True(t, state.Frozen)
	assert.Contains(t, decision.Tags, types.SkipFreezeTriggered)
}

func TestEvaluate_FreezeDisarmsOnDriverFiring(t *testing.T) {
	c := New(DefaultConfig())
	state := types.NewTuningState()
	state.Frozen = true
	state.ConsecutivePasses = c.cfg.FreezeConsecutivePass

	proposal := types.Proposal{Deltas: map[string]float64{"spread_bps": 1}}
	decision := c.Evaluate(31, proposal, state, []types.DriverTag{types.DriverAdverseBps}, types.VerdictFail)

	assert.False(t, decision.FreezeOn)
	assert.False(t, state.Frozen)
	assert.Equal(t, types.GuardApply, decision.Outcome)
}

func TestEvaluate_HysteresisDelaysReleaseUntilConsecutiveFailuresMet(t *testing.T) {
	c := New(DefaultConfig())
	c.cfg.FreezeHysteresisIterations = 2
	state := types.NewTuningState()
	state.Frozen = true
	state.ConsecutivePasses = c.cfg.FreezeConsecutivePass

	proposal := types.Proposal{Deltas: map[string]float64{"spread_bps": 1}}

	first := c.Evaluate(31, proposal, state, []types.DriverTag{types.DriverAdverseBps}, types.VerdictFail)
	assert.True(t, first.FreezeOn)
	assert.True(t, state.Frozen)
	assert.Equal(t, 1, state.ConsecutiveFailures)

	second := c.Evaluate(32, proposal, state, []types.DriverTag{types.DriverAdverseBps}, types.VerdictFail)
	assert.False(t, second.FreezeOn)
	assert.False(t, state.Frozen)
	assert.Equal(t, 0, state.ConsecutiveFailures)
}

func TestEvaluate_MultiFailBlanksProposalAtThreeDrivers(t *testing.T) {
	c := New(DefaultConfig())
	state := types.NewTuningState()

	proposal := types.Proposal{Deltas: map[string]float64{"spread_bps": 1, "size_usd": 2}}
	drivers := []types.DriverTag{types.DriverAdverseBps, types.DriverSlippageBps, types.DriverOrderAge}
	decision := c.Evaluate(1, proposal, state, drivers, types.VerdictFail)

	assert.Equal(t, types.GuardSkip, decision.Outcome)
	assert.Contains(t, decision.Tags, types.SkipMultiFailSuppress)
	assert.Empty(t, decision.Proposal.Deltas)
}

func TestEvaluate_PartialOutcomeWhenSomeParamsSurvive(t *testing.T) {
	c := New(DefaultConfig())
	state := types.NewTuningState()
	state.CooldownUntil["size_usd"] = 100

	proposal := types.Proposal{Deltas: map[string]float64{"spread_bps": 1, "size_usd": 2}}
	decision := c.Evaluate(1, proposal, state, nil, types.VerdictWarn)

	assert.Equal(t, types.GuardPartial, decision.Outcome)
	assert.Contains(t, decision.Proposal.Deltas, "spread_bps")
	assert.NotContains(t, decision.Proposal.Deltas, "size_usd")
}
