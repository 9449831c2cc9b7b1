package simcore

import (
	"testing"

	"simcash/internal/costs"
	"simcash/internal/domain"
	"simcash/internal/policy"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Seed:           7,
		TicksPerDay:    10,
		EpisodeEndTick: 1000,
		Agents: []AgentConfig{
			{ID: "a", Balance: 1000},
			{ID: "b", Balance: 1000},
		},
		Policies: map[string]*policy.Policy{
			"a": {
				AgentID:     "a",
				PaymentTree: policy.Leaf(&policy.Action{Kind: policy.ActionSubmit}),
			},
		},
		PolicyParams: map[string]float64{},
		CostConfig:   costs.Config{TicksPerDay: 10},
		MaxCyclesPerTick: 4,
	}
}

func TestNew_RejectsInvalidPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Policies["a"] = &policy.Policy{
		AgentID: "a",
		PaymentTree: policy.Condition(
			policy.Bin(policy.OpGT, policy.Field("tx.nonexistent_field"), policy.Value(0)),
			policy.Leaf(&policy.Action{Kind: policy.ActionSubmit}),
			policy.Leaf(&policy.Action{Kind: policy.ActionHold}),
		),
	}

	_, err := New(cfg)
	require.Error(t, err)
}

func TestTick_AdvancesAndSettles(t *testing.T) {
	sim, err := New(testConfig())
	require.NoError(t, err)

	state := sim.state
	tx := &domain.Transaction{
		ID: "tx1", SenderID: "a", ReceiverID: "b",
		Amount: 400, RemainingAmount: 400,
		ArrivalTick: 0, DeadlineTick: 20,
		Status: domain.StatusPending,
	}
	state.AddTransaction(tx)
	require.NoError(t, state.AppendToQueue1("a", "tx1"))

	result, err := sim.Tick()
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Tick)

	bal, err := sim.AgentBalance("a")
	require.NoError(t, err)
	require.Equal(t, domain.Cents(600), bal)
}

func TestCheckpointRoundTrip(t *testing.T) {
	sim, err := New(testConfig())
	require.NoError(t, err)

	_, err = sim.Tick()
	require.NoError(t, err)
	_, err = sim.Tick()
	require.NoError(t, err)

	cp := sim.Checkpoint()
	require.Equal(t, int64(2), cp.Tick)

	restored, err := Restore(testConfig(), cp)
	require.NoError(t, err)
	require.Equal(t, int64(2), restored.CurrentTick())

	origBal, err := sim.AgentBalance("a")
	require.NoError(t, err)
	restoredBal, err := restored.AgentBalance("a")
	require.NoError(t, err)
	require.Equal(t, origBal, restoredBal)
}
