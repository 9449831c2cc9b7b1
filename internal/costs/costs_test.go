package costs

import (
	"testing"

	"simcash/internal/domain"
	"simcash/internal/events"

	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *domain.SimulationState {
	t.Helper()
	state := domain.NewSimulationState(10, events.NewLog())
	a := domain.NewAgent("a", -1000, 5000, 0, 0.2)
	require.NoError(t, state.AddAgent(a))
	return state
}

func TestAccrueTick_OverdraftAndCollateralCosts(t *testing.T) {
	state := newTestState(t)
	eng := New(state, Config{
		TicksPerDay: 10, OverdraftBps: 100, CollateralOpportunityBps: 50,
	})
	require.NoError(t, eng.AccrueTick(1))

	a, _ := state.Agent("a")
	expectedOverdraft := domain.ApplyBpsPerTick(1000, 100, 10)
	expectedCollateral := domain.ApplyBpsPerTick(5000, 50, 10)
	require.Equal(t, -1000-(expectedOverdraft+expectedCollateral), a.Balance)
}

func TestAccrueTick_DeadlinePenaltyChargedOnceWhenOverdue(t *testing.T) {
	state := newTestState(t)
	a, _ := state.Agent("a")
	a.Balance = 0
	tx := &domain.Transaction{
		ID: "tx1", SenderID: "a", ReceiverID: "b",
		Amount: 100, RemainingAmount: 100, DeadlineTick: 2, Status: domain.StatusPending,
	}
	state.AddTransaction(tx)
	require.NoError(t, state.AppendToQueue1("a", "tx1"))

	eng := New(state, Config{TicksPerDay: 10, DeadlinePenalty: 500, OverdueDelayMultiplier: 1})

	require.NoError(t, eng.AccrueTick(3))
	require.True(t, tx.DeadlinePenaltyCharged)
	require.Equal(t, domain.StatusOverdue, tx.Status)
	a, _ = state.Agent("a")
	require.Equal(t, domain.Cents(-500), a.Balance)

	require.NoError(t, eng.AccrueTick(4))
	require.Equal(t, domain.Cents(-500), a.Balance)
}

func TestAccrueTick_DetectsOverdueInQueue2WithoutDelayCost(t *testing.T) {
	state := newTestState(t)
	a, _ := state.Agent("a")
	a.Balance = 0
	tx := &domain.Transaction{
		ID: "tx1", SenderID: "a", ReceiverID: "b",
		Amount: 100, RemainingAmount: 100, DeadlineTick: 2, Status: domain.StatusPending,
	}
	state.AddTransaction(tx)
	state.EnqueueRTGS("tx1")

	eng := New(state, Config{TicksPerDay: 10, DeadlinePenalty: 500, DelayPerTick: 50, OverdueDelayMultiplier: 2})
	require.NoError(t, eng.AccrueTick(3))

	require.Equal(t, domain.StatusOverdue, tx.Status)
	require.True(t, tx.DeadlinePenaltyCharged)
	a, _ = state.Agent("a")
	require.Equal(t, domain.Cents(-500), a.Balance)

	require.NoError(t, eng.AccrueTick(4))
	a, _ = state.Agent("a")
	require.Equal(t, domain.Cents(-500), a.Balance)
}

func TestAccrueEndOfDay_PenalizesUnsettledQueues(t *testing.T) {
	state := newTestState(t)
	a, _ := state.Agent("a")
	a.Balance = 0
	tx := &domain.Transaction{
		ID: "tx1", SenderID: "a", ReceiverID: "b",
		Amount: 100, RemainingAmount: 100, DeadlineTick: 20, Status: domain.StatusPending,
	}
	state.AddTransaction(tx)
	require.NoError(t, state.AppendToQueue1("a", "tx1"))

	eng := New(state, Config{TicksPerDay: 10, EODUnsettledPenalty: 50})
	require.NoError(t, eng.AccrueEndOfDay(9, 0))

	a, _ = state.Agent("a")
	require.Equal(t, domain.Cents(-50), a.Balance)
}

func TestAccrueEndOfDay_ProratesPartiallySettledTransaction(t *testing.T) {
	state := newTestState(t)
	a, _ := state.Agent("a")
	a.Balance = 0
	tx := &domain.Transaction{
		ID: "tx1", SenderID: "a", ReceiverID: "b",
		Amount: 100, RemainingAmount: 25, DeadlineTick: 20, Status: domain.StatusPartiallySettled,
	}
	state.AddTransaction(tx)
	require.NoError(t, state.AppendToQueue1("a", "tx1"))

	eng := New(state, Config{TicksPerDay: 10, EODUnsettledPenalty: 80})
	require.NoError(t, eng.AccrueEndOfDay(9, 0))

	// 80 * 25/100 = 20, not the flat 80 a per-transaction count would charge.
	a, _ = state.Agent("a")
	require.Equal(t, domain.Cents(-20), a.Balance)
}

func TestAccrueSplitFriction_ChargesProportionalCost(t *testing.T) {
	state := newTestState(t)
	a, _ := state.Agent("a")
	a.Balance = 0
	eng := New(state, Config{TicksPerDay: 10, SplitFrictionBps: 25})

	cost, err := eng.AccrueSplitFriction("a", 10000, 1)
	require.NoError(t, err)
	require.Equal(t, domain.Cents(25), cost)

	a, _ = state.Agent("a")
	require.Equal(t, domain.Cents(-25), a.Balance)
}
