package orchestrator

import (
	"testing"

	"simcash/internal/arrivals"
	"simcash/internal/clock"
	"simcash/internal/costs"
	"simcash/internal/domain"
	"simcash/internal/events"
	"simcash/internal/policy"
	"simcash/internal/rng"
	"simcash/internal/scenario"

	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, policies map[string]*policy.Policy) (*Orchestrator, *domain.SimulationState) {
	t.Helper()
	state := domain.NewSimulationState(10, events.NewLog())
	require.NoError(t, state.AddAgent(domain.NewAgent("a", 1000, 0, 0, 0)))
	require.NoError(t, state.AddAgent(domain.NewAgent("b", 1000, 0, 0, 0)))

	arr := arrivals.New(state, nil)
	scn := scenario.New(state, arr, nil)
	clk := clock.New(10)
	stream := rng.New(1)

	cfg := Config{
		Policies:       policies,
		PolicyParams:   map[string]float64{},
		CostRates:      policy.CostRatesView{},
		MaxCyclesPerTick: 4,
		EpisodeEndTick: 1000,
		CostConfig: costs.Config{
			TicksPerDay: 10,
		},
	}
	o := New(state, clk, stream, arr, scn, cfg)
	return o, state
}

func alwaysSubmitPolicy(agentID string) *policy.Policy {
	return &policy.Policy{
		AgentID:     agentID,
		PaymentTree: policy.Leaf(&policy.Action{Kind: policy.ActionSubmit}),
	}
}

func TestTick_SubmitsAndSettlesQueuedTransaction(t *testing.T) {
	o, state := newTestOrchestrator(t, map[string]*policy.Policy{
		"a": alwaysSubmitPolicy("a"),
	})

	tx := &domain.Transaction{
		ID: "tx1", SenderID: "a", ReceiverID: "b",
		Amount: 500, RemainingAmount: 500,
		ArrivalTick: 0, DeadlineTick: 20,
		Status: domain.StatusPending,
	}
	state.AddTransaction(tx)
	require.NoError(t, state.AppendToQueue1("a", "tx1"))

	result, err := o.Tick()
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Tick)
	require.Equal(t, int64(0), result.Day)
	require.Equal(t, 1, result.SettledCount)
	require.Equal(t, 0, result.Queue2Size)

	got, err := state.Transaction("tx1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSettled, got.Status)
	require.Equal(t, domain.Cents(0), got.RemainingAmount)

	a, _ := state.Agent("a")
	b, _ := state.Agent("b")
	require.Equal(t, domain.Cents(500), a.Balance)
	require.Equal(t, domain.Cents(1500), b.Balance)
}

func TestTick_HoldsWhenPaymentTreeHolds(t *testing.T) {
	o, state := newTestOrchestrator(t, map[string]*policy.Policy{
		"a": {
			AgentID:     "a",
			PaymentTree: policy.Leaf(&policy.Action{Kind: policy.ActionHold}),
		},
	})

	tx := &domain.Transaction{
		ID: "tx1", SenderID: "a", ReceiverID: "b",
		Amount: 500, RemainingAmount: 500,
		ArrivalTick: 0, DeadlineTick: 20,
		Status: domain.StatusPending,
	}
	state.AddTransaction(tx)
	require.NoError(t, state.AppendToQueue1("a", "tx1"))

	_, err := o.Tick()
	require.NoError(t, err)

	got, err := state.Transaction("tx1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, got.Status)
	require.Equal(t, domain.Cents(500), got.RemainingAmount)

	a, _ := state.Agent("a")
	require.Contains(t, a.OutgoingQueue, "tx1")
}

func TestTick_ReleaseBudgetThrottlesSubmission(t *testing.T) {
	budgetLeaf := policy.Leaf(&policy.Action{
		Kind:         policy.ActionSetReleaseBudget,
		BudgetAmount: *policy.Value(100),
	})
	o, state := newTestOrchestrator(t, map[string]*policy.Policy{
		"a": {
			AgentID:     "a",
			BankTree:    budgetLeaf,
			PaymentTree: policy.Leaf(&policy.Action{Kind: policy.ActionSubmit}),
		},
	})

	tx := &domain.Transaction{
		ID: "tx1", SenderID: "a", ReceiverID: "b",
		Amount: 500, RemainingAmount: 500,
		ArrivalTick: 0, DeadlineTick: 20,
		Status: domain.StatusPending,
	}
	state.AddTransaction(tx)
	require.NoError(t, state.AppendToQueue1("a", "tx1"))

	_, err := o.Tick()
	require.NoError(t, err)

	got, err := state.Transaction("tx1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, got.Status, "budget of 100 cannot cover a 500 tx, so it stays held")

	a, _ := state.Agent("a")
	require.NotNil(t, a.ReleaseBudgetRemaining)
	require.Equal(t, domain.Cents(100), *a.ReleaseBudgetRemaining)
}

func TestTick_SplitDivisibleTransaction(t *testing.T) {
	o, state := newTestOrchestrator(t, map[string]*policy.Policy{
		"a": {
			AgentID: "a",
			PaymentTree: policy.Leaf(&policy.Action{
				Kind:      policy.ActionSplit,
				NumSplits: 2,
			}),
		},
	})

	tx := &domain.Transaction{
		ID: "tx1", SenderID: "a", ReceiverID: "b",
		Amount: 501, RemainingAmount: 501,
		ArrivalTick: 0, DeadlineTick: 20,
		Status: domain.StatusPending, Divisible: true,
	}
	state.AddTransaction(tx)
	require.NoError(t, state.AppendToQueue1("a", "tx1"))

	_, err := o.Tick()
	require.NoError(t, err)

	parent, err := state.Transaction("tx1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSettled, parent.Status)

	a, _ := state.Agent("a")
	require.Len(t, a.OutgoingQueue, 2)
	var total domain.Cents
	for _, childID := range a.OutgoingQueue {
		child, err := state.Transaction(childID)
		require.NoError(t, err)
		require.Equal(t, "tx1", *child.ParentID)
		total += child.Amount
	}
	require.Equal(t, domain.Cents(501), total)
}
