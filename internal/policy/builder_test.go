package policy

import (
	"testing"

	"simcash/internal/domain"
	"simcash/internal/events"

	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) (*domain.SimulationState, *domain.Agent) {
	t.Helper()
	state := domain.NewSimulationState(100, events.NewLog())
	agent := domain.NewAgent("bank-a", 10_000, 2_000, 500, 0.2)
	require.NoError(t, state.AddAgent(agent))
	return state, agent
}

func TestBuildAgentContext_PopulatesKnownFields(t *testing.T) {
	state, agent := newTestState(t)
	sys := SystemView{CurrentTick: 5, TicksUntilEOD: 3, EODRushThreshold: 2}
	rates := CostRatesView{DelayPerTick: 10, DeadlinePenalty: 500, OverdraftBps: 25}

	ctx, err := BuildAgentContext(agent, state, sys, rates, IncomingView{})
	require.NoError(t, err)

	for name := range KnownFields {
		if name[:3] == "tx." {
			continue
		}
		_, err := ctx.Get(name)
		require.NoErrorf(t, err, "expected field %q to be populated", name)
	}
}

func TestBuildTxContext_PopulatesTxFields(t *testing.T) {
	state, agent := newTestState(t)
	tx := &domain.Transaction{
		ID: "tx-1", SenderID: "bank-a", ReceiverID: "bank-b",
		Amount: 1000, RemainingAmount: 1000,
		ArrivalTick: 1, DeadlineTick: 10, Priority: 1,
		Status: domain.StatusPending, Divisible: true,
	}
	state.AddTransaction(tx)
	require.NoError(t, state.AppendToQueue1("bank-a", "tx-1"))

	sys := SystemView{CurrentTick: 5, TicksUntilEOD: 3, EODRushThreshold: 2}
	rates := CostRatesView{DelayPerTick: 10, DeadlinePenalty: 500, OverdraftBps: 25}

	ctx, err := BuildTxContext(tx, agent, state, sys, rates, IncomingView{})
	require.NoError(t, err)

	v, err := ctx.Get("tx.ticks_until_deadline")
	require.NoError(t, err)
	require.Equal(t, 5.0, v)

	v, err = ctx.Get("agent.queue1_value")
	require.NoError(t, err)
	require.Equal(t, 1000.0, v)
}
