package rtgs

import (
	"testing"

	"simcash/internal/domain"
	"simcash/internal/events"

	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *domain.SimulationState {
	t.Helper()
	state := domain.NewSimulationState(10, events.NewLog())
	a := domain.NewAgent("a", 1000, 0, 0, 0)
	b := domain.NewAgent("b", 0, 0, 0, 0)
	require.NoError(t, state.AddAgent(a))
	require.NoError(t, state.AddAgent(b))
	return state
}

func addTx(state *domain.SimulationState, id, sender, receiver string, amount int64) *domain.Transaction {
	tx := &domain.Transaction{
		ID: id, SenderID: sender, ReceiverID: receiver,
		Amount: amount, RemainingAmount: amount,
		DeadlineTick: 5, Status: domain.StatusPending,
	}
	state.AddTransaction(tx)
	return tx
}

func TestSubmit_SettlesImmediatelyWhenLiquid(t *testing.T) {
	state := newTestState(t)
	addTx(state, "tx1", "a", "b", 300)
	eng := New(state, false)

	require.NoError(t, eng.Submit("tx1", false))

	a, _ := state.Agent("a")
	b, _ := state.Agent("b")
	require.Equal(t, int64(700), a.Balance)
	require.Equal(t, int64(300), b.Balance)
	require.Equal(t, 0, state.RTGSQueueLen())

	tx, _ := state.Transaction("tx1")
	require.Equal(t, domain.StatusSettled, tx.Status)
}

func TestSubmit_EnqueuesWhenIlliquid(t *testing.T) {
	state := newTestState(t)
	addTx(state, "tx1", "a", "b", 5000)
	eng := New(state, false)

	require.NoError(t, eng.Submit("tx1", false))
	require.Equal(t, 1, state.RTGSQueueLen())

	tx, _ := state.Transaction("tx1")
	require.Equal(t, domain.StatusPending, tx.Status)
}

func TestProcessQueue_SettlesOnceLiquidityArrives(t *testing.T) {
	state := newTestState(t)
	addTx(state, "tx1", "a", "b", 5000)
	eng := New(state, false)
	require.NoError(t, eng.Submit("tx1", false))

	a, _ := state.Agent("a")
	a.Balance = 6000

	n, err := eng.ProcessQueue(false)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 0, state.RTGSQueueLen())
}

func TestSubmit_DeferCreditAccumulatesForLaterFlush(t *testing.T) {
	state := newTestState(t)
	addTx(state, "tx1", "a", "b", 300)
	eng := New(state, false)

	require.NoError(t, eng.Submit("tx1", true))

	b, _ := state.Agent("b")
	require.Equal(t, int64(0), b.Balance)

	flushed := state.FlushDeferredCredits()
	require.Equal(t, int64(300), flushed["b"])
	b, _ = state.Agent("b")
	require.Equal(t, int64(300), b.Balance)
}

func TestOffsetEntryDisposition_NetsOpposingPendingTx(t *testing.T) {
	state := newTestState(t)
	a, _ := state.Agent("a")
	a.Balance = 0
	bAgent, _ := state.Agent("b")
	bAgent.Balance = 0

	addTx(state, "tx1", "a", "b", 500)
	eng := New(state, true)
	require.NoError(t, eng.Submit("tx1", false))
	require.Equal(t, 1, state.RTGSQueueLen())

	addTx(state, "tx2", "b", "a", 200)
	require.NoError(t, eng.Submit("tx2", false))

	tx1, _ := state.Transaction("tx1")
	tx2, _ := state.Transaction("tx2")
	require.Equal(t, int64(300), tx1.RemainingAmount)
	require.Equal(t, int64(0), tx2.RemainingAmount)
	require.Equal(t, domain.StatusSettled, tx2.Status)
}
