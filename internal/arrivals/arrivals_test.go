package arrivals

import (
	"testing"

	"simcash/internal/clock"
	"simcash/internal/domain"
	"simcash/internal/events"
	"simcash/internal/rng"

	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *domain.SimulationState {
	t.Helper()
	state := domain.NewSimulationState(10, events.NewLog())
	require.NoError(t, state.AddAgent(domain.NewAgent("a", 10000, 0, 0, 0)))
	require.NoError(t, state.AddAgent(domain.NewAgent("b", 10000, 0, 0, 0)))
	return state
}

func TestGenerateTick_DeterministicAcrossIdenticalSeeds(t *testing.T) {
	runOnce := func() []string {
		state := newTestState(t)
		cfg := &AgentArrivalConfig{
			AgentID:             "a",
			Lambda:              3,
			CounterpartyWeights: map[string]float64{"b": 1},
			Amount:              AmountDist{Mu: 5, Sigma: 0.5},
			Deadline:            DeadlineWindow{MinTicks: 2, MaxTicks: 5},
			PriorityBands:       []PriorityBand{{Name: "urgent", Weight: 0.3, Priority: 2}, {Name: "normal", Weight: 0.7, Priority: 0}},
		}
		eng := New(state, []*AgentArrivalConfig{cfg})
		stream := rng.New(42)
		clk := clock.New(10)
		require.NoError(t, eng.GenerateTick(stream, 1000, clk.CapDeadline))

		var ids []string
		for _, txID := range state.TransactionIDsSorted() {
			ids = append(ids, txID)
		}
		return ids
	}

	first := runOnce()
	second := runOnce()
	require.Equal(t, first, second)
	require.NotEmpty(t, first)
}

func TestGenerateTick_AppendsToSenderQueue1(t *testing.T) {
	state := newTestState(t)
	cfg := &AgentArrivalConfig{
		AgentID:             "a",
		Lambda:              5,
		CounterpartyWeights: map[string]float64{"b": 1},
		Amount:              AmountDist{Mu: 4, Sigma: 0.2},
		Deadline:            DeadlineWindow{MinTicks: 1, MaxTicks: 3},
	}
	eng := New(state, []*AgentArrivalConfig{cfg})
	stream := rng.New(7)
	clk := clock.New(10)
	require.NoError(t, eng.GenerateTick(stream, 1000, clk.CapDeadline))

	a, _ := state.Agent("a")
	require.NotEmpty(t, a.OutgoingQueue)
	for _, txID := range a.OutgoingQueue {
		tx, err := state.Transaction(txID)
		require.NoError(t, err)
		require.Equal(t, "a", tx.SenderID)
		require.Equal(t, "b", tx.ReceiverID)
		require.Greater(t, tx.DeadlineTick, tx.ArrivalTick)
	}
}
