package scenario

import (
	"testing"

	"simcash/internal/arrivals"
	"simcash/internal/domain"
	"simcash/internal/events"
	"simcash/internal/rng"

	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) (*domain.SimulationState, *arrivals.Engine) {
	t.Helper()
	state := domain.NewSimulationState(10, events.NewLog())
	require.NoError(t, state.AddAgent(domain.NewAgent("a", 1000, 0, 0, 0)))
	require.NoError(t, state.AddAgent(domain.NewAgent("b", 1000, 0, 0, 0)))
	cfg := &arrivals.AgentArrivalConfig{AgentID: "a", Lambda: 1, CounterpartyWeights: map[string]float64{"b": 1}}
	arr := arrivals.New(state, []*arrivals.AgentArrivalConfig{cfg})
	return state, arr
}

func TestEvaluateTick_OneTimeFiresOnceAtItsTick(t *testing.T) {
	state, arr := newTestState(t)
	ev := &Event{
		ID: "ev1", Schedule: OneTime, AtTick: 3, Kind: KindCustomTransactionArrival,
		SenderID: "a", ReceiverID: "b", Amount: 500, DeadlineTick: 10,
	}
	eng := New(state, arr, []*Event{ev})
	stream := rng.New(1)

	state.SetCurrentTick(3)
	require.NoError(t, eng.EvaluateTick(stream, 3))
	_, err := state.Transaction("ev1")
	require.NoError(t, err)

	state.SetCurrentTick(4)
	require.NoError(t, eng.EvaluateTick(stream, 4))
	// A second firing would append ev1 to a's Queue 1 again.
	a, _ := state.Agent("a")
	require.Equal(t, 1, a.Queue1Size())
}

func TestEvaluateTick_RepeatingFiresOnInterval(t *testing.T) {
	state, arr := newTestState(t)
	ev := &Event{
		ID: "ev1", Schedule: Repeating, AtTick: 2, IntervalTick: 2,
		Kind: KindCollateralAdjustment, AgentID: "a", Delta: 100,
	}
	eng := New(state, arr, []*Event{ev})
	stream := rng.New(1)

	for tick := int64(0); tick <= 6; tick++ {
		state.SetCurrentTick(tick)
		require.NoError(t, eng.EvaluateTick(stream, tick))
	}

	a, _ := state.Agent("a")
	require.Equal(t, domain.Cents(300), a.PostedCollateral)
}

func TestEvaluateTick_AgentArrivalRateChangeMutatesConfig(t *testing.T) {
	state, arr := newTestState(t)
	ev := &Event{
		ID: "ev1", Schedule: OneTime, AtTick: 1,
		Kind: KindAgentArrivalRateChange, AgentID: "a", NewLambda: 9.5,
	}
	eng := New(state, arr, []*Event{ev})
	stream := rng.New(1)

	state.SetCurrentTick(1)
	require.NoError(t, eng.EvaluateTick(stream, 1))
	require.Equal(t, 9.5, arr.Config("a").Lambda)
}
