// Package scenario implements scripted scenario events layered on top of
// the stochastic arrival process: one-time/repeating, deterministic and
// probabilistic schedules, and the event kinds they can trigger (spec C11,
// §4.3, §4.10 step 3).
package scenario

import (
	"sort"

	"simcash/internal/arrivals"
	"simcash/internal/domain"
	"simcash/internal/events"
	"simcash/internal/rng"
)

// ScheduleKind selects when an Event fires.
type ScheduleKind int

const (
	OneTime ScheduleKind = iota
	Repeating
	ProbabilisticOneTime
	ProbabilisticRepeating
)

// EventKind selects what an Event does when it fires (spec §4.11).
type EventKind int

const (
	KindCustomTransactionArrival EventKind = iota
	KindDirectTransfer
	KindCollateralAdjustment
	KindGlobalArrivalRateChange
	KindAgentArrivalRateChange
	KindCounterpartyWeightChange
	KindDeadlineWindowChange
)

// Event is one scripted scenario entry. Exactly the Payload* fields
// relevant to Kind are meaningful (spec §9's tagged-variant convention).
type Event struct {
	ID       string
	Schedule ScheduleKind
	// AtTick is the firing tick for OneTime/ProbabilisticOneTime, and the
	// first firing tick for Repeating/ProbabilisticRepeating.
	AtTick       int64
	IntervalTick int64 // Repeating/ProbabilisticRepeating only
	Probability  float64 // Probabilistic* only

	Kind EventKind

	// KindCustomTransactionArrival / KindDirectTransfer
	SenderID   string
	ReceiverID string
	Amount     domain.Cents
	DeadlineTick int64
	Priority   int
	Divisible  bool

	// KindCollateralAdjustment
	AgentID string
	Delta   domain.Cents

	// KindGlobalArrivalRateChange
	NewGlobalMultiplier float64

	// KindAgentArrivalRateChange
	NewLambda float64

	// KindCounterpartyWeightChange
	Counterparty string
	NewWeight    float64

	// KindDeadlineWindowChange
	NewMinTicks int64
	NewMaxTicks int64

	fired bool // OneTime/ProbabilisticOneTime: consumed once triggered
}

// Engine evaluates scripted events each tick, in deterministic schedule
// order, after the stochastic arrival process has run (spec §4.10 step 3:
// "deterministic schedules first, then probabilistic").
type Engine struct {
	state    *domain.SimulationState
	events   []*Event
	arrivals *arrivals.Engine
}

// New constructs a scenario engine over a fixed, caller-owned event list.
func New(state *domain.SimulationState, arrivalsEngine *arrivals.Engine, events []*Event) *Engine {
	sorted := make([]*Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &Engine{state: state, arrivals: arrivalsEngine, events: sorted}
}

// EvaluateTick fires every event whose schedule matches this tick, in
// event-id order, evaluating all deterministic schedules before any
// probabilistic one so RNG draw order never depends on which
// deterministic events happened to also be due this tick.
func (e *Engine) EvaluateTick(stream *rng.Stream, tick int64) error {
	var deterministic, probabilistic []*Event
	for _, ev := range e.events {
		if !e.isDue(ev, tick) {
			continue
		}
		switch ev.Schedule {
		case OneTime, Repeating:
			deterministic = append(deterministic, ev)
		case ProbabilisticOneTime, ProbabilisticRepeating:
			probabilistic = append(probabilistic, ev)
		}
	}
	for _, ev := range deterministic {
		if err := e.fire(ev, tick, true, 1); err != nil {
			return err
		}
	}
	for _, ev := range probabilistic {
		draw, err := stream.Float64()
		if err != nil {
			return err
		}
		triggered := draw < ev.Probability
		if err := e.fire(ev, tick, triggered, ev.Probability); err != nil {
			return err
		}
		if ev.Schedule == ProbabilisticOneTime && triggered {
			ev.fired = true
		}
	}
	return nil
}

// AddEvent injects a new scripted event to be considered from the next
// EvaluateTick call onward, keeping the engine's event-id ordering intact
// (the control plane's "inject a scenario event" use case, spec §4.11).
func (e *Engine) AddEvent(ev *Event) {
	e.events = append(e.events, ev)
	sort.Slice(e.events, func(i, j int) bool { return e.events[i].ID < e.events[j].ID })
}

func (e *Engine) isDue(ev *Event, tick int64) bool {
	switch ev.Schedule {
	case OneTime, ProbabilisticOneTime:
		return !ev.fired && tick == ev.AtTick
	case Repeating, ProbabilisticRepeating:
		if tick < ev.AtTick || ev.IntervalTick <= 0 {
			return false
		}
		return (tick-ev.AtTick)%ev.IntervalTick == 0
	default:
		return false
	}
}

func (e *Engine) fire(ev *Event, tick int64, triggered bool, probability float64) error {
	var drawn float64
	if ev.Schedule == OneTime || ev.Schedule == Repeating {
		drawn = 1
	}
	e.state.Events().Append(tick, events.KindScenarioEventEvaluated, events.ScenarioEventEvaluatedPayload{
		ScenarioID: ev.ID, Probability: probability, RandomValue: drawn, Triggered: triggered,
	})
	if !triggered {
		return nil
	}
	if ev.Schedule == OneTime {
		ev.fired = true
	}

	switch ev.Kind {
	case KindCustomTransactionArrival, KindDirectTransfer:
		return e.applyTransfer(ev, tick)
	case KindCollateralAdjustment:
		return e.applyCollateralAdjustment(ev)
	case KindGlobalArrivalRateChange:
		return e.applyGlobalRateChange(ev)
	case KindAgentArrivalRateChange:
		return e.applyAgentRateChange(ev)
	case KindCounterpartyWeightChange:
		return e.applyWeightChange(ev)
	case KindDeadlineWindowChange:
		return e.applyDeadlineWindowChange(ev)
	}
	return nil
}

func (e *Engine) applyTransfer(ev *Event, tick int64) error {
	if ev.Kind == KindDirectTransfer {
		// A direct transfer is an instant balance adjustment outside both
		// queues. A sender or receiver that is not a registered agent (an
		// external source or sink) is skipped.
		if sender, err := e.state.Agent(ev.SenderID); err == nil {
			sender.Balance -= ev.Amount
		}
		if recv, err := e.state.Agent(ev.ReceiverID); err == nil {
			recv.Balance += ev.Amount
		}
		return nil
	}
	txID := ev.ID
	tx := &domain.Transaction{
		ID: txID, SenderID: ev.SenderID, ReceiverID: ev.ReceiverID,
		Amount: ev.Amount, RemainingAmount: ev.Amount,
		ArrivalTick: tick, DeadlineTick: ev.DeadlineTick,
		Priority: ev.Priority, OriginalPriority: ev.Priority,
		Status: domain.StatusPending, Divisible: ev.Divisible,
	}
	e.state.AddTransaction(tx)
	if err := e.state.AppendToQueue1(ev.SenderID, txID); err != nil {
		return err
	}
	if recv, err := e.state.Agent(ev.ReceiverID); err == nil {
		recv.IncomingExpected[txID] = struct{}{}
	}
	return nil
}

func (e *Engine) applyCollateralAdjustment(ev *Event) error {
	agent, err := e.state.Agent(ev.AgentID)
	if err != nil {
		return err
	}
	agent.PostedCollateral += ev.Delta
	if agent.PostedCollateral < 0 {
		agent.PostedCollateral = 0
	}
	return nil
}

func (e *Engine) applyGlobalRateChange(ev *Event) error {
	for _, agentID := range e.state.AgentIDsSorted() {
		if cfg := e.arrivals.Config(agentID); cfg != nil {
			cfg.Lambda *= ev.NewGlobalMultiplier
		}
	}
	return nil
}

func (e *Engine) applyAgentRateChange(ev *Event) error {
	if cfg := e.arrivals.Config(ev.AgentID); cfg != nil {
		cfg.Lambda = ev.NewLambda
	}
	return nil
}

func (e *Engine) applyWeightChange(ev *Event) error {
	if cfg := e.arrivals.Config(ev.AgentID); cfg != nil {
		if cfg.CounterpartyWeights == nil {
			cfg.CounterpartyWeights = make(map[string]float64)
		}
		cfg.CounterpartyWeights[ev.Counterparty] = ev.NewWeight
	}
	return nil
}

func (e *Engine) applyDeadlineWindowChange(ev *Event) error {
	if cfg := e.arrivals.Config(ev.AgentID); cfg != nil {
		cfg.Deadline.MinTicks = ev.NewMinTicks
		cfg.Deadline.MaxTicks = ev.NewMaxTicks
	}
	return nil
}
