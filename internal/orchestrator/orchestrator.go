// Package orchestrator wires the clock, RNG, arrivals, scenario, policy,
// RTGS, LSM, and cost engines into the simulator's single per-tick
// pipeline (spec C10, §4.10).
package orchestrator

import (
	"sort"

	"simcash/internal/arrivals"
	"simcash/internal/clock"
	"simcash/internal/costs"
	"simcash/internal/domain"
	"simcash/internal/events"
	"simcash/internal/lsm"
	"simcash/internal/policy"
	"simcash/internal/rng"
	"simcash/internal/rtgs"
	"simcash/internal/scenario"
)

// Config bundles everything a tick needs besides the live state: compiled
// policies, shared policy parameters, cost rates, and the episode/runtime
// switches the spec's engines take as constructor arguments (spec §6).
type Config struct {
	Policies                map[string]*policy.Policy
	PolicyParams            map[string]float64
	CostRates               policy.CostRatesView
	EODRushThreshold        int64
	DeferDeferredCrediting  bool
	EntryDispositionOffsetting bool
	MaxCyclesPerTick        int
	EpisodeEndTick          int64
	CostConfig              costs.Config
}

// Orchestrator owns the single mutable SimulationState and every engine
// that reads or writes it during a tick.
type Orchestrator struct {
	state    *domain.SimulationState
	clk      *clock.Clock
	stream   *rng.Stream
	arrivals *arrivals.Engine
	scenario *scenario.Engine
	rtgsEng  *rtgs.Engine
	lsmEng   *lsm.Engine
	costsEng *costs.Engine
	cfg      Config

	// releasedThisTick holds the transaction ids the policy stage decided
	// to submit, handed to submitReleasedTransactions after every agent's
	// trees have run (spec §4.10 steps 4-5).
	releasedThisTick []string
}

// TickResult summarizes one tick's outcome for callers of simcore (spec
// §4.10: tick, day, num_arrivals, num_settlements, queue2_size,
// total_costs_this_tick, events_this_tick).
type TickResult struct {
	Tick               int64
	Day                int64
	EventsEmitted      int
	NumArrivals        int
	SettledCount       int
	Queue2Size         int
	TotalCostsThisTick int64
	EndOfDay           bool
}

// New wires every engine together over a shared state.
func New(
	state *domain.SimulationState,
	clk *clock.Clock,
	stream *rng.Stream,
	arrivalsEngine *arrivals.Engine,
	scenarioEngine *scenario.Engine,
	cfg Config,
) *Orchestrator {
	rtgsEng := rtgs.New(state, cfg.EntryDispositionOffsetting)
	return &Orchestrator{
		state:    state,
		clk:      clk,
		stream:   stream,
		arrivals: arrivalsEngine,
		scenario: scenarioEngine,
		rtgsEng:  rtgsEng,
		lsmEng:   lsm.New(state, rtgsEng, cfg.MaxCyclesPerTick),
		costsEng: costs.New(state, cfg.CostConfig),
		cfg:      cfg,
	}
}

// Tick advances the simulation by exactly one tick, running the full
// ordered pipeline (spec §4.10):
//  1. advance time
//  2. EOD check (computed, applied at finalize)
//  3. arrivals + scripted scenario events
//  4. policy evaluation (bank_tree, strategic_collateral_tree, payment_tree)
//  5. RTGS queue processing (also LSM Algorithm 1)
//  6. LSM (bilateral offset, multilateral cycle detection)
//  7. conditional deferred-credit flush
//  8. cost accrual
//  9. finalize: end-of-tick collateral tree, withdrawal timers, EOD sweep
func (o *Orchestrator) Tick() (TickResult, error) {
	startEventCount := o.state.Events().Len()

	o.clk.Advance()
	tick := o.clk.CurrentTick()
	o.state.SetCurrentTick(tick)
	isEOD := o.clk.IsLastTickOfDay()

	if err := o.arrivals.GenerateTick(o.stream, o.cfg.EpisodeEndTick, o.clk.CapDeadline); err != nil {
		return TickResult{}, err
	}
	if err := o.scenario.EvaluateTick(o.stream, tick); err != nil {
		return TickResult{}, err
	}

	if err := o.runPolicyStage(tick); err != nil {
		return TickResult{}, err
	}

	if err := o.submitReleasedTransactions(); err != nil {
		return TickResult{}, err
	}

	if _, err := o.rtgsEng.ProcessQueue(o.cfg.DeferDeferredCrediting); err != nil {
		return TickResult{}, err
	}
	if err := o.lsmEng.Run(o.cfg.DeferDeferredCrediting); err != nil {
		return TickResult{}, err
	}

	if o.cfg.DeferDeferredCrediting {
		flushed := o.state.FlushDeferredCredits()
		for _, agentID := range sortedKeys(flushed) {
			o.state.Events().Append(tick, events.KindDeferredCreditApplied, events.DeferredCreditAppliedPayload{
				AgentID: agentID, Amount: int64(flushed[agentID]),
			})
		}
	}

	if err := o.costsEng.AccrueTick(tick); err != nil {
		return TickResult{}, err
	}

	if err := o.runEndOfTickCollateralStage(tick); err != nil {
		return TickResult{}, err
	}
	if err := o.releaseEligibleWithdrawals(tick); err != nil {
		return TickResult{}, err
	}

	if isEOD {
		if err := o.costsEng.AccrueEndOfDay(tick, o.clk.CurrentDay()); err != nil {
			return TickResult{}, err
		}
		// Bilateral and multilateral caps are per-day: clear their usage.
		for _, agentID := range o.state.AgentIDsSorted() {
			agent, _ := o.state.Agent(agentID)
			for _, lim := range agent.BilateralLimits {
				if lim != nil {
					lim.Used = 0
				}
			}
			if agent.MultilateralLimit != nil {
				agent.MultilateralLimit.Used = 0
			}
		}
	}

	tickEvents := o.state.Events().SinceIndex(startEventCount)
	numArrivals, settledCount, totalCosts := summarizeTickEvents(tickEvents)

	return TickResult{
		Tick:               tick,
		Day:                o.clk.CurrentDay(),
		EventsEmitted:      len(tickEvents),
		NumArrivals:        numArrivals,
		SettledCount:       settledCount,
		Queue2Size:         o.state.RTGSQueueLen(),
		TotalCostsThisTick: int64(totalCosts),
		EndOfDay:           isEOD,
	}, nil
}

// summarizeTickEvents derives the arrival/settlement/cost counters the
// tick result contract promises (spec §4.10) from the events a tick just
// emitted, rather than threading extra return values through every engine
// call — the event stream is already the authoritative record of what
// happened.
func summarizeTickEvents(evts []events.Event) (numArrivals, settledCount int, totalCosts domain.Cents) {
	for _, e := range evts {
		switch p := e.Payload.(type) {
		case events.ArrivalPayload:
			numArrivals++
		case events.RtgsImmediateSettlementPayload:
			settledCount++
		case events.Queue2LiquidityReleasePayload:
			settledCount++
		case events.EntryDispositionOffsetPayload:
			settledCount++
		case events.LsmBilateralOffsetPayload:
			settledCount += len(p.TxIDs)
		case events.LsmCycleSettlementPayload:
			settledCount += len(p.TxIDs)
		case events.CostAccrualPayload:
			totalCosts += domain.Cents(p.Amount)
		}
	}
	return numArrivals, settledCount, totalCosts
}

// AddScenarioEvent injects a new scripted event into the live scenario
// engine, for the control plane's "schedule an event before the next tick"
// use case (spec §4.11).
func (o *Orchestrator) AddScenarioEvent(ev *scenario.Event) {
	o.scenario.AddEvent(ev)
}

func sortedKeys(m map[string]domain.Cents) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
