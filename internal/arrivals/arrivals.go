// Package arrivals generates new transactions each tick from each agent's
// configured Poisson arrival process (spec C5, §4.3).
package arrivals

import (
	"fmt"
	"sort"

	"simcash/internal/domain"
	"simcash/internal/events"
	"simcash/internal/rng"
)

// AmountDist is a LogNormal(mu, sigma) amount distribution, truncated to a
// non-negative integer cents value (spec §4.3).
type AmountDist struct {
	Mu    float64
	Sigma float64
}

// DeadlineWindow bounds the uniformly sampled number of ticks added to an
// arrival's tick to produce its raw deadline, before cap_deadline clamps
// it (spec §4.3).
type DeadlineWindow struct {
	MinTicks int64
	MaxTicks int64
}

// PriorityBand is one weighted priority outcome. Bands are evaluated in
// the fixed order they are configured (urgent, then normal, then low is
// the spec's convention) via cumulative weight, not by sorting the slice,
// so two identically weighted configs always resolve ties the same way.
type PriorityBand struct {
	Name     string
	Weight   float64
	Priority int
}

// AgentArrivalConfig is one agent's arrival process (spec §4.3, §6).
// Lambda, CounterpartyWeights, and Deadline may be mutated at runtime by scenario
// events (GlobalArrivalRateChange, AgentArrivalRateChange,
// CounterpartyWeightChange, DeadlineWindowChange).
type AgentArrivalConfig struct {
	AgentID             string
	Lambda              float64
	CounterpartyWeights map[string]float64
	Amount              AmountDist
	Deadline            DeadlineWindow
	PriorityBands       []PriorityBand
	Divisible           bool
	CapDeadlineAtEOD    bool
}

// Engine draws arrivals for every configured agent once per tick.
type Engine struct {
	state   *domain.SimulationState
	configs map[string]*AgentArrivalConfig
}

// New constructs an arrivals engine over a set of per-agent configs.
func New(state *domain.SimulationState, configs []*AgentArrivalConfig) *Engine {
	byAgent := make(map[string]*AgentArrivalConfig, len(configs))
	for _, c := range configs {
		byAgent[c.AgentID] = c
	}
	return &Engine{state: state, configs: byAgent}
}

// Config returns the mutable arrival config for an agent, or nil if none
// is registered — scenario events mutate fields on the returned pointer.
func (e *Engine) Config(agentID string) *AgentArrivalConfig {
	return e.configs[agentID]
}

// GenerateTick draws a Poisson count of new transactions for every
// configured agent, in sorted agent-id order, and appends each to the
// sender's Queue 1 (spec §4.10 step 1, §4.3).
func (e *Engine) GenerateTick(stream *rng.Stream, capEpisodeEndTick int64, deadlineCap func(arrival, raw, episodeEnd int64, capAtEOD bool) int64) error {
	tick := e.state.CurrentTick()
	agentIDs := make([]string, 0, len(e.configs))
	for id := range e.configs {
		agentIDs = append(agentIDs, id)
	}
	sort.Strings(agentIDs)

	for _, agentID := range agentIDs {
		cfg := e.configs[agentID]
		count, err := stream.Poisson(cfg.Lambda)
		if err != nil {
			return err
		}
		for i := 0; i < count; i++ {
			if err := e.generateOne(stream, cfg, tick, i, capEpisodeEndTick, deadlineCap); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) generateOne(stream *rng.Stream, cfg *AgentArrivalConfig, tick int64, seq int, capEpisodeEndTick int64, deadlineCap func(arrival, raw, episodeEnd int64, capAtEOD bool) int64) error {
	receiver, err := sampleWeighted(stream, cfg.CounterpartyWeights)
	if err != nil {
		return err
	}

	rawAmount, err := stream.LogNormal(cfg.Amount.Mu, cfg.Amount.Sigma)
	if err != nil {
		return err
	}
	amount := domain.TruncToInt64(rawAmount)
	if amount <= 0 {
		amount = 1
	}

	offset, err := stream.IntRange(cfg.Deadline.MinTicks, cfg.Deadline.MaxTicks)
	if err != nil {
		return err
	}
	rawDeadline := tick + offset
	deadline := deadlineCap(tick, rawDeadline, capEpisodeEndTick, cfg.CapDeadlineAtEOD)

	priority, err := samplePriorityBand(stream, cfg.PriorityBands)
	if err != nil {
		return err
	}

	txID := fmt.Sprintf("arr-%s-%d-%d", cfg.AgentID, tick, seq)
	tx := &domain.Transaction{
		ID: txID, SenderID: cfg.AgentID, ReceiverID: receiver,
		Amount: amount, RemainingAmount: amount,
		ArrivalTick: tick, DeadlineTick: deadline,
		Priority: priority, OriginalPriority: priority,
		Status: domain.StatusPending, Divisible: cfg.Divisible,
	}
	e.state.AddTransaction(tx)
	if err := e.state.AppendToQueue1(cfg.AgentID, txID); err != nil {
		return err
	}
	if recv, err := e.state.Agent(receiver); err == nil {
		recv.IncomingExpected[txID] = struct{}{}
	}

	e.state.Events().Append(tick, events.KindArrival, events.ArrivalPayload{
		TxID: txID, SenderID: cfg.AgentID, ReceiverID: receiver,
		Amount: amount, DeadlineTick: deadline, Priority: priority,
	})
	return nil
}

// sampleWeighted draws a key from a weight table with weighted
// probability proportional to its value, iterating candidates in sorted
// key order so the draw is a deterministic function of the RNG stream
// alone, never of Go's map iteration order.
func sampleWeighted(stream *rng.Stream, weights map[string]float64) (string, error) {
	keys := make([]string, 0, len(weights))
	var total float64
	for k, w := range weights {
		keys = append(keys, k)
		total += w
	}
	sort.Strings(keys)
	if total <= 0 || len(keys) == 0 {
		if len(keys) == 0 {
			return "", nil
		}
		return keys[0], nil
	}
	u, err := stream.Float64()
	if err != nil {
		return "", err
	}
	target := u * total
	var cumulative float64
	for _, k := range keys {
		cumulative += weights[k]
		if target < cumulative {
			return k, nil
		}
	}
	return keys[len(keys)-1], nil
}

// samplePriorityBand draws a priority using the bands' configured order
// and cumulative weight (urgent, normal, low, per spec convention),
// defaulting to normal priority (0) if no bands are configured.
func samplePriorityBand(stream *rng.Stream, bands []PriorityBand) (int, error) {
	if len(bands) == 0 {
		return 0, nil
	}
	var total float64
	for _, b := range bands {
		total += b.Weight
	}
	if total <= 0 {
		return bands[0].Priority, nil
	}
	u, err := stream.Float64()
	if err != nil {
		return 0, err
	}
	target := u * total
	var cumulative float64
	for _, b := range bands {
		cumulative += b.Weight
		if target < cumulative {
			return b.Priority, nil
		}
	}
	return bands[len(bands)-1].Priority, nil
}
