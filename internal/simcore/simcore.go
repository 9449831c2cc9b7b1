// Package simcore is the construction/tick/query/checkpoint facade spec.md
// §6 describes: the one seam every outer layer (CLI, HTTP control plane,
// persistence) drives the core simulator through. Outer layers tick and
// query a simulation only through this package; pkg/config still uses
// internal/domain, internal/policy, internal/arrivals, internal/costs, and
// internal/scenario types to build a Config.
package simcore

import (
	"simcash/internal/arrivals"
	"simcash/internal/clock"
	"simcash/internal/costs"
	"simcash/internal/domain"
	"simcash/internal/events"
	"simcash/internal/orchestrator"
	"simcash/internal/policy"
	"simcash/internal/rng"
	"simcash/internal/scenario"
	pkgerrors "simcash/pkg/errors"
)

// AgentConfig is the construction-time description of one participating
// bank (spec §3, §6).
type AgentConfig struct {
	ID                    string
	Balance               domain.Cents
	PostedCollateral      domain.Cents
	CollateralHaircut     float64
	UnsecuredCap          domain.Cents
	MaxCollateralCapacity domain.Cents
	BilateralLimits       map[string]*domain.BilateralLimit
	MultilateralLimit     *domain.BilateralLimit
	LiquidityPool         *domain.LiquidityPool
}

// Config bundles everything the construction seam needs to build a runnable
// simulation: agents, compiled policies, and every engine-level knob (spec
// §6).
type Config struct {
	Seed           uint64
	TicksPerDay    int64
	EpisodeEndTick int64

	Agents       []AgentConfig
	Policies     map[string]*policy.Policy
	PolicyParams map[string]float64
	CostRates    policy.CostRatesView
	CostConfig   costs.Config

	ArrivalConfigs []*arrivals.AgentArrivalConfig
	ScenarioEvents []*scenario.Event

	EODRushThreshold           int64
	DeferDeferredCrediting     bool
	EntryDispositionOffsetting bool
	MaxCyclesPerTick           int
}

// Simulation owns one live core instance: shared state plus every engine
// wired over it, reachable only through Tick/query/checkpoint methods.
type Simulation struct {
	state  *domain.SimulationState
	clk    *clock.Clock
	stream *rng.Stream
	orch   *orchestrator.Orchestrator
}

// New validates cfg and constructs a runnable Simulation (spec §6's
// construction seam). Every policy is structurally validated before any
// tick runs; a bad tree fails fast as a domain.ConfigurationError.
func New(cfg Config) (*Simulation, error) {
	return build(cfg, true)
}

func build(cfg Config, loadAgentsFromConfig bool) (*Simulation, error) {
	if cfg.TicksPerDay <= 0 {
		return nil, domain.ConfigurationError("ticks_per_day must be positive", nil)
	}
	for _, p := range cfg.Policies {
		if err := policy.ValidatePolicy(p); err != nil {
			return nil, domain.ConfigurationError("policy validation failed for agent "+p.AgentID, err)
		}
	}

	state := domain.NewSimulationState(cfg.TicksPerDay, events.NewLog())
	if loadAgentsFromConfig {
		for _, ac := range cfg.Agents {
			agent := domain.NewAgent(ac.ID, ac.Balance, ac.PostedCollateral, ac.UnsecuredCap, ac.CollateralHaircut)
			agent.MaxCollateralCapacity = ac.MaxCollateralCapacity
			agent.BilateralLimits = ac.BilateralLimits
			agent.MultilateralLimit = ac.MultilateralLimit
			agent.LiquidityPool = ac.LiquidityPool
			if err := state.AddAgent(agent); err != nil {
				return nil, domain.ConfigurationError("duplicate agent id "+ac.ID, err)
			}
		}
	}

	clk := clock.New(cfg.TicksPerDay)
	stream := rng.New(cfg.Seed)
	arr := arrivals.New(state, cfg.ArrivalConfigs)
	scn := scenario.New(state, arr, cfg.ScenarioEvents)

	orchCfg := orchestrator.Config{
		Policies:                   cfg.Policies,
		PolicyParams:               cfg.PolicyParams,
		CostRates:                  cfg.CostRates,
		EODRushThreshold:           cfg.EODRushThreshold,
		DeferDeferredCrediting:     cfg.DeferDeferredCrediting,
		EntryDispositionOffsetting: cfg.EntryDispositionOffsetting,
		MaxCyclesPerTick:           cfg.MaxCyclesPerTick,
		EpisodeEndTick:             cfg.EpisodeEndTick,
		CostConfig:                 cfg.CostConfig,
	}
	orch := orchestrator.New(state, clk, stream, arr, scn, orchCfg)

	return &Simulation{state: state, clk: clk, stream: stream, orch: orch}, nil
}

// Tick advances the simulation by exactly one tick (spec §6's tick seam).
func (s *Simulation) Tick() (orchestrator.TickResult, error) {
	return s.orch.Tick()
}

// Run advances the simulation by n ticks, stopping early (and returning the
// error) if any tick fails.
func (s *Simulation) Run(n int) ([]orchestrator.TickResult, error) {
	results := make([]orchestrator.TickResult, 0, n)
	for i := 0; i < n; i++ {
		r, err := s.orch.Tick()
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// CurrentTick is the simulation's current tick counter.
func (s *Simulation) CurrentTick() int64 { return s.clk.CurrentTick() }

// AgentBalance is the query seam's read of one agent's settlement balance.
func (s *Simulation) AgentBalance(agentID string) (domain.Cents, error) {
	a, err := s.state.Agent(agentID)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

// AgentSnapshot is a read-only copy of one agent's queryable state.
type AgentSnapshot struct {
	ID                      string
	Balance                 domain.Cents
	PostedCollateral        domain.Cents
	AvailableLiquidity      domain.Cents
	Queue1Size              int
	Queue1Value             domain.Cents
	ReleaseBudgetRemaining  *domain.Cents
}

// Agent is the query seam's full read-only view of one agent.
func (s *Simulation) Agent(agentID string) (AgentSnapshot, error) {
	a, err := s.state.Agent(agentID)
	if err != nil {
		return AgentSnapshot{}, err
	}
	q1v, err := s.state.Queue1Value(agentID)
	if err != nil {
		return AgentSnapshot{}, err
	}
	return AgentSnapshot{
		ID:                     a.ID,
		Balance:                a.Balance,
		PostedCollateral:       a.PostedCollateral,
		AvailableLiquidity:     a.AvailableLiquidity(),
		Queue1Size:             a.Queue1Size(),
		Queue1Value:            q1v,
		ReleaseBudgetRemaining: a.ReleaseBudgetRemaining,
	}, nil
}

// AgentIDs returns every agent id in sorted order.
func (s *Simulation) AgentIDs() []string { return s.state.AgentIDsSorted() }

// Queue2Entry is one read-only Queue 2 row for the query seam.
type Queue2Entry struct {
	TxID            string
	SenderID        string
	ReceiverID      string
	RemainingAmount domain.Cents
	DeadlineTick    int64
}

// Queue2 is the query seam's read of the central RTGS queue, in FIFO order.
func (s *Simulation) Queue2() ([]Queue2Entry, error) {
	ids := s.state.RTGSQueue()
	out := make([]Queue2Entry, 0, len(ids))
	for _, id := range ids {
		tx, err := s.state.Transaction(id)
		if err != nil {
			return nil, err
		}
		out = append(out, Queue2Entry{
			TxID: tx.ID, SenderID: tx.SenderID, ReceiverID: tx.ReceiverID,
			RemainingAmount: tx.RemainingAmount, DeadlineTick: tx.DeadlineTick,
		})
	}
	return out, nil
}

// Transaction is the query seam's lookup of a single transaction by id.
func (s *Simulation) Transaction(txID string) (*domain.Transaction, error) {
	return s.state.Transaction(txID)
}

// EventsSince returns every event logged from index i onward, for the
// streaming/control-plane seam.
func (s *Simulation) EventsSince(i int) []events.Event {
	return s.state.Events().SinceIndex(i)
}

// EventsAtTick returns every event logged at a specific tick.
func (s *Simulation) EventsAtTick(tick int64) []events.Event {
	return s.state.Events().AtTick(tick)
}

// EventLogLen is the total number of events logged so far.
func (s *Simulation) EventLogLen() int { return s.state.Events().Len() }

// AddScenarioEvent injects a new scripted event to take effect on the next
// tick onward (spec §4.11's supplemented control-plane use case).
func (s *Simulation) AddScenarioEvent(ev *scenario.Event) {
	s.orch.AddScenarioEvent(ev)
}

// Checkpoint is the JSON-serializable snapshot format spec.md §6 describes:
// enough state to exactly resume a simulation, independent of how it is
// persisted (in-memory, Postgres, or a GCS object).
type Checkpoint struct {
	Tick         int64                 `json:"tick"`
	RngState     uint64                `json:"rng_state"`
	TicksPerDay  int64                 `json:"ticks_per_day"`
	Agents       []*domain.Agent       `json:"agents"`
	Transactions []*domain.Transaction `json:"transactions"`
	RTGSQueue    []string              `json:"rtgs_queue"`
}

// Checkpoint captures the live simulation's full state as a
// JSON-serializable snapshot (spec §6).
func (s *Simulation) Checkpoint() *Checkpoint {
	agentIDs := s.state.AgentIDsSorted()
	agents := make([]*domain.Agent, 0, len(agentIDs))
	for _, id := range agentIDs {
		a, _ := s.state.Agent(id)
		agents = append(agents, a)
	}
	txIDs := s.state.TransactionIDsSorted()
	txs := make([]*domain.Transaction, 0, len(txIDs))
	for _, id := range txIDs {
		tx, _ := s.state.Transaction(id)
		txs = append(txs, tx)
	}
	return &Checkpoint{
		Tick:         s.clk.CurrentTick(),
		RngState:     s.stream.State(),
		TicksPerDay:  s.state.TicksPerDay(),
		Agents:       agents,
		Transactions: txs,
		RTGSQueue:    s.state.RTGSQueue(),
	}
}

// Restore rebuilds a Simulation from a checkpoint taken by Checkpoint, using
// the same engine configuration the original Simulation was built with
// (arrivals/scenario/policy config is not part of the checkpoint itself —
// spec §6 treats it as construction-time input, restored by the caller
// re-invoking Restore with the same Config the checkpoint was taken under).
// cfg.Agents is ignored; agent state comes entirely from the checkpoint so
// every engine the orchestrator holds keeps operating on the one state
// instance construction wired it to.
func Restore(cfg Config, cp *Checkpoint) (*Simulation, error) {
	if cp == nil {
		return nil, pkgerrors.ErrCheckpointInvalid
	}
	sim, err := build(cfg, false)
	if err != nil {
		return nil, err
	}
	for _, a := range cp.Agents {
		if err := sim.state.AddAgent(a); err != nil {
			return nil, err
		}
	}
	for _, tx := range cp.Transactions {
		sim.state.AddTransaction(tx)
	}
	for _, txID := range cp.RTGSQueue {
		sim.state.EnqueueRTGS(txID)
	}
	sim.clk.Restore(cp.Tick)
	if err := sim.stream.Restore(cp.RngState); err != nil {
		return nil, err
	}
	sim.state.SetCurrentTick(cp.Tick)
	return sim, nil
}
