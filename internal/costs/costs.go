// Package costs implements the per-tick cost accrual engine: liquidity and
// collateral opportunity costs, liquidity-pool allocation cost, Queue 1
// delay, one-time deadline penalties, overdue delay multipliers, split
// friction, and end-of-day unsettled penalties (spec C9, §4.7).
package costs

import (
	"simcash/internal/domain"
	"simcash/internal/events"
)

// Config holds the rate parameters every cost formula reads (spec §4.7,
// §6). A nil PriorityDelayMultiplier means priority-sensitive delay is
// disabled and every transaction uses a neutral 1.0 multiplier.
type Config struct {
	TicksPerDay int64

	OverdraftBps              int64
	CollateralOpportunityBps  int64
	DelayPerTick              domain.Cents
	DeadlinePenalty           domain.Cents
	OverdueDelayMultiplier    float64
	SplitFrictionBps          int64
	EODUnsettledPenalty       domain.Cents
	PriorityDelayMultiplier   func(priority int) float64
}

// Engine applies Config's formulas against a shared SimulationState.
type Engine struct {
	state *domain.SimulationState
	cfg   Config
}

// New constructs a cost engine bound to a simulation's state.
func New(state *domain.SimulationState, cfg Config) *Engine {
	return &Engine{state: state, cfg: cfg}
}

// AccrueTick applies every per-tick cost to every agent, in sorted agent
// order, debiting each agent's balance by its total accrued cost for the
// tick (spec §4.10 step 7). It also detects and marks transactions that
// just crossed their deadline, since "overdue" first becomes true at
// whichever tick's cost pass observes it.
func (e *Engine) AccrueTick(tick int64) error {
	for _, agentID := range e.state.AgentIDsSorted() {
		agent, err := e.state.Agent(agentID)
		if err != nil {
			return err
		}
		var total domain.Cents

		if agent.Balance < 0 {
			used := -agent.Balance
			cost := domain.ApplyBpsPerTick(used, e.cfg.OverdraftBps, e.cfg.TicksPerDay)
			if cost != 0 {
				total += cost
				e.emit(tick, agentID, "liquidity", "", cost)
			}
		}

		if agent.PostedCollateral > 0 {
			cost := domain.ApplyBpsPerTick(agent.PostedCollateral, e.cfg.CollateralOpportunityBps, e.cfg.TicksPerDay)
			if cost != 0 {
				total += cost
				e.emit(tick, agentID, "collateral", "", cost)
			}
		}

		if agent.LiquidityPool != nil && agent.LiquidityPool.Allocated > 0 {
			cost := agent.LiquidityPool.CostPerTick
			if cost != 0 {
				total += cost
				e.emit(tick, agentID, "liquidity_pool", "", cost)
			}
		}

		for _, txID := range agent.OutgoingQueue {
			cost, err := e.accrueQueue1Tx(agentID, txID, tick)
			if err != nil {
				return err
			}
			total += cost
		}

		if total != 0 {
			agent.Balance -= total
		}
	}

	if err := e.accrueQueue2Overdue(tick); err != nil {
		return err
	}
	return nil
}

func (e *Engine) accrueQueue1Tx(agentID, txID string, tick int64) (domain.Cents, error) {
	tx, err := e.state.Transaction(txID)
	if err != nil {
		return 0, nil
	}
	if tx.RemainingAmount == 0 {
		return 0, nil
	}

	total := e.checkOverdue(tx, agentID, tick)

	isOverdue := tx.Status == domain.StatusOverdue
	mult := 1.0
	if e.cfg.PriorityDelayMultiplier != nil {
		mult = e.cfg.PriorityDelayMultiplier(tx.Priority)
	}
	if isOverdue {
		mult *= e.cfg.OverdueDelayMultiplier
	}
	delayCost := domain.TruncToInt64(float64(e.cfg.DelayPerTick) * mult)
	if delayCost != 0 {
		total += delayCost
		e.emit(tick, agentID, "delay", tx.ID, delayCost)
	}

	return total, nil
}

// accrueQueue2Overdue detects the overdue transition and charges the
// one-time deadline penalty for every still-pending Queue 2 transaction.
// Queue 2 residency carries no per-tick delay cost — delay is gated on
// Queue 1 occupancy only (spec §4.7) — but the overdue transition and its
// one-time penalty apply to any not-yet-settled transaction regardless of
// which queue it sits in (spec §3).
func (e *Engine) accrueQueue2Overdue(tick int64) error {
	for _, txID := range e.state.RTGSQueue() {
		tx, err := e.state.Transaction(txID)
		if err != nil || tx.RemainingAmount == 0 {
			continue
		}
		cost := e.checkOverdue(tx, tx.SenderID, tick)
		if cost == 0 {
			continue
		}
		agent, err := e.state.Agent(tx.SenderID)
		if err != nil {
			return err
		}
		agent.Balance -= cost
	}
	return nil
}

// checkOverdue marks tx overdue the first tick it is observed past its
// deadline and charges the one-time deadline penalty, returning the
// penalty charged (0 if tx is not newly chargeable this call).
func (e *Engine) checkOverdue(tx *domain.Transaction, agentID string, tick int64) domain.Cents {
	if tick > tx.DeadlineTick && tx.OverdueSinceTick == nil {
		since := tick
		tx.OverdueSinceTick = &since
		tx.Status = domain.StatusOverdue
		e.state.Events().Append(tick, events.KindTransactionWentOverdue, events.TransactionWentOverduePayload{
			TxID: tx.ID, AgentID: agentID, DeadlineTick: tx.DeadlineTick, CurrentTick: tick,
		})
	}

	if tx.Status != domain.StatusOverdue || tx.DeadlinePenaltyCharged {
		return 0
	}
	tx.DeadlinePenaltyCharged = true
	if e.cfg.DeadlinePenalty == 0 {
		return 0
	}
	e.emit(tick, agentID, "deadline_penalty", tx.ID, e.cfg.DeadlinePenalty)
	return e.cfg.DeadlinePenalty
}

// AccrueSplitFriction charges the one-time friction cost for splitting a
// transaction into divisible children, proportional to the split amount
// (spec §4.7). Called by the orchestrator at the moment a split action is
// applied, not as part of the per-tick sweep.
func (e *Engine) AccrueSplitFriction(agentID string, amount domain.Cents, tick int64) (domain.Cents, error) {
	cost := domain.ApplyBps(amount, e.cfg.SplitFrictionBps)
	if cost == 0 {
		return 0, nil
	}
	agent, err := e.state.Agent(agentID)
	if err != nil {
		return 0, err
	}
	agent.Balance -= cost
	e.emit(tick, agentID, "split", "", cost)
	return cost, nil
}

// AccrueEndOfDay charges the unsettled-at-EOD penalty for every
// transaction still sitting in an agent's Queue 1 or Queue 2 at the last
// tick of a day, prorated by each transaction's still-outstanding
// fraction, then emits a single EndOfDay summary event (spec §4.7, §4.10
// step 2/9).
func (e *Engine) AccrueEndOfDay(tick, day int64) error {
	totalUnsettled := 0
	for _, agentID := range e.state.AgentIDsSorted() {
		agent, err := e.state.Agent(agentID)
		if err != nil {
			return err
		}

		var cost domain.Cents
		count := 0
		for _, txID := range agent.OutgoingQueue {
			tx, err := e.state.Transaction(txID)
			if err != nil || tx.RemainingAmount == 0 {
				continue
			}
			count++
			cost += e.eodPenaltyFor(tx)
		}
		for _, txID := range e.state.Queue2IndexView().TxIDsFor(agentID) {
			tx, err := e.state.Transaction(txID)
			if err != nil || tx.RemainingAmount == 0 {
				continue
			}
			count++
			cost += e.eodPenaltyFor(tx)
		}
		if count == 0 {
			continue
		}
		totalUnsettled += count
		if cost != 0 {
			agent.Balance -= cost
			e.emit(tick, agentID, "eod_unsettled", "", cost)
		}
	}
	e.state.Events().Append(tick, events.KindEndOfDay, events.EndOfDayPayload{
		Day: day, UnsettledCount: totalUnsettled,
	})
	return nil
}

// eodPenaltyFor computes eod_unsettled_penalty * remaining_amount / amount
// for a single still-outstanding transaction (spec §4.7): a transaction
// already partially settled is charged proportionally less than a wholly
// unsettled one of the same face amount.
func (e *Engine) eodPenaltyFor(tx *domain.Transaction) domain.Cents {
	if tx.Amount == 0 {
		return 0
	}
	return e.cfg.EODUnsettledPenalty * tx.RemainingAmount / tx.Amount
}

func (e *Engine) emit(tick int64, agentID, kind, txID string, amount domain.Cents) {
	e.state.Events().Append(tick, events.KindCostAccrual, events.CostAccrualPayload{
		AgentID: agentID, Kind: kind, TxID: txID, Amount: int64(amount),
	})
}
