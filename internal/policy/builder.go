package policy

import "simcash/internal/domain"

// SystemView carries the current-tick/day facts the context needs from
// the clock, plus the EOD-rush threshold from configuration.
type SystemView struct {
	CurrentTick       int64
	CurrentDay        int64
	TickWithinDay     int64
	TicksUntilEOD     int64
	DayProgressFraction float64
	EODRushThreshold  int64 // ticks-until-eod at or below this counts as "rush"
	Queue2Size        int
	Queue2Value       domain.Cents
}

// CostRatesView exposes the cost-rate configuration values the DSL reads
// under costs.* (spec §6) without coupling the policy package to the cost
// engine's internals.
type CostRatesView struct {
	DelayPerTick      domain.Cents
	DeadlinePenalty   domain.Cents
	OverdraftBps      int64
	// PriorityDelayMultiplier maps a transaction's priority band
	// (0=low,1=normal,2=urgent) to its delay multiplier; 1.0 when
	// priority-sensitive delay is not configured.
	PriorityDelayMultiplier func(priority int) float64
}

// IncomingView carries the cached incoming-expected aggregate for an
// agent (spec §6's incoming.* fields).
type IncomingView struct {
	Count      int
	TotalValue domain.Cents
}

// BuildAgentContext populates every agent.*/system.*/queue2.*/costs.*
// field for a tree that fires once per agent per tick (bank_tree,
// strategic/end-of-tick collateral trees). No tx.* field is set.
// ValidatePolicy does not check which slot a field appears in, so a tx.*
// reference in one of these trees passes validation and then fails at
// evaluation with ErrUnknownField.
func BuildAgentContext(agent *domain.Agent, state *domain.SimulationState, sys SystemView, rates CostRatesView, incoming IncomingView) (*Context, error) {
	ctx := NewContext()
	if err := setAgentFields(ctx, agent, state, sys); err != nil {
		return nil, err
	}
	setSystemFields(ctx, sys)
	setQueue2Fields(ctx, state, agent.ID)
	setIncomingFields(ctx, incoming)
	// costs.priority_delay_multiplier_for_this_tx has no meaning without a
	// transaction; it is left at 1.0 (neutral) for agent-scoped trees.
	setCostFields(ctx, rates, 1.0)
	return ctx, nil
}

// BuildTxContext populates the full field surface including tx.* for the
// payment_tree, evaluated once per transaction in Queue 1.
func BuildTxContext(tx *domain.Transaction, agent *domain.Agent, state *domain.SimulationState, sys SystemView, rates CostRatesView, incoming IncomingView) (*Context, error) {
	ctx := NewContext()
	setTxFields(ctx, tx, sys)
	if err := setAgentFields(ctx, agent, state, sys); err != nil {
		return nil, err
	}
	setSystemFields(ctx, sys)
	setQueue2Fields(ctx, state, agent.ID)
	setIncomingFields(ctx, incoming)
	mult := 1.0
	if rates.PriorityDelayMultiplier != nil {
		mult = rates.PriorityDelayMultiplier(tx.Priority)
	}
	setCostFields(ctx, rates, mult)
	return ctx, nil
}

func setTxFields(ctx *Context, tx *domain.Transaction, sys SystemView) {
	ctx.Set("tx.amount", float64(tx.Amount))
	ctx.Set("tx.remaining_amount", float64(tx.RemainingAmount))
	ctx.Set("tx.priority", float64(tx.Priority))
	ctx.Set("tx.deadline_tick", float64(tx.DeadlineTick))
	ctx.Set("tx.arrival_tick", float64(tx.ArrivalTick))
	ctx.Set("tx.ticks_until_deadline", float64(tx.DeadlineTick-sys.CurrentTick))
	ctx.SetBool("tx.is_overdue", tx.Status == domain.StatusOverdue)
	ctx.SetBool("tx.is_divisible", tx.Divisible)
}

func setAgentFields(ctx *Context, agent *domain.Agent, state *domain.SimulationState, sys SystemView) error {
	q1v, err := state.Queue1Value(agent.ID)
	if err != nil {
		return err
	}
	ctx.Set("agent.balance", float64(agent.Balance))
	ctx.Set("agent.available_liquidity", float64(agent.AvailableLiquidity()))
	ctx.Set("agent.posted_collateral", float64(agent.PostedCollateral))
	ctx.Set("agent.max_collateral_capacity", float64(agent.MaxCollateralCapacity))
	ctx.Set("agent.remaining_collateral_capacity", float64(agent.RemainingCollateralCapacity()))
	ctx.Set("agent.unsecured_cap", float64(agent.UnsecuredCap))
	ctx.Set("agent.credit_limit", float64(agent.CreditLimit()))
	ctx.Set("agent.queue1_size", float64(agent.Queue1Size()))
	ctx.Set("agent.queue1_value", float64(q1v))
	budget := 0.0
	if agent.ReleaseBudgetRemaining != nil {
		budget = float64(*agent.ReleaseBudgetRemaining)
	}
	ctx.Set("agent.release_budget_remaining", budget)
	return nil
}

func setSystemFields(ctx *Context, sys SystemView) {
	ctx.Set("system.current_tick", float64(sys.CurrentTick))
	ctx.Set("system.current_day", float64(sys.CurrentDay))
	ctx.Set("system.tick_within_day", float64(sys.TickWithinDay))
	ctx.Set("system.ticks_until_eod", float64(sys.TicksUntilEOD))
	ctx.SetBool("system.eod_rush_active", sys.TicksUntilEOD <= sys.EODRushThreshold)
	ctx.Set("system.queue2_size", float64(sys.Queue2Size))
	ctx.Set("system.queue2_value", float64(sys.Queue2Value))
	ctx.Set("system.day_progress_fraction", sys.DayProgressFraction)
}

func setQueue2Fields(ctx *Context, state *domain.SimulationState, agentID string) {
	m := state.Queue2IndexView().MetricsFor(agentID)
	ctx.Set("queue2.agent_count", float64(m.Count))
	ctx.Set("queue2.agent_value", float64(m.TotalValue))
	nearest := 0.0
	if m.HasEntries {
		nearest = float64(m.NearestDeadline)
	}
	ctx.Set("queue2.nearest_deadline", nearest)
}

func setCostFields(ctx *Context, rates CostRatesView, priorityMultiplier float64) {
	ctx.Set("costs.delay_penalty_per_tick", float64(rates.DelayPerTick))
	ctx.Set("costs.deadline_penalty", float64(rates.DeadlinePenalty))
	ctx.Set("costs.overdraft_cost_bps", float64(rates.OverdraftBps))
	ctx.Set("costs.priority_delay_multiplier_for_this_tx", priorityMultiplier)
}

func setIncomingFields(ctx *Context, incoming IncomingView) {
	ctx.Set("incoming.expected_count", float64(incoming.Count))
	ctx.Set("incoming.expected_total_value", float64(incoming.TotalValue))
	avg := 0.0
	if incoming.Count > 0 {
		avg = float64(incoming.TotalValue) / float64(incoming.Count)
	}
	ctx.Set("incoming.expected_avg_value", avg)
}
