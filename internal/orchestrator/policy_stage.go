package orchestrator

import (
	"sort"
	"strconv"

	"simcash/internal/domain"
	"simcash/internal/events"
	"simcash/internal/policy"
)

// runPolicyStage evaluates bank_tree, strategic_collateral_tree, then
// payment_tree for every agent, in sorted agent-id order, queuing every
// ActionSubmit decision for the RTGS stage that follows it (spec §4.10
// step 4, §4.4).
func (o *Orchestrator) runPolicyStage(tick int64) error {
	var toSubmit []string
	for _, agentID := range o.state.AgentIDsSorted() {
		p, ok := o.cfg.Policies[agentID]
		if !ok {
			continue
		}
		agent, err := o.state.Agent(agentID)
		if err != nil {
			return err
		}

		if p.BankTree != nil {
			if err := o.evalAgentTree(p, p.BankTree, agent, tick); err != nil {
				return err
			}
		}
		if p.StrategicCollateralTree != nil {
			if err := o.evalAgentTree(p, p.StrategicCollateralTree, agent, tick); err != nil {
				return err
			}
		}
		if p.PaymentTree != nil {
			submitted, err := o.evalPaymentTree(p, agent, tick)
			if err != nil {
				return err
			}
			toSubmit = append(toSubmit, submitted...)
		}
	}
	o.releasedThisTick = toSubmit
	return nil
}

func (o *Orchestrator) evalAgentTree(p *policy.Policy, tree *policy.Node, agent *domain.Agent, tick int64) error {
	sys := o.systemView()
	ctx, err := policy.BuildAgentContext(agent, o.state, sys, o.cfg.CostRates, o.incomingView(agent))
	if err != nil {
		return err
	}
	action, err := policy.EvaluateTree(tree, ctx, agent.StateRegisters, o.cfg.PolicyParams)
	if err != nil {
		return err
	}
	if action == nil {
		return nil
	}
	if err := policy.ApplyRegisterAction(action, agent.StateRegisters, ctx, o.cfg.PolicyParams); err != nil {
		return err
	}
	switch action.Kind {
	case policy.ActionSetStateRegister, policy.ActionModifyStateRegister:
		o.state.Events().Append(tick, events.KindStateRegisterSet, events.StateRegisterSetPayload{
			AgentID: agent.ID, Register: action.RegisterName, Value: agent.StateRegisters[action.RegisterName],
		})
	case policy.ActionSetReleaseBudget, policy.ActionModifyReleaseBudget:
		return o.applyReleaseBudgetAction(action, agent, ctx, tick)
	case policy.ActionPostCollateral, policy.ActionWithdrawCollateral:
		return o.applyCollateralAction(action, agent, ctx, tick)
	}
	return nil
}

func (o *Orchestrator) applyReleaseBudgetAction(action *policy.Action, agent *domain.Agent, ctx *policy.Context, tick int64) error {
	v, err := policy.EvalExpr(&action.BudgetAmount, ctx, agent.StateRegisters, o.cfg.PolicyParams)
	if err != nil {
		return err
	}
	amount := domain.TruncToInt64(v)
	switch action.Kind {
	case policy.ActionSetReleaseBudget:
		agent.ReleaseBudgetRemaining = &amount
		agent.PerCounterpartyUsage = make(map[string]domain.Cents)
	case policy.ActionModifyReleaseBudget:
		if agent.ReleaseBudgetRemaining == nil {
			zero := domain.Cents(0)
			agent.ReleaseBudgetRemaining = &zero
		}
		*agent.ReleaseBudgetRemaining += amount
	}
	if action.PerCounterpartyLimitExpr != nil {
		lv, err := policy.EvalExpr(action.PerCounterpartyLimitExpr, ctx, agent.StateRegisters, o.cfg.PolicyParams)
		if err != nil {
			return err
		}
		limit := domain.TruncToInt64(lv)
		agent.PerCounterpartyLimit = &limit
	}
	o.state.Events().Append(tick, events.KindBankBudgetSet, events.BankBudgetSetPayload{
		AgentID: agent.ID, Budget: int64(valueOr(agent.ReleaseBudgetRemaining, 0)),
	})
	return nil
}

func valueOr(p *domain.Cents, def domain.Cents) domain.Cents {
	if p == nil {
		return def
	}
	return *p
}

func (o *Orchestrator) applyCollateralAction(action *policy.Action, agent *domain.Agent, ctx *policy.Context, tick int64) error {
	v, err := policy.EvalExpr(&action.CollateralAmount, ctx, agent.StateRegisters, o.cfg.PolicyParams)
	if err != nil {
		return err
	}
	amount := domain.TruncToInt64(v)
	if amount <= 0 {
		return nil
	}
	switch action.Kind {
	case policy.ActionPostCollateral:
		capacity := agent.RemainingCollateralCapacity()
		if amount > capacity {
			amount = capacity
		}
		if amount <= 0 {
			return nil
		}
		agent.PostedCollateral += amount
		o.state.Events().Append(tick, events.KindCollateralPost, events.CollateralPostPayload{
			AgentID: agent.ID, Amount: int64(amount),
		})
	case policy.ActionWithdrawCollateral:
		if action.TimerTicks > 0 {
			agent.PendingCollateralWithdrawals = append(agent.PendingCollateralWithdrawals, domain.PendingWithdrawal{
				Amount: amount, EligibleTick: tick + int64(action.TimerTicks),
			})
			o.state.Events().Append(tick, events.KindCollateralWithdraw, events.CollateralWithdrawPayload{
				AgentID: agent.ID, Amount: int64(amount), TimerTicks: int64(action.TimerTicks),
			})
			return nil
		}
		if amount > agent.PostedCollateral {
			amount = agent.PostedCollateral
		}
		agent.PostedCollateral -= amount
		o.state.Events().Append(tick, events.KindCollateralWithdraw, events.CollateralWithdrawPayload{
			AgentID: agent.ID, Amount: int64(amount), TimerTicks: 0,
		})
	}
	return nil
}

// evalPaymentTree walks an agent's Queue 1 in its configured ordering,
// evaluating payment_tree once per transaction and applying the resulting
// decision (submit/hold/split/drop/reprioritize) immediately, except
// submit which is collected and actually handed to RTGS after every
// agent's policies have run (spec §4.4 step 4, §4.10 step 4).
func (o *Orchestrator) evalPaymentTree(p *policy.Policy, agent *domain.Agent, tick int64) ([]string, error) {
	ordered := orderedQueue1(agent, p.Queue1Ordering, o.state)
	var submitted []string
	sys := o.systemView()
	for _, txID := range ordered {
		tx, err := o.state.Transaction(txID)
		if err != nil {
			continue
		}
		ctx, err := policy.BuildTxContext(tx, agent, o.state, sys, o.cfg.CostRates, o.incomingView(agent))
		if err != nil {
			return nil, err
		}
		action, err := policy.EvaluateTree(p.PaymentTree, ctx, agent.StateRegisters, o.cfg.PolicyParams)
		if err != nil {
			return nil, err
		}
		if action == nil {
			continue
		}
		if err := policy.ApplyRegisterAction(action, agent.StateRegisters, ctx, o.cfg.PolicyParams); err != nil {
			return nil, err
		}
		switch action.Kind {
		case policy.ActionSubmit:
			ok, err := o.tryRelease(agent, tx, action, tick)
			if err != nil {
				return nil, err
			}
			if ok {
				submitted = append(submitted, tx.ID)
			}
		case policy.ActionHold:
			o.state.Events().Append(tick, events.KindPolicyHold, events.PolicyHoldPayload{
				TxID: tx.ID, AgentID: agent.ID, Reason: "policy",
			})
		case policy.ActionDrop:
			if err := o.state.RemoveFromQueue1(agent.ID, tx.ID); err != nil {
				return nil, err
			}
			o.state.Events().Append(tick, events.KindPolicyDrop, events.PolicyDropPayload{
				TxID: tx.ID, AgentID: agent.ID,
			})
		case policy.ActionReprioritize:
			if action.PriorityOverride != nil {
				old := tx.Priority
				tx.Priority = *action.PriorityOverride
				o.state.Events().Append(tick, events.KindTransactionReprioritized, events.TransactionReprioritizedPayload{
					TxID: tx.ID, OldPriority: old, NewPriority: tx.Priority,
				})
			}
		case policy.ActionSplit:
			if err := o.applySplit(agent, tx, action, tick); err != nil {
				return nil, err
			}
		}
	}
	return submitted, nil
}

// tryRelease applies release-budget and per-counterparty-limit throttling
// to an ActionSubmit decision, converting it to a hold when exhausted
// (spec §4.4).
func (o *Orchestrator) tryRelease(agent *domain.Agent, tx *domain.Transaction, action *policy.Action, tick int64) (bool, error) {
	if agent.ReleaseBudgetRemaining != nil && tx.RemainingAmount > *agent.ReleaseBudgetRemaining {
		o.state.Events().Append(tick, events.KindPolicyHold, events.PolicyHoldPayload{
			TxID: tx.ID, AgentID: agent.ID, Reason: "budget_exhausted",
		})
		return false, nil
	}
	if agent.PerCounterpartyLimit != nil {
		used := agent.PerCounterpartyUsage[tx.ReceiverID]
		if used+tx.RemainingAmount > *agent.PerCounterpartyLimit {
			o.state.Events().Append(tick, events.KindPolicyHold, events.PolicyHoldPayload{
				TxID: tx.ID, AgentID: agent.ID, Reason: "per_counterparty_limit_exhausted",
			})
			return false, nil
		}
	}

	if action.PriorityOverride != nil {
		tx.Priority = *action.PriorityOverride
	}
	if err := o.state.RemoveFromQueue1(agent.ID, tx.ID); err != nil {
		return false, err
	}
	if agent.ReleaseBudgetRemaining != nil {
		*agent.ReleaseBudgetRemaining -= tx.RemainingAmount
	}
	if agent.PerCounterpartyLimit != nil {
		if agent.PerCounterpartyUsage == nil {
			agent.PerCounterpartyUsage = make(map[string]domain.Cents)
		}
		agent.PerCounterpartyUsage[tx.ReceiverID] += tx.RemainingAmount
	}
	o.state.Events().Append(tick, events.KindPolicySubmit, events.PolicySubmitPayload{
		TxID: tx.ID, AgentID: agent.ID,
	})
	return true, nil
}

func (o *Orchestrator) applySplit(agent *domain.Agent, tx *domain.Transaction, action *policy.Action, tick int64) error {
	if !tx.Divisible || action.NumSplits < 2 {
		return nil
	}
	n := domain.Cents(action.NumSplits)
	share := tx.RemainingAmount / n
	remainder := tx.RemainingAmount % n
	childIDs := make([]string, 0, action.NumSplits)
	childAmounts := make([]int64, 0, action.NumSplits)
	for i := 0; i < action.NumSplits; i++ {
		amount := share
		if domain.Cents(i) < remainder {
			amount++
		}
		childID := tx.ID + "-split-" + strconv.Itoa(i)
		parentID := tx.ID
		child := &domain.Transaction{
			ID: childID, SenderID: tx.SenderID, ReceiverID: tx.ReceiverID, ParentID: &parentID,
			Amount: amount, RemainingAmount: amount,
			ArrivalTick: tx.ArrivalTick, DeadlineTick: tx.DeadlineTick,
			Priority: tx.Priority, OriginalPriority: tx.OriginalPriority,
			Status: domain.StatusPending, Divisible: false,
		}
		o.state.AddTransaction(child)
		childIDs = append(childIDs, childID)
		childAmounts = append(childAmounts, int64(amount))
	}
	if err := o.state.ReplaceInQueue1(agent.ID, tx.ID, childIDs); err != nil {
		return err
	}
	// Superseded by its children; remaining==0 requires Status==Settled.
	tx.RemainingAmount = 0
	tx.Status = domain.StatusSettled
	if _, err := o.costsEng.AccrueSplitFriction(agent.ID, tx.Amount, tick); err != nil {
		return err
	}
	o.state.Events().Append(tick, events.KindPolicySplit, events.PolicySplitPayload{
		ParentTxID: tx.ID, AgentID: agent.ID, ChildTxIDs: childIDs, ChildAmounts: childAmounts,
	})
	return nil
}

// orderedQueue1 returns an agent's Queue 1 transaction ids in the order
// its policy's ordering strategy dictates (spec §4.2): FIFO preserves
// arrival order; PriorityDeadline sorts by descending priority then
// ascending deadline, with transaction id as a final deterministic
// tie-breaker.
func orderedQueue1(agent *domain.Agent, ordering policy.Queue1OrderingStrategy, state *domain.SimulationState) []string {
	ids := make([]string, len(agent.OutgoingQueue))
	copy(ids, agent.OutgoingQueue)
	if ordering != policy.OrderingPriorityDeadline {
		return ids
	}
	sort.SliceStable(ids, func(i, j int) bool {
		ti, erri := state.Transaction(ids[i])
		tj, errj := state.Transaction(ids[j])
		if erri != nil || errj != nil {
			return ids[i] < ids[j]
		}
		if ti.Priority != tj.Priority {
			return ti.Priority > tj.Priority
		}
		if ti.DeadlineTick != tj.DeadlineTick {
			return ti.DeadlineTick < tj.DeadlineTick
		}
		return ti.ID < tj.ID
	})
	return ids
}

// submitReleasedTransactions hands every ActionSubmit decision collected
// during the policy stage to the RTGS engine, in the same deterministic
// order they were released, before Queue 2 processing and LSM run.
func (o *Orchestrator) submitReleasedTransactions() error {
	for _, txID := range o.releasedThisTick {
		if err := o.rtgsEng.Submit(txID, o.cfg.DeferDeferredCrediting); err != nil {
			return err
		}
	}
	o.releasedThisTick = nil
	return nil
}

// runEndOfTickCollateralStage evaluates end_of_tick_collateral_tree for
// every agent after costs have accrued (spec §4.10 step 9).
func (o *Orchestrator) runEndOfTickCollateralStage(tick int64) error {
	for _, agentID := range o.state.AgentIDsSorted() {
		p, ok := o.cfg.Policies[agentID]
		if !ok || p.EndOfTickCollateralTree == nil {
			continue
		}
		agent, err := o.state.Agent(agentID)
		if err != nil {
			return err
		}
		if err := o.evalAgentTree(p, p.EndOfTickCollateralTree, agent, tick); err != nil {
			return err
		}
	}
	return nil
}

// releaseEligibleWithdrawals applies every pending timed collateral
// withdrawal whose timer has elapsed, in sorted agent order (spec §4.4,
// §5).
func (o *Orchestrator) releaseEligibleWithdrawals(tick int64) error {
	for _, agentID := range o.state.AgentIDsSorted() {
		agent, err := o.state.Agent(agentID)
		if err != nil {
			return err
		}
		if len(agent.PendingCollateralWithdrawals) == 0 {
			continue
		}
		var remaining []domain.PendingWithdrawal
		for _, w := range agent.PendingCollateralWithdrawals {
			if w.EligibleTick > tick {
				remaining = append(remaining, w)
				continue
			}
			amount := w.Amount
			if amount > agent.PostedCollateral {
				o.state.Events().Append(tick, events.KindCollateralTimerBlocked, events.CollateralTimerBlockedPayload{
					AgentID: agentID, Amount: int64(amount),
				})
				continue
			}
			agent.PostedCollateral -= amount
			o.state.Events().Append(tick, events.KindCollateralTimerWithdrawn, events.CollateralTimerWithdrawnPayload{
				AgentID: agentID, Amount: int64(amount),
			})
		}
		agent.PendingCollateralWithdrawals = remaining
	}
	return nil
}

func (o *Orchestrator) systemView() policy.SystemView {
	return policy.SystemView{
		CurrentTick:         o.clk.CurrentTick(),
		CurrentDay:          o.clk.CurrentDay(),
		TickWithinDay:       o.clk.TickWithinDay(),
		TicksUntilEOD:       o.clk.TicksUntilEOD(),
		DayProgressFraction: o.clk.DayProgressFraction(),
		EODRushThreshold:    o.cfg.EODRushThreshold,
		Queue2Size:          o.state.RTGSQueueLen(),
		Queue2Value:         o.queue2TotalValue(),
	}
}

func (o *Orchestrator) queue2TotalValue() domain.Cents {
	var total domain.Cents
	for _, txID := range o.state.RTGSQueue() {
		if tx, err := o.state.Transaction(txID); err == nil {
			total += tx.RemainingAmount
		}
	}
	return total
}

func (o *Orchestrator) incomingView(agent *domain.Agent) policy.IncomingView {
	ids := make([]string, 0, len(agent.IncomingExpected))
	for id := range agent.IncomingExpected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var total domain.Cents
	settled := make([]string, 0)
	for _, id := range ids {
		tx, err := o.state.Transaction(id)
		if err != nil {
			continue
		}
		if tx.RemainingAmount == 0 {
			settled = append(settled, id)
			continue
		}
		total += tx.RemainingAmount
	}
	for _, id := range settled {
		delete(agent.IncomingExpected, id)
	}
	return policy.IncomingView{Count: len(ids) - len(settled), TotalValue: total}
}
