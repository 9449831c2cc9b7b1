// Package events implements the simulator's append-only, strictly typed
// event log (spec C4, §4.9). Every event kind has its own payload struct;
// consumers type-switch on Event.Payload rather than doing stringly-typed
// field lookups into a dynamic map (spec §9, "any-typed event payloads").
package events

// Kind tags which payload an Event carries.
type Kind int

const (
	KindArrival Kind = iota
	KindPolicySubmit
	KindPolicyHold
	KindPolicyDrop
	KindPolicySplit
	KindTransactionReprioritized
	KindRtgsImmediateSettlement
	KindQueuedRtgs
	KindQueue2LiquidityRelease
	KindEntryDispositionOffset
	KindLsmBilateralOffset
	KindLsmCycleSettlement
	KindAlgorithmExecution
	KindCollateralPost
	KindCollateralWithdraw
	KindCollateralTimerWithdrawn
	KindCollateralTimerBlocked
	KindCostAccrual
	KindTransactionWentOverdue
	KindOverdueTransactionSettled
	KindDeferredCreditApplied
	KindEndOfDay
	KindBilateralLimitExceeded
	KindMultilateralLimitExceeded
	KindScenarioEventEvaluated
	KindBankBudgetSet
	KindStateRegisterSet
	KindLiquidityAllocation
)

var kindNames = map[Kind]string{
	KindArrival:                   "Arrival",
	KindPolicySubmit:              "PolicySubmit",
	KindPolicyHold:                "PolicyHold",
	KindPolicyDrop:                "PolicyDrop",
	KindPolicySplit:               "PolicySplit",
	KindTransactionReprioritized:  "TransactionReprioritized",
	KindRtgsImmediateSettlement:   "RtgsImmediateSettlement",
	KindQueuedRtgs:                "QueuedRtgs",
	KindQueue2LiquidityRelease:    "Queue2LiquidityRelease",
	KindEntryDispositionOffset:    "EntryDispositionOffset",
	KindLsmBilateralOffset:        "LsmBilateralOffset",
	KindLsmCycleSettlement:        "LsmCycleSettlement",
	KindAlgorithmExecution:        "AlgorithmExecution",
	KindCollateralPost:            "CollateralPost",
	KindCollateralWithdraw:        "CollateralWithdraw",
	KindCollateralTimerWithdrawn:  "CollateralTimerWithdrawn",
	KindCollateralTimerBlocked:    "CollateralTimerBlocked",
	KindCostAccrual:               "CostAccrual",
	KindTransactionWentOverdue:    "TransactionWentOverdue",
	KindOverdueTransactionSettled: "OverdueTransactionSettled",
	KindDeferredCreditApplied:     "DeferredCreditApplied",
	KindEndOfDay:                  "EndOfDay",
	KindBilateralLimitExceeded:    "BilateralLimitExceeded",
	KindMultilateralLimitExceeded: "MultilateralLimitExceeded",
	KindScenarioEventEvaluated:    "ScenarioEventEvaluated",
	KindBankBudgetSet:             "BankBudgetSet",
	KindStateRegisterSet:          "StateRegisterSet",
	KindLiquidityAllocation:       "LiquidityAllocation",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}
