package events

// Payload is the marker interface every event-specific payload struct
// implements. Consumers type-switch on it; nothing in the core does a
// string-keyed lookup into a dynamic map.
type Payload interface {
	isPayload()
}

type ArrivalPayload struct {
	TxID       string
	SenderID   string
	ReceiverID string
	Amount     int64
	DeadlineTick int64
	Priority   int
}

type PolicySubmitPayload struct {
	TxID    string
	AgentID string
}

type PolicyHoldPayload struct {
	TxID    string
	AgentID string
	// Reason distinguishes an ordinary policy hold from a
	// budget-exhaustion hold (spec §4.4).
	Reason string
}

type PolicyDropPayload struct {
	TxID    string
	AgentID string
}

type PolicySplitPayload struct {
	ParentTxID string
	AgentID    string
	ChildTxIDs []string
	ChildAmounts []int64
}

type TransactionReprioritizedPayload struct {
	TxID        string
	OldPriority int
	NewPriority int
}

type RtgsImmediateSettlementPayload struct {
	TxID           string
	SenderID       string
	ReceiverID     string
	Amount         int64
	SettlementTick int64
}

type QueuedRtgsPayload struct {
	TxID               string
	SenderID           string
	RTGSSubmissionTick int64
}

type Queue2LiquidityReleasePayload struct {
	TxID       string
	SenderID   string
	ReceiverID string
	Amount     int64
}

type EntryDispositionOffsetPayload struct {
	TxID          string
	OffsettingTxID string
	SenderID      string
	ReceiverID    string
	NetAmount     int64
}

type LsmBilateralOffsetPayload struct {
	AgentA        string
	AgentB        string
	AToBSettled   int64
	BToASettled   int64
	NetLiquidityA int64
	NetLiquidityB int64
	TxIDs         []string
}

type LsmCycleSettlementPayload struct {
	Agents       []string
	AmountsOut   map[string]int64
	TxIDs        []string
	MaxOutflow   int64
	MaxOutflowAgent string
}

type AlgorithmExecutionPayload struct {
	Algorithm string // "fifo_retry" | "bilateral_offset" | "cycle_detection"
	Settled   int
}

type CollateralPostPayload struct {
	AgentID string
	Amount  int64
}

type CollateralWithdrawPayload struct {
	AgentID     string
	Amount      int64
	TimerTicks  int64 // 0 if immediate
}

type CollateralTimerWithdrawnPayload struct {
	AgentID string
	Amount  int64
}

type CollateralTimerBlockedPayload struct {
	AgentID string
	Amount  int64
}

type CostAccrualPayload struct {
	AgentID string
	Kind    string // "liquidity" | "collateral" | "liquidity_pool" | "delay" (overdue multiplier included) | "deadline_penalty" | "split" | "eod_unsettled"
	TxID    string // empty when not transaction-scoped
	Amount  int64
}

type TransactionWentOverduePayload struct {
	TxID        string
	AgentID     string
	DeadlineTick int64
	CurrentTick int64
	PenaltyCharged int64
}

type OverdueTransactionSettledPayload struct {
	TxID    string
	AgentID string
}

type DeferredCreditAppliedPayload struct {
	AgentID string
	Amount  int64
}

type EndOfDayPayload struct {
	Day           int64
	UnsettledCount int
}

type BilateralLimitExceededPayload struct {
	AgentA string
	AgentB string
	Attempted int64
	Limit     int64
}

type MultilateralLimitExceededPayload struct {
	AgentID   string
	Attempted int64
	Limit     int64
}

type ScenarioEventEvaluatedPayload struct {
	ScenarioID  string
	Probability float64
	RandomValue float64
	Triggered   bool
}

type BankBudgetSetPayload struct {
	AgentID string
	Budget  int64
}

type StateRegisterSetPayload struct {
	AgentID  string
	Register string
	Value    float64
}

type LiquidityAllocationPayload struct {
	AgentID   string
	Allocated int64
}

func (ArrivalPayload) isPayload()                       {}
func (PolicySubmitPayload) isPayload()                  {}
func (PolicyHoldPayload) isPayload()                    {}
func (PolicyDropPayload) isPayload()                     {}
func (PolicySplitPayload) isPayload()                    {}
func (TransactionReprioritizedPayload) isPayload()       {}
func (RtgsImmediateSettlementPayload) isPayload()        {}
func (QueuedRtgsPayload) isPayload()                     {}
func (Queue2LiquidityReleasePayload) isPayload()         {}
func (EntryDispositionOffsetPayload) isPayload()         {}
func (LsmBilateralOffsetPayload) isPayload()             {}
func (LsmCycleSettlementPayload) isPayload()             {}
func (AlgorithmExecutionPayload) isPayload()             {}
func (CollateralPostPayload) isPayload()                 {}
func (CollateralWithdrawPayload) isPayload()             {}
func (CollateralTimerWithdrawnPayload) isPayload()       {}
func (CollateralTimerBlockedPayload) isPayload()         {}
func (CostAccrualPayload) isPayload()                    {}
func (TransactionWentOverduePayload) isPayload()         {}
func (OverdueTransactionSettledPayload) isPayload()      {}
func (DeferredCreditAppliedPayload) isPayload()          {}
func (EndOfDayPayload) isPayload()                       {}
func (BilateralLimitExceededPayload) isPayload()         {}
func (MultilateralLimitExceededPayload) isPayload()      {}
func (ScenarioEventEvaluatedPayload) isPayload()         {}
func (BankBudgetSetPayload) isPayload()                  {}
func (StateRegisterSetPayload) isPayload()               {}
func (LiquidityAllocationPayload) isPayload()            {}
