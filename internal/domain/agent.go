package domain

// MaxStateRegisters bounds the number of named floating point slots a
// policy may use for cross-tick memory (spec §3, §4.4).
const MaxStateRegisters = 10

// BilateralLimit is a per-counterparty, per-day outflow cap with running
// usage, TARGET2-style (spec §3).
type BilateralLimit struct {
	Cap   Cents
	Used  Cents
}

// LiquidityPool describes the optional day-start top-up mechanism (spec
// §3): at day start, balance is reset to floor(pool*fraction), and that
// allocation accrues a per-tick opportunity cost.
type LiquidityPool struct {
	Pool             Cents
	AllocationFraction float64
	CostPerTick      Cents
	Allocated        Cents // derived at day start, cached for cost accrual
}

// Agent is a participating bank with a settlement account, queues, and
// policy state (spec §3).
type Agent struct {
	ID string

	Balance             Cents
	PostedCollateral     Cents
	CollateralHaircut    float64 // 0..1
	UnsecuredCap         Cents
	MaxCollateralCapacity Cents

	// OutgoingQueue is Queue 1: the ordered sequence of this agent's
	// strategically held transaction ids.
	OutgoingQueue []string
	// IncomingExpected is the set of transaction ids addressed to this
	// agent that have not yet settled.
	IncomingExpected map[string]struct{}

	ReleaseBudgetRemaining          *Cents
	ReleaseBudgetFocusCounterparties map[string]struct{}
	PerCounterpartyUsage            map[string]Cents
	PerCounterpartyLimit            *Cents

	StateRegisters map[string]float64

	BilateralLimits    map[string]*BilateralLimit
	MultilateralLimit  *BilateralLimit

	LiquidityPool *LiquidityPool

	// PendingCollateralWithdrawals holds timered withdrawals registered
	// by policy, keyed by the tick at which they become eligible.
	PendingCollateralWithdrawals []PendingWithdrawal
}

// PendingWithdrawal is a deferred collateral withdrawal registered by the
// strategic or end-of-tick collateral tree with a timer (spec §4.4, §5).
type PendingWithdrawal struct {
	Amount        Cents
	EligibleTick  int64
}

// NewAgent constructs an Agent with its maps initialized.
func NewAgent(id string, balance, postedCollateral, unsecuredCap Cents, haircut float64) *Agent {
	return &Agent{
		ID:                   id,
		Balance:              balance,
		PostedCollateral:     postedCollateral,
		CollateralHaircut:    haircut,
		UnsecuredCap:         unsecuredCap,
		IncomingExpected:     make(map[string]struct{}),
		ReleaseBudgetFocusCounterparties: make(map[string]struct{}),
		PerCounterpartyUsage: make(map[string]Cents),
		StateRegisters:       make(map[string]float64),
		BilateralLimits:      make(map[string]*BilateralLimit),
	}
}

// CreditLimit is unsecured_cap + floor(posted_collateral*(1-haircut)).
func (a *Agent) CreditLimit() Cents {
	return a.UnsecuredCap + FloorMulFraction(a.PostedCollateral, 1-a.CollateralHaircut)
}

// AvailableLiquidity is balance + credit_limit.
func (a *Agent) AvailableLiquidity() Cents {
	return a.Balance + a.CreditLimit()
}

// CanPay reports balance+credit_limit >= x.
func (a *Agent) CanPay(x Cents) bool {
	return a.AvailableLiquidity() >= x
}

// RemainingCollateralCapacity is how much more collateral may be posted
// before hitting MaxCollateralCapacity.
func (a *Agent) RemainingCollateralCapacity() Cents {
	remaining := a.MaxCollateralCapacity - a.PostedCollateral
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Queue1Size is the number of transaction ids in this agent's Queue 1.
// The summed value lives on SimulationState.Queue1Value, which owns the
// transaction map; this keeps Agent free of a back-reference.
func (a *Agent) Queue1Size() int {
	return len(a.OutgoingQueue)
}

// CanUseBilateral reports whether paying amount to counterparty stays
// within the configured per-counterparty TARGET2-style cap. An agent with
// no configured limit for that counterparty is unconstrained (spec §3).
func (a *Agent) CanUseBilateral(counterparty string, amount Cents) bool {
	lim, ok := a.BilateralLimits[counterparty]
	if !ok || lim == nil {
		return true
	}
	return lim.Used+amount <= lim.Cap
}

// UseBilateral records amount against the running usage counter for the
// given counterparty, if a limit is configured.
func (a *Agent) UseBilateral(counterparty string, amount Cents) {
	lim, ok := a.BilateralLimits[counterparty]
	if !ok || lim == nil {
		return
	}
	lim.Used += amount
}

// CanUseMultilateral reports whether paying amount stays within this
// agent's aggregate TARGET2-style outflow cap across all counterparties.
// An agent with no configured multilateral limit is unconstrained.
func (a *Agent) CanUseMultilateral(amount Cents) bool {
	if a.MultilateralLimit == nil {
		return true
	}
	return a.MultilateralLimit.Used+amount <= a.MultilateralLimit.Cap
}

// UseMultilateral records amount against the running multilateral usage
// counter, if a limit is configured.
func (a *Agent) UseMultilateral(amount Cents) {
	if a.MultilateralLimit == nil {
		return
	}
	a.MultilateralLimit.Used += amount
}
