package policy

// ActionKind tags which decision an action node produces (spec §4.4).
type ActionKind int

const (
	ActionSubmit ActionKind = iota
	ActionHold
	ActionSplit
	ActionDrop
	ActionReprioritize
	ActionPostCollateral
	ActionWithdrawCollateral
	ActionSetReleaseBudget
	ActionModifyReleaseBudget
	ActionSetStateRegister
	ActionModifyStateRegister
)

var actionKindNames = map[ActionKind]string{
	ActionSubmit: "submit", ActionHold: "hold", ActionSplit: "split",
	ActionDrop: "drop", ActionReprioritize: "reprioritize",
	ActionPostCollateral: "post_collateral", ActionWithdrawCollateral: "withdraw_collateral",
	ActionSetReleaseBudget: "set_release_budget", ActionModifyReleaseBudget: "modify_release_budget",
	ActionSetStateRegister: "set_state_register", ActionModifyStateRegister: "modify_state_register",
}

func (k ActionKind) String() string {
	if n, ok := actionKindNames[k]; ok {
		return n
	}
	return "?"
}

// HoldReason enumerates why a payment_tree decision resolved to hold
// (spec §4.10 step 4, §8). The PolicyHold event carries its reason as a
// string (events.PolicyHoldPayload.Reason), not as this type.
type HoldReason int

const (
	HoldReasonPolicy HoldReason = iota
	HoldReasonBudgetExhausted
	HoldReasonPerCounterpartyLimitExhausted
)

// Action is a leaf decision produced by a tree (spec §4.4). Exactly the
// fields relevant to Kind are meaningful, mirroring Expr's tagged-union
// shape rather than a single loosely-typed payload.
type Action struct {
	Kind ActionKind

	// ActionSubmit / ActionReprioritize
	PriorityOverride *int

	// ActionSplit
	NumSplits int

	// ActionPostCollateral / ActionWithdrawCollateral
	CollateralAmount Expr
	TimerTicks       int // 0 means immediate

	// ActionSetReleaseBudget / ActionModifyReleaseBudget
	BudgetAmount             Expr
	FocusCounterparty        string // empty means "all counterparties"
	PerCounterpartyLimitExpr *Expr

	// ActionSetStateRegister / ActionModifyStateRegister
	RegisterName string
	RegisterExpr Expr
}

// Node is a decision-tree node: either a condition fork or an action leaf
// (spec §4.4).
type Node struct {
	// IsLeaf selects between the condition fork (Cond/IfTrue/IfFalse) and
	// the terminal action (Leaf).
	IsLeaf bool

	Cond    *Expr
	IfTrue  *Node
	IfFalse *Node

	Leaf *Action
}

// Condition builds an internal condition-fork node.
func Condition(cond *Expr, ifTrue, ifFalse *Node) *Node {
	return &Node{Cond: cond, IfTrue: ifTrue, IfFalse: ifFalse}
}

// Leaf builds a terminal action node.
func Leaf(a *Action) *Node {
	return &Node{IsLeaf: true, Leaf: a}
}

// TreeSlot identifies which of a policy's four trees is being
// compiled/evaluated (spec C6). Each slot has its own allowed-action-kinds
// set, enforced at validation time.
type TreeSlot int

const (
	SlotBankTree TreeSlot = iota
	SlotStrategicCollateralTree
	SlotPaymentTree
	SlotEndOfTickCollateralTree
)

var slotNames = map[TreeSlot]string{
	SlotBankTree:                 "bank_tree",
	SlotStrategicCollateralTree:  "strategic_collateral_tree",
	SlotPaymentTree:              "payment_tree",
	SlotEndOfTickCollateralTree:  "end_of_tick_collateral_tree",
}

func (s TreeSlot) String() string {
	if n, ok := slotNames[s]; ok {
		return n
	}
	return "?"
}

// allowedActionKinds lists which ActionKinds each slot's leaves may
// produce (spec §4.4): bank_tree governs release budgets; the collateral
// trees govern collateral posting and withdrawal; payment_tree governs
// submission flow control. Every slot may also set or modify state
// registers.
var allowedActionKinds = map[TreeSlot]map[ActionKind]bool{
	SlotBankTree: {
		ActionSetReleaseBudget:    true,
		ActionModifyReleaseBudget: true,
		ActionSetStateRegister:    true,
		ActionModifyStateRegister: true,
	},
	SlotStrategicCollateralTree: {
		ActionPostCollateral:      true,
		ActionWithdrawCollateral:  true,
		ActionSetStateRegister:    true,
		ActionModifyStateRegister: true,
	},
	SlotPaymentTree: {
		ActionSubmit:           true,
		ActionHold:             true,
		ActionSplit:            true,
		ActionDrop:             true,
		ActionReprioritize:     true,
		ActionSetStateRegister: true,
		ActionModifyStateRegister: true,
	},
	SlotEndOfTickCollateralTree: {
		ActionPostCollateral:      true,
		ActionWithdrawCollateral:  true,
		ActionSetStateRegister:    true,
		ActionModifyStateRegister: true,
	},
}

// Policy bundles an agent's four compiled decision trees and its static
// Queue 1 ordering strategy (spec C6, §4.2).
type Policy struct {
	AgentID string

	BankTree                 *Node
	StrategicCollateralTree  *Node
	PaymentTree              *Node
	EndOfTickCollateralTree  *Node

	Queue1Ordering Queue1OrderingStrategy
}

// Queue1OrderingStrategy selects how an agent's Queue 1 is walked for
// payment_tree evaluation and RTGS release attempts (spec §4.2).
type Queue1OrderingStrategy int

const (
	OrderingFIFO Queue1OrderingStrategy = iota
	OrderingPriorityDeadline
)
