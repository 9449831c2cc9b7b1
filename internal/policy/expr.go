// Package policy implements the decision-tree DSL that drives release,
// hold, split, and collateral decisions (spec C6, §4.4).
package policy

// ExprKind tags which variant of the expression algebra a node is.
type ExprKind int

const (
	ExprField ExprKind = iota
	ExprValue
	ExprParam
	ExprState
	ExprUnary
	ExprBinary
)

// BinOp enumerates the binary operators of the typed f64/bool algebra
// (spec §4.4): comparisons, logical, and arithmetic.
type BinOp int

const (
	OpLT BinOp = iota
	OpLE
	OpGT
	OpGE
	OpEQ
	OpNE
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
)

var binOpNames = map[BinOp]string{
	OpLT: "<", OpLE: "<=", OpGT: ">", OpGE: ">=", OpEQ: "=", OpNE: "!=",
	OpAnd: "and", OpOr: "or", OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "mod",
}

func (o BinOp) String() string {
	if n, ok := binOpNames[o]; ok {
		return n
	}
	return "?"
}

func (o BinOp) isComparison() bool {
	switch o {
	case OpLT, OpLE, OpGT, OpGE, OpEQ, OpNE:
		return true
	}
	return false
}

func (o BinOp) isLogical() bool {
	return o == OpAnd || o == OpOr
}

// UnaryOp enumerates the unary operators. Only `not` exists (spec §4.4).
type UnaryOp int

const (
	OpNot UnaryOp = iota
)

// Expr is a node in the expression algebra. Exactly one of the
// kind-specific fields is meaningful, selected by Kind — this mirrors the
// spec's instruction to re-architect dynamic payloads as a tagged variant
// rather than a duck-typed structure (spec §9).
type Expr struct {
	Kind ExprKind

	// ExprField / ExprParam / ExprState
	Name string

	// ExprValue
	Literal float64

	// ExprUnary
	UnOp    UnaryOp
	Operand *Expr

	// ExprBinary
	Op          BinOp
	Left, Right *Expr
}

// Field builds a field(name) leaf.
func Field(name string) *Expr { return &Expr{Kind: ExprField, Name: name} }

// Value builds a literal value(x) leaf.
func Value(x float64) *Expr { return &Expr{Kind: ExprValue, Literal: x} }

// Param builds a policy-local param(name) leaf.
func Param(name string) *Expr { return &Expr{Kind: ExprParam, Name: name} }

// State builds an agent register state(name) leaf.
func State(name string) *Expr { return &Expr{Kind: ExprState, Name: name} }

// Not builds a unary not(operand) node.
func Not(operand *Expr) *Expr { return &Expr{Kind: ExprUnary, UnOp: OpNot, Operand: operand} }

// Bin builds a binary op(left, right) node.
func Bin(op BinOp, left, right *Expr) *Expr {
	return &Expr{Kind: ExprBinary, Op: op, Left: left, Right: right}
}

// Depth returns the expression's max nesting depth, a leaf counting as 1.
func (e *Expr) Depth() int {
	if e == nil {
		return 0
	}
	switch e.Kind {
	case ExprUnary:
		return 1 + e.Operand.Depth()
	case ExprBinary:
		l, r := e.Left.Depth(), e.Right.Depth()
		if l > r {
			return 1 + l
		}
		return 1 + r
	default:
		return 1
	}
}
