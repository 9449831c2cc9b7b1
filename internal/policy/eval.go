package policy

import (
	"fmt"

	"simcash/internal/domain"
)

func truthy(v float64) bool { return v != 0 }

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// EvalExpr evaluates an expression against a field context, an agent's
// state registers, and the policy's own named parameters (spec §4.4).
// Division by a right-hand side that evaluates to zero at runtime — even
// though no *literal* zero divisor survives validation — is an
// OperationError: a programmer-authored tree produced a degenerate
// evaluation, which aborts the tick rather than silently propagating NaN
// or Inf (spec §7).
func EvalExpr(e *Expr, ctx *Context, registers map[string]float64, params map[string]float64) (float64, error) {
	if e == nil {
		return 0, domain.OperationError("policy: nil expression node", nil)
	}
	switch e.Kind {
	case ExprField:
		return ctx.Get(e.Name)
	case ExprValue:
		return e.Literal, nil
	case ExprParam:
		v, ok := params[e.Name]
		if !ok {
			return 0, domain.OperationError(fmt.Sprintf("policy: unbound param %q", e.Name), nil)
		}
		return v, nil
	case ExprState:
		return registers[e.Name], nil
	case ExprUnary:
		v, err := EvalExpr(e.Operand, ctx, registers, params)
		if err != nil {
			return 0, err
		}
		if e.UnOp == OpNot {
			return boolFloat(!truthy(v)), nil
		}
		return 0, domain.OperationError("policy: unknown unary operator", nil)
	case ExprBinary:
		return evalBinary(e, ctx, registers, params)
	default:
		return 0, domain.OperationError("policy: unknown expression kind", nil)
	}
}

func evalBinary(e *Expr, ctx *Context, registers map[string]float64, params map[string]float64) (float64, error) {
	l, err := EvalExpr(e.Left, ctx, registers, params)
	if err != nil {
		return 0, err
	}
	r, err := EvalExpr(e.Right, ctx, registers, params)
	if err != nil {
		return 0, err
	}
	switch e.Op {
	case OpLT:
		return boolFloat(l < r), nil
	case OpLE:
		return boolFloat(l <= r), nil
	case OpGT:
		return boolFloat(l > r), nil
	case OpGE:
		return boolFloat(l >= r), nil
	case OpEQ:
		return boolFloat(l == r), nil
	case OpNE:
		return boolFloat(l != r), nil
	case OpAnd:
		return boolFloat(truthy(l) && truthy(r)), nil
	case OpOr:
		return boolFloat(truthy(l) || truthy(r)), nil
	case OpAdd:
		return l + r, nil
	case OpSub:
		return l - r, nil
	case OpMul:
		return l * r, nil
	case OpDiv:
		if r == 0 {
			return 0, domain.OperationError("policy: division by zero at runtime", nil)
		}
		return l / r, nil
	case OpMod:
		if r == 0 {
			return 0, domain.OperationError("policy: modulo by zero at runtime", nil)
		}
		return float64(int64(l) % int64(r)), nil
	default:
		return 0, domain.OperationError("policy: unknown binary operator", nil)
	}
}

// EvaluateTree walks a tree from its root, following condition forks until
// it reaches a leaf action, and returns that action. A nil tree or a fork
// that ends in a nil branch (no leaf configured on that path) yields a nil
// action, meaning "no decision this tick" for that slot.
func EvaluateTree(root *Node, ctx *Context, registers map[string]float64, params map[string]float64) (*Action, error) {
	cur := root
	for cur != nil && !cur.IsLeaf {
		v, err := EvalExpr(cur.Cond, ctx, registers, params)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			cur = cur.IfTrue
		} else {
			cur = cur.IfFalse
		}
	}
	if cur == nil {
		return nil, nil
	}
	return cur.Leaf, nil
}

// ApplyRegisterAction mutates an agent's state registers in place for
// ActionSetStateRegister/ActionModifyStateRegister leaves. Any other
// action kind is a no-op here; callers dispatch those kinds elsewhere
// (collateral, release budget, submission flow).
func ApplyRegisterAction(a *Action, registers map[string]float64, ctx *Context, params map[string]float64) error {
	if a == nil {
		return nil
	}
	switch a.Kind {
	case ActionSetStateRegister:
		v, err := EvalExpr(&a.RegisterExpr, ctx, registers, params)
		if err != nil {
			return err
		}
		registers[a.RegisterName] = v
	case ActionModifyStateRegister:
		v, err := EvalExpr(&a.RegisterExpr, ctx, registers, params)
		if err != nil {
			return err
		}
		registers[a.RegisterName] += v
	}
	return nil
}
