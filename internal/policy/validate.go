package policy

import (
	"fmt"

	"simcash/pkg/errors"
)

// MaxTreeDepth bounds how deeply a tree may nest condition forks (spec
// §4.4, §8 invariant #9: "no tree may exceed a configured max depth").
const MaxTreeDepth = 10

// MaxDistinctRegisters bounds how many distinct state(name) registers a
// single policy may reference across all four trees (spec §8 invariant
// #9, domain.MaxStateRegisters).
const MaxDistinctRegisters = 10

// ValidatePolicy checks every structural invariant the DSL promises
// before a policy may be attached to an agent (spec §4.4, §8): per-slot
// action-kind allow-lists, max depth, known fields/operators only, a
// bounded distinct-register count, and no literal-zero division.
func ValidatePolicy(p *Policy) error {
	registers := make(map[string]bool)
	slots := []struct {
		slot TreeSlot
		tree *Node
	}{
		{SlotBankTree, p.BankTree},
		{SlotStrategicCollateralTree, p.StrategicCollateralTree},
		{SlotPaymentTree, p.PaymentTree},
		{SlotEndOfTickCollateralTree, p.EndOfTickCollateralTree},
	}
	for _, s := range slots {
		if s.tree == nil {
			continue
		}
		if err := validateNode(s.slot, s.tree, 0, registers); err != nil {
			return err
		}
	}
	if len(registers) > MaxDistinctRegisters {
		return fmt.Errorf("%w: %d registers referenced, max %d", errors.ErrTooManyRegisters, len(registers), MaxDistinctRegisters)
	}
	return nil
}

func validateNode(slot TreeSlot, n *Node, depth int, registers map[string]bool) error {
	if depth > MaxTreeDepth {
		return fmt.Errorf("%w: %s exceeds depth %d", errors.ErrTreeTooDeep, slot, MaxTreeDepth)
	}
	if n.IsLeaf {
		return validateAction(slot, n.Leaf, registers)
	}
	if err := validateExpr(n.Cond, registers); err != nil {
		return err
	}
	if n.IfTrue != nil {
		if err := validateNode(slot, n.IfTrue, depth+1, registers); err != nil {
			return err
		}
	}
	if n.IfFalse != nil {
		if err := validateNode(slot, n.IfFalse, depth+1, registers); err != nil {
			return err
		}
	}
	return nil
}

func validateAction(slot TreeSlot, a *Action, registers map[string]bool) error {
	allowed := allowedActionKinds[slot]
	if !allowed[a.Kind] {
		return fmt.Errorf("%w: %s not allowed in %s", errors.ErrDisallowedAction, a.Kind, slot)
	}
	switch a.Kind {
	case ActionPostCollateral, ActionWithdrawCollateral:
		if err := validateExpr(&a.CollateralAmount, registers); err != nil {
			return err
		}
	case ActionSetReleaseBudget, ActionModifyReleaseBudget:
		if err := validateExpr(&a.BudgetAmount, registers); err != nil {
			return err
		}
		if a.PerCounterpartyLimitExpr != nil {
			if err := validateExpr(a.PerCounterpartyLimitExpr, registers); err != nil {
				return err
			}
		}
	case ActionSetStateRegister, ActionModifyStateRegister:
		registers[a.RegisterName] = true
		if err := validateExpr(&a.RegisterExpr, registers); err != nil {
			return err
		}
	}
	return nil
}

func validateExpr(e *Expr, registers map[string]bool) error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ExprField:
		if !KnownFields[e.Name] {
			return fmt.Errorf("%w: %s", errors.ErrUnknownField, e.Name)
		}
	case ExprState:
		registers[e.Name] = true
	case ExprValue, ExprParam:
		// always valid
	case ExprUnary:
		return validateExpr(e.Operand, registers)
	case ExprBinary:
		if e.Op == OpDiv || e.Op == OpMod {
			if e.Right != nil && e.Right.Kind == ExprValue && e.Right.Literal == 0 {
				return errors.ErrDivideByZero
			}
		}
		if err := validateExpr(e.Left, registers); err != nil {
			return err
		}
		return validateExpr(e.Right, registers)
	default:
		return fmt.Errorf("%w: kind %d", errors.ErrUnknownOperator, e.Kind)
	}
	return nil
}
