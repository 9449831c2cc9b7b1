package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalExpr_FieldAndValue(t *testing.T) {
	ctx := NewContext()
	ctx.Set("agent.balance", 1500)

	v, err := EvalExpr(Field("agent.balance"), ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, v)

	v, err = EvalExpr(Value(42), ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestEvalExpr_UnknownFieldFails(t *testing.T) {
	ctx := NewContext()
	_, err := EvalExpr(Field("agent.bogus"), ctx, nil, nil)
	assert.Error(t, err)
}

func TestEvalExpr_StateRegisterDefaultsZero(t *testing.T) {
	ctx := NewContext()
	registers := map[string]float64{}
	v, err := EvalExpr(State("streak"), ctx, registers, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestEvalExpr_Comparisons(t *testing.T) {
	ctx := NewContext()
	ctx.Set("tx.amount", 100)
	expr := Bin(OpGT, Field("tx.amount"), Value(50))
	v, err := EvalExpr(expr, ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestEvalExpr_LogicalAndNot(t *testing.T) {
	ctx := NewContext()
	ctx.SetBool("tx.is_overdue", true)
	ctx.Set("agent.balance", -10)

	expr := Bin(OpAnd, Field("tx.is_overdue"), Bin(OpLT, Field("agent.balance"), Value(0)))
	v, err := EvalExpr(expr, ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	notExpr := Not(Field("tx.is_overdue"))
	v, err = EvalExpr(notExpr, ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestEvalExpr_DivideByZeroAtRuntime(t *testing.T) {
	ctx := NewContext()
	ctx.Set("divisor", 0)
	expr := Bin(OpDiv, Value(10), Field("divisor"))
	_, err := EvalExpr(expr, ctx, nil, nil)
	assert.Error(t, err)
}

func TestEvaluateTree_WalksToLeaf(t *testing.T) {
	ctx := NewContext()
	ctx.Set("agent.available_liquidity", 500)

	submitAction := &Action{Kind: ActionSubmit}
	holdAction := &Action{Kind: ActionHold}

	tree := Condition(
		Bin(OpGE, Field("agent.available_liquidity"), Value(100)),
		Leaf(submitAction),
		Leaf(holdAction),
	)

	a, err := EvaluateTree(tree, ctx, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, ActionSubmit, a.Kind)
}

func TestEvaluateTree_NilBranchYieldsNoDecision(t *testing.T) {
	ctx := NewContext()
	ctx.Set("agent.available_liquidity", 5)

	tree := Condition(
		Bin(OpGE, Field("agent.available_liquidity"), Value(100)),
		Leaf(&Action{Kind: ActionSubmit}),
		nil,
	)

	a, err := EvaluateTree(tree, ctx, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestApplyRegisterAction_SetAndModify(t *testing.T) {
	ctx := NewContext()
	registers := map[string]float64{}

	set := &Action{Kind: ActionSetStateRegister, RegisterName: "streak", RegisterExpr: *Value(3)}
	require.NoError(t, ApplyRegisterAction(set, registers, ctx, nil))
	assert.Equal(t, 3.0, registers["streak"])

	modify := &Action{Kind: ActionModifyStateRegister, RegisterName: "streak", RegisterExpr: *Value(1)}
	require.NoError(t, ApplyRegisterAction(modify, registers, ctx, nil))
	assert.Equal(t, 4.0, registers["streak"])
}

func TestValidatePolicy_RejectsUnknownField(t *testing.T) {
	p := &Policy{
		AgentID: "bank-a",
		PaymentTree: Condition(
			Field("tx.bogus_field"),
			Leaf(&Action{Kind: ActionSubmit}),
			Leaf(&Action{Kind: ActionHold}),
		),
	}
	err := ValidatePolicy(p)
	assert.Error(t, err)
}

func TestValidatePolicy_RejectsDisallowedActionInSlot(t *testing.T) {
	p := &Policy{
		AgentID: "bank-a",
		PaymentTree: Leaf(&Action{Kind: ActionPostCollateral}),
	}
	err := ValidatePolicy(p)
	assert.Error(t, err)
}

func TestValidatePolicy_RejectsLiteralZeroDivision(t *testing.T) {
	p := &Policy{
		AgentID: "bank-a",
		BankTree: Leaf(&Action{
			Kind:         ActionSetStateRegister,
			RegisterName: "r",
			RegisterExpr: *Bin(OpDiv, Value(1), Value(0)),
		}),
	}
	err := ValidatePolicy(p)
	assert.Error(t, err)
}

func TestValidatePolicy_RejectsTooDeepTree(t *testing.T) {
	leaf := Leaf(&Action{Kind: ActionSubmit})
	node := leaf
	for i := 0; i < MaxTreeDepth+2; i++ {
		node = Condition(Value(1), node, leaf)
	}
	p := &Policy{AgentID: "bank-a", PaymentTree: node}
	err := ValidatePolicy(p)
	assert.Error(t, err)
}

func TestValidatePolicy_AcceptsWellFormedPolicy(t *testing.T) {
	p := &Policy{
		AgentID: "bank-a",
		BankTree: Leaf(&Action{
			Kind:         ActionSetReleaseBudget,
			BudgetAmount: *Field("agent.available_liquidity"),
		}),
		PaymentTree: Condition(
			Bin(OpGE, Field("agent.available_liquidity"), Field("tx.amount")),
			Leaf(&Action{Kind: ActionSubmit}),
			Leaf(&Action{Kind: ActionHold}),
		),
	}
	assert.NoError(t, ValidatePolicy(p))
}
