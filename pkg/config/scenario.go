package config

import (
	"fmt"
	"os"

	"simcash/internal/arrivals"
	"simcash/internal/costs"
	"simcash/internal/domain"
	"simcash/internal/policy"
	"simcash/internal/scenario"
	"simcash/internal/simcore"
	"simcash/pkg/moneyfmt"
	"simcash/pkg/validator"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// File is the top-level shape of a scenario YAML file: agents, compiled
// policy trees, arrival processes, scripted events, and cost rates
// (spec §6, §4.3, §4.4, §4.7, §4.11).
type File struct {
	Seed                       uint64 `yaml:"seed" validate:"required"`
	TicksPerDay                int64  `yaml:"ticks_per_day" validate:"required,gt=0"`
	EpisodeEndTick             int64  `yaml:"episode_end_tick" validate:"required,gt=0"`
	EODRushThreshold           int64  `yaml:"eod_rush_threshold"`
	DeferDeferredCrediting     bool   `yaml:"defer_deferred_crediting"`
	EntryDispositionOffsetting bool   `yaml:"entry_disposition_offsetting"`
	MaxCyclesPerTick           int    `yaml:"max_cycles_per_tick" validate:"required,gt=0"`

	CostRates  CostRatesFile  `yaml:"cost_rates"`
	CostConfig CostConfigFile `yaml:"cost_config"`

	Agents   []AgentFile           `yaml:"agents" validate:"dive"`
	Policies map[string]PolicyFile `yaml:"policies"`
	Arrivals []ArrivalFile         `yaml:"arrivals" validate:"dive"`
	Events   []ScenarioEventFile   `yaml:"scenario_events" validate:"dive"`
}

// AgentFile is one participating bank. Amounts are decimal strings;
// moneyfmt.ParseAmount converts them to exact cents at compile time.
type AgentFile struct {
	ID                    string  `yaml:"id" validate:"required"`
	Balance               string  `yaml:"balance" validate:"required"`
	PostedCollateral      string  `yaml:"posted_collateral"`
	CollateralHaircut     float64 `yaml:"collateral_haircut" validate:"gte=0,lte=1"`
	UnsecuredCap          string  `yaml:"unsecured_cap"`
	MaxCollateralCapacity string  `yaml:"max_collateral_capacity"`
	Policy                string  `yaml:"policy"`

	BilateralLimits   map[string]BilateralLimitFile `yaml:"bilateral_limits"`
	MultilateralLimit *BilateralLimitFile            `yaml:"multilateral_limit"`
	LiquidityPool     *LiquidityPoolFile             `yaml:"liquidity_pool"`
}

// BilateralLimitFile is one per-counterparty daily outflow cap.
type BilateralLimitFile struct {
	Cap string `yaml:"cap" validate:"required"`
}

// LiquidityPoolFile describes a day-start liquidity top-up mechanism.
type LiquidityPoolFile struct {
	Pool               string  `yaml:"pool" validate:"required"`
	AllocationFraction float64 `yaml:"allocation_fraction" validate:"gte=0,lte=1"`
	CostPerTick        string  `yaml:"cost_per_tick"`
}

// CostRatesFile mirrors policy.CostRatesView, the costs.* fields the DSL
// reads.
type CostRatesFile struct {
	DelayPerTick    string `yaml:"delay_per_tick"`
	DeadlinePenalty string `yaml:"deadline_penalty"`
	OverdraftBps    int64  `yaml:"overdraft_bps"`
}

// CostConfigFile mirrors costs.Config's rate parameters.
type CostConfigFile struct {
	OverdraftBps             int64   `yaml:"overdraft_bps"`
	CollateralOpportunityBps int64   `yaml:"collateral_opportunity_bps"`
	DelayPerTick             string  `yaml:"delay_per_tick"`
	DeadlinePenalty          string  `yaml:"deadline_penalty"`
	OverdueDelayMultiplier   float64 `yaml:"overdue_delay_multiplier"`
	SplitFrictionBps         int64   `yaml:"split_friction_bps"`
	EODUnsettledPenalty      string  `yaml:"eod_unsettled_penalty"`
}

// ArrivalFile is one agent's Poisson arrival process.
type ArrivalFile struct {
	AgentID             string             `yaml:"agent_id" validate:"required"`
	Lambda              float64            `yaml:"lambda" validate:"gte=0"`
	CounterpartyWeights map[string]float64 `yaml:"counterparty_weights"`
	AmountMu            float64            `yaml:"amount_mu"`
	AmountSigma         float64            `yaml:"amount_sigma"`
	DeadlineMinTicks    int64              `yaml:"deadline_min_ticks"`
	DeadlineMaxTicks    int64              `yaml:"deadline_max_ticks"`
	PriorityBands       []PriorityBandFile `yaml:"priority_bands"`
	Divisible           bool               `yaml:"divisible"`
	CapDeadlineAtEOD    bool               `yaml:"cap_deadline_at_eod"`
}

// PriorityBandFile is one weighted priority outcome.
type PriorityBandFile struct {
	Name     string  `yaml:"name"`
	Weight   float64 `yaml:"weight"`
	Priority int     `yaml:"priority"`
}

// ScenarioEventFile is one scripted scenario event. Only the fields
// relevant to Kind are meaningful, mirroring scenario.Event's own
// tagged-union shape.
type ScenarioEventFile struct {
	ID           string  `yaml:"id" json:"id" validate:"required"`
	Schedule     string  `yaml:"schedule" json:"schedule" validate:"required,oneof=one_time repeating probabilistic_one_time probabilistic_repeating"`
	AtTick       int64   `yaml:"at_tick" json:"at_tick"`
	IntervalTick int64   `yaml:"interval_tick" json:"interval_tick"`
	Probability  float64 `yaml:"probability" json:"probability"`

	Kind string `yaml:"kind" json:"kind" validate:"required"`

	SenderID     string `yaml:"sender_id" json:"sender_id"`
	ReceiverID   string `yaml:"receiver_id" json:"receiver_id"`
	Amount       string `yaml:"amount" json:"amount"`
	DeadlineTick int64  `yaml:"deadline_tick" json:"deadline_tick"`
	Priority     int    `yaml:"priority" json:"priority"`
	Divisible    bool   `yaml:"divisible" json:"divisible"`

	AgentID string `yaml:"agent_id" json:"agent_id"`
	Delta   string `yaml:"delta" json:"delta"`

	NewGlobalMultiplier float64 `yaml:"new_global_multiplier" json:"new_global_multiplier"`
	NewLambda           float64 `yaml:"new_lambda" json:"new_lambda"`

	Counterparty string  `yaml:"counterparty" json:"counterparty"`
	NewWeight    float64 `yaml:"new_weight" json:"new_weight"`

	NewMinTicks int64 `yaml:"new_min_ticks" json:"new_min_ticks"`
	NewMaxTicks int64 `yaml:"new_max_ticks" json:"new_max_ticks"`
}

// CompileScenarioEvent exposes the scenario-event compiler for callers
// outside this package (internal/api decodes a ScenarioEventFile from a
// JSON request body and needs the same decimal-string-to-cents and
// schedule/kind validation the YAML loader applies).
func CompileScenarioEvent(ef ScenarioEventFile) (*scenario.Event, error) {
	return compileScenarioEvent(ef)
}

// PolicyFile is one agent's four decision trees plus its Queue 1
// ordering strategy.
type PolicyFile struct {
	AgentID                 string    `yaml:"agent_id" validate:"required"`
	Queue1Ordering          string    `yaml:"queue1_ordering" validate:"omitempty,oneof=fifo priority_deadline"`
	BankTree                *NodeFile `yaml:"bank_tree"`
	StrategicCollateralTree *NodeFile `yaml:"strategic_collateral_tree"`
	PaymentTree             *NodeFile `yaml:"payment_tree"`
	EndOfTickCollateralTree *NodeFile `yaml:"end_of_tick_collateral_tree"`
}

// NodeFile is either a condition fork (cond/if_true/if_false) or an
// action leaf, mirroring policy.Node's tagged-union shape in YAML.
type NodeFile struct {
	Cond    *ExprFile   `yaml:"cond"`
	IfTrue  *NodeFile   `yaml:"if_true"`
	IfFalse *NodeFile   `yaml:"if_false"`
	Action  *ActionFile `yaml:"action"`
}

// ExprFile mirrors policy.Expr's tagged-union shape in YAML. Exactly one
// of field/value/param/state/not/op should be set per node.
type ExprFile struct {
	Field string   `yaml:"field"`
	Value *float64 `yaml:"value"`
	Param string   `yaml:"param"`
	State string   `yaml:"state"`

	Not *ExprFile `yaml:"not"`

	Op    string    `yaml:"op"`
	Left  *ExprFile `yaml:"left"`
	Right *ExprFile `yaml:"right"`
}

// ActionFile mirrors policy.Action's tagged-union shape in YAML. Only the
// fields relevant to Kind need be set.
type ActionFile struct {
	Kind string `yaml:"kind" validate:"required"`

	PriorityOverride *int `yaml:"priority_override"`
	NumSplits        int  `yaml:"num_splits"`

	CollateralAmount *ExprFile `yaml:"collateral_amount"`
	TimerTicks       int       `yaml:"timer_ticks"`

	BudgetAmount             *ExprFile `yaml:"budget_amount"`
	FocusCounterparty        string    `yaml:"focus_counterparty"`
	PerCounterpartyLimitExpr *ExprFile `yaml:"per_counterparty_limit"`

	RegisterName string    `yaml:"register_name"`
	RegisterExpr *ExprFile `yaml:"register_expr"`
}

// Load reads a .env file (if present), reads and validates the scenario
// YAML at path, and compiles it into a simcore.Config ready for
// simcore.New.
func Load(path string) (simcore.Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return simcore.Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return simcore.Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if seedOverride := os.Getenv("SIMCASH_SEED"); seedOverride != "" {
		var seed uint64
		if _, err := fmt.Sscanf(seedOverride, "%d", &seed); err == nil {
			f.Seed = seed
		}
	}

	if err := validator.New().Validate(f); err != nil {
		return simcore.Config{}, fmt.Errorf("config: %w", err)
	}

	return Compile(f)
}

// Compile translates an already-parsed File into a simcore.Config,
// converting every decimal-string amount to exact cents and every
// tagged-union YAML node into its policy.Node/Expr/Action counterpart.
func Compile(f File) (simcore.Config, error) {
	agents := make([]simcore.AgentConfig, 0, len(f.Agents))
	for _, af := range f.Agents {
		ac, err := compileAgent(af)
		if err != nil {
			return simcore.Config{}, err
		}
		agents = append(agents, ac)
	}

	policies := make(map[string]*policy.Policy, len(f.Policies))
	for name, pf := range f.Policies {
		p, err := compilePolicy(pf)
		if err != nil {
			return simcore.Config{}, fmt.Errorf("config: policy %q: %w", name, err)
		}
		policies[pf.AgentID] = p
	}

	arrivalConfigs := make([]*arrivals.AgentArrivalConfig, 0, len(f.Arrivals))
	for _, arf := range f.Arrivals {
		arrivalConfigs = append(arrivalConfigs, compileArrival(arf))
	}

	events := make([]*scenario.Event, 0, len(f.Events))
	for _, ef := range f.Events {
		ev, err := compileScenarioEvent(ef)
		if err != nil {
			return simcore.Config{}, fmt.Errorf("config: scenario event %q: %w", ef.ID, err)
		}
		events = append(events, ev)
	}

	costRates, err := compileCostRates(f.CostRates)
	if err != nil {
		return simcore.Config{}, err
	}
	costConfig, err := compileCostConfig(f.CostConfig, f.TicksPerDay)
	if err != nil {
		return simcore.Config{}, err
	}

	return simcore.Config{
		Seed:                       f.Seed,
		TicksPerDay:                f.TicksPerDay,
		EpisodeEndTick:             f.EpisodeEndTick,
		Agents:                     agents,
		Policies:                   policies,
		PolicyParams:               map[string]float64{},
		CostRates:                  costRates,
		CostConfig:                 costConfig,
		ArrivalConfigs:             arrivalConfigs,
		ScenarioEvents:             events,
		EODRushThreshold:           f.EODRushThreshold,
		DeferDeferredCrediting:     f.DeferDeferredCrediting,
		EntryDispositionOffsetting: f.EntryDispositionOffsetting,
		MaxCyclesPerTick:           f.MaxCyclesPerTick,
	}, nil
}

func parseAmountOrZero(s string) (domain.Cents, error) {
	if s == "" {
		return 0, nil
	}
	return moneyfmt.ParseAmount(s)
}

func compileAgent(af AgentFile) (simcore.AgentConfig, error) {
	balance, err := moneyfmt.ParseAmount(af.Balance)
	if err != nil {
		return simcore.AgentConfig{}, fmt.Errorf("agent %q: %w", af.ID, err)
	}
	posted, err := parseAmountOrZero(af.PostedCollateral)
	if err != nil {
		return simcore.AgentConfig{}, fmt.Errorf("agent %q: %w", af.ID, err)
	}
	unsecured, err := parseAmountOrZero(af.UnsecuredCap)
	if err != nil {
		return simcore.AgentConfig{}, fmt.Errorf("agent %q: %w", af.ID, err)
	}
	maxCap, err := parseAmountOrZero(af.MaxCollateralCapacity)
	if err != nil {
		return simcore.AgentConfig{}, fmt.Errorf("agent %q: %w", af.ID, err)
	}

	var bilateral map[string]*domain.BilateralLimit
	if len(af.BilateralLimits) > 0 {
		bilateral = make(map[string]*domain.BilateralLimit, len(af.BilateralLimits))
		for cp, lf := range af.BilateralLimits {
			cap, err := moneyfmt.ParseAmount(lf.Cap)
			if err != nil {
				return simcore.AgentConfig{}, fmt.Errorf("agent %q: bilateral limit %q: %w", af.ID, cp, err)
			}
			bilateral[cp] = &domain.BilateralLimit{Cap: cap}
		}
	}

	var multilateral *domain.BilateralLimit
	if af.MultilateralLimit != nil {
		cap, err := moneyfmt.ParseAmount(af.MultilateralLimit.Cap)
		if err != nil {
			return simcore.AgentConfig{}, fmt.Errorf("agent %q: multilateral limit: %w", af.ID, err)
		}
		multilateral = &domain.BilateralLimit{Cap: cap}
	}

	var pool *domain.LiquidityPool
	if af.LiquidityPool != nil {
		poolAmt, err := moneyfmt.ParseAmount(af.LiquidityPool.Pool)
		if err != nil {
			return simcore.AgentConfig{}, fmt.Errorf("agent %q: liquidity pool: %w", af.ID, err)
		}
		costPerTick, err := parseAmountOrZero(af.LiquidityPool.CostPerTick)
		if err != nil {
			return simcore.AgentConfig{}, fmt.Errorf("agent %q: liquidity pool: %w", af.ID, err)
		}
		pool = &domain.LiquidityPool{
			Pool:               poolAmt,
			AllocationFraction: af.LiquidityPool.AllocationFraction,
			CostPerTick:        costPerTick,
		}
	}

	return simcore.AgentConfig{
		ID:                    af.ID,
		Balance:               balance,
		PostedCollateral:      posted,
		CollateralHaircut:     af.CollateralHaircut,
		UnsecuredCap:          unsecured,
		MaxCollateralCapacity: maxCap,
		BilateralLimits:       bilateral,
		MultilateralLimit:     multilateral,
		LiquidityPool:         pool,
	}, nil
}

func compileCostRates(cf CostRatesFile) (policy.CostRatesView, error) {
	delay, err := parseAmountOrZero(cf.DelayPerTick)
	if err != nil {
		return policy.CostRatesView{}, err
	}
	deadline, err := parseAmountOrZero(cf.DeadlinePenalty)
	if err != nil {
		return policy.CostRatesView{}, err
	}
	return policy.CostRatesView{
		DelayPerTick:    delay,
		DeadlinePenalty: deadline,
		OverdraftBps:    cf.OverdraftBps,
	}, nil
}

func compileCostConfig(cf CostConfigFile, ticksPerDay int64) (costs.Config, error) {
	delay, err := parseAmountOrZero(cf.DelayPerTick)
	if err != nil {
		return costs.Config{}, err
	}
	deadline, err := parseAmountOrZero(cf.DeadlinePenalty)
	if err != nil {
		return costs.Config{}, err
	}
	eod, err := parseAmountOrZero(cf.EODUnsettledPenalty)
	if err != nil {
		return costs.Config{}, err
	}
	return costs.Config{
		TicksPerDay:              ticksPerDay,
		OverdraftBps:             cf.OverdraftBps,
		CollateralOpportunityBps: cf.CollateralOpportunityBps,
		DelayPerTick:             delay,
		DeadlinePenalty:          deadline,
		OverdueDelayMultiplier:   cf.OverdueDelayMultiplier,
		SplitFrictionBps:         cf.SplitFrictionBps,
		EODUnsettledPenalty:      eod,
	}, nil
}

func compileArrival(af ArrivalFile) *arrivals.AgentArrivalConfig {
	bands := make([]arrivals.PriorityBand, 0, len(af.PriorityBands))
	for _, bf := range af.PriorityBands {
		bands = append(bands, arrivals.PriorityBand{Name: bf.Name, Weight: bf.Weight, Priority: bf.Priority})
	}
	return &arrivals.AgentArrivalConfig{
		AgentID:             af.AgentID,
		Lambda:              af.Lambda,
		CounterpartyWeights: af.CounterpartyWeights,
		Amount:              arrivals.AmountDist{Mu: af.AmountMu, Sigma: af.AmountSigma},
		Deadline:            arrivals.DeadlineWindow{MinTicks: af.DeadlineMinTicks, MaxTicks: af.DeadlineMaxTicks},
		PriorityBands:       bands,
		Divisible:           af.Divisible,
		CapDeadlineAtEOD:    af.CapDeadlineAtEOD,
	}
}

var scheduleKinds = map[string]scenario.ScheduleKind{
	"one_time":                scenario.OneTime,
	"repeating":               scenario.Repeating,
	"probabilistic_one_time":  scenario.ProbabilisticOneTime,
	"probabilistic_repeating": scenario.ProbabilisticRepeating,
}

var eventKinds = map[string]scenario.EventKind{
	"custom_transaction_arrival": scenario.KindCustomTransactionArrival,
	"direct_transfer":            scenario.KindDirectTransfer,
	"collateral_adjustment":      scenario.KindCollateralAdjustment,
	"global_arrival_rate_change": scenario.KindGlobalArrivalRateChange,
	"agent_arrival_rate_change":  scenario.KindAgentArrivalRateChange,
	"counterparty_weight_change": scenario.KindCounterpartyWeightChange,
	"deadline_window_change":     scenario.KindDeadlineWindowChange,
}

func compileScenarioEvent(ef ScenarioEventFile) (*scenario.Event, error) {
	schedule, ok := scheduleKinds[ef.Schedule]
	if !ok {
		return nil, fmt.Errorf("unknown schedule %q", ef.Schedule)
	}
	kind, ok := eventKinds[ef.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q", ef.Kind)
	}
	amount, err := parseAmountOrZero(ef.Amount)
	if err != nil {
		return nil, err
	}
	delta, err := parseAmountOrZero(ef.Delta)
	if err != nil {
		return nil, err
	}
	return &scenario.Event{
		ID: ef.ID, Schedule: schedule, AtTick: ef.AtTick,
		IntervalTick: ef.IntervalTick, Probability: ef.Probability,
		Kind:         kind,
		SenderID:     ef.SenderID, ReceiverID: ef.ReceiverID, Amount: amount,
		DeadlineTick: ef.DeadlineTick, Priority: ef.Priority, Divisible: ef.Divisible,
		AgentID: ef.AgentID, Delta: delta,
		NewGlobalMultiplier: ef.NewGlobalMultiplier, NewLambda: ef.NewLambda,
		Counterparty: ef.Counterparty, NewWeight: ef.NewWeight,
		NewMinTicks: ef.NewMinTicks, NewMaxTicks: ef.NewMaxTicks,
	}, nil
}

var queue1Orderings = map[string]policy.Queue1OrderingStrategy{
	"":                  policy.OrderingFIFO,
	"fifo":              policy.OrderingFIFO,
	"priority_deadline": policy.OrderingPriorityDeadline,
}

func compilePolicy(pf PolicyFile) (*policy.Policy, error) {
	ordering, ok := queue1Orderings[pf.Queue1Ordering]
	if !ok {
		return nil, fmt.Errorf("unknown queue1_ordering %q", pf.Queue1Ordering)
	}

	bankTree, err := compileNode(pf.BankTree)
	if err != nil {
		return nil, fmt.Errorf("bank_tree: %w", err)
	}
	strategicTree, err := compileNode(pf.StrategicCollateralTree)
	if err != nil {
		return nil, fmt.Errorf("strategic_collateral_tree: %w", err)
	}
	paymentTree, err := compileNode(pf.PaymentTree)
	if err != nil {
		return nil, fmt.Errorf("payment_tree: %w", err)
	}
	eotTree, err := compileNode(pf.EndOfTickCollateralTree)
	if err != nil {
		return nil, fmt.Errorf("end_of_tick_collateral_tree: %w", err)
	}

	p := &policy.Policy{
		AgentID:                 pf.AgentID,
		BankTree:                bankTree,
		StrategicCollateralTree: strategicTree,
		PaymentTree:             paymentTree,
		EndOfTickCollateralTree: eotTree,
		Queue1Ordering:          ordering,
	}
	if err := policy.ValidatePolicy(p); err != nil {
		return nil, err
	}
	return p, nil
}

func compileNode(nf *NodeFile) (*policy.Node, error) {
	if nf == nil {
		return nil, nil
	}
	if nf.Action != nil {
		action, err := compileAction(nf.Action)
		if err != nil {
			return nil, err
		}
		return policy.Leaf(action), nil
	}
	if nf.Cond == nil {
		return nil, fmt.Errorf("node has neither action nor cond")
	}
	cond, err := compileExpr(nf.Cond)
	if err != nil {
		return nil, err
	}
	ifTrue, err := compileNode(nf.IfTrue)
	if err != nil {
		return nil, err
	}
	ifFalse, err := compileNode(nf.IfFalse)
	if err != nil {
		return nil, err
	}
	return policy.Condition(cond, ifTrue, ifFalse), nil
}

var binOps = map[string]policy.BinOp{
	"<": policy.OpLT, "<=": policy.OpLE, ">": policy.OpGT, ">=": policy.OpGE,
	"=": policy.OpEQ, "!=": policy.OpNE, "and": policy.OpAnd, "or": policy.OpOr,
	"+": policy.OpAdd, "-": policy.OpSub, "*": policy.OpMul, "/": policy.OpDiv, "mod": policy.OpMod,
}

func compileExpr(ef *ExprFile) (*policy.Expr, error) {
	if ef == nil {
		return nil, fmt.Errorf("nil expression")
	}
	switch {
	case ef.Field != "":
		return policy.Field(ef.Field), nil
	case ef.Value != nil:
		return policy.Value(*ef.Value), nil
	case ef.Param != "":
		return policy.Param(ef.Param), nil
	case ef.State != "":
		return policy.State(ef.State), nil
	case ef.Not != nil:
		operand, err := compileExpr(ef.Not)
		if err != nil {
			return nil, err
		}
		return policy.Not(operand), nil
	case ef.Op != "":
		op, ok := binOps[ef.Op]
		if !ok {
			return nil, fmt.Errorf("unknown operator %q", ef.Op)
		}
		left, err := compileExpr(ef.Left)
		if err != nil {
			return nil, err
		}
		right, err := compileExpr(ef.Right)
		if err != nil {
			return nil, err
		}
		return policy.Bin(op, left, right), nil
	default:
		return nil, fmt.Errorf("expression has no recognized variant set")
	}
}

var actionKinds = map[string]policy.ActionKind{
	"submit": policy.ActionSubmit, "hold": policy.ActionHold, "split": policy.ActionSplit,
	"drop": policy.ActionDrop, "reprioritize": policy.ActionReprioritize,
	"post_collateral": policy.ActionPostCollateral, "withdraw_collateral": policy.ActionWithdrawCollateral,
	"set_release_budget": policy.ActionSetReleaseBudget, "modify_release_budget": policy.ActionModifyReleaseBudget,
	"set_state_register": policy.ActionSetStateRegister, "modify_state_register": policy.ActionModifyStateRegister,
}

func compileAction(af *ActionFile) (*policy.Action, error) {
	kind, ok := actionKinds[af.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown action kind %q", af.Kind)
	}
	a := &policy.Action{
		Kind:              kind,
		PriorityOverride:  af.PriorityOverride,
		NumSplits:         af.NumSplits,
		TimerTicks:        af.TimerTicks,
		FocusCounterparty: af.FocusCounterparty,
		RegisterName:      af.RegisterName,
	}
	if af.CollateralAmount != nil {
		e, err := compileExpr(af.CollateralAmount)
		if err != nil {
			return nil, fmt.Errorf("collateral_amount: %w", err)
		}
		a.CollateralAmount = *e
	}
	if af.BudgetAmount != nil {
		e, err := compileExpr(af.BudgetAmount)
		if err != nil {
			return nil, fmt.Errorf("budget_amount: %w", err)
		}
		a.BudgetAmount = *e
	}
	if af.PerCounterpartyLimitExpr != nil {
		e, err := compileExpr(af.PerCounterpartyLimitExpr)
		if err != nil {
			return nil, fmt.Errorf("per_counterparty_limit: %w", err)
		}
		a.PerCounterpartyLimitExpr = e
	}
	if af.RegisterExpr != nil {
		e, err := compileExpr(af.RegisterExpr)
		if err != nil {
			return nil, fmt.Errorf("register_expr: %w", err)
		}
		a.RegisterExpr = *e
	}
	return a, nil
}
