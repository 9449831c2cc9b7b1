package policy

import "simcash/pkg/errors"

// Context is the concrete, enumerated evaluation context the DSL binds
// against (spec §6). It replaces the source's duck-typed ~50-key dict
// with a table keyed by the exact advertised field names; any name not in
// the table fails validation with errors.ErrUnknownField rather than
// silently returning zero (spec §9, "duck-typed policy context").
type Context struct {
	fields map[string]float64
}

// NewContext builds an empty context; fields are populated with Set.
func NewContext() *Context {
	return &Context{fields: make(map[string]float64, 64)}
}

// Set assigns a field's value. Only names present in KnownFields should
// ever be set; this is enforced by the typed builder functions in
// builder.go, not by Set itself.
func (c *Context) Set(name string, v float64) { c.fields[name] = v }

// SetBool stores a boolean field as 0.0/1.0, per the algebra's
// single-typed surface (spec §4.4: "Boolean fields surface as 0.0/1.0").
func (c *Context) SetBool(name string, v bool) {
	if v {
		c.fields[name] = 1.0
	} else {
		c.fields[name] = 0.0
	}
}

// Get resolves a field(name) lookup, failing with ErrUnknownField for any
// name the context builder did not populate.
func (c *Context) Get(name string) (float64, error) {
	v, ok := c.fields[name]
	if !ok {
		return 0, errors.Wrap(errors.ErrUnknownField, name)
	}
	return v, nil
}

// KnownFields is the full, fixed surface the DSL validator checks
// field(name) references against (spec §6). Extending this list is the
// only sanctioned way to add a field: "Implementations may extend with
// additional fields provided the DSL validator rejects any not
// advertised."
var KnownFields = map[string]bool{
	// tx.*
	"tx.amount": true, "tx.remaining_amount": true, "tx.priority": true,
	"tx.deadline_tick": true, "tx.arrival_tick": true, "tx.ticks_until_deadline": true,
	"tx.is_overdue": true, "tx.is_divisible": true,
	// agent.*
	"agent.balance": true, "agent.available_liquidity": true, "agent.posted_collateral": true,
	"agent.max_collateral_capacity": true, "agent.remaining_collateral_capacity": true,
	"agent.unsecured_cap": true, "agent.credit_limit": true, "agent.queue1_size": true,
	"agent.queue1_value": true, "agent.release_budget_remaining": true,
	// system.*
	"system.current_tick": true, "system.current_day": true, "system.tick_within_day": true,
	"system.ticks_until_eod": true, "system.eod_rush_active": true, "system.queue2_size": true,
	"system.queue2_value": true, "system.day_progress_fraction": true,
	// queue2.*
	"queue2.agent_count": true, "queue2.agent_value": true, "queue2.nearest_deadline": true,
	// costs.*
	"costs.delay_penalty_per_tick": true, "costs.deadline_penalty": true,
	"costs.overdraft_cost_bps": true, "costs.priority_delay_multiplier_for_this_tx": true,
	// incoming.*
	"incoming.expected_count": true, "incoming.expected_total_value": true,
	"incoming.expected_avg_value": true,
}
