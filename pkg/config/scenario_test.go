package config

import (
	"os"
	"path/filepath"
	"testing"

	"simcash/internal/domain"
	"simcash/internal/policy"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
seed: 42
ticks_per_day: 480
episode_end_tick: 4800
eod_rush_threshold: 20
max_cycles_per_tick: 4
defer_deferred_crediting: true

cost_rates:
  delay_per_tick: "0.01"
  deadline_penalty: "5.00"
  overdraft_bps: 50

cost_config:
  overdraft_bps: 50
  delay_per_tick: "0.01"
  deadline_penalty: "5.00"
  eod_unsettled_penalty: "10.00"

agents:
  - id: bank_a
    balance: "1000000.00"
    posted_collateral: "50000.00"
    collateral_haircut: 0.1
    unsecured_cap: "10000.00"
    policy: policy_a
  - id: bank_b
    balance: "1000000.00"

policies:
  policy_a:
    agent_id: bank_a
    queue1_ordering: priority_deadline
    bank_tree:
      action:
        kind: set_release_budget
        budget_amount:
          value: 100000
    payment_tree:
      cond:
        op: ">"
        left:
          field: tx.remaining_amount
        right:
          value: 0
      if_true:
        action:
          kind: submit
      if_false:
        action:
          kind: hold

arrivals:
  - agent_id: bank_a
    lambda: 0.5
    amount_mu: 9.0
    amount_sigma: 0.5
    deadline_min_ticks: 5
    deadline_max_ticks: 50
    priority_bands:
      - name: normal
        weight: 1.0
        priority: 1

scenario_events:
  - id: evt1
    schedule: one_time
    at_tick: 100
    kind: collateral_adjustment
    agent_id: bank_a
    delta: "-1000.00"
`

func writeSampleFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoad_ParsesAndCompilesScenario(t *testing.T) {
	path := writeSampleFile(t)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, uint64(42), cfg.Seed)
	require.Equal(t, int64(480), cfg.TicksPerDay)
	require.Len(t, cfg.Agents, 2)
	require.Equal(t, domain.Cents(100000000), cfg.Agents[0].Balance)
	require.Equal(t, domain.Cents(5000000), cfg.Agents[0].PostedCollateral)

	p, ok := cfg.Policies["bank_a"]
	require.True(t, ok)
	require.Equal(t, policy.OrderingPriorityDeadline, p.Queue1Ordering)
	require.NotNil(t, p.BankTree)
	require.NotNil(t, p.PaymentTree)

	require.Len(t, cfg.ArrivalConfigs, 1)
	require.Equal(t, "bank_a", cfg.ArrivalConfigs[0].AgentID)

	require.Len(t, cfg.ScenarioEvents, 1)
	require.Equal(t, "evt1", cfg.ScenarioEvents[0].ID)
	require.Equal(t, domain.Cents(-100000), cfg.ScenarioEvents[0].Delta)
}

const badPolicyYAML = `
seed: 1
ticks_per_day: 10
episode_end_tick: 100
max_cycles_per_tick: 4

agents:
  - id: bank_a
    balance: "100.00"

policies:
  policy_a:
    agent_id: bank_a
    payment_tree:
      cond:
        op: ">"
        left:
          field: tx.nonexistent_field
        right:
          value: 0
      if_true:
        action:
          kind: submit
      if_false:
        action:
          kind: hold
`

func TestLoad_RejectsInvalidPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(badPolicyYAML), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
