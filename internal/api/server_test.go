package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"simcash/internal/costs"
	"simcash/internal/policy"
	"simcash/internal/simcore"
	"simcash/pkg/logger"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func testSimulation(t *testing.T) *simcore.Simulation {
	t.Helper()
	cfg := simcore.Config{
		Seed:           1,
		TicksPerDay:    10,
		EpisodeEndTick: 100,
		Agents: []simcore.AgentConfig{
			{ID: "bank_a", Balance: 100000},
			{ID: "bank_b", Balance: 100000},
		},
		Policies: map[string]*policy.Policy{
			"bank_a": {
				AgentID:     "bank_a",
				PaymentTree: policy.Leaf(&policy.Action{Kind: policy.ActionSubmit}),
			},
		},
		PolicyParams:     map[string]float64{},
		CostConfig:       costs.Config{TicksPerDay: 10},
		MaxCyclesPerTick: 4,
	}
	sim, err := simcore.New(cfg)
	require.NoError(t, err)
	return sim
}

func testServer(t *testing.T) *Server {
	return NewServer(Config{
		Simulation: testSimulation(t),
		Logger:     logger.NewNop(),
		JWTSecret:  "test-secret",
	})
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleAgentBalance(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/agents/bank_a/balance", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp agentBalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "bank_a", resp.AgentID)
	require.Equal(t, "1000.00", resp.Balance)
}

func TestHandleAgentBalance_Unknown(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/agents/nobody/balance", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTick_RequiresAuth(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/tick", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleTick_WithToken(t *testing.T) {
	srv := testServer(t)
	token, err := srv.issueToken("operator1", false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/tick", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp tickResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.Tick)
}

func TestHandleScenarioEvent(t *testing.T) {
	srv := testServer(t)
	token, err := srv.issueToken("operator1", false)
	require.NoError(t, err)

	body := []byte(`{
		"id": "evt1",
		"schedule": "one_time",
		"at_tick": 5,
		"kind": "collateral_adjustment",
		"agent_id": "bank_a",
		"delta": "-10.00"
	}`)
	req := httptest.NewRequest(http.MethodPost, "/scenario-events", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestIssueToken_StepUp(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	srv := NewServer(Config{
		Simulation: testSimulation(t),
		Logger:     logger.NewNop(),
		JWTSecret:  "test-secret",
		TOTPKey:    secret,
	})

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	require.True(t, srv.verifyStepUp(code))
	require.False(t, srv.verifyStepUp("000000"))
}
