package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"simcash/internal/events"
	"simcash/internal/middleware"
	"simcash/internal/simcore"
	"simcash/pkg/config"
	"simcash/pkg/errors"
	"simcash/pkg/moneyfmt"

	"github.com/gorilla/mux"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type tokenRequest struct {
	Operator string `json:"operator"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

type tokenResponse struct {
	Token  string `json:"token"`
	StepUp bool   `json:"step_up"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Operator == "" {
		writeError(w, http.StatusBadRequest, errors.New("operator is required"))
		return
	}
	if !s.checkOperatorPassword(req.Password) {
		writeError(w, http.StatusUnauthorized, errors.New("invalid operator credentials"))
		return
	}

	stepUp := req.TOTPCode != "" && s.verifyStepUp(req.TOTPCode)
	token, err := s.issueToken(req.Operator, stepUp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, StepUp: stepUp})
}

type agentBalanceResponse struct {
	AgentID            string `json:"agent_id"`
	Balance            string `json:"balance"`
	PostedCollateral   string `json:"posted_collateral"`
	AvailableLiquidity string `json:"available_liquidity"`
	Queue1Size         int    `json:"queue1_size"`
}

func (s *Server) handleAgentBalance(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]

	if resp, hit := s.cachedAgentBalance(r.Context(), agentID); hit {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	s.mu.Lock()
	snap, err := s.sim.Agent(agentID)
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	resp := agentBalanceResponse{
		AgentID:            snap.ID,
		Balance:            moneyfmt.FromCents(snap.Balance).StringFixed(2),
		PostedCollateral:   moneyfmt.FromCents(snap.PostedCollateral).StringFixed(2),
		AvailableLiquidity: moneyfmt.FromCents(snap.AvailableLiquidity).StringFixed(2),
		Queue1Size:         snap.Queue1Size,
	}
	s.storeAgentBalance(r.Context(), agentID, resp)
	writeJSON(w, http.StatusOK, resp)
}

type queue2EntryResponse struct {
	TxID            string `json:"tx_id"`
	SenderID        string `json:"sender_id"`
	ReceiverID      string `json:"receiver_id"`
	RemainingAmount string `json:"remaining_amount"`
	DeadlineTick    int64  `json:"deadline_tick"`
}

func (s *Server) handleQueue2(w http.ResponseWriter, r *http.Request) {
	if out, hit := s.cachedQueue2(r.Context()); hit {
		writeJSON(w, http.StatusOK, out)
		return
	}

	s.mu.Lock()
	entries, err := s.sim.Queue2()
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]queue2EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, queue2EntryResponse{
			TxID:            e.TxID,
			SenderID:        e.SenderID,
			ReceiverID:      e.ReceiverID,
			RemainingAmount: moneyfmt.FromCents(e.RemainingAmount).StringFixed(2),
			DeadlineTick:    e.DeadlineTick,
		})
	}
	s.storeQueue2(r.Context(), out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	tickParam := r.URL.Query().Get("tick")
	if tickParam == "" {
		writeError(w, http.StatusBadRequest, errors.New("tick query parameter is required"))
		return
	}
	tick, err := strconv.ParseInt(tickParam, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("tick must be an integer"))
		return
	}

	s.mu.Lock()
	evts := s.sim.EventsAtTick(tick)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, renderEvents(evts))
}

type tickResponse struct {
	Tick               int64 `json:"tick"`
	Day                int64 `json:"day"`
	EventsEmitted      int   `json:"events_emitted"`
	NumArrivals        int   `json:"num_arrivals"`
	SettledCount       int   `json:"settled_count"`
	Queue2Size         int   `json:"queue2_size"`
	TotalCostsThisTick int64 `json:"total_costs_this_tick"`
	EndOfDay           bool  `json:"end_of_day"`
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	operator, _ := middleware.OperatorFromContext(r.Context())

	if r.URL.Query().Get("force") == "true" && !s.verifyStepUp(r.Header.Get("X-Step-Up-Code")) {
		writeError(w, http.StatusForbidden, errors.New("a valid X-Step-Up-Code is required for a forced tick"))
		return
	}

	s.mu.Lock()
	beforeLen := s.sim.EventLogLen()
	result, err := s.sim.Tick()
	var tickEvents []byte
	if err == nil {
		s.bumpCacheGeneration()
		tickEvents, _ = json.Marshal(renderEvents(s.sim.EventsAtTick(result.Tick)))
		if s.store != nil || s.archiver != nil {
			s.persistTick(r.Context(), s.sim.EventsSince(beforeLen), s.sim.Checkpoint())
		}
	}
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.log.Info("tick advanced", map[string]interface{}{
		"operator": operator,
		"tick":     result.Tick,
		"settled":  result.SettledCount,
	})

	s.hub.broadcastRaw(tickEvents)

	writeJSON(w, http.StatusOK, tickResponse{
		Tick:               result.Tick,
		Day:                result.Day,
		EventsEmitted:      result.EventsEmitted,
		NumArrivals:        result.NumArrivals,
		SettledCount:       result.SettledCount,
		Queue2Size:         result.Queue2Size,
		TotalCostsThisTick: result.TotalCostsThisTick,
		EndOfDay:           result.EndOfDay,
	})
}

// persistTick appends this tick's events and its checkpoint to the
// configured store. Failures are logged, not surfaced to the caller: a
// persistence outage must not block the simulation from advancing.
func (s *Server) persistTick(ctx context.Context, evts []events.Event, cp *simcore.Checkpoint) {
	if s.store != nil {
		for _, e := range evts {
			seq := s.nextSeq
			s.nextSeq++
			if err := s.store.AppendEvent(ctx, s.runID, seq, e); err != nil {
				s.log.Warn("failed to persist event", map[string]interface{}{"error": err.Error()})
			}
		}
		if err := s.store.SaveCheckpoint(ctx, s.runID, cp); err != nil {
			s.log.Warn("failed to persist checkpoint", map[string]interface{}{"error": err.Error()})
		}
	}
	if s.archiver != nil {
		if err := s.archiver.UploadEvents(ctx, evts); err != nil {
			s.log.Warn("failed to archive events", map[string]interface{}{"error": err.Error()})
		}
		if err := s.archiver.UploadCheckpoint(ctx, cp); err != nil {
			s.log.Warn("failed to archive checkpoint", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (s *Server) handleScenarioEvent(w http.ResponseWriter, r *http.Request) {
	var ef config.ScenarioEventFile
	if err := json.NewDecoder(r.Body).Decode(&ef); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ev, err := config.CompileScenarioEvent(ef)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	s.sim.AddScenarioEvent(ev)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{"id": ev.ID})
}
