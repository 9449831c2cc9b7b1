// Package postgres persists simulation event logs and checkpoints to
// Postgres for runs driven through the control plane, grounded on the
// teacher's internal/repository/postgres sqlx-repository pattern.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"simcash/internal/events"
	"simcash/internal/simcore"
	pkgerrors "simcash/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store is the sqlx-backed repository for a single simulation run's event
// log and checkpoints. One Store serves many runs, distinguished by RunID.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an already-connected *sqlx.DB.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type eventRow struct {
	RunID    uuid.UUID `db:"run_id"`
	Seq      int64     `db:"seq"`
	Tick     int64     `db:"tick"`
	Kind     int       `db:"kind"`
	KindName string    `db:"kind_name"`
	Payload  []byte    `db:"payload"`
}

// AppendEvent persists a single event at the given sequence position
// within a run. Seq is caller-assigned (the event log's index) so replay
// can request events strictly in emission order via EventsSince.
func (s *Store) AppendEvent(ctx context.Context, runID uuid.UUID, seq int64, e events.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return pkgerrors.Wrap(err, "persistence: marshaling event payload")
	}
	row := eventRow{
		RunID:    runID,
		Seq:      seq,
		Tick:     e.Tick,
		Kind:     int(e.Kind),
		KindName: e.Kind.String(),
		Payload:  payload,
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO simulation_events (run_id, seq, tick, kind, kind_name, payload)
		VALUES (:run_id, :seq, :tick, :kind, :kind_name, :payload)
		ON CONFLICT (run_id, seq) DO NOTHING`, row)
	if err != nil {
		return pkgerrors.Wrap(err, "persistence: inserting event")
	}
	return nil
}

// decodePayload unmarshals raw into the concrete payload type that Kind
// carries and returns it as a Payload value (not a pointer), matching how
// every emitter in internal/ constructs payloads by value. Every Kind in
// kinds.go has an entry here since every Kind carries exactly one payload
// shape.
func decodePayload(k events.Kind, raw []byte) (events.Payload, error) {
	var p events.Payload
	switch k {
	case events.KindArrival:
		var v events.ArrivalPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindPolicySubmit:
		var v events.PolicySubmitPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindPolicyHold:
		var v events.PolicyHoldPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindPolicyDrop:
		var v events.PolicyDropPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindPolicySplit:
		var v events.PolicySplitPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindTransactionReprioritized:
		var v events.TransactionReprioritizedPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindRtgsImmediateSettlement:
		var v events.RtgsImmediateSettlementPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindQueuedRtgs:
		var v events.QueuedRtgsPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindQueue2LiquidityRelease:
		var v events.Queue2LiquidityReleasePayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindEntryDispositionOffset:
		var v events.EntryDispositionOffsetPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindLsmBilateralOffset:
		var v events.LsmBilateralOffsetPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindLsmCycleSettlement:
		var v events.LsmCycleSettlementPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindAlgorithmExecution:
		var v events.AlgorithmExecutionPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindCollateralPost:
		var v events.CollateralPostPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindCollateralWithdraw:
		var v events.CollateralWithdrawPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindCollateralTimerWithdrawn:
		var v events.CollateralTimerWithdrawnPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindCollateralTimerBlocked:
		var v events.CollateralTimerBlockedPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindCostAccrual:
		var v events.CostAccrualPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindTransactionWentOverdue:
		var v events.TransactionWentOverduePayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindOverdueTransactionSettled:
		var v events.OverdueTransactionSettledPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindDeferredCreditApplied:
		var v events.DeferredCreditAppliedPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindEndOfDay:
		var v events.EndOfDayPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindBilateralLimitExceeded:
		var v events.BilateralLimitExceededPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindMultilateralLimitExceeded:
		var v events.MultilateralLimitExceededPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindScenarioEventEvaluated:
		var v events.ScenarioEventEvaluatedPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindBankBudgetSet:
		var v events.BankBudgetSetPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindStateRegisterSet:
		var v events.StateRegisterSetPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case events.KindLiquidityAllocation:
		var v events.LiquidityAllocationPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return p, nil
	}
}

// EventsSince returns every event recorded for runID from seq (inclusive)
// onward, ordered by seq, the shape internal/events.EventLog.SinceIndex
// exposes in memory.
func (s *Store) EventsSince(ctx context.Context, runID uuid.UUID, seq int64) ([]events.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT run_id, seq, tick, kind, kind_name, payload
		FROM simulation_events
		WHERE run_id = $1 AND seq >= $2
		ORDER BY seq ASC`, runID, seq)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "persistence: querying events")
	}

	out := make([]events.Event, 0, len(rows))
	for _, r := range rows {
		kind := events.Kind(r.Kind)
		payload, err := decodePayload(kind, r.Payload)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "persistence: unmarshaling event payload")
		}
		out = append(out, events.Event{
			Tick:    r.Tick,
			Kind:    kind,
			Payload: payload,
		})
	}
	return out, nil
}

type checkpointRow struct {
	RunID    uuid.UUID `db:"run_id"`
	Tick     int64     `db:"tick"`
	Snapshot []byte    `db:"snapshot"`
}

// SaveCheckpoint upserts the snapshot for a run at a given tick.
func (s *Store) SaveCheckpoint(ctx context.Context, runID uuid.UUID, cp *simcore.Checkpoint) error {
	snapshot, err := json.Marshal(cp)
	if err != nil {
		return pkgerrors.Wrap(err, "persistence: marshaling checkpoint")
	}
	row := checkpointRow{RunID: runID, Tick: cp.Tick, Snapshot: snapshot}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO simulation_checkpoints (run_id, tick, snapshot)
		VALUES (:run_id, :tick, :snapshot)
		ON CONFLICT (run_id, tick) DO UPDATE SET snapshot = EXCLUDED.snapshot`, row)
	if err != nil {
		return pkgerrors.Wrap(err, "persistence: upserting checkpoint")
	}
	return nil
}

// LatestCheckpoint returns the most recent snapshot recorded for a run, or
// nil if the run has no checkpoints yet.
func (s *Store) LatestCheckpoint(ctx context.Context, runID uuid.UUID) (*simcore.Checkpoint, error) {
	var row checkpointRow
	err := s.db.GetContext(ctx, &row, `
		SELECT run_id, tick, snapshot
		FROM simulation_checkpoints
		WHERE run_id = $1
		ORDER BY tick DESC
		LIMIT 1`, runID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(err, "persistence: querying latest checkpoint")
	}

	var cp simcore.Checkpoint
	if err := json.Unmarshal(row.Snapshot, &cp); err != nil {
		return nil, pkgerrors.Wrap(err, "persistence: unmarshaling checkpoint")
	}
	return &cp, nil
}
