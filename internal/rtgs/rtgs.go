// Package rtgs implements the central gross-settlement engine: Queue 2,
// atomic per-transaction settlement, and FIFO retry (spec C7, §4.6).
package rtgs

import (
	"simcash/internal/domain"
	"simcash/internal/events"
)

// Engine performs atomic settlement attempts against a shared
// SimulationState and emits events for every outcome.
type Engine struct {
	state *domain.SimulationState
	// OffsetEntryDisposition nets an incoming submission against any
	// already-pending opposite-direction transaction between the same
	// two counterparties before attempting gross settlement (spec §4.6,
	// "entry disposition offsetting").
	OffsetEntryDisposition bool
}

// New constructs a settlement engine bound to a simulation's state.
func New(state *domain.SimulationState, offsetEntryDisposition bool) *Engine {
	return &Engine{state: state, OffsetEntryDisposition: offsetEntryDisposition}
}

// Submit attempts to settle a transaction atomically: debit the sender and
// credit the receiver (or defer the credit, per deferCredit) in a single
// step if the sender can pay; otherwise the transaction is enqueued onto
// Queue 2 (spec §4.6, §3).
func (e *Engine) Submit(txID string, deferCredit bool) error {
	tick := e.state.CurrentTick()
	tx, err := e.state.Transaction(txID)
	if err != nil {
		return err
	}

	if e.OffsetEntryDisposition {
		e.offsetAgainstPending(tx)
		if tx.RemainingAmount == 0 {
			return nil
		}
	}

	sender, err := e.state.Agent(tx.SenderID)
	if err != nil {
		return err
	}

	if sender.CanPay(tx.RemainingAmount) {
		e.settle(tx, sender, deferCredit, tick)
		return nil
	}

	e.enqueue(tx, tick)
	return nil
}

// ProcessQueue walks Queue 2 once in FIFO order, attempting to settle each
// transaction in turn. A transaction whose settlement would exceed the
// sender's configured bilateral or multilateral cap stays queued, and the
// amounts it settles count against those caps. This is LSM Algorithm 1 and
// is also what the RTGS stage itself runs every tick before LSM (spec
// §4.6, §4.8 Algorithm 1).
func (e *Engine) ProcessQueue(deferCredit bool) (settled int, err error) {
	tick := e.state.CurrentTick()
	for _, txID := range e.state.RTGSQueue() {
		tx, err := e.state.Transaction(txID)
		if err != nil {
			continue
		}
		if tx.RemainingAmount == 0 {
			continue
		}
		sender, err := e.state.Agent(tx.SenderID)
		if err != nil {
			continue
		}
		amount := tx.RemainingAmount
		if !sender.CanUseBilateral(tx.ReceiverID, amount) || !sender.CanUseMultilateral(amount) {
			continue
		}
		if sender.CanPay(amount) {
			e.state.DequeueRTGS(txID)
			e.settle(tx, sender, deferCredit, tick)
			sender.UseBilateral(tx.ReceiverID, amount)
			sender.UseMultilateral(amount)
			settled++
		}
	}
	return settled, nil
}

func (e *Engine) settle(tx *domain.Transaction, sender *domain.Agent, deferCredit bool, tick int64) {
	amount := tx.RemainingAmount
	fromQueue2 := tx.RTGSSubmissionTick != nil
	wasOverdue := tx.Status == domain.StatusOverdue
	sender.Balance -= amount
	if deferCredit {
		e.state.AddDeferredCredit(tx.ReceiverID, amount)
	} else if receiver, err := e.state.Agent(tx.ReceiverID); err == nil {
		receiver.Balance += amount
	}
	tx.RemainingAmount = 0
	tx.Status = domain.StatusSettled
	st := tick
	tx.SettlementTick = &st
	if wasOverdue {
		e.state.Events().Append(tick, events.KindOverdueTransactionSettled, events.OverdueTransactionSettledPayload{
			TxID: tx.ID, AgentID: tx.SenderID,
		})
	}

	if fromQueue2 {
		e.state.Events().Append(tick, events.KindQueue2LiquidityRelease, events.Queue2LiquidityReleasePayload{
			TxID: tx.ID, SenderID: tx.SenderID, ReceiverID: tx.ReceiverID, Amount: amount,
		})
		return
	}
	e.state.Events().Append(tick, events.KindRtgsImmediateSettlement, events.RtgsImmediateSettlementPayload{
		TxID: tx.ID, SenderID: tx.SenderID, ReceiverID: tx.ReceiverID, Amount: amount, SettlementTick: tick,
	})
}

func (e *Engine) enqueue(tx *domain.Transaction, tick int64) {
	e.state.EnqueueRTGS(tx.ID)
	st := tick
	tx.RTGSSubmissionTick = &st
	e.state.Events().Append(tick, events.KindQueuedRtgs, events.QueuedRtgsPayload{
		TxID: tx.ID, SenderID: tx.SenderID, RTGSSubmissionTick: tick,
	})
}

// offsetAgainstPending nets tx against the oldest opposite-direction
// transaction already sitting in Queue 2 between the same two agents,
// reducing both sides' RemainingAmount by the common amount (spec §4.6).
func (e *Engine) offsetAgainstPending(tx *domain.Transaction) {
	for _, otherID := range e.state.RTGSQueue() {
		if otherID == tx.ID {
			continue
		}
		other, err := e.state.Transaction(otherID)
		if err != nil {
			continue
		}
		if other.SenderID != tx.ReceiverID || other.ReceiverID != tx.SenderID {
			continue
		}
		if other.RemainingAmount == 0 {
			continue
		}
		net := tx.RemainingAmount
		if other.RemainingAmount < net {
			net = other.RemainingAmount
		}
		txWasOverdue := tx.Status == domain.StatusOverdue
		otherWasOverdue := other.Status == domain.StatusOverdue
		tx.RemainingAmount -= net
		other.RemainingAmount -= net
		tick := e.state.CurrentTick()
		if tx.RemainingAmount == 0 {
			tx.Status = domain.StatusSettled
			st := tick
			tx.SettlementTick = &st
			if txWasOverdue {
				e.state.Events().Append(tick, events.KindOverdueTransactionSettled, events.OverdueTransactionSettledPayload{
					TxID: tx.ID, AgentID: tx.SenderID,
				})
			}
		}
		if other.RemainingAmount == 0 {
			e.state.DequeueRTGS(other.ID)
			other.Status = domain.StatusSettled
			st := tick
			other.SettlementTick = &st
			if otherWasOverdue {
				e.state.Events().Append(tick, events.KindOverdueTransactionSettled, events.OverdueTransactionSettledPayload{
					TxID: other.ID, AgentID: other.SenderID,
				})
			}
		}
		e.state.Events().Append(tick, events.KindEntryDispositionOffset, events.EntryDispositionOffsetPayload{
			TxID: tx.ID, OffsettingTxID: other.ID, SenderID: tx.SenderID, ReceiverID: tx.ReceiverID, NetAmount: net,
		})
		return
	}
}
