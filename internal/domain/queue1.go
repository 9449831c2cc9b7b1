package domain

// AppendToQueue1 adds a transaction id to the end of an agent's Queue 1
// (arrival order). Callers enforce the transaction's status invariants.
func (s *SimulationState) AppendToQueue1(agentID, txID string) error {
	a, err := s.Agent(agentID)
	if err != nil {
		return err
	}
	a.OutgoingQueue = append(a.OutgoingQueue, txID)
	return nil
}

// RemoveFromQueue1 removes the first occurrence of txID from the agent's
// Queue 1, e.g. on release to Queue 2, split, or drop.
func (s *SimulationState) RemoveFromQueue1(agentID, txID string) error {
	a, err := s.Agent(agentID)
	if err != nil {
		return err
	}
	for i, id := range a.OutgoingQueue {
		if id == txID {
			a.OutgoingQueue = append(a.OutgoingQueue[:i], a.OutgoingQueue[i+1:]...)
			return nil
		}
	}
	return nil
}

// ReplaceInQueue1 substitutes a transaction id for N replacement ids at
// the same position, preserving order — used by the split action (spec
// §4.4 step 4, §8 invariant #6).
func (s *SimulationState) ReplaceInQueue1(agentID, oldTxID string, newTxIDs []string) error {
	a, err := s.Agent(agentID)
	if err != nil {
		return err
	}
	for i, id := range a.OutgoingQueue {
		if id == oldTxID {
			tail := make([]string, len(a.OutgoingQueue[i+1:]))
			copy(tail, a.OutgoingQueue[i+1:])
			a.OutgoingQueue = append(a.OutgoingQueue[:i:i], newTxIDs...)
			a.OutgoingQueue = append(a.OutgoingQueue, tail...)
			return nil
		}
	}
	return nil
}

// Queue1Value sums RemainingAmount across an agent's Queue 1.
func (s *SimulationState) Queue1Value(agentID string) (Cents, error) {
	a, err := s.Agent(agentID)
	if err != nil {
		return 0, err
	}
	var total Cents
	for _, id := range a.OutgoingQueue {
		tx, ok := s.transactions[id]
		if !ok {
			continue
		}
		total += tx.RemainingAmount
	}
	return total, nil
}
