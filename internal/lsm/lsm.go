// Package lsm implements the liquidity savings mechanism: FIFO retry,
// bilateral offsetting, and multilateral cycle detection over Queue 2
// (spec C8, §4.8).
package lsm

import (
	"sort"

	"simcash/internal/domain"
	"simcash/internal/events"
	"simcash/internal/rtgs"
)

// Engine runs the three LSM algorithms, in order, once per tick.
type Engine struct {
	state            *domain.SimulationState
	rtgsEngine       *rtgs.Engine
	MaxCyclesPerTick int
}

// New constructs an LSM engine sharing the same state and RTGS engine the
// tick loop uses for ordinary settlement.
func New(state *domain.SimulationState, rtgsEngine *rtgs.Engine, maxCyclesPerTick int) *Engine {
	return &Engine{state: state, rtgsEngine: rtgsEngine, MaxCyclesPerTick: maxCyclesPerTick}
}

// Run executes Algorithm 1 (FIFO retry), Algorithm 2 (bilateral offset),
// then Algorithm 3 (multilateral cycle detection), in that fixed order,
// exactly once per tick (spec §4.8, §4.10 step 6).
func (e *Engine) Run(deferCredit bool) error {
	tick := e.state.CurrentTick()

	fifoSettled, err := e.rtgsEngine.ProcessQueue(deferCredit)
	if err != nil {
		return err
	}
	e.state.Events().Append(tick, events.KindAlgorithmExecution, events.AlgorithmExecutionPayload{
		Algorithm: "fifo_retry", Settled: fifoSettled,
	})

	bilateralSettled := e.runBilateralOffset(tick)
	e.state.Events().Append(tick, events.KindAlgorithmExecution, events.AlgorithmExecutionPayload{
		Algorithm: "bilateral_offset", Settled: bilateralSettled,
	})

	cycleSettled := e.runCycleDetection(tick)
	e.state.Events().Append(tick, events.KindAlgorithmExecution, events.AlgorithmExecutionPayload{
		Algorithm: "cycle_detection", Settled: cycleSettled,
	})

	return nil
}

// runBilateralOffset enumerates every sorted pair of agents with
// opposing Queue 2 transactions and nets them against each other when the
// net-owing agent can pay the net amount (spec §4.8 Algorithm 2).
func (e *Engine) runBilateralOffset(tick int64) int {
	agentIDs := e.state.AgentIDsSorted()
	settled := 0
	for i := 0; i < len(agentIDs); i++ {
		for j := i + 1; j < len(agentIDs); j++ {
			a, b := agentIDs[i], agentIDs[j]
			settled += e.offsetPair(a, b, tick)
		}
	}
	return settled
}

func (e *Engine) offsetPair(a, b string, tick int64) int {
	aToB := e.queue2TxBetween(a, b)
	bToA := e.queue2TxBetween(b, a)
	if len(aToB) == 0 && len(bToA) == 0 {
		return 0
	}

	var sumAtoB, sumBtoA domain.Cents
	for _, tx := range aToB {
		sumAtoB += tx.RemainingAmount
	}
	for _, tx := range bToA {
		sumBtoA += tx.RemainingAmount
	}

	net := sumAtoB - sumBtoA
	payer, receiver := a, b
	if net < 0 {
		payer, receiver = b, a
		net = -net
	}

	if net > 0 {
		payerAgent, err := e.state.Agent(payer)
		if err != nil || !payerAgent.CanPay(net) {
			return 0
		}
		if !payerAgent.CanUseBilateral(receiver, net) {
			e.state.Events().Append(tick, events.KindBilateralLimitExceeded, events.BilateralLimitExceededPayload{
				AgentA: payer, AgentB: receiver, Attempted: int64(net), Limit: int64(payerAgent.BilateralLimits[receiver].Cap),
			})
			return 0
		}
		if !payerAgent.CanUseMultilateral(net) {
			e.state.Events().Append(tick, events.KindMultilateralLimitExceeded, events.MultilateralLimitExceededPayload{
				AgentID: payer, Attempted: int64(net), Limit: int64(payerAgent.MultilateralLimit.Cap),
			})
			return 0
		}
	}

	txIDs := make([]string, 0, len(aToB)+len(bToA))
	for _, tx := range aToB {
		txIDs = append(txIDs, tx.ID)
	}
	for _, tx := range bToA {
		txIDs = append(txIDs, tx.ID)
	}

	if net > 0 {
		payerAgent, _ := e.state.Agent(payer)
		receiverAgent, _ := e.state.Agent(receiver)
		payerAgent.Balance -= net
		receiverAgent.Balance += net
		payerAgent.UseBilateral(receiver, net)
		payerAgent.UseMultilateral(net)
	}

	for _, tx := range aToB {
		e.finalizeQueue2Tx(tx, tick)
	}
	for _, tx := range bToA {
		e.finalizeQueue2Tx(tx, tick)
	}

	e.state.Events().Append(tick, events.KindLsmBilateralOffset, events.LsmBilateralOffsetPayload{
		AgentA: a, AgentB: b, AToBSettled: int64(sumAtoB), BToASettled: int64(sumBtoA),
		NetLiquidityA: netLiquidityFor(a, payer, receiver, net),
		NetLiquidityB: netLiquidityFor(b, payer, receiver, net),
		TxIDs:         txIDs,
	})
	return len(txIDs)
}

func netLiquidityFor(agent, payer, receiver string, net domain.Cents) int64 {
	switch agent {
	case payer:
		return int64(-net)
	case receiver:
		return int64(net)
	default:
		return 0
	}
}

func (e *Engine) queue2TxBetween(sender, receiver string) []*domain.Transaction {
	var out []*domain.Transaction
	for _, txID := range e.state.Queue2IndexView().TxIDsFor(sender) {
		tx, err := e.state.Transaction(txID)
		if err != nil {
			continue
		}
		if tx.ReceiverID == receiver {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Engine) finalizeQueue2Tx(tx *domain.Transaction, tick int64) {
	e.state.DequeueRTGS(tx.ID)
	wasOverdue := tx.Status == domain.StatusOverdue
	tx.RemainingAmount = 0
	tx.Status = domain.StatusSettled
	st := tick
	tx.SettlementTick = &st
	if wasOverdue {
		e.state.Events().Append(tick, events.KindOverdueTransactionSettled, events.OverdueTransactionSettledPayload{
			TxID: tx.ID, AgentID: tx.SenderID,
		})
	}
}

// runCycleDetection repeatedly finds a directed cycle in the aggregated
// Queue 2 obligation graph via lexicographically ordered DFS, canonicalizes
// it to start at the lexicographically smallest vertex, and settles every
// edge of the cycle in full when the agent(s) with the largest net outflow
// can cover it (see settleCycle), up to MaxCyclesPerTick cycles (spec §4.8
// Algorithm 3).
func (e *Engine) runCycleDetection(tick int64) int {
	settled := 0
	for cyclesFound := 0; cyclesFound < e.MaxCyclesPerTick; cyclesFound++ {
		graph := e.buildObligationGraph()
		cycle := findCycle(graph)
		if cycle == nil {
			break
		}
		n := e.settleCycle(cycle, graph, tick)
		if n == 0 {
			break
		}
		settled += n
	}
	return settled
}

// obligationEdge aggregates every Queue 2 transaction from one agent to
// another into a single weighted edge.
type obligationEdge struct {
	to     string
	weight domain.Cents
	txIDs  []string
}

func (e *Engine) buildObligationGraph() map[string][]obligationEdge {
	graph := make(map[string][]obligationEdge)
	for _, sender := range e.state.AgentIDsSorted() {
		byReceiver := make(map[string]*obligationEdge)
		order := make([]string, 0)
		for _, txID := range e.state.Queue2IndexView().TxIDsFor(sender) {
			tx, err := e.state.Transaction(txID)
			if err != nil || tx.RemainingAmount == 0 {
				continue
			}
			edge, ok := byReceiver[tx.ReceiverID]
			if !ok {
				edge = &obligationEdge{to: tx.ReceiverID}
				byReceiver[tx.ReceiverID] = edge
				order = append(order, tx.ReceiverID)
			}
			edge.weight += tx.RemainingAmount
			edge.txIDs = append(edge.txIDs, tx.ID)
		}
		sort.Strings(order)
		edges := make([]obligationEdge, 0, len(order))
		for _, to := range order {
			edges = append(edges, *byReceiver[to])
		}
		if len(edges) > 0 {
			graph[sender] = edges
		}
	}
	return graph
}

// findCycle runs a lexicographically ordered DFS over the obligation
// graph and returns the first cycle found as a sequence of vertices,
// canonicalized to start at its lexicographically smallest member.
func findCycle(graph map[string][]obligationEdge) []string {
	vertices := make([]string, 0, len(graph))
	for v := range graph {
		vertices = append(vertices, v)
	}
	sort.Strings(vertices)

	visited := make(map[string]bool)
	onPath := make(map[string]int)
	var path []string

	var visit func(v string) []string
	visit = func(v string) []string {
		visited[v] = true
		onPath[v] = len(path)
		path = append(path, v)
		edges := graph[v]
		sort.Slice(edges, func(i, j int) bool { return edges[i].to < edges[j].to })
		for _, edge := range edges {
			if idx, on := onPath[edge.to]; on {
				return canonicalize(append([]string{}, path[idx:]...))
			}
			if !visited[edge.to] {
				if found := visit(edge.to); found != nil {
					return found
				}
			}
		}
		delete(onPath, v)
		path = path[:len(path)-1]
		return nil
	}

	for _, v := range vertices {
		if !visited[v] {
			if found := visit(v); found != nil {
				return found
			}
		}
	}
	return nil
}

func canonicalize(cycle []string) []string {
	minIdx := 0
	for i, v := range cycle {
		if v < cycle[minIdx] {
			minIdx = i
		}
	}
	out := make([]string, len(cycle))
	copy(out, cycle[minIdx:])
	copy(out[len(cycle)-minIdx:], cycle[:minIdx])
	return out
}

// settleCycle settles every edge in the cycle at its full weight: each
// agent pays its outgoing edge in full and receives its incoming edge in
// full, so its net balance change is incoming-minus-outgoing (spec §4.8
// Algorithm 3, S4). Feasibility requires only that the agent(s) with the
// maximum net outflow around the cycle can cover that net amount and
// satisfy their multilateral limit; agents that are net receivers, or
// whose net outflow is below the maximum, need no liquidity at all.
func (e *Engine) settleCycle(cycle []string, graph map[string][]obligationEdge, tick int64) int {
	n := len(cycle)
	edgeFor := make(map[string]obligationEdge, n)
	for i := 0; i < n; i++ {
		from := cycle[i]
		to := cycle[(i+1)%n]
		var found *obligationEdge
		for _, edge := range graph[from] {
			if edge.to == to {
				matched := edge
				found = &matched
				break
			}
		}
		if found == nil {
			return 0
		}
		edgeFor[from] = *found
	}

	netOutflow := make(map[string]domain.Cents, n)
	for i, agentID := range cycle {
		prev := cycle[(i-1+n)%n]
		netOutflow[agentID] = edgeFor[agentID].weight - edgeFor[prev].weight
	}

	var maxOutflow domain.Cents
	maxOutflowAgent := ""
	for _, agentID := range cycle {
		if netOutflow[agentID] > maxOutflow {
			maxOutflow = netOutflow[agentID]
			maxOutflowAgent = agentID
		}
	}

	var payers []string
	for _, agentID := range cycle {
		if netOutflow[agentID] == maxOutflow && maxOutflow > 0 {
			payers = append(payers, agentID)
		}
	}

	for _, agentID := range payers {
		agent, err := e.state.Agent(agentID)
		if err != nil || !agent.CanPay(maxOutflow) {
			return 0
		}
	}
	for _, agentID := range payers {
		agent, _ := e.state.Agent(agentID)
		if !agent.CanUseMultilateral(maxOutflow) {
			e.state.Events().Append(tick, events.KindMultilateralLimitExceeded, events.MultilateralLimitExceededPayload{
				AgentID: agentID, Attempted: int64(maxOutflow), Limit: int64(agent.MultilateralLimit.Cap),
			})
			return 0
		}
	}

	var allTxIDs []string
	amountsOut := make(map[string]int64, n)
	for _, from := range cycle {
		edge := edgeFor[from]
		agent, _ := e.state.Agent(from)
		agent.Balance -= edge.weight
		amountsOut[from] = int64(edge.weight)
		for _, txID := range edge.txIDs {
			tx, err := e.state.Transaction(txID)
			if err != nil || tx.RemainingAmount == 0 {
				continue
			}
			allTxIDs = append(allTxIDs, tx.ID)
			e.finalizeQueue2Tx(tx, tick)
		}
	}
	for i, to := range cycle {
		prev := cycle[(i-1+n)%n]
		agent, _ := e.state.Agent(to)
		agent.Balance += edgeFor[prev].weight
	}
	for _, agentID := range cycle {
		if netOutflow[agentID] > 0 {
			agent, _ := e.state.Agent(agentID)
			agent.UseMultilateral(netOutflow[agentID])
		}
	}

	e.state.Events().Append(tick, events.KindLsmCycleSettlement, events.LsmCycleSettlementPayload{
		Agents: cycle, AmountsOut: amountsOut, TxIDs: allTxIDs,
		MaxOutflow: int64(maxOutflow), MaxOutflowAgent: maxOutflowAgent,
	})
	return len(allTxIDs)
}
