package heuristic

import (
	"context"

	"github.com/google/uuid"

	"github.com/maplan-dev/maplan/internal/comms"
	"github.com/maplan-dev/maplan/internal/dtg"
)

// remoteCost prices a transition this agent has no producing action for by
// asking an agent that does. The chain carries every agent already pricing
// this transition. Each owner is asked in turn and the minimum reported
// cost wins. An owner already appearing twice on the chain is pricing this
// transition itself; asking it again would loop, so it is skipped. When no
// owner remains the penalty is charged instead.
func (e *DTGEvaluator) remoteCost(ctx context.Context, chain []string, variable, from, to string, owners []string) (float64, error) {
	if e.reg == nil || e.reg.NumAgents() < 2 {
		return e.penalty, nil
	}

	asked := false
	best := e.penalty
	for _, owner := range owners {
		if owner == e.reg.ThisAgent() || chainCount(chain, owner) >= 2 {
			continue
		}

		id := uuid.NewString()
		req := comms.Message{
			Kind:       comms.KindTransitionRequest,
			RequestID:  id,
			Var:        variable,
			FromValue:  from,
			ToValue:    to,
			Chain:      append(append([]string{}, chain...), e.reg.ThisAgent()),
			MultiState: e.sharedSnapshot(owner),
		}
		if err := e.reg.Send(ctx, owner, req); err != nil {
			return 0, err
		}
		cost, err := e.awaitReply(ctx, id)
		if err != nil {
			return 0, err
		}
		asked = true
		if cost < best {
			best = cost
		}
	}
	if !asked {
		e.logger.Debug("transition request loop", "var", variable, "from", from, "to", to)
	}
	return best, nil
}

// awaitReply blocks until the reply for the given request arrives, serving
// any transition requests received in the meantime. Replies for other
// outstanding requests are buffered.
func (e *DTGEvaluator) awaitReply(ctx context.Context, id string) (float64, error) {
	for {
		if cost, ok := e.replies[id]; ok {
			delete(e.replies, id)
			return cost, nil
		}
		msg, err := e.reg.Receive(ctx, comms.Filter{
			Kinds: []comms.Kind{comms.KindTransitionReply, comms.KindTransitionRequest},
		})
		if err != nil {
			return 0, err
		}
		switch msg.Kind {
		case comms.KindTransitionReply:
			if msg.RequestID == id {
				return msg.Cost, nil
			}
			e.replies[msg.RequestID] = msg.Cost
		case comms.KindTransitionRequest:
			if err := e.serveRequest(ctx, msg); err != nil {
				return 0, err
			}
		}
	}
}

// sharedSnapshot filters this evaluation's multi-state down to the values
// shareable with the receiving agent. The unknown node is dropped: it
// carries nothing the receiver does not already have.
func (e *DTGEvaluator) sharedSnapshot(peer string) map[string][]string {
	if len(e.snapshot) == 0 {
		return nil
	}
	shared := make(map[string][]string)
	for variable, vals := range e.snapshot {
		var keep []string
		for _, v := range vals {
			if v != dtg.UnknownValue && e.task.Shareable(variable, v, peer) {
				keep = append(keep, v)
			}
		}
		if len(keep) > 0 {
			shared[variable] = keep
		}
	}
	if len(shared) == 0 {
		return nil
	}
	return shared
}

// serveRequest answers one transition request with this agent's local
// pricing, recursing over the ring when the local path itself crosses
// remote edges. A request starting from the unknown node is priced over
// the requester's multi-state snapshot, cheapest value winning. A request
// whose chain already carries this agent twice is a loop and is answered
// with the penalty.
func (e *DTGEvaluator) serveRequest(ctx context.Context, req comms.Message) error {
	cost := e.penalty
	if chainCount(req.Chain, e.reg.ThisAgent()) < 2 {
		froms := []string{req.FromValue}
		if req.FromValue == dtg.UnknownValue {
			froms = append(froms, req.MultiState[req.Var]...)
		}
		best := e.penalty
		for _, from := range froms {
			c, err := e.pathCost(ctx, req.Chain, req.Var, from, req.ToValue)
			if err != nil {
				return err
			}
			if c < best {
				best = c
			}
		}
		cost = best
	}
	reply := comms.Message{
		Kind:      comms.KindTransitionReply,
		RequestID: req.RequestID,
		Var:       req.Var,
		FromValue: req.FromValue,
		ToValue:   req.ToValue,
		Cost:      cost,
	}
	return e.reg.Send(ctx, req.From, reply)
}

// WaitEndEvaluation is the end-of-stage barrier: the agent announces it is
// done and keeps serving transition requests until every other agent has
// announced the same.
func (e *DTGEvaluator) WaitEndEvaluation(ctx context.Context) error {
	if e.reg == nil || e.reg.NumAgents() < 2 {
		return nil
	}
	if err := e.reg.Broadcast(ctx, comms.Message{Kind: comms.KindStageEnd}); err != nil {
		return err
	}

	done := make(map[string]bool)
	for len(done) < len(e.reg.OtherAgents()) {
		msg, err := e.reg.Receive(ctx, comms.Filter{
			Kinds: []comms.Kind{comms.KindStageEnd, comms.KindTransitionRequest},
		})
		if err != nil {
			return err
		}
		switch msg.Kind {
		case comms.KindStageEnd:
			done[msg.From] = true
		case comms.KindTransitionRequest:
			if err := e.serveRequest(ctx, msg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ServeSearch answers transition requests and stage barriers for an agent
// whose peer drives the search. It participates in one evaluation stage
// after another until the driver announces the end of the search.
func (e *DTGEvaluator) ServeSearch(ctx context.Context) error {
	if e.reg == nil || e.reg.NumAgents() < 2 {
		return nil
	}
	for {
		done, err := e.serveStage(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// EndSearch releases every agent blocked in ServeSearch. The driver calls
// it once, after its final evaluation stage has closed.
func (e *DTGEvaluator) EndSearch(ctx context.Context) error {
	if e.reg == nil || e.reg.NumAgents() < 2 {
		return nil
	}
	return e.reg.Broadcast(ctx, comms.Message{Kind: comms.KindSearchDone})
}

// serveStage joins the current evaluation stage: it announces this agent
// as finished immediately, then serves requests until every other agent
// has announced too. Returns true when the driver ends the search instead.
func (e *DTGEvaluator) serveStage(ctx context.Context) (bool, error) {
	if err := e.reg.Broadcast(ctx, comms.Message{Kind: comms.KindStageEnd}); err != nil {
		return false, err
	}

	done := make(map[string]bool)
	for len(done) < len(e.reg.OtherAgents()) {
		msg, err := e.reg.Receive(ctx, comms.Filter{
			Kinds: []comms.Kind{
				comms.KindStageEnd,
				comms.KindTransitionRequest,
				comms.KindSearchDone,
			},
		})
		if err != nil {
			return false, err
		}
		switch msg.Kind {
		case comms.KindStageEnd:
			done[msg.From] = true
		case comms.KindTransitionRequest:
			if err := e.serveRequest(ctx, msg); err != nil {
				return false, err
			}
		case comms.KindSearchDone:
			return true, nil
		}
	}
	return false, nil
}

func chainCount(chain []string, agent string) int {
	n := 0
	for _, a := range chain {
		if a == agent {
			n++
		}
	}
	return n
}
