package heuristic

import (
	"context"

	"github.com/maplan-dev/maplan/internal/event"
	"github.com/maplan-dev/maplan/internal/landmarks"
)

// Mode selects how landmark progress enters the estimate.
type Mode int

const (
	// ModeAdditive adds the count of unreached landmark nodes to the DTG
	// estimate.
	ModeAdditive Mode = iota

	// ModeIncremental prices the frontier landmarks through the DTG
	// search instead of counting them: each unreached node whose
	// predecessors are all reached contributes the cheapest transition to
	// one of its literals.
	ModeIncremental
)

// LandmarksEvaluator layers landmark progress on top of the DTG estimate.
// Reached status is recomputed per plan into a fresh checked array by
// replaying the plan's trajectory in causal order.
type LandmarksEvaluator struct {
	*DTGEvaluator
	graph *landmarks.Graph
	mode  Mode
}

// NewLandmarks wraps a DTG evaluator with the landmark graph.
func NewLandmarks(base *DTGEvaluator, graph *landmarks.Graph, mode Mode) *LandmarksEvaluator {
	return &LandmarksEvaluator{DTGEvaluator: base, graph: graph, mode: mode}
}

// EvaluatePlan scores the plan's frontier against the goals and the
// landmark graph.
func (e *LandmarksEvaluator) EvaluatePlan(ctx context.Context, p Plan, thread int) (float64, error) {
	e.caches[thread] = make(map[transKey]float64)
	state := p.FrontierState()
	e.snapshot = e.multiState(state)

	h, err := e.goalCost(ctx, thread, state)
	if err != nil {
		return 0, err
	}
	if err := e.setPreferenceCosts(ctx, thread, p, state); err != nil {
		return 0, err
	}

	checked := e.reached(p.Trajectory())
	switch e.mode {
	case ModeIncremental:
		extra, err := e.frontierCost(ctx, thread, state, checked)
		if err != nil {
			return 0, err
		}
		h += extra
	default:
		for _, n := range e.graph.Nodes() {
			if !checked[n.Index()] {
				h++
			}
		}
	}

	e.logger.Debug("plan evaluated", "plan", p.Index(), "h", h)
	if e.bus != nil {
		e.bus.Publish(event.NewEvaluationEvent(e.task.Agent, p.Index(), h))
	}
	return h, nil
}

// reached marks the landmark nodes achieved along the trajectory, in
// causal order: a node counts once it holds in some state with all its
// predecessors already achieved.
func (e *LandmarksEvaluator) reached(traj []State) []bool {
	checked := e.graph.NewChecked()
	for _, state := range traj {
		for changed := true; changed; {
			changed = false
			for _, n := range e.graph.Nodes() {
				if checked[n.Index()] || !n.Holds(state) {
					continue
				}
				ready := true
				for _, p := range n.Preds() {
					if !checked[p.Index()] {
						ready = false
						break
					}
				}
				if ready {
					checked[n.Index()] = true
					changed = true
				}
			}
		}
	}
	return checked
}

// frontierCost prices every unreached node whose predecessors are all
// reached: the cheapest transition from the state to one of its literals.
func (e *LandmarksEvaluator) frontierCost(ctx context.Context, thread int, state State, checked []bool) (float64, error) {
	total := 0.0
	for _, n := range e.graph.Nodes() {
		if checked[n.Index()] {
			continue
		}
		ready := true
		for _, p := range n.Preds() {
			if !checked[p.Index()] {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}

		best := e.penalty
		for _, l := range n.Literals() {
			cost, _, err := e.cheapestTransition(ctx, thread, state, l.Var, l.Value)
			if err != nil {
				return 0, err
			}
			if cost < best {
				best = cost
			}
		}
		total += best
	}
	return total, nil
}
