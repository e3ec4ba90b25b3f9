// Package heuristic estimates the distance from a plan's frontier state to
// the goals. The base estimator walks domain transition graphs; when a
// transition is only known to other agents its cost is fetched over the
// ring through a request/reply exchange with chain-based loop detection.
// A landmark-aware estimator layers landmark progress on top, either as an
// additive term or by feeding unreached landmarks to the transition search
// as extra subgoals.
package heuristic

import (
	"context"
)

// State is a full variable assignment: the plan's frontier world state.
// Variables another agent keeps private may be absent.
type State map[string]string

// MultiState maps a variable to the set of values it may currently hold.
// A variable observed in the frontier state carries a single value; an
// unobserved one widens to every value the agent knows plus the unknown
// node, since a peer may have moved it anywhere.
type MultiState map[string][]string

// Plan is the slice of a search node the evaluators need. The search
// package's plan type satisfies it.
type Plan interface {
	// FrontierState is the world state after every plan step.
	FrontierState() State

	// Trajectory lists the states along one linearization of the plan,
	// initial state first, frontier last. Landmark progress is judged
	// against the whole trajectory: a fact achieved and later overwritten
	// still counts as achieved.
	Trajectory() []State

	// Index is the plan's position in the search queue, for tracing.
	Index() int
}

// PrivateCoster is implemented by plans that record per-preference costs.
// Evaluators set the vector alongside the main heuristic value: one entry
// per task preference, in declaration order.
type PrivateCoster interface {
	SetHPriv(costs []float64)
}

// Evaluator scores candidate plans. Implementations are safe for
// concurrent use across worker threads as long as each worker passes its
// own thread index; multi-agent evaluation must run on thread 0 only,
// since the ring protocol is single-threaded per agent.
type Evaluator interface {
	// EvaluatePlan returns the heuristic distance from the plan's frontier
	// to the goals. The thread index selects the worker-local transition
	// cache, which is cleared at the start of every call.
	EvaluatePlan(ctx context.Context, p Plan, thread int) (float64, error)

	// StartEvaluation opens an evaluation stage for a base plan.
	StartEvaluation(ctx context.Context, base Plan) error

	// WaitEndEvaluation blocks until every agent has finished the current
	// evaluation stage, serving incoming transition requests meanwhile.
	WaitEndEvaluation(ctx context.Context) error
}

// DefaultPenalty is the cost charged for unreachable transitions and for
// request loops. It must dominate any real plan distance without
// overflowing when several penalties are summed.
const DefaultPenalty = 1e6
