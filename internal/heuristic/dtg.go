package heuristic

import (
	"container/heap"
	"context"

	"github.com/maplan-dev/maplan/internal/comms"
	"github.com/maplan-dev/maplan/internal/dtg"
	"github.com/maplan-dev/maplan/internal/event"
	"github.com/maplan-dev/maplan/internal/grounding"
	"github.com/maplan-dev/maplan/internal/logging"
)

// transKey identifies one cached transition cost.
type transKey struct {
	variable string
	from     string
	to       string
}

// DTGEvaluator estimates plan distance by draining a subgoal queue seeded
// with the goals: the cheapest subgoal is priced as the domain-transition
// path cost from the frontier value, and the preconditions of the actions
// along that path become new subgoals. A variable the frontier does not
// assign keeps a set of possible values instead of a single one, and is
// priced from the cheapest member. Local edges cost one step; remote edges
// are priced by asking the agents that own a producing action. Each worker
// thread owns a cost cache, cleared at the start of every evaluation.
type DTGEvaluator struct {
	task    *grounding.Task
	set     *dtg.Set
	reg     *comms.Registry
	logger  *logging.Logger
	bus     *event.Bus
	penalty float64
	actions map[string]*grounding.Action

	caches []map[transKey]float64

	// replies buffers transition replies that arrive while waiting for a
	// different request. The ring protocol is single-threaded per agent,
	// so no lock guards it; multi-agent evaluation must stay on thread 0.
	replies map[string]float64

	// snapshot is the multi-state of the plan under evaluation, rebuilt on
	// every EvaluatePlan. It widens unobserved variables to value sets and
	// travels with transition requests so the serving agent can price from
	// the requester's partial knowledge.
	snapshot MultiState
}

// Option configures an evaluator.
type Option func(*DTGEvaluator)

// WithLogger attaches a logger for evaluation and protocol tracing.
func WithLogger(logger *logging.Logger) Option {
	return func(e *DTGEvaluator) {
		e.logger = logger
	}
}

// WithBus attaches an event bus publishing one evaluation event per plan.
func WithBus(bus *event.Bus) Option {
	return func(e *DTGEvaluator) {
		e.bus = bus
	}
}

// WithPenalty overrides the cost charged for unreachable transitions and
// request loops.
func WithPenalty(penalty float64) Option {
	return func(e *DTGEvaluator) {
		e.penalty = penalty
	}
}

// WithThreads sizes the per-thread cache array for the given worker count.
func WithThreads(n int) Option {
	return func(e *DTGEvaluator) {
		e.caches = make([]map[transKey]float64, n)
	}
}

// NewDTG creates a DTG evaluator over the task's transition graphs. The
// registry carries the ring used for remote transition costs; a
// single-agent registry disables the protocol entirely.
func NewDTG(task *grounding.Task, set *dtg.Set, reg *comms.Registry, opts ...Option) *DTGEvaluator {
	e := &DTGEvaluator{
		task:    task,
		set:     set,
		reg:     reg,
		logger:  logging.NopLogger(),
		penalty: DefaultPenalty,
		actions: make(map[string]*grounding.Action, len(task.Actions)),
		caches:  make([]map[transKey]float64, 1),
		replies: make(map[string]float64),
	}
	for _, a := range task.Actions {
		e.actions[a.Name] = a
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluatePlan sums the transition cost of every goal from the plan's
// frontier state. Variables the state does not assign are priced over
// their multi-state: the cheapest transition from any value they may hold.
func (e *DTGEvaluator) EvaluatePlan(ctx context.Context, p Plan, thread int) (float64, error) {
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
	e.logger.Debug("plan evaluated", "plan", p.Index(), "h", h)
	if e.bus != nil {
		e.bus.Publish(event.NewEvaluationEvent(e.task.Agent, p.Index(), h))
	}
	return h, nil
}

// setPreferenceCosts prices every preference from the state and hands the
// costs to plans that keep a private-cost vector.
func (e *DTGEvaluator) setPreferenceCosts(ctx context.Context, thread int, p Plan, state State) error {
	setter, ok := p.(PrivateCoster)
	if !ok || len(e.task.Preferences) == 0 {
		return nil
	}
	costs := make([]float64, len(e.task.Preferences))
	for i, pref := range e.task.Preferences {
		cost, _, err := e.cheapestTransition(ctx, thread, state, pref.Var, pref.Value)
		if err != nil {
			return err
		}
		costs[i] = cost
	}
	setter.SetHPriv(costs)
	return nil
}

// StartEvaluation opens a stage: all caches and buffered replies are
// dropped.
func (e *DTGEvaluator) StartEvaluation(ctx context.Context, base Plan) error {
	for i := range e.caches {
		e.caches[i] = nil
	}
	e.replies = make(map[string]float64)
	e.snapshot = nil
	return nil
}

// multiState widens a frontier state into per-variable value sets. A
// single agent keeps unobserved variables on the unknown node alone; with
// peers on the ring any locally known value is possible too.
func (e *DTGEvaluator) multiState(state State) MultiState {
	ms := make(MultiState, len(e.task.Variables))
	for _, v := range e.task.Variables {
		ms[v.Name] = e.possibleValues(state, v.Name)
	}
	return ms
}

// possibleValues returns the candidate current values of one variable.
func (e *DTGEvaluator) possibleValues(state State, variable string) []string {
	if val, ok := state[variable]; ok {
		return []string{val}
	}
	if e.reg == nil || e.reg.NumAgents() < 2 {
		return []string{dtg.UnknownValue}
	}
	var vals []string
	if v, ok := e.task.Variable(variable); ok {
		vals = append(vals, v.ValueNames()...)
	}
	return append(vals, dtg.UnknownValue)
}

// localEstimate is the cheapest local path distance to the value over the
// variable's possible current values.
func (e *DTGEvaluator) localEstimate(state State, variable, value string) int {
	best := dtg.Infinite
	for _, from := range e.possibleValues(state, variable) {
		if d := e.set.PathCost(variable, from, value); d < best {
			best = d
		}
	}
	return best
}

// cheapestTransition prices reaching the target over every value the
// variable may currently hold, returning the winning cost and start value.
func (e *DTGEvaluator) cheapestTransition(ctx context.Context, thread int, state State, variable, to string) (float64, string, error) {
	froms := e.possibleValues(state, variable)
	bestCost, bestFrom := 0.0, froms[0]
	for i, from := range froms {
		cost, err := e.transitionCost(ctx, thread, nil, variable, from, to)
		if err != nil {
			return 0, "", err
		}
		if i == 0 || cost < bestCost {
			bestCost, bestFrom = cost, from
		}
		if bestCost == 0 {
			break
		}
	}
	return bestCost, bestFrom, nil
}

// goalCost drains a subgoal queue seeded with the task goals, cheapest
// local estimate first. Each subgoal contributes the cheapest transition
// cost over its variable's possible current values; the off-variable
// preconditions of actions along the winning path are pushed as further
// subgoals, each counted once.
func (e *DTGEvaluator) goalCost(ctx context.Context, thread int, state State) (float64, error) {
	queue := &subgoalQueue{}
	seen := make(map[grounding.Condition]bool)
	push := func(c grounding.Condition) {
		if seen[c] {
			return
		}
		seen[c] = true
		heap.Push(queue, subgoal{cond: c, dist: float64(e.localEstimate(state, c.Var, c.Value))})
	}
	for _, goal := range e.task.GoalsOn() {
		push(goal)
	}

	h := 0.0
	for queue.Len() > 0 {
		sg := heap.Pop(queue).(subgoal)
		cost, from, err := e.cheapestTransition(ctx, thread, state, sg.cond.Var, sg.cond.Value)
		if err != nil {
			return 0, err
		}
		if cost == 0 {
			continue
		}
		h += cost
		for _, pre := range e.pathPreconditions(sg.cond.Var, from, sg.cond.Value) {
			push(pre)
		}
	}
	return h, nil
}

// pathPreconditions collects the preconditions on other variables of the
// locally known actions along the path, in path order.
func (e *DTGEvaluator) pathPreconditions(variable, from, to string) []grounding.Condition {
	g, ok := e.set.Graph(variable)
	if !ok {
		return nil
	}
	path := e.set.Path(variable, from, to)

	var pres []grounding.Condition
	for i := 1; i < len(path); i++ {
		edge, ok := g.Edge(path[i-1], path[i])
		if !ok {
			continue
		}
		for _, name := range edge.Actions {
			a, ok := e.actions[name]
			if !ok {
				continue
			}
			for _, pre := range a.Pre {
				if pre.Var != variable {
					pres = append(pres, pre)
				}
			}
		}
	}
	return pres
}

// subgoal is one queued goal condition with its local distance estimate.
type subgoal struct {
	cond grounding.Condition
	dist float64
}

// subgoalQueue is a min-heap of subgoals: closest first, ties broken
// lexicographically by variable then value.
type subgoalQueue []subgoal

func (q subgoalQueue) Len() int { return len(q) }

func (q subgoalQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	if q[i].cond.Var != q[j].cond.Var {
		return q[i].cond.Var < q[j].cond.Var
	}
	return q[i].cond.Value < q[j].cond.Value
}

func (q subgoalQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *subgoalQueue) Push(x any) { *q = append(*q, x.(subgoal)) }

func (q *subgoalQueue) Pop() any {
	old := *q
	n := len(old)
	sg := old[n-1]
	*q = old[:n-1]
	return sg
}

// transitionCost prices moving the variable from one value to another:
// zero for staying put, the DTG path length with remote steps priced over
// the ring, or the penalty when no path exists. The chain lists the agents
// already involved in pricing this transition, newest last.
func (e *DTGEvaluator) transitionCost(ctx context.Context, thread int, chain []string, variable, from, to string) (float64, error) {
	if from == to {
		return 0, nil
	}
	key := transKey{variable: variable, from: from, to: to}
	if e.caches[thread] != nil {
		if cost, ok := e.caches[thread][key]; ok {
			return cost, nil
		}
	}

	cost, err := e.pathCost(ctx, chain, variable, from, to)
	if err != nil {
		return 0, err
	}
	if cost > e.penalty {
		cost = e.penalty
	}
	if e.caches[thread] == nil {
		e.caches[thread] = make(map[transKey]float64)
	}
	e.caches[thread][key] = cost
	return cost, nil
}

func (e *DTGEvaluator) pathCost(ctx context.Context, chain []string, variable, from, to string) (float64, error) {
	path := e.set.Path(variable, from, to)
	if len(path) < 2 {
		if from == to || (len(path) == 1 && path[0] == to) {
			return 0, nil
		}
		return e.penalty, nil
	}
	g, ok := e.set.Graph(variable)
	if !ok {
		return e.penalty, nil
	}

	cost := 0.0
	for i := 1; i < len(path); i++ {
		edge, ok := g.Edge(path[i-1], path[i])
		if !ok {
			return e.penalty, nil
		}
		if !edge.Remote() {
			cost++
			continue
		}
		remote, err := e.remoteCost(ctx, chain, variable, path[i-1], path[i], edge.Agents)
		if err != nil {
			return 0, err
		}
		cost += remote
	}
	return cost, nil
}
