// Package pop represents partial-order plans as delta nodes in a shared
// arena. A plan node stores only what its last step added: the step
// itself, the causal links supporting its preconditions, and the orderings
// protecting existing links. Everything else is reached by walking the
// parent chain, so branching the search never copies a plan.
package pop

import (
	"sort"

	"github.com/maplan-dev/maplan/internal/grounding"
	"github.com/maplan-dev/maplan/internal/heuristic"
)

// InitialStep is the pseudo step producing the initial state. It is
// ordered before everything and never appears in a linearization's action
// list.
const InitialStep = 0

// Step is one plan step: a grounded action with its plan-local id.
type Step struct {
	ID     int
	Action *grounding.Action
}

// CausalLink records that the producer step establishes a condition
// consumed by the consumer step.
type CausalLink struct {
	Producer int
	Consumer int
	Cond     grounding.Condition
}

// Ordering constrains Before to precede After in every linearization.
type Ordering struct {
	Before int
	After  int
}

// Plan is one node of the arena. A plan is immutable once created; its
// heuristic value is written exactly once, before the plan is published to
// the shared queue.
type Plan struct {
	arena  *Arena
	index  int
	parent *Plan

	step   Step // zero for the root
	links  []CausalLink
	orders []Ordering

	h     float64
	hpriv []float64
}

// Index is the plan's arena position.
func (p *Plan) Index() int {
	return p.index
}

// Parent returns the plan this one extends, or nil for the root.
func (p *Plan) Parent() *Plan {
	return p.parent
}

// H returns the heuristic value assigned by SetH.
func (p *Plan) H() float64 {
	return p.h
}

// SetH assigns the plan's heuristic value. Call it once, before handing
// the plan to the shared queue.
func (p *Plan) SetH(h float64) {
	p.h = h
}

// HPriv returns the per-preference cost vector, one entry per task
// preference in declaration order. Nil when the task has no preferences.
func (p *Plan) HPriv() []float64 {
	return p.hpriv
}

// SetHPriv assigns the per-preference cost vector. Like SetH, call it
// once, before publishing the plan.
func (p *Plan) SetHPriv(costs []float64) {
	p.hpriv = costs
}

// Length returns the number of real steps, the initial pseudo step
// excluded.
func (p *Plan) Length() int {
	n := 0
	for q := p; q.parent != nil; q = q.parent {
		n++
	}
	return n
}

// Steps returns the plan's steps in insertion order, the initial pseudo
// step excluded.
func (p *Plan) Steps() []Step {
	var steps []Step
	for q := p; q.parent != nil; q = q.parent {
		steps = append(steps, q.step)
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

// Links returns every causal link along the parent chain.
func (p *Plan) Links() []CausalLink {
	var links []CausalLink
	for q := p; q != nil; q = q.parent {
		links = append(links, q.links...)
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Consumer != links[j].Consumer {
			return links[i].Consumer < links[j].Consumer
		}
		return links[i].Cond.Var < links[j].Cond.Var
	})
	return links
}

// Orderings returns every explicit ordering constraint along the parent
// chain. Causal links imply orderings that are not repeated here.
func (p *Plan) Orderings() []Ordering {
	var orders []Ordering
	for q := p; q != nil; q = q.parent {
		orders = append(orders, q.orders...)
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Before != orders[j].Before {
			return orders[i].Before < orders[j].Before
		}
		return orders[i].After < orders[j].After
	})
	return orders
}

// Linearize returns the step ids in one total order consistent with the
// causal links and orderings, ties broken by id. The initial pseudo step
// leads.
func (p *Plan) Linearize() []int {
	steps := p.Steps()
	succs := make(map[int][]int)
	indeg := make(map[int]int, len(steps)+1)
	indeg[InitialStep] = 0
	for _, s := range steps {
		indeg[s.ID] = 0
	}
	addEdge := func(before, after int) {
		succs[before] = append(succs[before], after)
		indeg[after]++
	}
	for _, l := range p.Links() {
		addEdge(l.Producer, l.Consumer)
	}
	for _, o := range p.Orderings() {
		addEdge(o.Before, o.After)
	}

	var ready []int
	for id, d := range indeg {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Ints(ready)

	var order []int
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		changed := false
		for _, s := range succs[id] {
			indeg[s]--
			if indeg[s] == 0 {
				ready = append(ready, s)
				changed = true
			}
		}
		if changed {
			sort.Ints(ready)
		}
	}
	return order
}

// Trajectory replays the linearization from the initial state, returning
// the state after each step, initial state first.
func (p *Plan) Trajectory() []heuristic.State {
	byID := map[int]*grounding.Action{}
	for _, s := range p.Steps() {
		byID[s.ID] = s.Action
	}

	state := make(heuristic.State, len(p.arena.task.Init))
	for v, val := range p.arena.task.Init {
		state[v] = val
	}
	traj := []heuristic.State{cloneState(state)}
	for _, id := range p.Linearize() {
		a, ok := byID[id]
		if !ok {
			continue
		}
		for _, eff := range a.Eff {
			state[eff.Var] = eff.Value
		}
		traj = append(traj, cloneState(state))
	}
	return traj
}

// FrontierState is the state after every step of the plan.
func (p *Plan) FrontierState() heuristic.State {
	traj := p.Trajectory()
	return traj[len(traj)-1]
}

// Solves reports whether every goal holds in the frontier state.
func (p *Plan) Solves() bool {
	state := p.FrontierState()
	for _, g := range p.arena.task.Goals {
		if state[g.Var] != g.Value {
			return false
		}
	}
	return true
}

func cloneState(s heuristic.State) heuristic.State {
	out := make(heuristic.State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
