package pop

import (
	"maps"
	"sort"
	"sync"

	"github.com/maplan-dev/maplan/internal/grounding"
)

// Arena owns every plan node of one search. Plans reference each other by
// parent pointer and arena index; workers extend plans concurrently, so
// registration is the only locked operation.
type Arena struct {
	task *grounding.Task

	mu    sync.Mutex
	plans []*Plan
}

// NewArena creates an arena seeded with the root plan: no steps, frontier
// equal to the initial state.
func NewArena(task *grounding.Task) *Arena {
	a := &Arena{task: task}
	root := &Plan{arena: a, index: 0}
	a.plans = []*Plan{root}
	return a
}

// Task returns the grounded task the arena plans for.
func (a *Arena) Task() *grounding.Task {
	return a.task
}

// Root returns the empty plan.
func (a *Arena) Root() *Plan {
	return a.plans[0]
}

// Plan returns the plan at the given arena index.
func (a *Arena) Plan(index int) *Plan {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.plans[index]
}

// Size returns the number of registered plans.
func (a *Arena) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.plans)
}

// Extend appends one step to the plan and returns one successor per
// consistent resolution of the action's preconditions. A precondition may
// be supported by the initial step or by any existing step whose effects
// establish it; every combination of supporters yields a candidate child.
// Threats resolve by ordering: an existing link broken by the new effects
// keeps its consumer before the new step, and an existing step clobbering
// a new link is pushed after the new step unless it already precedes the
// link's producer. Candidates whose constraints cycle, and candidates
// whose frontier state equals the parent's, are dropped.
func (a *Arena) Extend(p *Plan, action *grounding.Action) []*Plan {
	steps := p.Steps()
	newID := p.Length() + 1

	producers := make([][]int, len(action.Pre))
	for i, pre := range action.Pre {
		if a.task.Init[pre.Var] == pre.Value {
			producers[i] = append(producers[i], InitialStep)
		}
		for _, s := range steps {
			for _, eff := range s.Action.Eff {
				if eff == pre {
					producers[i] = append(producers[i], s.ID)
					break
				}
			}
		}
		if len(producers[i]) == 0 {
			return nil
		}
	}

	parentLinks := p.Links()
	preds := p.precedes()
	frontier := p.FrontierState()

	var out []*Plan
	for _, choice := range resolutions(producers) {
		child := &Plan{arena: a, parent: p, step: Step{ID: newID, Action: action}}
		for i, pre := range action.Pre {
			child.links = append(child.links, CausalLink{
				Producer: choice[i],
				Consumer: newID,
				Cond:     pre,
			})
		}

		seen := map[Ordering]bool{}
		order := func(before, after int) {
			o := Ordering{Before: before, After: after}
			if !seen[o] {
				seen[o] = true
				child.orders = append(child.orders, o)
			}
		}
		for _, l := range parentLinks {
			for _, eff := range action.Eff {
				if l.Cond.Var == eff.Var && l.Cond.Value != eff.Value {
					order(l.Consumer, newID)
				}
			}
		}
		for _, l := range child.links {
			for _, s := range steps {
				if s.ID == l.Producer || preds[l.Producer][s.ID] {
					continue
				}
				for _, eff := range s.Action.Eff {
					if eff.Var == l.Cond.Var && eff.Value != l.Cond.Value {
						order(newID, s.ID)
					}
				}
			}
		}

		// A cycle leaves some step with no position in the linearization.
		if len(child.Linearize()) != len(steps)+2 {
			continue
		}
		if maps.Equal(child.FrontierState(), frontier) {
			continue
		}

		a.mu.Lock()
		child.index = len(a.plans)
		a.plans = append(a.plans, child)
		a.mu.Unlock()
		out = append(out, child)
	}
	return out
}

// Successors expands the plan with every local action, in name order.
func (a *Arena) Successors(p *Plan) []*Plan {
	actions := make([]*grounding.Action, len(a.task.Actions))
	copy(actions, a.task.Actions)
	sort.Slice(actions, func(i, j int) bool { return actions[i].Name < actions[j].Name })

	var out []*Plan
	for _, action := range actions {
		out = append(out, a.Extend(p, action)...)
	}
	return out
}

// resolutions enumerates every choice of one producer per precondition.
// Zero preconditions yield the single empty choice.
func resolutions(producers [][]int) [][]int {
	out := [][]int{nil}
	for _, cands := range producers {
		next := make([][]int, 0, len(out)*len(cands))
		for _, prefix := range out {
			for _, c := range cands {
				choice := make([]int, len(prefix), len(prefix)+1)
				copy(choice, prefix)
				next = append(next, append(choice, c))
			}
		}
		out = next
	}
	return out
}

// precedes returns, per step, the set of steps known to come before it
// under the plan's links and orderings.
func (p *Plan) precedes() map[int]map[int]bool {
	after := map[int][]int{}
	for _, l := range p.Links() {
		after[l.Producer] = append(after[l.Producer], l.Consumer)
	}
	for _, o := range p.Orderings() {
		after[o.Before] = append(after[o.Before], o.After)
	}

	preds := map[int]map[int]bool{InitialStep: {}}
	for _, s := range p.Steps() {
		preds[s.ID] = map[int]bool{}
	}
	for n := range preds {
		stack := append([]int{}, after[n]...)
		visited := map[int]bool{}
		for len(stack) > 0 {
			m := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[m] {
				continue
			}
			visited[m] = true
			preds[m][n] = true
			stack = append(stack, after[m]...)
		}
	}
	return preds
}
