// Package rpg builds relaxed planning graphs: leveled literal/action graphs
// obtained by forward closure over the grounded task while ignoring delete
// effects. For multi-agent tasks the graph is distributed (disRPG): agents
// iteratively reconcile the levels of shareable literals over the baton ring
// until fixpoint, after which each agent's graph reflects what the whole
// team can reach.
//
// The package also answers landmark verification queries: transient local
// (or distributed) forward-chaining closures that test whether the goals
// stay reachable when a candidate literal can never be produced.
package rpg

import (
	"sort"

	"github.com/maplan-dev/maplan/internal/event"
	"github.com/maplan-dev/maplan/internal/grounding"
	"github.com/maplan-dev/maplan/internal/logging"
)

// Unleveled is the level of a literal that no closure has reached yet.
// Downstream consumers treat unleveled literals as unreachable.
const Unleveled = -1

// Literal is a (variable, value) pair. Identity is by both fields; the
// level is metadata owned by the RPG, not by the literal.
type Literal struct {
	Var   string
	Value string
}

// String returns the literal as "var=value".
func (l Literal) String() string {
	return l.Var + "=" + l.Value
}

// RPG is one agent's relaxed planning graph. For multi-agent tasks the
// level map is reconciled across agents by Synchronize; afterwards the
// graph is used read-only by verification and heuristic queries.
type RPG struct {
	task   *grounding.Task
	logger *logging.Logger
	bus    *event.Bus

	// levels is the reconciled literal level map. Levels only ever
	// decrease: once assigned, a level may be tightened by a shared lower
	// value but never raised. Multi-agent convergence depends on this.
	levels map[Literal]int

	// actionLevels maps action name to the first level at which all its
	// preconditions are present.
	actionLevels map[string]int

	// total maps each literal to every action that can ever produce it,
	// regardless of level.
	total map[Literal][]*grounding.Action

	// direct maps each literal to the producers whose level is strictly
	// below the literal's final level. Rebuilt after synchronization.
	direct map[Literal][]*grounding.Action
}

// Option configures an RPG.
type Option func(*RPG)

// WithLogger attaches a logger for consistency warnings and sync tracing.
func WithLogger(logger *logging.Logger) Option {
	return func(r *RPG) {
		r.logger = logger
	}
}

// WithBus attaches an event bus. When set, synchronization rounds and
// convergence publish rpg.* events.
func WithBus(bus *event.Bus) Option {
	return func(r *RPG) {
		r.bus = bus
	}
}

// New creates the agent's RPG and runs the initial local leveling pass.
// Multi-agent tasks must call Synchronize before the levels are meaningful
// beyond this agent's own reach.
func New(task *grounding.Task, opts ...Option) *RPG {
	r := &RPG{
		task:         task,
		logger:       logging.NopLogger(),
		levels:       make(map[Literal]int),
		actionLevels: make(map[string]int),
		total:        make(map[Literal][]*grounding.Action),
		direct:       make(map[Literal][]*grounding.Action),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, a := range task.Actions {
		for _, eff := range a.Eff {
			lit := Literal{Var: eff.Var, Value: eff.Value}
			r.total[lit] = append(r.total[lit], a)
		}
	}
	r.relevel()
	r.rebuildProducers()
	return r
}

// Task returns the grounded task this graph was built from.
func (r *RPG) Task() *grounding.Task {
	return r.task
}

// Level returns the literal's level, or Unleveled if no closure reached it.
func (r *RPG) Level(lit Literal) int {
	if lvl, ok := r.levels[lit]; ok {
		return lvl
	}
	return Unleveled
}

// ActionLevel returns the first level at which the named action becomes
// applicable, or Unleveled if its preconditions are never all reachable.
func (r *RPG) ActionLevel(name string) int {
	if lvl, ok := r.actionLevels[name]; ok {
		return lvl
	}
	return Unleveled
}

// Producers returns every action that can ever produce the literal.
func (r *RPG) Producers(lit Literal) []*grounding.Action {
	return r.total[lit]
}

// DirectProducers returns the producers whose level is strictly below the
// literal's level. Valid after construction and refreshed by Synchronize.
func (r *RPG) DirectProducers(lit Literal) []*grounding.Action {
	return r.direct[lit]
}

// Literals returns every leveled literal sorted by (level, var, value), for
// deterministic iteration by the landmarks extractor.
func (r *RPG) Literals() []Literal {
	lits := make([]Literal, 0, len(r.levels))
	for l := range r.levels {
		lits = append(lits, l)
	}
	sort.Slice(lits, func(i, j int) bool {
		li, lj := r.levels[lits[i]], r.levels[lits[j]]
		if li != lj {
			return li < lj
		}
		if lits[i].Var != lits[j].Var {
			return lits[i].Var < lits[j].Var
		}
		return lits[i].Value < lits[j].Value
	})
	return lits
}

// initialLiterals returns the level-0 seed: this agent's known initial
// state values.
func (r *RPG) initialLiterals() []Literal {
	lits := make([]Literal, 0, len(r.task.Init))
	for v, val := range r.task.Init {
		lits = append(lits, Literal{Var: v, Value: val})
	}
	sortLiterals(lits)
	return lits
}

// sortLiterals orders literals by (var, value).
func sortLiterals(lits []Literal) {
	sort.Slice(lits, func(i, j int) bool {
		if lits[i].Var != lits[j].Var {
			return lits[i].Var < lits[j].Var
		}
		return lits[i].Value < lits[j].Value
	})
}

// relevel recomputes the whole leveling from scratch: level-0 literals from
// the initial state, plus previously learned levels for literals this agent
// has no producer for, then the standard relaxed forward closure. An action
// becomes applicable at the maximum of its precondition levels; its effects
// enter at the following level unless already present lower. Merging is by
// minimum, so reconciled levels never increase. Returns true if any level
// changed relative to the reconciled map.
func (r *RPG) relevel() bool {
	fresh := make(map[Literal]int, len(r.levels))
	for _, lit := range r.initialLiterals() {
		fresh[lit] = 0
	}
	for lit, lvl := range r.levels {
		if len(r.total[lit]) == 0 {
			// No local producer: the level was learned from another
			// agent and must seed the rebuild.
			if cur, ok := fresh[lit]; !ok || lvl < cur {
				fresh[lit] = lvl
			}
		}
	}

	actionLevels := make(map[string]int, len(r.task.Actions))
	for changed := true; changed; {
		changed = false
		for _, a := range r.task.Actions {
			al, ok := applicableAt(a, fresh)
			if !ok {
				continue
			}
			if cur, seen := actionLevels[a.Name]; !seen || al < cur {
				actionLevels[a.Name] = al
			}
			for _, eff := range a.Eff {
				lit := Literal{Var: eff.Var, Value: eff.Value}
				if cur, ok := fresh[lit]; !ok || al+1 < cur {
					fresh[lit] = al + 1
					changed = true
				}
			}
		}
	}

	r.actionLevels = actionLevels

	// Reconcile: keep the minimum of the fresh level and anything already
	// known. Levels ratchet downward only.
	dirty := false
	for lit, lvl := range fresh {
		if cur, ok := r.levels[lit]; !ok || lvl < cur {
			r.levels[lit] = lvl
			dirty = true
		}
	}
	return dirty
}

// applicableAt returns the level at which the action becomes applicable:
// the maximum of its precondition levels (0 for an action with none).
// ok is false while any precondition is unleveled.
func applicableAt(a *grounding.Action, levels map[Literal]int) (int, bool) {
	al := 0
	for _, pre := range a.Pre {
		lvl, ok := levels[Literal{Var: pre.Var, Value: pre.Value}]
		if !ok {
			return 0, false
		}
		if lvl > al {
			al = lvl
		}
	}
	return al, true
}

// rebuildProducers refreshes the direct producer sets: for each literal,
// the producers applicable strictly below the literal's level.
func (r *RPG) rebuildProducers() {
	r.direct = make(map[Literal][]*grounding.Action, len(r.total))
	for lit, producers := range r.total {
		litLevel, ok := r.levels[lit]
		if !ok {
			continue
		}
		for _, a := range producers {
			al, ok := r.actionLevels[a.Name]
			if !ok {
				continue
			}
			if al < litLevel {
				r.direct[lit] = append(r.direct[lit], a)
			}
		}
	}
}

// merge folds received (variable, value, level) entries into the level map,
// keeping the minimum on conflict. Returns true if anything changed.
func (r *RPG) merge(entries map[Literal]int) bool {
	changed := false
	for lit, lvl := range entries {
		if cur, ok := r.levels[lit]; !ok || lvl < cur {
			r.levels[lit] = lvl
			changed = true
		}
	}
	return changed
}
