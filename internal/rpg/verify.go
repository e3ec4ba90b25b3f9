package rpg

import (
	"github.com/maplan-dev/maplan/internal/errors"
	"github.com/maplan-dev/maplan/internal/grounding"
)

// closureState is the working state of one verification closure: the
// reached literal set and the frontier of actions not yet applied. Actions
// leave the frontier once applied, so the fixpoint loop is bounded by the
// action count.
type closureState struct {
	reached  map[Literal]bool
	frontier []*grounding.Action
	banned   map[Literal]bool
}

// newClosure seeds a closure from the initial state, minus banned literals,
// with every non-excluded action pending.
func (r *RPG) newClosure(banned map[Literal]bool, excluded map[string]bool) *closureState {
	c := &closureState{
		reached:  make(map[Literal]bool),
		frontier: make([]*grounding.Action, 0, len(r.task.Actions)),
		banned:   banned,
	}
	for _, lit := range r.initialLiterals() {
		if !banned[lit] {
			c.reached[lit] = true
		}
	}
	for _, a := range r.task.Actions {
		if !excluded[a.Name] {
			c.frontier = append(c.frontier, a)
		}
	}
	return c
}

// expand runs the monotone forward closure to a local fixpoint: every
// pending action whose preconditions are all reached fires, adds its
// non-banned effects, and leaves the frontier. Returns true if any literal
// was added.
func (c *closureState) expand() bool {
	added := false
	for changed := true; changed; {
		changed = false
		remaining := c.frontier[:0]
		for _, a := range c.frontier {
			if !c.applicable(a) {
				remaining = append(remaining, a)
				continue
			}
			changed = true
			for _, eff := range a.Eff {
				lit := Literal{Var: eff.Var, Value: eff.Value}
				if c.banned[lit] || c.reached[lit] {
					continue
				}
				c.reached[lit] = true
				added = true
			}
		}
		c.frontier = remaining
	}
	return added
}

// applicable reports whether every precondition of the action is reached.
func (c *closureState) applicable(a *grounding.Action) bool {
	for _, pre := range a.Pre {
		if !c.reached[Literal{Var: pre.Var, Value: pre.Value}] {
			return false
		}
	}
	return true
}

// pendingGoals counts the global goals not in the reached set.
func (r *RPG) pendingGoals(c *closureState) int {
	pending := 0
	for _, g := range r.task.Goals {
		if !c.reached[Literal{Var: g.Var, Value: g.Value}] {
			pending++
		}
	}
	return pending
}

// Verify reports whether the literal is a landmark: the goals cannot all be
// reached by a relaxed closure in which the literal is never produced.
// A literal already true in the initial state is trivially a landmark.
// A missing level is logged as a consistency warning, never an error; the
// closure decides the answer regardless.
func (r *RPG) Verify(lit Literal) bool {
	if lvl, ok := r.levels[lit]; ok && lvl == 0 {
		return true
	}
	if _, ok := r.levels[lit]; !ok {
		warn := errors.NewConsistencyError("literal has no level during verification").
			WithLiteral(lit.Var, lit.Value)
		r.logger.Warn(warn.Error())
	}
	return r.verifyBanned(map[Literal]bool{lit: true}, nil)
}

// VerifySingleLandmark is Verify under the name the landmarks extractor
// uses for single-literal candidates.
func (r *RPG) VerifySingleLandmark(lit Literal) bool {
	return r.Verify(lit)
}

// VerifyDisjunctiveLandmark reports whether the literal set, taken as a
// disjunction, is a landmark: banning every member at once must make the
// goals unreachable.
func (r *RPG) VerifyDisjunctiveLandmark(lits []Literal) bool {
	if len(lits) == 0 {
		return false
	}
	banned := make(map[Literal]bool, len(lits))
	for _, l := range lits {
		if lvl, ok := r.levels[l]; ok && lvl == 0 {
			// One disjunct already holds initially.
			return true
		}
		banned[l] = true
	}
	return r.verifyBanned(banned, nil)
}

// VerifyEdge reports whether the given producer actions are necessary:
// excluding them from the closure must leave at least one goal unreached.
func (r *RPG) VerifyEdge(producers []string) bool {
	if len(producers) == 0 {
		return false
	}
	excluded := make(map[string]bool, len(producers))
	for _, name := range producers {
		excluded[name] = true
	}
	return r.verifyBanned(nil, excluded)
}

// verifyBanned runs the closure and reports whether goals stay unreached.
func (r *RPG) verifyBanned(banned map[Literal]bool, excluded map[string]bool) bool {
	c := r.newClosure(banned, excluded)
	c.expand()
	return r.pendingGoals(c) > 0
}
