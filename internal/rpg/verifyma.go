package rpg

import (
	"context"

	"github.com/maplan-dev/maplan/internal/comms"
)

// maVerifier is the per-call state of one distributed verification stage:
// the local banned closure, plus per-peer bookkeeping of which reached
// literals have already been shared with them.
type maVerifier struct {
	rpg   *RPG
	reg   *comms.Registry
	c     *closureState
	sent  map[string]map[Literal]bool
	dirty bool
}

// VerifyMA reports whether the literal set, taken as a disjunction, is a
// landmark for the whole team. Every agent in the ring must call VerifyMA
// with the same candidate in the same stage; the call blocks until the ring
// reaches a verdict.
//
// Each agent runs a local closure with the candidate banned. Per baton
// round the non-holders report their newly reached shareable literals to
// the holder, which merges them, re-expands, and broadcasts a decision:
// IsNotLandmark once every agent sees all of its goals reached, IsLandmark
// once a whole round passes with no closure growing, Continue otherwise. The
// Continue broadcast carries the holder's newly merged literals so
// knowledge relays across agents that share nothing directly.
func (r *RPG) VerifyMA(ctx context.Context, reg *comms.Registry, lits []Literal) (bool, error) {
	if len(lits) == 0 {
		return false, nil
	}
	if reg.NumAgents() < 2 {
		return r.VerifyDisjunctiveLandmark(lits), nil
	}
	reg.ResetBaton()

	banned := make(map[Literal]bool, len(lits))
	for _, l := range lits {
		banned[l] = true
	}
	v := &maVerifier{
		rpg:   r,
		reg:   reg,
		c:     r.newClosure(banned, nil),
		sent:  make(map[string]map[Literal]bool),
		dirty: true,
	}
	v.c.expand()

	for round := 1; ; round++ {
		var decision comms.VerifyDecision
		var err error
		if reg.HoldsBaton() {
			decision, err = v.holderRound(ctx, round, lits)
		} else {
			decision, err = v.peerRound(ctx)
		}
		if err != nil {
			return false, err
		}
		switch decision {
		case comms.DecisionIsLandmark:
			return true, nil
		case comms.DecisionIsNotLandmark:
			return false, nil
		}
		reg.PassBaton()
	}
}

// holderRound collects one report from every other agent, merges and
// re-expands the closure, decides, and broadcasts the decision.
func (v *maVerifier) holderRound(ctx context.Context, round int, lits []Literal) (comms.VerifyDecision, error) {
	anyChanged := v.dirty
	peersPending := 0
	for range v.reg.OtherAgents() {
		msg, err := v.reg.Receive(ctx, comms.Filter{Kinds: []comms.Kind{comms.KindVerifyReport}})
		if err != nil {
			return "", err
		}
		if msg.Changed {
			anyChanged = true
		}
		peersPending += msg.PendingGoals
		if v.mergeReached(msg.Levels) {
			anyChanged = true
		}
	}
	if v.c.expand() {
		anyChanged = true
	}
	v.dirty = false

	decision := comms.DecisionContinue
	switch {
	case round == 1 && v.anyInitial(lits):
		// A candidate already true in the initial state is trivially a
		// landmark.
		decision = comms.DecisionIsLandmark
	case v.rpg.pendingGoals(v.c) == 0 && peersPending == 0:
		decision = comms.DecisionIsNotLandmark
	default:
		// The holder has just aggregated every agent's report, so one
		// round without change anywhere already proves the fixpoint.
		if !anyChanged {
			decision = comms.DecisionIsLandmark
		}
	}

	for _, other := range v.reg.OtherAgents() {
		msg := comms.Message{
			Kind:     comms.KindVerifyDecision,
			Decision: decision,
			Changed:  anyChanged,
			Levels:   v.unsent(other),
		}
		if err := v.reg.Send(ctx, other, msg); err != nil {
			return "", err
		}
	}
	return decision, nil
}

// peerRound reports newly reached literals to the holder and applies its
// decision.
func (v *maVerifier) peerRound(ctx context.Context) (comms.VerifyDecision, error) {
	holder := v.reg.BatonAgent()
	report := comms.Message{
		Kind:         comms.KindVerifyReport,
		Levels:       v.unsent(holder),
		Changed:      v.dirty,
		PendingGoals: v.rpg.pendingGoals(v.c),
	}
	if err := v.reg.Send(ctx, holder, report); err != nil {
		return "", err
	}

	msg, err := v.reg.Receive(ctx, comms.Filter{Kinds: []comms.Kind{comms.KindVerifyDecision}})
	if err != nil {
		return "", err
	}
	if err := checkSender(msg, holder); err != nil {
		return "", err
	}

	v.dirty = v.mergeReached(msg.Levels)
	if v.c.expand() {
		v.dirty = true
	}
	return msg.Decision, nil
}

// anyInitial reports whether any candidate literal holds at level 0.
func (v *maVerifier) anyInitial(lits []Literal) bool {
	for _, l := range lits {
		if lvl, ok := v.rpg.levels[l]; ok && lvl == 0 {
			return true
		}
	}
	return false
}

// unsent collects the reached literals shareable with the peer that have
// not been sent to it yet, and marks them sent.
func (v *maVerifier) unsent(peer string) []comms.LevelEntry {
	marked := v.sent[peer]
	if marked == nil {
		marked = make(map[Literal]bool)
		v.sent[peer] = marked
	}
	var entries []comms.LevelEntry
	for _, lit := range sortedLiterals(v.c.reached) {
		if marked[lit] || !v.rpg.task.Shareable(lit.Var, lit.Value, peer) {
			continue
		}
		marked[lit] = true
		entries = append(entries, comms.LevelEntry{Var: lit.Var, Value: lit.Value})
	}
	return entries
}

// mergeReached folds received literals into the closure's reached set,
// skipping banned ones. Returns true if anything was added.
func (v *maVerifier) mergeReached(entries []comms.LevelEntry) bool {
	added := false
	for _, e := range entries {
		lit := Literal{Var: e.Var, Value: e.Value}
		if v.c.banned[lit] || v.c.reached[lit] {
			continue
		}
		v.c.reached[lit] = true
		added = true
	}
	return added
}

// sortedLiterals returns the set's members sorted by (var, value).
func sortedLiterals(set map[Literal]bool) []Literal {
	lits := make([]Literal, 0, len(set))
	for l := range set {
		lits = append(lits, l)
	}
	sortLiterals(lits)
	return lits
}
