package rpg

import (
	"context"

	"github.com/maplan-dev/maplan/internal/comms"
	"github.com/maplan-dev/maplan/internal/errors"
	"github.com/maplan-dev/maplan/internal/event"
)

// Synchronize reconciles shareable literal levels across the agent ring
// until fixpoint. The baton holder rebuilds its local leveling from scratch
// (seeding learned levels for producerless literals), sends each other agent
// the levels of literals shareable with it plus a changed flag, and passes
// the baton. Non-holders merge the received entries at minimum level and
// pass the baton onward without recomputing.
//
// Termination: every agent counts consecutive no-change rounds from the one
// changed flag broadcast per round; the loop ends after a full quiet round
// (counter equal to the ring size). Because all agents observe the same flag
// sequence, they terminate in the same round. On termination the local
// leveling and the level-filtered producer sets are rebuilt once more from
// the reconciled map.
//
// Single-agent tasks return immediately; the construction-time leveling is
// already complete.
func (r *RPG) Synchronize(ctx context.Context, reg *comms.Registry) error {
	if reg.NumAgents() < 2 {
		return nil
	}
	reg.ResetBaton()

	log := r.logger.WithComponent("rpg").WithAgent(reg.ThisAgent())
	quiet := 0
	round := 0

	for quiet < reg.NumAgents() {
		round++
		var changed bool

		if reg.HoldsBaton() {
			changed = r.relevel()
			for _, other := range reg.OtherAgents() {
				msg := comms.Message{
					Kind:    comms.KindRPGLevels,
					Levels:  r.shareableLevels(other),
					Changed: changed,
				}
				if err := reg.Send(ctx, other, msg); err != nil {
					return err
				}
			}
		} else {
			msg, err := reg.Receive(ctx, comms.Filter{
				From:  reg.BatonAgent(),
				Kinds: []comms.Kind{comms.KindRPGLevels},
			})
			if err != nil {
				return err
			}
			r.merge(entriesToLevels(msg.Levels))
			changed = msg.Changed
		}

		if changed {
			quiet = 0
		} else {
			quiet++
		}
		log.Debug("rpg sync round", "round", round, "changed", changed, "quiet", quiet)
		if r.bus != nil {
			r.bus.Publish(event.NewRPGRoundEvent(reg.ThisAgent(), round, changed))
		}
		reg.PassBaton()
	}

	// Rebuild local buckets from the reconciled level map.
	r.relevel()
	r.rebuildProducers()
	log.Info("rpg synchronization converged", "rounds", round)
	if r.bus != nil {
		r.bus.Publish(event.NewRPGConvergedEvent(reg.ThisAgent(), round))
	}
	return nil
}

// shareableLevels collects the (variable, value, level) triples this agent
// may share with the given peer.
func (r *RPG) shareableLevels(agent string) []comms.LevelEntry {
	var entries []comms.LevelEntry
	for _, lit := range r.Literals() {
		if !r.task.Shareable(lit.Var, lit.Value, agent) {
			continue
		}
		entries = append(entries, comms.LevelEntry{
			Var:   lit.Var,
			Value: lit.Value,
			Level: r.levels[lit],
		})
	}
	return entries
}

// entriesToLevels converts wire entries to a literal level map. Entries at
// or below Unleveled carry no information and are skipped.
func entriesToLevels(entries []comms.LevelEntry) map[Literal]int {
	m := make(map[Literal]int, len(entries))
	for _, e := range entries {
		if e.Level <= Unleveled {
			continue
		}
		m[Literal{Var: e.Var, Value: e.Value}] = e.Level
	}
	return m
}

// checkSender validates that a message came from the expected baton holder.
func checkSender(m comms.Message, expected string) error {
	if m.From != expected {
		return errors.NewProtocolError("message from non-baton agent", errors.ErrBatonMismatch).
			WithAgent(m.From).WithKind(string(m.Kind))
	}
	return nil
}
