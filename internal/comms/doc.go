// Package comms provides inter-agent communication for maplan planning runs.
//
// Agents are arranged in a logical ring with a rotating "baton" token. The
// baton grants one agent leader responsibilities for a single coordination
// round: recomputing its relaxed planning graph, broadcasting level updates,
// or deciding a landmark-verification stage. Every agent advances the baton
// locally in lock-step, so no token message crosses the wire; the protocols
// guarantee each agent executes exactly one PassBaton per round.
//
// # Architecture
//
//   - [Message]: one protocol message. The message set is closed and tagged
//     by [Kind]; only the payload fields relevant to a kind are populated.
//   - [Filter]: receive-side selection by sender, kind set, and request ID.
//   - [Transport]: delivery substrate. Two implementations ship:
//     [ChannelTransport] runs N agents inside one process over buffered
//     channels (used by the CLI runner and the tests), and [FileTransport]
//     delivers messages through per-agent JSONL mailboxes under a shared
//     directory, watching for arrivals with fsnotify plus a poll fallback.
//   - [Registry]: an agent's view of the ring. Owns the baton position and
//     wraps the transport with ID/timestamp stamping and broadcast.
//
// # Blocking semantics
//
// All protocol exchanges are synchronous rendezvous loops: send, then a
// blocking filtered receive, repeated until a round-completion predicate
// holds. There are no timeouts: message loss is not modeled, and a
// non-responding agent stalls the whole protocol. This mirrors the
// coordination design the planner's convergence arguments depend on (the
// baton holder's broadcast is causally ordered before every other agent's
// actions for that round).
//
// As a resilience addition over that baseline design, every blocking call
// accepts a context.Context: a cancelled context surfaces its error from
// the blocked call. Closing the transport wakes every agent still blocked
// in Receive with ErrRingClosed; runners close the transport on the way
// out, so a cancelled run never leaves one agent parked on a baton round
// that will not complete.
//
// Unmatched messages are never dropped: each agent's receiver keeps a
// pending list and a filtered Receive only consumes the first match,
// leaving the rest for later receives.
package comms
