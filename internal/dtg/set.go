package dtg

import (
	"context"

	"github.com/maplan-dev/maplan/internal/comms"
	"github.com/maplan-dev/maplan/internal/grounding"
)

// Set holds one domain transition graph per variable of an agent's task.
type Set struct {
	task   *grounding.Task
	graphs map[string]*Graph
}

// NewSet builds the graphs for every variable of the task from the agent's
// own actions. For multi-agent tasks, call Distribute afterwards so that
// transitions produced by other agents' actions on shared variables become
// locally answerable.
func NewSet(task *grounding.Task) *Set {
	s := &Set{
		task:   task,
		graphs: make(map[string]*Graph, len(task.Variables)),
	}
	for _, v := range task.Variables {
		s.graphs[v.Name] = buildGraph(task, v)
	}
	return s
}

// Graph returns the graph for a variable, if one exists.
func (s *Set) Graph(variable string) (*Graph, bool) {
	g, ok := s.graphs[variable]
	return g, ok
}

// PathCost returns the shortest transition cost between two values of a
// variable, or Infinite if the variable is unknown or no path exists.
func (s *Set) PathCost(variable, from, to string) int {
	g, ok := s.graphs[variable]
	if !ok {
		return Infinite
	}
	return g.PathCost(from, to)
}

// Path returns a shortest value sequence between two values of a variable,
// or nil if unreachable.
func (s *Set) Path(variable, from, to string) []string {
	g, ok := s.graphs[variable]
	if !ok {
		return nil
	}
	return g.Path(from, to)
}

// Distribute runs the one-time DTG distribution round over the agent ring:
// each agent, on its baton turn, sends every other agent the edges of shared
// variables that agent may observe; receivers merge them as remote edges
// (agents known, producing actions not). After a full round every agent can
// answer local path queries about shared variables. This is a data
// distribution step performed once at startup, not a query-time protocol.
func (s *Set) Distribute(ctx context.Context, reg *comms.Registry) error {
	if reg.NumAgents() < 2 {
		return nil
	}
	reg.ResetBaton()

	for round := 0; round < reg.NumAgents(); round++ {
		if reg.HoldsBaton() {
			for _, other := range reg.OtherAgents() {
				msg := comms.Message{
					Kind:  comms.KindDTGEdges,
					Edges: s.shareableEdges(other),
				}
				if err := reg.Send(ctx, other, msg); err != nil {
					return err
				}
			}
		} else {
			msg, err := reg.Receive(ctx, comms.Filter{
				From:  reg.BatonAgent(),
				Kinds: []comms.Kind{comms.KindDTGEdges},
			})
			if err != nil {
				return err
			}
			s.merge(msg.Edges)
		}
		reg.PassBaton()
	}
	return nil
}

// shareableEdges collects the edges this agent may share with the given
// peer: both endpoint values must be shareable (the unknown node always is).
func (s *Set) shareableEdges(agent string) []comms.EdgeEntry {
	var entries []comms.EdgeEntry
	for _, v := range s.task.Variables {
		g := s.graphs[v.Name]
		for _, e := range g.Edges() {
			if e.Remote() {
				continue // do not re-share learned edges
			}
			if !s.endpointShareable(v.Name, e.From, agent) ||
				!s.endpointShareable(v.Name, e.To, agent) {
				continue
			}
			entries = append(entries, comms.EdgeEntry{
				Var:    v.Name,
				From:   e.From,
				To:     e.To,
				Agents: e.Agents,
			})
		}
	}
	return entries
}

func (s *Set) endpointShareable(variable, value, agent string) bool {
	if value == UnknownValue {
		return true
	}
	return s.task.Shareable(variable, value, agent)
}

// merge folds received edges into the local graphs, creating graphs for
// variables this agent observes but has no own transitions for.
func (s *Set) merge(entries []comms.EdgeEntry) {
	for _, e := range entries {
		g, ok := s.graphs[e.Var]
		if !ok {
			// The sender shares a variable this agent cannot observe at
			// all; skip rather than invent state we cannot evaluate.
			continue
		}
		g.mergeRemote(e.From, e.To, e.Agents)
	}
}
