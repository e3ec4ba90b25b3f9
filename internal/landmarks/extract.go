package landmarks

import (
	"context"
	"sort"

	"github.com/maplan-dev/maplan/internal/comms"
	"github.com/maplan-dev/maplan/internal/event"
	"github.com/maplan-dev/maplan/internal/grounding"
	"github.com/maplan-dev/maplan/internal/logging"
	"github.com/maplan-dev/maplan/internal/rpg"
)

// verifyFunc decides whether a candidate literal set is a landmark.
type verifyFunc func(lits []rpg.Literal) (bool, error)

// producersFunc returns one precondition set per producer of the node's
// literal set.
type producersFunc func(n *Node) ([][]grounding.Condition, error)

// extractor carries the ambient hooks of one extraction run.
type extractor struct {
	logger *logging.Logger
	bus    *event.Bus
}

// Option configures an extraction run.
type Option func(*extractor)

// WithLogger attaches a logger for candidate tracing.
func WithLogger(logger *logging.Logger) Option {
	return func(x *extractor) {
		x.logger = logger
	}
}

// WithBus attaches an event bus. When set, every candidate verdict
// publishes a landmark event.
func WithBus(bus *event.Bus) Option {
	return func(x *extractor) {
		x.bus = bus
	}
}

func newExtractor(opts []Option) *extractor {
	x := &extractor{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// observe reports one candidate verdict to the run's hooks.
func (x *extractor) observe(agent string, lits []rpg.Literal, accepted bool) {
	strs := make([]string, len(lits))
	for i, l := range lits {
		strs[i] = l.String()
	}
	x.logger.Debug("landmark candidate", "literals", strs, "accepted", accepted)
	if x.bus != nil {
		x.bus.Publish(event.NewLandmarkEvent(agent, strs, accepted))
	}
}

// Extract builds the landmark graph for a single agent: goals are
// back-chained through the graph's direct producers, shared precondition
// variables become candidates (single when every producer requires the
// same value, disjunctive otherwise), and each candidate is kept only when
// the verification closure confirms it.
func Extract(task *grounding.Task, r *rpg.RPG, opts ...Option) *Graph {
	x := newExtractor(opts)
	g, _ := extract(task, x,
		func(n *Node) ([][]grounding.Condition, error) {
			return localProducers(r, n), nil
		},
		func(lits []rpg.Literal) (bool, error) {
			return r.VerifyDisjunctiveLandmark(lits), nil
		})
	return g
}

// ExtractMA builds the landmark graph for a ring of agents. The first
// agent in ring order drives the back-chaining: for each node it queries
// every agent for the preconditions of their producers, derives candidates
// from the union, and has the whole ring verify each candidate together.
// The finished graph is broadcast so every agent holds the same nodes and
// orderings; the other agents serve queries and verification rounds until
// it arrives.
func ExtractMA(ctx context.Context, reg *comms.Registry, task *grounding.Task, r *rpg.RPG, opts ...Option) (*Graph, error) {
	if reg.NumAgents() < 2 {
		return Extract(task, r, opts...), nil
	}
	if reg.ThisAgent() == reg.Agents()[0] {
		return driveExtraction(ctx, reg, task, r, newExtractor(opts))
	}
	return followExtraction(ctx, reg, task, r)
}

func driveExtraction(ctx context.Context, reg *comms.Registry, task *grounding.Task, r *rpg.RPG, x *extractor) (*Graph, error) {
	g, err := extract(task, x,
		func(n *Node) ([][]grounding.Condition, error) {
			return ringProducers(ctx, reg, r, n)
		},
		func(lits []rpg.Literal) (bool, error) {
			proposal := comms.Message{
				Kind:       comms.KindLandmarkProposal,
				MultiState: litsToMultiState(lits),
			}
			if err := reg.Broadcast(ctx, proposal); err != nil {
				return false, err
			}
			return r.VerifyMA(ctx, reg, lits)
		})
	if err != nil {
		return nil, err
	}
	if err := reg.Broadcast(ctx, comms.Message{
		Kind:      comms.KindLandmarkGraph,
		Landmarks: encodeGraph(g),
	}); err != nil {
		return nil, err
	}
	return g, nil
}

// ringProducers joins the local producers with every other agent's.
func ringProducers(ctx context.Context, reg *comms.Registry, r *rpg.RPG, n *Node) ([][]grounding.Condition, error) {
	pres := localProducers(r, n)
	if err := reg.Broadcast(ctx, comms.Message{
		Kind:       comms.KindProducerQuery,
		MultiState: litsToMultiState(n.literals),
	}); err != nil {
		return nil, err
	}
	for range reg.OtherAgents() {
		msg, err := reg.Receive(ctx, comms.Filter{Kinds: []comms.Kind{comms.KindProducerReply}})
		if err != nil {
			return nil, err
		}
		for _, e := range msg.Landmarks {
			pre := make([]grounding.Condition, 0, len(e.Literals))
			for _, l := range e.Literals {
				pre = append(pre, grounding.Condition{Var: l.Var, Value: l.Value})
			}
			pres = append(pres, pre)
		}
	}
	return pres, nil
}

// followExtraction serves producer queries and verification rounds until
// the driver broadcasts the finished graph.
func followExtraction(ctx context.Context, reg *comms.Registry, task *grounding.Task, r *rpg.RPG) (*Graph, error) {
	driver := reg.Agents()[0]
	kinds := []comms.Kind{
		comms.KindProducerQuery,
		comms.KindLandmarkProposal,
		comms.KindLandmarkGraph,
	}
	for {
		msg, err := reg.Receive(ctx, comms.Filter{From: driver, Kinds: kinds})
		if err != nil {
			return nil, err
		}
		switch msg.Kind {
		case comms.KindLandmarkGraph:
			return decodeGraph(task, msg.Landmarks), nil
		case comms.KindProducerQuery:
			reply := comms.Message{
				Kind:      comms.KindProducerReply,
				Landmarks: producerReply(task, r, multiStateToLits(msg.MultiState), driver),
			}
			if err := reg.Send(ctx, driver, reply); err != nil {
				return nil, err
			}
		case comms.KindLandmarkProposal:
			if _, err := r.VerifyMA(ctx, reg, multiStateToLits(msg.MultiState)); err != nil {
				return nil, err
			}
		}
	}
}

// producerReply encodes this agent's producers of the literal set, keeping
// only precondition literals shareable with the asking agent.
func producerReply(task *grounding.Task, r *rpg.RPG, lits []rpg.Literal, asker string) []comms.LandmarkEntry {
	var entries []comms.LandmarkEntry
	for _, pre := range localProducers(r, &Node{literals: lits}) {
		var e comms.LandmarkEntry
		for _, c := range pre {
			if !task.Shareable(c.Var, c.Value, asker) {
				continue
			}
			e.Literals = append(e.Literals, comms.LevelEntry{Var: c.Var, Value: c.Value})
		}
		entries = append(entries, e)
	}
	return entries
}

// extract is the shared back-chaining loop.
func extract(task *grounding.Task, x *extractor, producers producersFunc, verify verifyFunc) (*Graph, error) {
	g := &Graph{task: task, byKey: make(map[string]*Node)}

	var queue []*Node
	for _, goal := range task.GoalsOn() {
		lit := rpg.Literal{Var: goal.Var, Value: goal.Value}
		if initHolds(task, []rpg.Literal{lit}) {
			continue
		}
		n, fresh := g.node([]rpg.Literal{lit}, true)
		if fresh {
			queue = append(queue, n)
		}
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		pres, err := producers(n)
		if err != nil {
			return nil, err
		}
		if len(pres) == 0 {
			continue
		}
		for _, lits := range candidates(pres) {
			if initHolds(task, lits) || litKey(lits) == litKey(n.literals) {
				continue
			}
			ok, err := verify(lits)
			if err != nil {
				return nil, err
			}
			x.observe(task.Agent, lits, ok)
			if !ok {
				continue
			}
			c, fresh := g.node(lits, false)
			g.order(c, n)
			if fresh {
				queue = append(queue, c)
			}
		}
	}

	g.reduce()
	return g, nil
}

// localProducers collects the precondition set of each direct producer of
// the node's literals, deduplicated by action and sorted by name.
func localProducers(r *rpg.RPG, n *Node) [][]grounding.Condition {
	seen := make(map[string]bool)
	var acts []*grounding.Action
	for _, lit := range n.literals {
		for _, a := range r.DirectProducers(lit) {
			if !seen[a.Name] {
				seen[a.Name] = true
				acts = append(acts, a)
			}
		}
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].Name < acts[j].Name })

	pres := make([][]grounding.Condition, len(acts))
	for i, a := range acts {
		pres[i] = a.Pre
	}
	return pres
}

// candidates derives one candidate literal set per variable constrained by
// every producer: the union of the producers' precondition values on that
// variable.
func candidates(pres [][]grounding.Condition) [][]rpg.Literal {
	var vars []string
	for _, c := range pres[0] {
		vars = append(vars, c.Var)
	}
	sort.Strings(vars)

	var out [][]rpg.Literal
	for _, v := range vars {
		values := make(map[string]bool)
		inAll := true
		for _, pre := range pres {
			val, ok := condOn(pre, v)
			if !ok {
				inAll = false
				break
			}
			values[val] = true
		}
		if !inAll {
			continue
		}
		lits := make([]rpg.Literal, 0, len(values))
		for val := range values {
			lits = append(lits, rpg.Literal{Var: v, Value: val})
		}
		out = append(out, sorted(lits))
	}
	return out
}

func condOn(pre []grounding.Condition, variable string) (string, bool) {
	for _, c := range pre {
		if c.Var == variable {
			return c.Value, true
		}
	}
	return "", false
}

// initHolds reports whether the literal set is already satisfied in the
// initial state.
func initHolds(task *grounding.Task, lits []rpg.Literal) bool {
	for _, l := range lits {
		if task.Init[l.Var] == l.Value {
			return true
		}
	}
	return false
}

// NeedsEvaluationStage reports whether heuristic evaluation needs the
// extra multi-agent stage: some agent cannot locally observe every
// disjunctive landmark node. Each agent computes its local answer and the
// ring ORs them over one baton round.
func NeedsEvaluationStage(ctx context.Context, reg *comms.Registry, task *grounding.Task, g *Graph) (bool, error) {
	local := false
	for _, n := range g.Nodes() {
		if !n.Disjunctive() {
			continue
		}
		for _, l := range n.Literals() {
			if !task.Shareable(l.Var, l.Value, task.Agent) {
				local = true
			}
		}
	}
	if reg.NumAgents() < 2 {
		return local, nil
	}

	reg.ResetBaton()
	needed := local
	for i := 0; i < reg.NumAgents(); i++ {
		if reg.HoldsBaton() {
			if err := reg.Broadcast(ctx, comms.Message{
				Kind: comms.KindBoolExchange,
				Flag: local,
			}); err != nil {
				return false, err
			}
		} else {
			msg, err := reg.Receive(ctx, comms.Filter{
				From:  reg.BatonAgent(),
				Kinds: []comms.Kind{comms.KindBoolExchange},
			})
			if err != nil {
				return false, err
			}
			needed = needed || msg.Flag
		}
		reg.PassBaton()
	}
	return needed, nil
}

// litsToMultiState encodes a literal set as variable to value list.
func litsToMultiState(lits []rpg.Literal) map[string][]string {
	m := make(map[string][]string)
	for _, l := range lits {
		m[l.Var] = append(m[l.Var], l.Value)
	}
	return m
}

// multiStateToLits decodes the wire form back to a sorted literal set.
func multiStateToLits(m map[string][]string) []rpg.Literal {
	var lits []rpg.Literal
	for v, values := range m {
		for _, val := range values {
			lits = append(lits, rpg.Literal{Var: v, Value: val})
		}
	}
	return sorted(lits)
}

// encodeGraph flattens the graph for the wire.
func encodeGraph(g *Graph) []comms.LandmarkEntry {
	entries := make([]comms.LandmarkEntry, len(g.nodes))
	for i, n := range g.nodes {
		e := comms.LandmarkEntry{Index: n.index, Goal: n.goal}
		for _, l := range n.literals {
			e.Literals = append(e.Literals, comms.LevelEntry{Var: l.Var, Value: l.Value})
		}
		for _, p := range n.preds {
			e.Preds = append(e.Preds, p.index)
		}
		entries[i] = e
	}
	return entries
}

// decodeGraph rebuilds a graph from its wire form against the local task.
func decodeGraph(task *grounding.Task, entries []comms.LandmarkEntry) *Graph {
	g := &Graph{task: task, byKey: make(map[string]*Node)}
	g.nodes = make([]*Node, len(entries))
	for _, e := range entries {
		lits := make([]rpg.Literal, 0, len(e.Literals))
		for _, l := range e.Literals {
			lits = append(lits, rpg.Literal{Var: l.Var, Value: l.Value})
		}
		n := &Node{index: e.Index, literals: sorted(lits), goal: e.Goal}
		g.nodes[e.Index] = n
		g.byKey[litKey(n.literals)] = n
	}
	for _, e := range entries {
		n := g.nodes[e.Index]
		for _, pi := range e.Preds {
			p := g.nodes[pi]
			p.succs = append(p.succs, n)
			n.preds = append(n.preds, p)
		}
	}
	return g
}
