// Package dtg builds domain transition graphs: one directed graph per state
// variable whose nodes are the variable's reachable values and whose edges
// are the value transitions induced by grounded actions. The planner's
// heuristics use shortest-path distances over these graphs as per-variable
// cost estimates.
//
// Each graph also carries a synthetic unknown node "?" so that queries can
// degrade gracefully when an agent does not know a shared variable's exact
// value: an effect with no precondition on its variable produces an edge
// from "?", and unknown query endpoints are routed through "?".
package dtg

import (
	"container/heap"
	"sort"

	"github.com/maplan-dev/maplan/internal/grounding"
)

// UnknownValue is the synthetic node representing an unknown variable value.
const UnknownValue = "?"

// Infinite is the sentinel cost for unreachable transitions. It is large
// enough to dominate any real path cost but safe to compare and add once.
const Infinite = 1 << 30

// Edge is a directed transition between two values of one variable.
// Actions lists the locally known producing actions; Agents lists every
// agent known to own a producing action. An edge with no Actions but a
// non-empty Agents list was learned during distribution: its cost must be
// requested from one of those agents.
type Edge struct {
	From    string
	To      string
	Actions []string
	Agents  []string
}

// Remote reports whether traversing this edge requires asking another agent
// for its cost: no locally known producing action exists.
func (e *Edge) Remote() bool {
	return len(e.Actions) == 0
}

// Graph is the domain transition graph of a single variable.
type Graph struct {
	Var string

	values map[string]bool
	out    map[string][]*Edge // from-value -> outgoing edges
	index  map[[2]string]*Edge
}

// newGraph creates an empty graph seeded with the variable's values and the
// unknown node.
func newGraph(variable string, values []string) *Graph {
	g := &Graph{
		Var:    variable,
		values: make(map[string]bool, len(values)+1),
		out:    make(map[string][]*Edge),
		index:  make(map[[2]string]*Edge),
	}
	for _, v := range values {
		g.values[v] = true
	}
	g.values[UnknownValue] = true
	return g
}

// addTransition records a transition produced by the named action owned by
// the given agent. Repeated transitions merge into one edge.
func (g *Graph) addTransition(from, to, action, agent string) {
	e := g.ensureEdge(from, to)
	if action != "" {
		e.Actions = appendUnique(e.Actions, action)
	}
	e.Agents = appendUnique(e.Agents, agent)
}

// mergeRemote records a transition learned from another agent during
// distribution. The producing actions stay unknown; only the owning agents
// are recorded.
func (g *Graph) mergeRemote(from, to string, agents []string) {
	e := g.ensureEdge(from, to)
	for _, a := range agents {
		e.Agents = appendUnique(e.Agents, a)
	}
}

func (g *Graph) ensureEdge(from, to string) *Edge {
	g.values[from] = true
	g.values[to] = true
	key := [2]string{from, to}
	if e, ok := g.index[key]; ok {
		return e
	}
	e := &Edge{From: from, To: to}
	g.index[key] = e
	g.out[from] = append(g.out[from], e)
	return e
}

// Edge returns the edge between two values, if one exists.
func (g *Graph) Edge(from, to string) (*Edge, bool) {
	e, ok := g.index[[2]string{from, to}]
	return e, ok
}

// EdgesFrom returns the outgoing edges of a value, sorted by target value
// for deterministic iteration.
func (g *Graph) EdgesFrom(from string) []*Edge {
	edges := make([]*Edge, len(g.out[from]))
	copy(edges, g.out[from])
	sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
	return edges
}

// Edges returns every edge of the graph, sorted by (from, to).
func (g *Graph) Edges() []*Edge {
	var edges []*Edge
	for _, out := range g.out {
		edges = append(edges, out...)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

// HasValue reports whether the graph knows the given value.
func (g *Graph) HasValue(v string) bool {
	return g.values[v]
}

// normalize maps values the graph does not know onto the unknown node, so
// multi-agent queries with foreign values route through "?".
func (g *Graph) normalize(v string) string {
	if g.values[v] {
		return v
	}
	return UnknownValue
}

// PathCost returns the length of the shortest transition sequence from one
// value to another (unit edge weights), or Infinite if no sequence exists.
// Costs are directed: PathCost(a, b) need not equal PathCost(b, a).
func (g *Graph) PathCost(from, to string) int {
	cost, _ := g.dijkstra(g.normalize(from), g.normalize(to))
	return cost
}

// Path returns the value sequence of a shortest path, including both
// endpoints, or nil if no path exists. A query between equal values returns
// the single-element sequence.
func (g *Graph) Path(from, to string) []string {
	_, path := g.dijkstra(g.normalize(from), g.normalize(to))
	return path
}

// pqItem is a priority-queue entry for dijkstra. Ties on distance break
// lexicographically on value name so traversal order is deterministic.
type pqItem struct {
	value string
	dist  int
}

type pq []pqItem

func (q pq) Len() int { return len(q) }
func (q pq) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].value < q[j].value
}
func (q pq) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *pq) Push(x any)   { *q = append(*q, x.(pqItem)) }

func (q *pq) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func (g *Graph) dijkstra(from, to string) (int, []string) {
	if from == to {
		return 0, []string{from}
	}

	dist := map[string]int{from: 0}
	prev := map[string]string{}
	q := &pq{{value: from, dist: 0}}

	for q.Len() > 0 {
		item := heap.Pop(q).(pqItem)
		if item.dist > dist[item.value] {
			continue // stale entry
		}
		if item.value == to {
			break
		}
		for _, e := range g.EdgesFrom(item.value) {
			d := item.dist + 1
			if cur, ok := dist[e.To]; !ok || d < cur {
				dist[e.To] = d
				prev[e.To] = item.value
				heap.Push(q, pqItem{value: e.To, dist: d})
			}
		}
	}

	d, ok := dist[to]
	if !ok {
		return Infinite, nil
	}

	path := []string{to}
	for cur := to; cur != from; {
		cur = prev[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return d, path
}

// buildGraph constructs a variable's graph from the agent's actions.
// An effect whose action has no precondition on the variable yields an edge
// from the unknown node.
func buildGraph(task *grounding.Task, variable *grounding.Variable) *Graph {
	g := newGraph(variable.Name, variable.ValueNames())
	for _, a := range task.Actions {
		for _, eff := range a.Eff {
			if eff.Var != variable.Name {
				continue
			}
			from := UnknownValue
			if pre, ok := a.PreOn(variable.Name); ok {
				from = pre.Value
			}
			g.addTransition(from, eff.Value, a.Name, a.Agent)
		}
	}
	return g
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}
