// Package landmarks derives causal landmarks from a synchronized relaxed
// planning graph: facts (or disjunctions of facts) that every valid plan
// must make true. The landmarks form a DAG ordered by causal necessity,
// with transitive edges removed and initially true literals dropped. The
// graph is built once per task and read concurrently by the heuristic
// evaluators, which track per-plan progress in caller-owned checked arrays
// keyed by node index.
package landmarks

import (
	"sort"
	"strings"

	"github.com/maplan-dev/maplan/internal/grounding"
	"github.com/maplan-dev/maplan/internal/rpg"
)

// Node is one landmark: a set of literals, disjunctive when larger than
// one. Nodes are immutable after extraction; per-plan checked state lives
// in arrays keyed by Index, owned by the evaluator.
type Node struct {
	index    int
	literals []rpg.Literal
	goal     bool
	preds    []*Node
	succs    []*Node
}

// Index is the node's position in the graph's node slice, used to key
// per-plan checked arrays.
func (n *Node) Index() int {
	return n.index
}

// Literals returns the node's literal set, sorted by (var, value).
func (n *Node) Literals() []rpg.Literal {
	return n.literals
}

// Disjunctive reports whether the node holds more than one literal.
func (n *Node) Disjunctive() bool {
	return len(n.literals) > 1
}

// IsGoal reports whether the node is a top-level goal.
func (n *Node) IsGoal() bool {
	return n.goal
}

// IsRoot reports whether the node has no predecessors.
func (n *Node) IsRoot() bool {
	return len(n.preds) == 0
}

// Preds returns the nodes ordered causally before this one.
func (n *Node) Preds() []*Node {
	return n.preds
}

// Succs returns the nodes ordered causally after this one.
func (n *Node) Succs() []*Node {
	return n.succs
}

// Holds reports whether the node is satisfied by the given state: at least
// one of its literals is assigned.
func (n *Node) Holds(state map[string]string) bool {
	for _, l := range n.literals {
		if state[l.Var] == l.Value {
			return true
		}
	}
	return false
}

// String renders the node as "var=value" or "var=v1|v2" for disjunctions.
func (n *Node) String() string {
	if len(n.literals) == 0 {
		return "∅"
	}
	parts := make([]string, len(n.literals))
	for i, l := range n.literals {
		if i > 0 && l.Var == n.literals[0].Var {
			parts[i] = l.Value
			continue
		}
		parts[i] = l.String()
	}
	return strings.Join(parts, "|")
}

// Graph is the landmark DAG for one task. All agents hold the same graph
// after multi-agent extraction.
type Graph struct {
	task  *grounding.Task
	nodes []*Node
	byKey map[string]*Node
}

// Nodes returns every node, ordered by index.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Roots returns the nodes without predecessors, ordered by index.
func (g *Graph) Roots() []*Node {
	var roots []*Node
	for _, n := range g.nodes {
		if n.IsRoot() {
			roots = append(roots, n)
		}
	}
	return roots
}

// GlobalCount returns the number of nodes whose every literal is shareable
// with every agent. Multi-agent progress accounting uses this count since
// only globally visible landmarks can be checked consistently by all
// agents.
func (g *Graph) GlobalCount() int {
	count := 0
	for _, n := range g.nodes {
		if g.global(n) {
			count++
		}
	}
	return count
}

func (g *Graph) global(n *Node) bool {
	for _, l := range n.literals {
		for _, agent := range g.task.Agents {
			if agent == g.task.Agent {
				continue
			}
			if !g.task.Shareable(l.Var, l.Value, agent) {
				return false
			}
		}
	}
	return true
}

// NewChecked returns a fresh per-plan checked array keyed by node index.
func (g *Graph) NewChecked() []bool {
	return make([]bool, len(g.nodes))
}

// node returns the node holding exactly the given sorted literal set,
// creating it if absent.
func (g *Graph) node(lits []rpg.Literal, goal bool) (*Node, bool) {
	key := litKey(lits)
	if n, ok := g.byKey[key]; ok {
		if goal {
			n.goal = true
		}
		return n, false
	}
	n := &Node{index: len(g.nodes), literals: lits, goal: goal}
	g.nodes = append(g.nodes, n)
	g.byKey[key] = n
	return n, true
}

// order adds the causal edge from→to unless it exists or would close a
// cycle.
func (g *Graph) order(from, to *Node) {
	if from == to || g.reaches(to, from) {
		return
	}
	for _, s := range from.succs {
		if s == to {
			return
		}
	}
	from.succs = append(from.succs, to)
	to.preds = append(to.preds, from)
}

// reaches reports whether to is reachable from from along successor edges.
func (g *Graph) reaches(from, to *Node) bool {
	if from == to {
		return true
	}
	seen := make(map[*Node]bool)
	stack := []*Node{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, n.succs...)
	}
	return false
}

// reduce removes transitive edges: an edge u→v goes when v stays reachable
// from u through some other successor.
func (g *Graph) reduce() {
	for _, u := range g.nodes {
		kept := u.succs[:0]
		for _, v := range u.succs {
			if g.reachableAvoiding(u, v) {
				removePred(v, u)
				continue
			}
			kept = append(kept, v)
		}
		u.succs = kept
	}
}

// reachableAvoiding reports whether v is reachable from u without using the
// direct edge u→v.
func (g *Graph) reachableAvoiding(u, v *Node) bool {
	seen := map[*Node]bool{u: true}
	var stack []*Node
	for _, s := range u.succs {
		if s != v {
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == v {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, n.succs...)
	}
	return false
}

func removePred(n, pred *Node) {
	for i, p := range n.preds {
		if p == pred {
			n.preds = append(n.preds[:i], n.preds[i+1:]...)
			return
		}
	}
}

// litKey builds the canonical identity of a sorted literal set.
func litKey(lits []rpg.Literal) string {
	parts := make([]string, len(lits))
	for i, l := range lits {
		parts[i] = l.String()
	}
	return strings.Join(parts, "∨")
}

// sorted returns a sorted copy of the literal set with duplicates removed.
func sorted(lits []rpg.Literal) []rpg.Literal {
	out := make([]rpg.Literal, 0, len(lits))
	seen := make(map[rpg.Literal]bool, len(lits))
	for _, l := range lits {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Var != out[j].Var {
			return out[i].Var < out[j].Var
		}
		return out[i].Value < out[j].Value
	})
	return out
}
