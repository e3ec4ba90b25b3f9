// Package grounding defines the grounded planning task model consumed by the
// planner core: state variables with finite reachable domains, grounded
// actions with precondition/effect conditions, goals, and the per-value
// shareability predicate that drives multi-agent knowledge distribution.
//
// A Task is one agent's projection of the problem: it holds the variables and
// values that agent can observe, the actions it owns, and the global goals.
// Tasks are immutable after construction. Grounding itself (instantiating
// action templates with objects) happens upstream; this package starts from
// already-grounded data.
package grounding

import (
	"fmt"
	"sort"

	"github.com/maplan-dev/maplan/internal/errors"
)

// Condition is a (variable, value) pair used in preconditions, effects,
// and goals.
type Condition struct {
	Var   string `yaml:"var" json:"var"`
	Value string `yaml:"value" json:"value"`
}

// String returns the condition as "var=value".
func (c Condition) String() string {
	return c.Var + "=" + c.Value
}

// Value is one reachable value of a variable. MinTime is the earliest
// relaxed-planning-graph level at which the value becomes reachable.
// Agents lists the agents that may observe and share this value; an empty
// list means the value is visible to every agent.
type Value struct {
	Name    string
	MinTime int
	Agents  []string
}

// ObservableBy reports whether the given agent may observe this value.
func (v *Value) ObservableBy(agent string) bool {
	if len(v.Agents) == 0 {
		return true
	}
	for _, a := range v.Agents {
		if a == agent {
			return true
		}
	}
	return false
}

// Variable is a state variable with a finite domain of reachable values.
// Immutable after grounding.
type Variable struct {
	Name   string
	Values []Value

	byName map[string]int
}

// NewVariable creates a Variable with an index over its values.
func NewVariable(name string, values []Value) *Variable {
	v := &Variable{
		Name:   name,
		Values: values,
		byName: make(map[string]int, len(values)),
	}
	for i := range values {
		v.byName[values[i].Name] = i
	}
	return v
}

// Value returns the named value, if the variable can reach it.
func (v *Variable) Value(name string) (*Value, bool) {
	i, ok := v.byName[name]
	if !ok {
		return nil, false
	}
	return &v.Values[i], true
}

// ValueNames returns the names of all reachable values, in domain order.
func (v *Variable) ValueNames() []string {
	names := make([]string, len(v.Values))
	for i := range v.Values {
		names[i] = v.Values[i].Name
	}
	return names
}

// Action is a grounded action owned by a single agent.
// Immutable once grounded.
type Action struct {
	Name  string
	Agent string
	Pre   []Condition
	Eff   []Condition
}

// PreOn returns the precondition on the given variable, if any.
func (a *Action) PreOn(variable string) (Condition, bool) {
	for _, c := range a.Pre {
		if c.Var == variable {
			return c, true
		}
	}
	return Condition{}, false
}

// Task is one agent's grounded projection of a multi-agent planning problem.
type Task struct {
	// Agents is the full agent list, in ring order. Identical across all
	// projections of the same problem.
	Agents []string

	// Agent is this agent's name.
	Agent string

	// Variables this agent can observe (with observable values only).
	Variables []*Variable

	// Actions this agent owns.
	Actions []*Action

	// Init maps variable name to this agent's known initial value.
	Init map[string]string

	// Goals are the global goals, shared by every agent.
	Goals []Condition

	// Preferences are soft goals. Each contributes a private heuristic
	// component but does not gate plan validity.
	Preferences []Condition

	byVar map[string]*Variable
}

// NewTask assembles and validates a Task. The variable index is built here;
// callers must not mutate the task afterwards.
func NewTask(agents []string, agent string, variables []*Variable, actions []*Action, init map[string]string, goals, preferences []Condition) (*Task, error) {
	t := &Task{
		Agents:      agents,
		Agent:       agent,
		Variables:   variables,
		Actions:     actions,
		Init:        init,
		Goals:       goals,
		Preferences: preferences,
		byVar:       make(map[string]*Variable, len(variables)),
	}
	for _, v := range variables {
		t.byVar[v.Name] = v
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Variable returns the named variable, if this agent observes it.
func (t *Task) Variable(name string) (*Variable, bool) {
	v, ok := t.byVar[name]
	return v, ok
}

// Shareable reports whether the (variable, value) pair may be shared with
// the given agent. Unknown variables and values are never shareable.
func (t *Task) Shareable(variable, value, agent string) bool {
	v, ok := t.byVar[variable]
	if !ok {
		return false
	}
	val, ok := v.Value(value)
	if !ok {
		return false
	}
	return val.ObservableBy(agent)
}

// OtherAgents returns every agent except this one, in ring order.
func (t *Task) OtherAgents() []string {
	others := make([]string, 0, len(t.Agents)-1)
	for _, a := range t.Agents {
		if a != t.Agent {
			others = append(others, a)
		}
	}
	return others
}

// GoalsOn returns the goal conditions, sorted by variable then value so that
// iteration order is deterministic regardless of input order.
func (t *Task) GoalsOn() []Condition {
	goals := make([]Condition, len(t.Goals))
	copy(goals, t.Goals)
	sort.Slice(goals, func(i, j int) bool {
		if goals[i].Var != goals[j].Var {
			return goals[i].Var < goals[j].Var
		}
		return goals[i].Value < goals[j].Value
	})
	return goals
}

// validate checks referential integrity: every condition references a known
// variable and a reachable value, every action belongs to a known agent, and
// the initial state covers only known variables.
func (t *Task) validate() error {
	if t.Agent == "" {
		return errors.NewTaskError("agent name is empty", errors.ErrTaskInvalid)
	}
	found := false
	for _, a := range t.Agents {
		if a == t.Agent {
			found = true
			break
		}
	}
	if !found {
		return errors.NewTaskError(
			fmt.Sprintf("agent %q is not in the agent list", t.Agent),
			errors.ErrTaskInvalid)
	}

	check := func(c Condition, action string) error {
		v, ok := t.byVar[c.Var]
		if !ok {
			return errors.NewTaskError("unknown variable in condition", errors.ErrVariableNotFound).
				WithVariable(c.Var).WithAction(action)
		}
		if _, ok := v.Value(c.Value); !ok {
			return errors.NewTaskError(
				fmt.Sprintf("value %q is not reachable", c.Value),
				errors.ErrValueNotFound).WithVariable(c.Var).WithAction(action)
		}
		return nil
	}

	for _, a := range t.Actions {
		for _, c := range a.Pre {
			if err := check(c, a.Name); err != nil {
				return err
			}
		}
		for _, c := range a.Eff {
			if err := check(c, a.Name); err != nil {
				return err
			}
		}
	}
	for _, g := range t.Goals {
		if err := check(g, ""); err != nil {
			return err
		}
	}
	for _, p := range t.Preferences {
		if err := check(p, ""); err != nil {
			return err
		}
	}
	for name, value := range t.Init {
		if err := check(Condition{Var: name, Value: value}, ""); err != nil {
			return err
		}
	}
	return nil
}
