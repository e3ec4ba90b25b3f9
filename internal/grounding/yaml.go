package grounding

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maplan-dev/maplan/internal/errors"
)

// Problem is the on-disk description of a grounded multi-agent planning
// problem. One YAML file describes the whole problem; each agent's Task is
// derived from it via ProjectFor.
//
// Example:
//
//	agents: [a1, a2]
//	variables:
//	  - name: loc
//	    values:
//	      - name: l1
//	      - name: l2
//	init:
//	  loc: l1
//	goals:
//	  - {var: loc, value: l2}
//	actions:
//	  - name: move12
//	    agent: a1
//	    pre: [{var: loc, value: l1}]
//	    eff: [{var: loc, value: l2}]
//
// A value with no "agents" list is observable by every agent.
type Problem struct {
	Agents      []string          `yaml:"agents"`
	Variables   []ProblemVariable `yaml:"variables"`
	Init        map[string]string `yaml:"init"`
	Goals       []Condition       `yaml:"goals"`
	Preferences []Condition       `yaml:"preferences"`
	Actions     []ProblemAction   `yaml:"actions"`
}

// ProblemVariable is the YAML form of a Variable.
type ProblemVariable struct {
	Name   string         `yaml:"name"`
	Values []ProblemValue `yaml:"values"`
}

// ProblemValue is the YAML form of a Value.
type ProblemValue struct {
	Name    string   `yaml:"name"`
	MinTime int      `yaml:"min_time"`
	Agents  []string `yaml:"agents"`
}

// ProblemAction is the YAML form of an Action.
type ProblemAction struct {
	Name  string      `yaml:"name"`
	Agent string      `yaml:"agent"`
	Pre   []Condition `yaml:"pre"`
	Eff   []Condition `yaml:"eff"`
}

// LoadProblem parses a Problem from YAML bytes.
func LoadProblem(data []byte) (*Problem, error) {
	var p Problem
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.NewTaskError("parse problem file", err)
	}
	if len(p.Agents) == 0 {
		return nil, errors.NewTaskError("problem declares no agents", errors.ErrTaskInvalid)
	}
	if len(p.Variables) == 0 {
		return nil, errors.NewTaskError("problem declares no variables", errors.ErrTaskInvalid)
	}
	return &p, nil
}

// LoadProblemFile reads and parses a Problem from a YAML file.
func LoadProblemFile(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problem file: %w", err)
	}
	return LoadProblem(data)
}

// ActionsByOwner groups the problem's actions by owning agent.
func (p *Problem) ActionsByOwner() map[string][]ProblemAction {
	byOwner := make(map[string][]ProblemAction)
	for _, a := range p.Actions {
		byOwner[a.Agent] = append(byOwner[a.Agent], a)
	}
	return byOwner
}

// ProjectFor derives the given agent's Task: the variables and values that
// agent can observe, the actions it owns, its view of the initial state, and
// the global goals and preferences.
func (p *Problem) ProjectFor(agent string) (*Task, error) {
	var variables []*Variable
	for _, pv := range p.Variables {
		var values []Value
		for _, val := range pv.Values {
			v := Value{Name: val.Name, MinTime: val.MinTime, Agents: val.Agents}
			if v.ObservableBy(agent) {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			variables = append(variables, NewVariable(pv.Name, values))
		}
	}

	var actions []*Action
	for _, pa := range p.Actions {
		if pa.Agent != agent {
			continue
		}
		actions = append(actions, &Action{
			Name:  pa.Name,
			Agent: pa.Agent,
			Pre:   pa.Pre,
			Eff:   pa.Eff,
		})
	}

	init := make(map[string]string)
	for name, value := range p.Init {
		observable := false
		for _, v := range variables {
			if v.Name == name {
				_, observable = v.Value(value)
				break
			}
		}
		if observable {
			init[name] = value
		}
	}

	return NewTask(p.Agents, agent, variables, actions, init, p.Goals, p.Preferences)
}

// ProjectAll derives every agent's Task, keyed by agent name.
func (p *Problem) ProjectAll() (map[string]*Task, error) {
	tasks := make(map[string]*Task, len(p.Agents))
	for _, agent := range p.Agents {
		t, err := p.ProjectFor(agent)
		if err != nil {
			return nil, fmt.Errorf("project task for %s: %w", agent, err)
		}
		tasks[agent] = t
	}
	return tasks, nil
}
