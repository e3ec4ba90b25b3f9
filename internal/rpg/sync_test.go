package rpg

import (
	"context"
	"testing"

	"github.com/maplan-dev/maplan/internal/comms"
	"github.com/maplan-dev/maplan/internal/grounding"
	"github.com/sourcegraph/conc"
)

const doorProblemYAML = `
agents: [a1, a2]
variables:
  - name: door
    values:
      - name: closed
      - name: open
init:
  door: closed
goals:
  - {var: door, value: open}
actions:
  - name: open-door
    agent: a1
    pre: [{var: door, value: closed}]
    eff: [{var: door, value: open}]
`

// makeDoorTasks projects the two-agent door problem: only a1 owns the
// opening action, the variable itself is visible to both.
func makeDoorTasks(t *testing.T) map[string]*grounding.Task {
	t.Helper()

	p, err := grounding.LoadProblem([]byte(doorProblemYAML))
	if err != nil {
		t.Fatalf("LoadProblem() error = %v", err)
	}
	tasks, err := p.ProjectAll()
	if err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}
	return tasks
}

// synchronizeAll runs Synchronize for every agent concurrently over one
// shared in-memory transport and fails the test on any error.
func synchronizeAll(t *testing.T, agents []string, rpgs map[string]*RPG) {
	t.Helper()

	tr := comms.NewChannelTransport(agents)
	defer tr.Close()

	var wg conc.WaitGroup
	errs := make(chan error, len(agents))
	for _, agent := range agents {
		reg := comms.NewRegistry(agents, agent, tr)
		r := rpgs[agent]
		wg.Go(func() {
			errs <- r.Synchronize(context.Background(), reg)
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Synchronize() error = %v", err)
		}
	}
}

func TestSynchronize_SingleAgentIsNoop(t *testing.T) {
	r := New(makeLocTask(t))
	reg := comms.NewRegistry([]string{"a1"}, "a1", comms.NewChannelTransport([]string{"a1"}))

	if err := r.Synchronize(context.Background(), reg); err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	if got := r.Level(Literal{"loc", "l3"}); got != 2 {
		t.Errorf("Level(loc=l3) = %d, want 2", got)
	}
}

func TestSynchronize_TwoAgentDoor(t *testing.T) {
	tasks := makeDoorTasks(t)
	agents := []string{"a1", "a2"}
	rpgs := map[string]*RPG{
		"a1": New(tasks["a1"]),
		"a2": New(tasks["a2"]),
	}

	// Before synchronization a2 cannot reach the goal on its own.
	if got := rpgs["a2"].Level(Literal{"door", "open"}); got != Unleveled {
		t.Fatalf("pre-sync a2 Level(door=open) = %d, want %d", got, Unleveled)
	}

	synchronizeAll(t, agents, rpgs)

	for agent, r := range rpgs {
		if got := r.Level(Literal{"door", "open"}); got != 1 {
			t.Errorf("%s Level(door=open) = %d, want 1", agent, got)
		}
		if got := r.Level(Literal{"door", "closed"}); got != 0 {
			t.Errorf("%s Level(door=closed) = %d, want 0", agent, got)
		}
	}
}

func TestSynchronize_ThreeAgentRelay(t *testing.T) {
	p, err := grounding.LoadProblem([]byte(`
agents: [a1, a2, a3]
variables:
  - name: stage
    values:
      - name: s0
      - name: s1
      - name: s2
init:
  stage: s0
goals:
  - {var: stage, value: s2}
actions:
  - name: step1
    agent: a1
    pre: [{var: stage, value: s0}]
    eff: [{var: stage, value: s1}]
  - name: step2
    agent: a2
    pre: [{var: stage, value: s1}]
    eff: [{var: stage, value: s2}]
`))
	if err != nil {
		t.Fatalf("LoadProblem() error = %v", err)
	}
	tasks, err := p.ProjectAll()
	if err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}

	agents := []string{"a1", "a2", "a3"}
	rpgs := make(map[string]*RPG, len(agents))
	for _, agent := range agents {
		rpgs[agent] = New(tasks[agent])
	}

	// a2 alone cannot level s2: its own action needs s1, which only a1
	// produces.
	if got := rpgs["a2"].Level(Literal{"stage", "s2"}); got != Unleveled {
		t.Fatalf("pre-sync a2 Level(stage=s2) = %d, want %d", got, Unleveled)
	}

	synchronizeAll(t, agents, rpgs)

	for agent, r := range rpgs {
		if got := r.Level(Literal{"stage", "s1"}); got != 1 {
			t.Errorf("%s Level(stage=s1) = %d, want 1", agent, got)
		}
		if got := r.Level(Literal{"stage", "s2"}); got != 2 {
			t.Errorf("%s Level(stage=s2) = %d, want 2", agent, got)
		}
	}
}
