package heuristic

import (
	"context"
	"testing"

	"github.com/maplan-dev/maplan/internal/comms"
	"github.com/maplan-dev/maplan/internal/dtg"
	"github.com/maplan-dev/maplan/internal/grounding"
	"github.com/sourcegraph/conc"
)

// makeDoorWorld wires the two-agent door fixture end to end: projected
// tasks, synchronized transition graphs, and one evaluator per agent on a
// shared transport.
func makeDoorWorld(t *testing.T) (map[string]*DTGEvaluator, *comms.ChannelTransport) {
	t.Helper()

	p, err := grounding.LoadProblem([]byte(`
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
`))
	if err != nil {
		t.Fatalf("LoadProblem() error = %v", err)
	}
	tasks, err := p.ProjectAll()
	if err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}

	agents := []string{"a1", "a2"}
	tr := comms.NewChannelTransport(agents)

	sets := map[string]*dtg.Set{}
	for _, agent := range agents {
		sets[agent] = dtg.NewSet(tasks[agent])
	}
	var wg conc.WaitGroup
	for _, agent := range agents {
		reg := comms.NewRegistry(agents, agent, tr)
		set := sets[agent]
		wg.Go(func() {
			if err := set.Distribute(context.Background(), reg); err != nil {
				t.Errorf("Distribute() error = %v", err)
			}
		})
	}
	wg.Wait()

	evals := map[string]*DTGEvaluator{}
	for _, agent := range agents {
		reg := comms.NewRegistry(agents, agent, tr)
		evals[agent] = NewDTG(tasks[agent], sets[agent], reg)
	}
	return evals, tr
}

func TestRemoteTransitionCost(t *testing.T) {
	evals, tr := makeDoorWorld(t)
	defer tr.Close()

	var wg conc.WaitGroup
	// a1 owns the opening action; it parks at the barrier and serves a2's
	// transition request from there.
	wg.Go(func() {
		if err := evals["a1"].WaitEndEvaluation(context.Background()); err != nil {
			t.Errorf("a1 WaitEndEvaluation() error = %v", err)
		}
	})

	var h float64
	wg.Go(func() {
		got, err := evals["a2"].EvaluatePlan(context.Background(), planAt(State{"door": "closed"}), 0)
		if err != nil {
			t.Errorf("a2 EvaluatePlan() error = %v", err)
			return
		}
		h = got
		if err := evals["a2"].WaitEndEvaluation(context.Background()); err != nil {
			t.Errorf("a2 WaitEndEvaluation() error = %v", err)
		}
	})
	wg.Wait()

	if h != 1 {
		t.Errorf("a2 h = %v, want 1 priced through a1", h)
	}
}

func TestRemoteCost_AllOwnersOnChainIsLoop(t *testing.T) {
	evals, tr := makeDoorWorld(t)
	defer tr.Close()

	// Every owner of the transition is already pricing it twice over:
	// charging the penalty locally is the only way to break the cycle.
	cost, err := evals["a2"].remoteCost(context.Background(), []string{"a1", "a1"},
		"door", "closed", "open", []string{"a1"})
	if err != nil {
		t.Fatalf("remoteCost() error = %v", err)
	}
	if cost != DefaultPenalty {
		t.Errorf("remoteCost() = %v, want the penalty", cost)
	}
}

func TestServeRequest_ChainLoopAnsweredWithPenalty(t *testing.T) {
	evals, tr := makeDoorWorld(t)
	defer tr.Close()

	req := comms.Message{
		From:      "a2",
		Kind:      comms.KindTransitionRequest,
		RequestID: "req-1",
		Var:       "door",
		FromValue: "closed",
		ToValue:   "open",
		Chain:     []string{"a1", "a2", "a1"},
	}
	if err := evals["a1"].serveRequest(context.Background(), req); err != nil {
		t.Fatalf("serveRequest() error = %v", err)
	}

	reply, err := evals["a2"].reg.Receive(context.Background(), comms.Filter{
		Kinds:     []comms.Kind{comms.KindTransitionReply},
		RequestID: "req-1",
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if reply.Cost != DefaultPenalty {
		t.Errorf("reply cost = %v, want the penalty for a chain loop", reply.Cost)
	}
}

func TestServeRequest_UnknownFromPricedFromSnapshot(t *testing.T) {
	evals, tr := makeDoorWorld(t)
	defer tr.Close()

	req := comms.Message{
		From:       "a2",
		Kind:       comms.KindTransitionRequest,
		RequestID:  "req-snap",
		Var:        "door",
		FromValue:  dtg.UnknownValue,
		ToValue:    "open",
		MultiState: map[string][]string{"door": {"closed"}},
	}
	if err := evals["a1"].serveRequest(context.Background(), req); err != nil {
		t.Fatalf("serveRequest() error = %v", err)
	}
	reply, err := evals["a2"].reg.Receive(context.Background(), comms.Filter{
		Kinds:     []comms.Kind{comms.KindTransitionReply},
		RequestID: "req-snap",
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if reply.Cost != 1 {
		t.Errorf("reply cost = %v, want 1 priced from the snapshot's closed", reply.Cost)
	}

	// Without the snapshot the unknown start has no outgoing edges and the
	// request collapses to the penalty.
	req.RequestID = "req-bare"
	req.MultiState = nil
	if err := evals["a1"].serveRequest(context.Background(), req); err != nil {
		t.Fatalf("serveRequest() error = %v", err)
	}
	reply, err = evals["a2"].reg.Receive(context.Background(), comms.Filter{
		Kinds:     []comms.Kind{comms.KindTransitionReply},
		RequestID: "req-bare",
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if reply.Cost != DefaultPenalty {
		t.Errorf("reply cost = %v, want the penalty without a snapshot", reply.Cost)
	}
}

func TestWaitEndEvaluation_BarrierReleasesAllAgents(t *testing.T) {
	evals, tr := makeDoorWorld(t)
	defer tr.Close()

	var wg conc.WaitGroup
	for agent, e := range evals {
		wg.Go(func() {
			if err := e.WaitEndEvaluation(context.Background()); err != nil {
				t.Errorf("%s WaitEndEvaluation() error = %v", agent, err)
			}
		})
	}
	wg.Wait()
}

// TestServeSearch_AnswersStagesUntilDone drives two evaluation stages from
// a2 while a1 sits in the serve loop, then releases a1 with EndSearch.
func TestServeSearch_AnswersStagesUntilDone(t *testing.T) {
	evals, tr := makeDoorWorld(t)
	defer tr.Close()

	ctx := context.Background()

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := evals["a1"].ServeSearch(ctx); err != nil {
			t.Errorf("ServeSearch() error = %v", err)
		}
	})

	for range 2 {
		if err := evals["a2"].StartEvaluation(ctx, planAt(State{"door": "closed"})); err != nil {
			t.Fatalf("StartEvaluation() error = %v", err)
		}
		h, err := evals["a2"].EvaluatePlan(ctx, planAt(State{"door": "closed"}), 0)
		if err != nil {
			t.Fatalf("EvaluatePlan() error = %v", err)
		}
		if h != 1 {
			t.Errorf("EvaluatePlan() = %v, want 1 priced through a1", h)
		}
		if err := evals["a2"].WaitEndEvaluation(ctx); err != nil {
			t.Fatalf("WaitEndEvaluation() error = %v", err)
		}
	}
	if err := evals["a2"].EndSearch(ctx); err != nil {
		t.Fatalf("EndSearch() error = %v", err)
	}
	wg.Wait()
}

// TestRemoteCost_ThreeAgentRelay makes a2 price a path whose every edge
// belongs to someone else: both legs must be fetched over the ring and the
// exchange must terminate with all three agents released.
func TestRemoteCost_ThreeAgentRelay(t *testing.T) {
	p, err := grounding.LoadProblem([]byte(`
agents: [a1, a2, a3]
variables:
  - name: pkg
    values:
      - name: origin
      - name: depot
      - name: delivered
init:
  pkg: origin
goals:
  - {var: pkg, value: delivered}
actions:
  - name: haul
    agent: a1
    pre: [{var: pkg, value: origin}]
    eff: [{var: pkg, value: depot}]
  - name: deliver
    agent: a3
    pre: [{var: pkg, value: depot}]
    eff: [{var: pkg, value: delivered}]
`))
	if err != nil {
		t.Fatalf("LoadProblem() error = %v", err)
	}
	tasks, err := p.ProjectAll()
	if err != nil {
		t.Fatalf("ProjectAll() error = %v", err)
	}

	agents := []string{"a1", "a2", "a3"}
	tr := comms.NewChannelTransport(agents)
	defer tr.Close()

	sets := map[string]*dtg.Set{}
	evals := map[string]*DTGEvaluator{}
	for _, agent := range agents {
		sets[agent] = dtg.NewSet(tasks[agent])
		evals[agent] = NewDTG(tasks[agent], sets[agent], comms.NewRegistry(agents, agent, tr))
	}
	var distWG conc.WaitGroup
	for _, agent := range agents {
		distWG.Go(func() {
			if err := sets[agent].Distribute(context.Background(), evals[agent].reg); err != nil {
				t.Errorf("Distribute(%s) error = %v", agent, err)
			}
		})
	}
	distWG.Wait()

	var wg conc.WaitGroup
	for _, agent := range []string{"a1", "a3"} {
		wg.Go(func() {
			if err := evals[agent].WaitEndEvaluation(context.Background()); err != nil {
				t.Errorf("%s WaitEndEvaluation() error = %v", agent, err)
			}
		})
	}

	h, err := evals["a2"].EvaluatePlan(context.Background(), planAt(State{"pkg": "origin"}), 0)
	if err != nil {
		t.Fatalf("EvaluatePlan() error = %v", err)
	}
	if h != 2 {
		t.Errorf("EvaluatePlan() = %v, want 2 priced through a1 and a3", h)
	}
	if err := evals["a2"].WaitEndEvaluation(context.Background()); err != nil {
		t.Fatalf("WaitEndEvaluation() error = %v", err)
	}
	wg.Wait()
}
