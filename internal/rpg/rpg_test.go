package rpg

import (
	"testing"

	"github.com/maplan-dev/maplan/internal/grounding"
)

// makeLocTask builds the canonical locomotion fixture: loc ∈ {l1, l2, l3},
// move12: l1→l2, move23: l2→l3.
func makeLocTask(t *testing.T) *grounding.Task {
	t.Helper()

	loc := grounding.NewVariable("loc", []grounding.Value{
		{Name: "l1"}, {Name: "l2"}, {Name: "l3"},
	})
	actions := []*grounding.Action{
		{
			Name:  "move12",
			Agent: "a1",
			Pre:   []grounding.Condition{{Var: "loc", Value: "l1"}},
			Eff:   []grounding.Condition{{Var: "loc", Value: "l2"}},
		},
		{
			Name:  "move23",
			Agent: "a1",
			Pre:   []grounding.Condition{{Var: "loc", Value: "l2"}},
			Eff:   []grounding.Condition{{Var: "loc", Value: "l3"}},
		},
	}
	task, err := grounding.NewTask([]string{"a1"}, "a1",
		[]*grounding.Variable{loc}, actions,
		map[string]string{"loc": "l1"},
		[]grounding.Condition{{Var: "loc", Value: "l3"}}, nil)
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	return task
}

func TestNew_Levels(t *testing.T) {
	r := New(makeLocTask(t))

	tests := []struct {
		lit  Literal
		want int
	}{
		{Literal{"loc", "l1"}, 0},
		{Literal{"loc", "l2"}, 1},
		{Literal{"loc", "l3"}, 2},
	}
	for _, tt := range tests {
		if got := r.Level(tt.lit); got != tt.want {
			t.Errorf("Level(%s) = %d, want %d", tt.lit, got, tt.want)
		}
	}
}

func TestNew_ActionLevels(t *testing.T) {
	r := New(makeLocTask(t))

	if got := r.ActionLevel("move12"); got != 0 {
		t.Errorf("ActionLevel(move12) = %d, want 0", got)
	}
	if got := r.ActionLevel("move23"); got != 1 {
		t.Errorf("ActionLevel(move23) = %d, want 1", got)
	}
	if got := r.ActionLevel("no-such"); got != Unleveled {
		t.Errorf("ActionLevel(no-such) = %d, want %d", got, Unleveled)
	}
}

func TestLevel_UnreachedIsUnleveled(t *testing.T) {
	loc := grounding.NewVariable("loc", []grounding.Value{
		{Name: "l1"}, {Name: "l2"},
	})
	task, err := grounding.NewTask([]string{"a1"}, "a1",
		[]*grounding.Variable{loc}, nil,
		map[string]string{"loc": "l1"},
		[]grounding.Condition{{Var: "loc", Value: "l2"}}, nil)
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	r := New(task)

	if got := r.Level(Literal{"loc", "l2"}); got != Unleveled {
		t.Errorf("Level(loc=l2) = %d, want %d", got, Unleveled)
	}
}

func TestDirectProducers(t *testing.T) {
	r := New(makeLocTask(t))

	direct := r.DirectProducers(Literal{"loc", "l3"})
	if len(direct) != 1 || direct[0].Name != "move23" {
		t.Fatalf("DirectProducers(loc=l3) = %v, want [move23]", names(direct))
	}
	if got := r.DirectProducers(Literal{"loc", "l1"}); len(got) != 0 {
		t.Errorf("DirectProducers(loc=l1) = %v, want none", names(got))
	}
}

func TestLiterals_SortedByLevel(t *testing.T) {
	r := New(makeLocTask(t))

	lits := r.Literals()
	want := []Literal{{"loc", "l1"}, {"loc", "l2"}, {"loc", "l3"}}
	if len(lits) != len(want) {
		t.Fatalf("Literals() = %v, want %v", lits, want)
	}
	for i := range want {
		if lits[i] != want[i] {
			t.Errorf("Literals()[%d] = %v, want %v", i, lits[i], want[i])
		}
	}
}

func TestMerge_LevelsOnlyDecrease(t *testing.T) {
	r := New(makeLocTask(t))

	if changed := r.merge(map[Literal]int{{Var: "loc", Value: "l3"}: 5}); changed {
		t.Error("merge with a higher level reported a change")
	}
	if got := r.Level(Literal{"loc", "l3"}); got != 2 {
		t.Errorf("Level(loc=l3) after merge = %d, want 2", got)
	}

	if changed := r.merge(map[Literal]int{{Var: "loc", Value: "l3"}: 1}); !changed {
		t.Error("merge with a lower level reported no change")
	}
	if got := r.Level(Literal{"loc", "l3"}); got != 1 {
		t.Errorf("Level(loc=l3) after merge = %d, want 1", got)
	}
}

func TestRelevel_Idempotent(t *testing.T) {
	r := New(makeLocTask(t))

	if dirty := r.relevel(); dirty {
		t.Error("relevel() on a converged graph reported a change")
	}
}

func names(actions []*grounding.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Name
	}
	return out
}
