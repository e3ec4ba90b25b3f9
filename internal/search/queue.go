package search

import (
	"github.com/maplan-dev/maplan/internal/pop"
)

// planQueue is a min-heap of open plans ordered by heuristic value, older
// plans first on ties so expansions stay deterministic.
type planQueue []*pop.Plan

func (q planQueue) Len() int {
	return len(q)
}

func (q planQueue) Less(i, j int) bool {
	if q[i].H() != q[j].H() {
		return q[i].H() < q[j].H()
	}
	return q[i].Index() < q[j].Index()
}

func (q planQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *planQueue) Push(x any) {
	*q = append(*q, x.(*pop.Plan))
}

func (q *planQueue) Pop() any {
	old := *q
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return p
}
