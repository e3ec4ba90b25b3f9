// Package search runs best-first search over partial-order plans. The
// driver keeps one shared open queue ordered by heuristic value and farms
// plan extension and scoring out to a bounded worker pool, each worker
// holding its own evaluator thread index.
package search

import (
	"container/heap"
	"context"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/maplan-dev/maplan/internal/errors"
	"github.com/maplan-dev/maplan/internal/event"
	"github.com/maplan-dev/maplan/internal/grounding"
	"github.com/maplan-dev/maplan/internal/heuristic"
	"github.com/maplan-dev/maplan/internal/logging"
	"github.com/maplan-dev/maplan/internal/pop"
)

// DefaultWorkers is the pool size used when no worker count is configured.
const DefaultWorkers = 4

// Driver drives one search: it owns the open queue and the worker pool,
// and extends plans through the arena until a goal-satisfying plan is
// found or the space is exhausted.
type Driver struct {
	arena  *pop.Arena
	eval   heuristic.Evaluator
	logger *logging.Logger
	bus    *event.Bus

	workers  int
	maxPlans int
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger attaches a logger for expansion tracing.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithBus attaches an event bus publishing search.* events.
func WithBus(bus *event.Bus) Option {
	return func(d *Driver) {
		d.bus = bus
	}
}

// WithWorkers sets the evaluation pool size. Multi-agent evaluators run
// the ring protocol on thread 0 only, so multi-agent searches must use a
// single worker.
func WithWorkers(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithMaxPlans bounds the number of plans the arena may hold; the search
// reports exhaustion once the bound is reached. Zero means unbounded.
func WithMaxPlans(n int) Option {
	return func(d *Driver) {
		d.maxPlans = n
	}
}

// NewDriver creates a driver searching the arena's task with the given
// evaluator.
func NewDriver(arena *pop.Arena, eval heuristic.Evaluator, opts ...Option) *Driver {
	d := &Driver{
		arena:   arena,
		eval:    eval,
		logger:  logging.NopLogger(),
		workers: DefaultWorkers,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run searches until a plan whose frontier satisfies every goal is found.
// It returns ErrNoPlanFound on exhaustion and ErrSearchCanceled when the
// context ends first.
func (d *Driver) Run(ctx context.Context) (*pop.Plan, error) {
	pool, err := ants.NewPool(d.workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	threads := make(chan int, d.workers)
	for i := 0; i < d.workers; i++ {
		threads <- i
	}

	open := &planQueue{}
	heap.Init(open)

	root := d.arena.Root()
	if err := d.evaluate(ctx, pool, threads, root); err != nil {
		return nil, err
	}
	heap.Push(open, root)

	for {
		if ctx.Err() != nil {
			return nil, errors.Join(errors.ErrSearchCanceled, ctx.Err())
		}
		if open.Len() == 0 {
			return nil, d.exhausted(0)
		}

		best := heap.Pop(open).(*pop.Plan)
		if best.Solves() {
			d.logger.Info("plan found", "plan", best.Index(), "steps", best.Length())
			if d.bus != nil {
				d.bus.Publish(event.NewSearchSolvedEvent(best.Index(), best.H()))
			}
			return best, nil
		}
		if d.maxPlans > 0 && d.arena.Size() >= d.maxPlans {
			return nil, d.exhausted(open.Len())
		}

		succs, err := d.expand(ctx, pool, threads, best)
		if err != nil {
			return nil, err
		}
		for _, s := range succs {
			heap.Push(open, s)
		}

		d.logger.Debug("plan expanded",
			"plan", best.Index(), "h", best.H(), "children", len(succs), "open", open.Len())
		if d.bus != nil {
			d.bus.Publish(event.NewSearchExpandedEvent(best.Index(), best.H(), open.Len()))
		}
	}
}

// expand opens one evaluation stage against the base plan, then farms the
// task's actions out to the pool: each job extends the base plan, scores
// the child with its own evaluator thread, and hands it back under the
// driver lock. Children come back sorted by arena index so the open queue
// sees them in a stable order.
func (d *Driver) expand(ctx context.Context, pool *ants.Pool, threads chan int, base *pop.Plan) ([]*pop.Plan, error) {
	if err := d.eval.StartEvaluation(ctx, base); err != nil {
		return nil, err
	}

	actions := make([]*grounding.Action, len(d.arena.Task().Actions))
	copy(actions, d.arena.Task().Actions)
	sort.Slice(actions, func(i, j int) bool { return actions[i].Name < actions[j].Name })

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		succs    []*pop.Plan
		firstErr error
	)
	record := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for _, action := range actions {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			thread := <-threads
			defer func() { threads <- thread }()

			for _, child := range d.arena.Extend(base, action) {
				h, err := d.eval.EvaluatePlan(ctx, child, thread)
				if err != nil {
					record(err)
					return
				}
				child.SetH(h)
				mu.Lock()
				succs = append(succs, child)
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			record(err)
		}
	}
	wg.Wait()

	if err := d.eval.WaitEndEvaluation(ctx); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	sort.Slice(succs, func(i, j int) bool { return succs[i].Index() < succs[j].Index() })
	return succs, nil
}

// evaluate scores the root plan in its own evaluation stage.
func (d *Driver) evaluate(ctx context.Context, pool *ants.Pool, threads chan int, root *pop.Plan) error {
	if err := d.eval.StartEvaluation(ctx, root); err != nil {
		return err
	}

	var (
		done    = make(chan struct{})
		evalErr error
	)
	err := pool.Submit(func() {
		defer close(done)
		thread := <-threads
		defer func() { threads <- thread }()

		h, err := d.eval.EvaluatePlan(ctx, root, thread)
		if err != nil {
			evalErr = err
			return
		}
		root.SetH(h)
	})
	if err != nil {
		return err
	}
	<-done

	if err := d.eval.WaitEndEvaluation(ctx); err != nil {
		return err
	}
	return evalErr
}

func (d *Driver) exhausted(openLen int) error {
	d.logger.Info("search space exhausted", "plans", d.arena.Size())
	if d.bus != nil {
		d.bus.Publish(event.NewSearchExhaustedEvent(openLen))
	}
	return errors.ErrNoPlanFound
}
