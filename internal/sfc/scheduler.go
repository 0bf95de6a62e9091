package sfc

import (
	"context"
	"time"
)

const (
	defaultIdleWait = 50 * time.Millisecond
	defaultSettle   = 10 * time.Millisecond
)

// SchedulerOptions tunes the scheduling loop.
type SchedulerOptions struct {
	// IdleWait is the pause before re-checking when nothing is running and
	// nothing can start. Default 50ms.
	IdleWait time.Duration

	// Settle is the pause after reconciling completions. Default 10ms.
	Settle time.Duration
}

// scheduler drives one run.
type scheduler struct {
	exec  *Executor
	opts  SchedulerOptions
	graph *Graph
	state *runState
	run   runInfo
}

type nodeResult struct {
	id      string
	outcome Outcome
}

// Run executes the graph until every executable node has finished or ctx
// is cancelled. On cancellation it waits for every active node to return
// before returning ctx.Err().
func (s *scheduler) Run(ctx context.Context) error {
	results := make(chan nodeResult, s.graph.Len())
	active := make(map[string]struct{})

	// On return every node goroutine has reported.
	defer func() {
		for len(active) > 0 {
			res := <-results
			delete(active, res.id)
			s.state.complete(res.id, res.outcome)
		}
	}()

	for !s.state.idle() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var launched int
		for _, id := range s.state.runnable(s.graph) {
			id := id
			if _, busy := active[id]; busy {
				continue
			}
			node, _ := s.graph.Node(id)
			active[id] = struct{}{}
			s.state.start(id)
			launched++
			go func() {
				results <- nodeResult{id: id, outcome: s.exec.Execute(ctx, s.run, node)}
			}()
		}

		if len(active) == 0 {
			if launched == 0 {
				if err := sleep(ctx, s.opts.IdleWait); err != nil {
					return err
				}
			}
			continue
		}

		select {
		case res := <-results:
			s.reconcile(active, res)
		case <-ctx.Done():
			return ctx.Err()
		}
	drain:
		for {
			select {
			case res := <-results:
				s.reconcile(active, res)
			default:
				break drain
			}
		}

		if err := sleep(ctx, s.opts.Settle); err != nil {
			return err
		}
	}
	return nil
}

func (s *scheduler) reconcile(active map[string]struct{}, res nodeResult) {
	delete(active, res.id)
	s.state.complete(res.id, res.outcome)
}
