// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"mediaflow/internal/domain"
	"mediaflow/internal/infra/metrics"
)

// A small bounded worker pool. Tasks run on the context given to Start, not
// on the submitter's, so a finished HTTP request does not cancel its work.

type Task func(ctx context.Context) error

type named struct {
	name string
	run  Task
}

type Pool struct {
	wg   sync.WaitGroup
	jobs chan named
	quit chan struct{}
	once sync.Once
	n    int
	log  *zerolog.Logger
}

// NewPool sizes the queue at queueSize, or workers*16 when zero.
func NewPool(workers, queueSize int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 16
	}
	l := logger.With().Str("component", "worker_pool").Logger()
	return &Pool{jobs: make(chan named, queueSize), quit: make(chan struct{}), n: workers, log: &l}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case t := <-p.jobs:
					metrics.SetWorkerQueueDepth(len(p.jobs))
					p.run(ctx, id, t)
				}
			}
		}(i)
	}
	p.log.Info().Int("workers", p.n).Int("queue", cap(p.jobs)).Msg("worker pool started")
}

func (p *Pool) run(ctx context.Context, id int, t named) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncWorkerTask(t.name, "error")
			p.log.Error().Int("worker", id).Str("task", t.name).Str("panic", fmt.Sprint(r)).Msg("task panicked")
		}
	}()
	if err := t.run(ctx); err != nil {
		metrics.IncWorkerTask(t.name, "error")
		p.log.Error().Err(err).Int("worker", id).Str("task", t.name).Msg("task failed")
		return
	}
	metrics.IncWorkerTask(t.name, "ok")
}

// Stop lets running tasks finish and drops queued ones; the queue dispatcher
// picks those jobs up again after a restart.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
	if n := len(p.jobs); n > 0 {
		p.log.Warn().Int("dropped", n).Msg("worker pool stopped with queued tasks")
	}
}

func (p *Pool) Submit(task Task) error {
	return p.Go("task", task)
}

// Go enqueues task without blocking. A saturated queue returns
// domain.ErrQueueFull.
func (p *Pool) Go(name string, task func(ctx context.Context) error) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case <-p.quit:
		return fmt.Errorf("%w: pool stopped", domain.ErrQueueFull)
	default:
	}
	select {
	case p.jobs <- named{name: name, run: task}:
		metrics.SetWorkerQueueDepth(len(p.jobs))
		return nil
	default:
		metrics.IncWorkerTask(name, "rejected")
		return domain.ErrQueueFull
	}
}
