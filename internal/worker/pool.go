package worker

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

type Job struct {
	// Key deduplicates jobs: a key already queued or running is refused.
	Key string
	Run func(ctx context.Context)
}

// Pool runs submitted jobs in the background with at most workers of them
// active at a time. A job that is waiting inside Idle does not count.
// Jobs get the context passed to Start, never the submitter's.
type Pool struct {
	sem *semaphore.Weighted

	mu       sync.Mutex
	ctx      context.Context
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		sem:      semaphore.NewWeighted(int64(workers)),
		inflight: map[string]struct{}{},
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx = ctx
}

// Submit reports whether the job was accepted.
func (p *Pool) Submit(job Job) bool {
	p.mu.Lock()
	if p.ctx == nil || p.ctx.Err() != nil {
		p.mu.Unlock()
		slog.Warn("worker pool is not running, job dropped", "key", job.Key)
		return false
	}
	if _, ok := p.inflight[job.Key]; ok {
		p.mu.Unlock()
		return false
	}
	p.inflight[job.Key] = struct{}{}
	ctx := p.ctx
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(ctx, job)
	return true
}

func (p *Pool) run(ctx context.Context, job Job) {
	defer p.wg.Done()
	defer p.forget(job.Key)

	s := &slot{sem: p.sem}
	if err := s.acquire(ctx); err != nil {
		return
	}
	defer s.release()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "key", job.Key, "panic", r)
		}
	}()
	job.Run(context.WithValue(ctx, slotKey{}, s))
}

func (p *Pool) forget(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, key)
}

// Busy reports whether a job with key is queued or running.
func (p *Pool) Busy(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[key]
	return ok
}

// Wait blocks until every accepted job has returned. Cancel the Start
// context first to make running jobs stop.
func (p *Pool) Wait() {
	p.wg.Wait()
}

type slotKey struct{}

// slot is the pool capacity held by one job. Only the job's own goroutine
// touches it.
type slot struct {
	sem  *semaphore.Weighted
	held bool
}

func (s *slot) acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	s.held = true
	return nil
}

func (s *slot) release() {
	if s.held {
		s.sem.Release(1)
		s.held = false
	}
}

// Idle runs fn with the calling job's pool slot released and takes the
// slot back afterwards. Outside a pool job it just runs fn.
func Idle(ctx context.Context, fn func() error) error {
	s, ok := ctx.Value(slotKey{}).(*slot)
	if !ok || !s.held {
		return fn()
	}

	s.release()
	err := fn()
	if acqErr := s.acquire(ctx); acqErr != nil && err == nil {
		err = acqErr
	}
	return err
}
