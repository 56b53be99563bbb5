// Package workerpool runs blocking work on a bounded set of goroutines.
//
// At most Workers tasks run at once. Up to QueueDepth further submitters wait
// for a free worker; anything beyond that is rejected with ErrSaturated
// instead of queueing without bound. A queued submitter gives up when its
// context ends. A panic inside a task is recovered on the worker and reported
// to the submitter as ErrExecutionFailed.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	eventbus "github.com/hanpama/rosterql/internal/eventbus"
	events "github.com/hanpama/rosterql/internal/events"
)

var (
	// ErrSaturated is returned by Submit when every worker is busy and the
	// wait queue is full.
	ErrSaturated = errors.New("workerpool: saturated")
	// ErrExecutionFailed is returned by Await when the task panicked.
	ErrExecutionFailed = errors.New("workerpool: execution failed")
	// ErrClosed is returned by Submit after Release.
	ErrClosed = errors.New("workerpool: closed")
)

// Config sizes a Pool.
type Config struct {
	// Workers is the maximum number of concurrently running tasks.
	// Zero means 4 × GOMAXPROCS.
	Workers int
	// QueueDepth is how many submitters may wait for a worker. Zero means no
	// waiting: Submit fails as soon as all workers are busy.
	QueueDepth int
	// ExpiryDuration is how long an idle worker goroutine is kept around.
	ExpiryDuration time.Duration
}

// Pool is a bounded worker pool. It is safe for concurrent use.
type Pool struct {
	pool *ants.Pool

	admitted chan struct{} // running plus queued, capacity Workers+QueueDepth
	slots    chan struct{} // running, capacity Workers
	closed   chan struct{}
	once     sync.Once

	busy    atomic.Int64
	waiting atomic.Int64
}

// New creates a Pool.
func New(cfg Config) (*Pool, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4 * runtime.GOMAXPROCS(0)
	}
	if cfg.QueueDepth < 0 {
		return nil, fmt.Errorf("workerpool: negative queue depth %d", cfg.QueueDepth)
	}
	if cfg.ExpiryDuration <= 0 {
		cfg.ExpiryDuration = 10 * time.Second
	}

	// Admission is bounded by the slot channels; ants only blocks for the
	// moment a finished worker takes to become idle again.
	p, err := ants.NewPool(cfg.Workers,
		ants.WithExpiryDuration(cfg.ExpiryDuration),
		ants.WithLogger(antsLogger{}),
		// Tasks recover their own panics; this only catches bugs in the wrapper.
		ants.WithPanicHandler(func(v any) {
			slog.Error("worker panic outside task", "panic", v)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("workerpool: %w", err)
	}
	return &Pool{
		pool:     p,
		admitted: make(chan struct{}, cfg.Workers+cfg.QueueDepth),
		slots:    make(chan struct{}, cfg.Workers),
		closed:   make(chan struct{}),
	}, nil
}

// Running reports the number of tasks currently executing. Idle worker
// goroutines kept alive by the pool are not counted.
func (p *Pool) Running() int { return int(p.busy.Load()) }

// Waiting reports the number of submitters blocked waiting for a worker.
func (p *Pool) Waiting() int { return int(p.waiting.Load()) }

// Cap reports the worker limit.
func (p *Pool) Cap() int { return p.pool.Cap() }

// Release stops accepting tasks and waits up to timeout for workers to exit.
func (p *Pool) Release(timeout time.Duration) error {
	p.once.Do(func() { close(p.closed) })
	return p.pool.ReleaseTimeout(timeout)
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Done is closed once the task has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await waits for the task to finish or ctx to end, whichever comes first.
// When ctx ends first the task keeps running to completion on its worker.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn on p. It fails fast with ErrSaturated when every
// worker is busy and the queue is full. Otherwise it blocks while queued,
// until a worker frees up or ctx ends; in the latter case it returns
// ctx.Err() and fn never runs. fn is also skipped, with the future failing
// with ctx.Err(), if ctx ended by the time a worker picks it up. ctx tags the
// pool's events.
func Submit[T any](ctx context.Context, p *Pool, fn func() T) (*Future[T], error) {
	select {
	case <-p.closed:
		return nil, ErrClosed
	default:
	}
	select {
	case p.admitted <- struct{}{}:
	default:
		eventbus.Publish(ctx, events.PoolRejected{Running: p.Running(), Waiting: p.Waiting(), Cap: p.Cap()})
		return nil, ErrSaturated
	}

	queued := time.Now()
	p.waiting.Add(1)
	select {
	case p.slots <- struct{}{}:
		p.waiting.Add(-1)
	case <-ctx.Done():
		p.waiting.Add(-1)
		<-p.admitted
		return nil, ctx.Err()
	case <-p.closed:
		p.waiting.Add(-1)
		<-p.admitted
		return nil, ErrClosed
	}

	f := &Future[T]{done: make(chan struct{})}
	err := p.pool.Submit(func() {
		p.busy.Add(1)
		start := time.Now()
		eventbus.Publish(ctx, events.PoolTaskStart{Wait: start.Sub(queued)})
		panicked := false
		defer func() {
			p.busy.Add(-1)
			if r := recover(); r != nil {
				panicked = true
				f.err = fmt.Errorf("%w: %v", ErrExecutionFailed, r)
				eventbus.Publish(ctx, events.PoolPanic{Value: r, Stack: debug.Stack()})
			}
			<-p.slots
			<-p.admitted
			close(f.done)
			eventbus.Publish(ctx, events.PoolTaskFinish{Duration: time.Since(start), Panicked: panicked})
		}()
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.value = fn()
	})
	if err == nil {
		return f, nil
	}
	<-p.slots
	<-p.admitted
	if errors.Is(err, ants.ErrPoolClosed) {
		return nil, ErrClosed
	}
	return nil, fmt.Errorf("workerpool: submit: %w", err)
}

// antsLogger routes ants' internal messages to slog.
type antsLogger struct{}

func (antsLogger) Printf(format string, args ...any) {
	slog.Warn(fmt.Sprintf(format, args...), "component", "workerpool")
}
