// Package parallel runs replicates on a bounded number of slots.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyWorkers is returned when the slot count exceeds the maximum allowed.
var ErrTooManyWorkers = errors.New("slot count exceeds maximum")

// ErrPoolClosed is returned by Go after Close.
var ErrPoolClosed = errors.New("slot pool is closed")

// MaxWorkers is the maximum number of slots allowed in a pool.
const MaxWorkers = math.MaxInt32

// PanicError is a task panic converted into an error.
type PanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// Task is a unit of work run in a slot.
type Task func(ctx context.Context) error

// SlotPool is a counting-semaphore scheduler: every task holds one slot from
// dispatch until it returns, so at most Slots tasks run at once. Task errors
// and panics are collected in dispatch-completion order instead of being
// propagated.
type SlotPool struct {
	slots int
	sem   *semaphore.Weighted
	inUse atomic.Int64
	wg    sync.WaitGroup

	mu     sync.Mutex
	errs   []error
	closed bool

	onChange func(inUse int)
}

// PoolOption configures a SlotPool.
type PoolOption func(*SlotPool)

// WithSlotObserver registers fn to be called with the slot occupancy after
// every acquire and release.
func WithSlotObserver(fn func(inUse int)) PoolOption {
	return func(p *SlotPool) { p.onChange = fn }
}

// NewSlotPool creates a pool with the given number of slots. A non-positive
// count means one slot.
func NewSlotPool(slots int, opts ...PoolOption) (*SlotPool, error) {
	if slots <= 0 {
		slots = 1
	}
	if slots > MaxWorkers {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrTooManyWorkers, slots, MaxWorkers)
	}
	p := &SlotPool{
		slots: slots,
		sem:   semaphore.NewWeighted(int64(slots)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Slots returns the slot count.
func (p *SlotPool) Slots() int { return p.slots }

// InUse returns how many tasks currently hold a slot.
func (p *SlotPool) InUse() int { return int(p.inUse.Load()) }

// Go blocks until a slot is free, then runs task in its own goroutine. It
// returns ctx's error if the context ends first, or ErrPoolClosed.
func (p *SlotPool) Go(ctx context.Context, name string, task Task) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.wg.Add(1)
	p.changed(p.inUse.Add(1))

	go func() {
		defer func() {
			p.sem.Release(1)
			p.changed(p.inUse.Add(-1))
			p.wg.Done()
		}()
		if err := p.run(ctx, name, task); err != nil {
			p.record(err)
		}
	}()
	return nil
}

func (p *SlotPool) run(ctx context.Context, name string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: name, Value: r, Stack: debug.Stack()}
		}
	}()
	return task(ctx)
}

func (p *SlotPool) changed(n int64) {
	if p.onChange != nil {
		p.onChange(int(n))
	}
}

func (p *SlotPool) record(err error) {
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
}

// Errors returns a snapshot of the collected task errors.
func (p *SlotPool) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]error, len(p.errs))
	copy(out, p.errs)
	return out
}

// FirstError returns the earliest recorded task error, or nil.
func (p *SlotPool) FirstError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errs) == 0 {
		return nil
	}
	return p.errs[0]
}

// Done returns a channel closed once every task dispatched so far has
// returned.
func (p *SlotPool) Done() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(ch)
	}()
	return ch
}

// Wait blocks until every dispatched task has returned and reports the
// first error.
func (p *SlotPool) Wait() error {
	p.wg.Wait()
	return p.FirstError()
}

// Close refuses further tasks and waits for the running ones.
func (p *SlotPool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.Wait()
}
