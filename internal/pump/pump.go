// Package pump runs the debug context: the single goroutine every session
// and backend call is made from.
//
// Other goroutines hand work to it with Do or Post. On every tick the pump
// calls ProcessEvents on each watched Driver, so notifier callbacks fire on
// the pump goroutine too. Callbacks that need to reach another goroutine
// should send on a channel.
package pump

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/debugify/internal/logflags"
)

// DefaultInterval is the tick period used when none is given.
const DefaultInterval = 20 * time.Millisecond

// ErrClosed is returned for work submitted after Close.
var ErrClosed = stderrors.New("debug context closed")

// Driver is something with queued events to drain, typically a
// *session.Process.
type Driver interface {
	ProcessEvents()
}

// Pump owns the debug context goroutine.
type Pump struct {
	work     chan func()
	interval time.Duration
	log      *logrus.Entry

	// drivers is only touched on the pump goroutine.
	drivers []Driver

	ctx       context.Context
	cancel    context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once
}

// New starts a pump ticking every interval.
func New(interval time.Duration) *Pump {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pump{
		work:     make(chan func(), 64),
		interval: interval,
		log:      logflags.PumpLogger(),
		ctx:      ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Pump) run() {
	defer close(p.stopped)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case fn := <-p.work:
			fn()
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Pump) tick() {
	// Drivers may unwatch themselves from a callback.
	drivers := append([]Driver(nil), p.drivers...)
	for _, d := range drivers {
		p.safely("ProcessEvents", d.ProcessEvents)
	}
}

// safely runs fn, turning a panic into an error so one bad request cannot
// take the debug context down.
func (p *Pump) safely(what string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", what, r)
			p.log.Error(err)
		}
	}()
	fn()
	return nil
}

// Do runs fn on the debug context and waits for it. It must not be called
// from the debug context itself.
func (p *Pump) Do(ctx context.Context, fn func()) error {
	errCh := make(chan error, 1)
	job := func() {
		errCh <- p.safely("debug context call", fn)
	}

	select {
	case p.work <- job:
	case <-p.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-p.stopped:
		// Close may race with a job that already ran.
		select {
		case err := <-errCh:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn for the debug context without waiting.
func (p *Pump) Post(fn func()) error {
	select {
	case <-p.ctx.Done():
		return ErrClosed
	default:
	}
	job := func() { _ = p.safely("posted call", fn) }
	select {
	case p.work <- job:
		return nil
	case <-p.ctx.Done():
		return ErrClosed
	}
}

// Watch starts draining d on every tick. Debug context only.
func (p *Pump) Watch(d Driver) {
	for _, existing := range p.drivers {
		if existing == d {
			return
		}
	}
	p.drivers = append(p.drivers, d)
	p.log.Debugf("watching %T (%d drivers)", d, len(p.drivers))
}

// Unwatch stops draining d. Debug context only.
func (p *Pump) Unwatch(d Driver) bool {
	for i, existing := range p.drivers {
		if existing == d {
			p.drivers = append(p.drivers[:i], p.drivers[i+1:]...)
			return true
		}
	}
	return false
}

// Interval returns the tick period.
func (p *Pump) Interval() time.Duration {
	return p.interval
}

// Close stops the debug context and waits for the goroutine to exit. Work
// still queued is dropped.
func (p *Pump) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.stopped
	})
}
