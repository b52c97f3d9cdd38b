package session

import (
	"context"
	"errors"
	"time"

	"github.com/soyeahso/rcmesh/internal/logging"
)

// ErrQueueFull is returned by TryPost when the loop is saturated.
var ErrQueueFull = errors.New("session loop queue full")

// ErrStopped is returned when posting to a loop that has exited.
var ErrStopped = errors.New("session loop stopped")

const queueSize = 256

// Task runs on the loop goroutine.
type Task func(ctx context.Context)

// Loop serializes all work touching the channel manager onto one goroutine:
// console lines, lifecycle events, remote executions and pulses.
type Loop struct {
	tasks chan Task
	done  chan struct{}
	tick  time.Duration
	log   *logging.Logger
}

// NewLoop creates a loop that pulses every tick. A zero tick disables pulses.
func NewLoop(tick time.Duration, log *logging.Logger) *Loop {
	return &Loop{
		tasks: make(chan Task, queueSize),
		done:  make(chan struct{}),
		tick:  tick,
		log:   log.Sub("loop"),
	}
}

// Post enqueues fn, waiting for room until ctx is done.
func (l *Loop) Post(ctx context.Context, fn Task) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPost enqueues fn without blocking. Transport goroutines use it.
func (l *Loop) TryPost(fn Task) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn Task) error {
	finished := make(chan struct{})
	err := l.Post(ctx, func(ctx context.Context) {
		defer close(finished)
		fn(ctx)
	})
	if err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run processes tasks and calls onPulse on every tick until ctx is done.
// Tasks still queued at shutdown are discarded.
func (l *Loop) Run(ctx context.Context, onPulse func(ctx context.Context)) {
	defer close(l.done)

	var tickC <-chan time.Time
	if l.tick > 0 && onPulse != nil {
		ticker := time.NewTicker(l.tick)
		defer ticker.Stop()
		tickC = ticker.C
	}

	l.log.Debug().Dur("tick", l.tick).Msg("loop started")
	for {
		select {
		case <-ctx.Done():
			l.log.Debug().Int("dropped", len(l.tasks)).Msg("loop stopped")
			return
		case fn := <-l.tasks:
			l.run(ctx, fn)
		case <-tickC:
			l.run(ctx, onPulse)
		}
	}
}

func (l *Loop) run(ctx context.Context, fn Task) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("loop task panicked")
		}
	}()
	fn(ctx)
}
