package controller

import (
	"context"

	"github.com/caffeineduck/kiprun/executor"
	"github.com/caffeineduck/kiprun/stdin"
	"github.com/google/uuid"
)

// Session is one guest run from launch to its terminal event.
type Session struct {
	id    string
	mode  executor.Mode
	stdin *stdin.Channel

	ctx    context.Context
	cancel context.CancelFunc
	quit   chan struct{}
	done   chan struct{}

	// Owned by the controller goroutine.
	pending  bool
	finished bool
	outcome  executor.Event
}

func newSession(ctx context.Context, cancel context.CancelFunc, mode executor.Mode, ch *stdin.Channel) *Session {
	return &Session{
		id:     uuid.NewString(),
		mode:   mode,
		stdin:  ch,
		ctx:    ctx,
		cancel: cancel,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Mode returns the session mode.
func (s *Session) Mode() executor.Mode { return s.mode }

// Interactive reports whether the session has a stdin channel.
func (s *Session) Interactive() bool { return s.stdin != nil }

// Done is closed when the session ends, by a terminal event or by being
// stopped or replaced.
func (s *Session) Done() <-chan struct{} { return s.done }

// Outcome returns the terminal event. It is valid once Done is closed; a
// stopped session reports an error event carrying ErrSessionStopped.
func (s *Session) Outcome() executor.Event {
	<-s.done
	return s.outcome
}

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (executor.Event, error) {
	select {
	case <-s.done:
		return s.outcome, nil
	case <-ctx.Done():
		return executor.Event{}, ctx.Err()
	}
}

func (s *Session) finish(ev executor.Event) {
	if s.finished {
		return
	}
	s.finished = true
	s.pending = false
	s.outcome = ev
	close(s.done)
}

// abandon cancels the worker and wakes a blocked read. The worker is not
// waited for.
func (s *Session) abandon() {
	s.cancel()
	close(s.quit)
	if s.stdin != nil {
		s.stdin.Close()
	}
}
