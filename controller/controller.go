// Package controller owns the single active guest session of a playground
// and connects it to a Presenter.
//
// Every state change happens on one controller goroutine that handles one
// message at a time and never waits on a guest. The guest runs on its own
// worker goroutine and may block indefinitely in a stdin read until the
// operator answers through [Controller.Submit].
//
// Starting a session replaces the current one: its worker is cancelled, its
// stdin channel is closed so a blocked read sees EOF, and any event it still
// produces is dropped.
package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/caffeineduck/kiprun/executor"
	"github.com/caffeineduck/kiprun/stdin"
	"github.com/sirupsen/logrus"
)

var (
	ErrControllerClosed = errors.New("controller closed")
	ErrSessionStopped   = errors.New("session stopped")
)

// Notices shown on the terminal when an execute session has no
// interactive input.
const (
	NoticeUnavailable = "Interactive input is unavailable."
	NoticeNoStdin     = "Running without stdin support."
	NoticeStdinEOF    = "(stdin unavailable)"
)

// InputEcho prefixes operator input echoed to the terminal.
const InputEcho = "› "

// Controller runs at most one guest session at a time.
type Controller struct {
	exec      *executor.Executor
	presenter Presenter
	prompter  InputPrompter
	cfg       config
	log       *logrus.Entry

	inbox     chan func()
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the controller goroutine.
	session *Session
}

// New starts a controller launching guests through exec and presenting
// them on p. Interactive input is offered only if p implements
// InputPrompter.
func New(exec *executor.Executor, p Presenter, opts ...Option) *Controller {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Controller{
		exec:      exec,
		presenter: p,
		cfg:       cfg,
		log:       cfg.log,
		inbox:     make(chan func()),
		done:      make(chan struct{}),
	}
	if prompter, ok := p.(InputPrompter); ok {
		c.prompter = prompter
	}

	go c.loop()
	return c
}

func (c *Controller) loop() {
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.done:
			return
		}
	}
}

// call runs fn on the controller goroutine and waits for it.
func (c *Controller) call(fn func()) error {
	finished := make(chan struct{})
	select {
	case c.inbox <- func() { fn(); close(finished) }:
	case <-c.done:
		return ErrControllerClosed
	}
	<-finished
	return nil
}

// Interactive reports whether execute sessions get a stdin channel.
func (c *Controller) Interactive() bool {
	return c.cfg.interactive && c.prompter != nil
}

// Execute replaces the current session with one running source. The
// session's resources are loaded before it returns; a *resource.LoadError
// is shown on the terminal and returned, and no guest is launched.
func (c *Controller) Execute(ctx context.Context, source, lang string) (*Session, error) {
	var ch *stdin.Channel
	if c.Interactive() {
		ch = stdin.New()
	}
	req, err := executor.NewExecRequest(source, lang, ch)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.Background())
	return c.start(ctx, req, newSession(sctx, cancel, executor.ModeExecute, ch))
}

// Codegen replaces the current session with one translating source to
// target. Output goes to the generated-code view.
func (c *Controller) Codegen(ctx context.Context, source, target, lang string) (*Session, error) {
	req, err := executor.NewCodegenRequest(source, target, lang)
	if err != nil {
		return nil, err
	}

	var (
		sctx   context.Context
		cancel context.CancelFunc
	)
	if c.cfg.codegenTimeout > 0 {
		sctx, cancel = context.WithTimeout(context.Background(), c.cfg.codegenTimeout)
	} else {
		sctx, cancel = context.WithCancel(context.Background())
	}
	return c.start(ctx, req, newSession(sctx, cancel, executor.ModeCodegen, nil))
}

func (c *Controller) start(ctx context.Context, req executor.Request, s *Session) (*Session, error) {
	if err := c.call(func() { c.begin(s) }); err != nil {
		s.cancel()
		return nil, err
	}

	job, err := c.exec.Prepare(ctx, req)
	if err != nil {
		c.call(func() { c.fail(s, err) })
		return nil, err
	}

	if err := c.call(func() { c.launch(s, job) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Submit answers the pending stdin request with line. An empty line is
// delivered as end of file. Submit reports false, doing nothing, when no
// request is pending.
func (c *Controller) Submit(line string) bool {
	var ok bool
	if err := c.call(func() { ok = c.submit(line, false) }); err != nil {
		return false
	}
	return ok
}

// SubmitEOF answers the pending stdin request with end of file.
func (c *Controller) SubmitEOF() bool {
	var ok bool
	if err := c.call(func() { ok = c.submit("", true) }); err != nil {
		return false
	}
	return ok
}

// Stop ends the current session, if any, and re-enables the controls. It
// reports whether a session was running.
func (c *Controller) Stop() bool {
	var stopped bool
	c.call(func() {
		if c.session == nil {
			return
		}
		c.teardown()
		c.presenter.Busy(false)
		stopped = true
	})
	return stopped
}

// Status describes the controller's current session.
type Status struct {
	Session string `json:"session,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Busy    bool   `json:"busy"`
	Pending bool   `json:"pending"`
}

// Status returns a snapshot of the current session.
func (c *Controller) Status() Status {
	var st Status
	c.call(func() {
		if s := c.session; s != nil {
			st = Status{Session: s.id, Mode: s.mode.String(), Busy: true, Pending: s.pending}
		}
	})
	return st
}

// Close stops the current session and the controller goroutine. Later
// calls fail with ErrControllerClosed.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.call(func() { c.teardown() })
		close(c.done)
	})
	return nil
}

func (c *Controller) begin(s *Session) {
	c.teardown()
	c.session = s

	log := c.log.WithFields(logrus.Fields{"session": s.id, "mode": s.mode})
	log.Debug("session starting")

	c.presenter.Reset(s.mode)
	c.presenter.Busy(true)

	if s.mode == executor.ModeExecute && s.stdin == nil {
		log.WithError(stdin.ErrChannelUnavailable).Info("running without interactive input")
		c.presenter.Terminal(NoticeUnavailable)
		c.presenter.Terminal(NoticeNoStdin)
	}
}

func (c *Controller) fail(s *Session, err error) {
	s.cancel()
	if c.session != s {
		return
	}
	c.log.WithError(err).WithField("session", s.id).Warn("session failed to start")

	c.sink(s.mode)(err.Error())
	c.presenter.Busy(false)
	c.session = nil
	s.finish(executor.Event{Kind: executor.EventError, Diagnostic: err.Error()})
}

func (c *Controller) launch(s *Session, job *executor.Job) {
	if c.session != s {
		// Replaced while loading.
		return
	}
	go c.work(s, job)
}

func (c *Controller) work(s *Session, job *executor.Job) {
	defer s.cancel()

	emit := func(ev executor.Event) {
		select {
		case c.inbox <- func() { c.handle(s, ev) }:
		case <-s.quit:
		case <-c.done:
		}
	}
	job.Run(s.ctx, emit)
}

// teardown abandons the current session without waiting for its worker.
func (c *Controller) teardown() {
	s := c.session
	if s == nil {
		return
	}
	c.session = nil

	if s.pending && c.prompter != nil {
		c.prompter.DismissInput()
	}
	s.abandon()
	s.finish(executor.Event{Kind: executor.EventError, Diagnostic: ErrSessionStopped.Error()})
	c.log.WithField("session", s.id).Debug("session stopped")
}

func (c *Controller) handle(s *Session, ev executor.Event) {
	if c.session != s {
		c.log.WithFields(logrus.Fields{"session": s.id, "type": ev.Kind}).Debug("dropping stale event")
		return
	}

	switch ev.Kind {
	case executor.EventStdout, executor.EventStderr:
		c.sink(s.mode)(ev.Line)

	case executor.EventStdin:
		if s.mode == executor.ModeCodegen {
			return
		}
		if s.stdin == nil || c.prompter == nil {
			c.presenter.Terminal(NoticeStdinEOF)
			return
		}
		if s.pending {
			return
		}
		s.pending = true
		c.prompter.PromptInput()

	case executor.EventExit, executor.EventError:
		if ev.Kind == executor.EventError {
			c.sink(s.mode)(ev.Diagnostic)
		}
		if s.pending && c.prompter != nil {
			c.prompter.DismissInput()
		}
		c.presenter.Busy(false)
		c.session = nil
		s.finish(ev)

		c.log.WithFields(logrus.Fields{
			"session":   s.id,
			"mode":      s.mode,
			"exit_code": ev.ExitCode,
		}).Debug("session ended")
	}
}

func (c *Controller) submit(line string, eof bool) bool {
	s := c.session
	if s == nil || !s.pending {
		return false
	}
	s.pending = false
	c.prompter.DismissInput()

	if eof {
		return s.stdin.FulfillEOF()
	}
	if c.cfg.echo {
		c.presenter.Terminal(InputEcho + line)
	}
	if line == "" {
		return s.stdin.FulfillEOF()
	}
	return s.stdin.Fulfill(line)
}

func (c *Controller) sink(mode executor.Mode) func(string) {
	if mode == executor.ModeCodegen {
		return c.presenter.Codegen
	}
	return c.presenter.Terminal
}
