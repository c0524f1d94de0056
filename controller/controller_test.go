package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/kiprun/executor"
	"github.com/caffeineduck/kiprun/internal/wasmtest"
	"github.com/caffeineduck/kiprun/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 10 * time.Second

type fakePresenter struct {
	mu       sync.Mutex
	terminal []string
	codegen  []string
	busy     []bool
}

func (p *fakePresenter) Terminal(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminal = append(p.terminal, line)
}

func (p *fakePresenter) Codegen(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codegen = append(p.codegen, line)
}

func (p *fakePresenter) Reset(mode executor.Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if mode == executor.ModeCodegen {
		p.codegen = nil
	} else {
		p.terminal = nil
	}
}

func (p *fakePresenter) Busy(busy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = append(p.busy, busy)
}

func (p *fakePresenter) terminalLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.terminal...)
}

func (p *fakePresenter) codegenLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.codegen...)
}

func (p *fakePresenter) busyStates() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.busy...)
}

type promptingPresenter struct {
	fakePresenter
	prompts    chan struct{}
	dismissals int
}

func newPromptingPresenter() *promptingPresenter {
	return &promptingPresenter{prompts: make(chan struct{}, 16)}
}

func (p *promptingPresenter) PromptInput() {
	p.prompts <- struct{}{}
}

func (p *promptingPresenter) DismissInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissals++
}

func (p *promptingPresenter) dismissed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dismissals
}

func newController(t *testing.T, module []byte, p Presenter, opts ...Option) *Controller {
	t.Helper()
	return newControllerWithAssets(t, resource.NewFS(wasmtest.Assets(module)), p, opts...)
}

func newControllerWithAssets(t *testing.T, loader resource.Loader, p Presenter, opts ...Option) *Controller {
	t.Helper()
	exec, err := executor.New(wasmtest.Guest{}, loader)
	require.NoError(t, err)
	c := New(exec, p, opts...)
	t.Cleanup(func() {
		c.Close()
		exec.Close()
	})
	return c
}

func waitPrompt(t *testing.T, p *promptingPresenter) {
	t.Helper()
	select {
	case <-p.prompts:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for an input prompt")
	}
}

func waitDone(t *testing.T, s *Session) executor.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	ev, err := s.Wait(ctx)
	require.NoError(t, err, "session did not end")
	return ev
}

func TestExecuteRoutesOutputToTerminal(t *testing.T) {
	p := newPromptingPresenter()
	c := newController(t, wasmtest.New().Write(1, "merhaba\n").Write(2, "uyarı\n").Write(1, "son").Bytes(), p)

	s, err := c.Execute(context.Background(), "yazdır 5.", "")
	require.NoError(t, err)
	assert.Equal(t, executor.ModeExecute, s.Mode())
	assert.NotEmpty(t, s.ID())

	ev := waitDone(t, s)
	assert.Equal(t, executor.EventExit, ev.Kind)
	assert.Equal(t, []string{"merhaba", "uyarı", "son"}, p.terminalLines())
	assert.Empty(t, p.codegenLines())
	assert.Equal(t, []bool{true, false}, p.busyStates())
}

func TestInteractiveLineThenEOF(t *testing.T) {
	p := newPromptingPresenter()
	c := newController(t, wasmtest.New().EchoLines().Bytes(), p)

	s, err := c.Execute(context.Background(), "", "tr")
	require.NoError(t, err)
	assert.True(t, s.Interactive())

	waitPrompt(t, p)
	assert.True(t, c.Status().Pending)
	assert.Equal(t, []bool{true}, p.busyStates(), "controls stay disabled while waiting for input")
	require.True(t, c.Submit("5"))

	waitPrompt(t, p)
	require.True(t, c.Submit(""))

	ev := waitDone(t, s)
	assert.Equal(t, executor.EventExit, ev.Kind)
	assert.Equal(t, []string{"› 5", "5", "› "}, p.terminalLines())
	assert.Equal(t, []bool{true, false}, p.busyStates())
}

func TestSubmitEOF(t *testing.T) {
	p := newPromptingPresenter()
	c := newController(t, wasmtest.New().EchoLines().Write(1, "bitti\n").Bytes(), p)

	s, err := c.Execute(context.Background(), "", "")
	require.NoError(t, err)

	waitPrompt(t, p)
	require.True(t, c.SubmitEOF())

	waitDone(t, s)
	assert.Equal(t, []string{"bitti"}, p.terminalLines())
}

func TestSubmitWithoutPendingRequest(t *testing.T) {
	p := newPromptingPresenter()
	c := newController(t, wasmtest.New().Spin().Bytes(), p)

	assert.False(t, c.Submit("boşta"))
	assert.False(t, c.SubmitEOF())

	s, err := c.Execute(context.Background(), "", "")
	require.NoError(t, err)
	assert.False(t, c.Submit("erken"))
	assert.Empty(t, p.terminalLines())

	require.True(t, c.Stop())
	waitDone(t, s)
}

func TestUnavailableWithoutPrompter(t *testing.T) {
	p := &fakePresenter{}
	c := newController(t, wasmtest.New().EchoLines().Write(1, "bitti\n").Bytes(), p)
	assert.False(t, c.Interactive())

	s, err := c.Execute(context.Background(), "", "")
	require.NoError(t, err)
	assert.False(t, s.Interactive())

	ev := waitDone(t, s)
	assert.Equal(t, executor.EventExit, ev.Kind)
	assert.Equal(t, []string{NoticeUnavailable, NoticeNoStdin, "bitti"}, p.terminalLines())
}

func TestUnavailableByConfiguration(t *testing.T) {
	p := newPromptingPresenter()
	c := newController(t, wasmtest.New().EchoLines().Bytes(), p, WithInteractive(false))

	s, err := c.Execute(context.Background(), "", "")
	require.NoError(t, err)
	waitDone(t, s)

	assert.Empty(t, p.prompts)
	assert.Equal(t, []string{NoticeUnavailable, NoticeNoStdin}, p.terminalLines())
}

func TestReplaceDiscardsPendingRequest(t *testing.T) {
	assets := wasmtest.Assets(wasmtest.New().EchoLines().Bytes())
	p := newPromptingPresenter()
	c := newControllerWithAssets(t, resource.NewFS(assets), p)

	first, err := c.Execute(context.Background(), "", "")
	require.NoError(t, err)
	waitPrompt(t, p)

	second, err := c.Codegen(context.Background(), "", "js", "")
	require.NoError(t, err)

	select {
	case <-first.Done():
	default:
		t.Fatal("replaced session still running")
	}
	assert.Equal(t, ErrSessionStopped.Error(), first.Outcome().Diagnostic)
	assert.False(t, first.stdin.Fulfill("geç"), "superseded worker received a late answer")
	assert.Equal(t, 1, p.dismissed())

	ev := waitDone(t, second)
	assert.Equal(t, executor.EventExit, ev.Kind)
	assert.False(t, c.Submit("x"))
	assert.Empty(t, p.terminalLines())
	assert.Equal(t, []bool{true, true, false}, p.busyStates())
}

func TestCodegenIgnoresStdin(t *testing.T) {
	p := newPromptingPresenter()
	c := newController(t, wasmtest.New().EchoLines().Write(1, "console.log(5);\n").Bytes(), p)

	s, err := c.Codegen(context.Background(), "yazdır 5.", "js", "en")
	require.NoError(t, err)
	assert.Equal(t, executor.ModeCodegen, s.Mode())
	assert.False(t, s.Interactive())

	ev := waitDone(t, s)
	assert.Equal(t, executor.EventExit, ev.Kind)
	assert.Equal(t, []string{"console.log(5);"}, p.codegenLines())
	assert.Empty(t, p.terminalLines())
	assert.Empty(t, p.prompts)
}

func TestCodegenTimeout(t *testing.T) {
	p := &fakePresenter{}
	c := newController(t, wasmtest.New().Spin().Bytes(), p, WithCodegenTimeout(100*time.Millisecond))

	s, err := c.Codegen(context.Background(), "", "js", "")
	require.NoError(t, err)

	ev := waitDone(t, s)
	assert.Equal(t, executor.EventError, ev.Kind)
	assert.Contains(t, ev.Diagnostic, "timeout")
	require.Len(t, p.codegenLines(), 1)
	assert.Equal(t, ev.Diagnostic, p.codegenLines()[0])
}

func TestCodegenUnsupportedTarget(t *testing.T) {
	p := &fakePresenter{}
	c := newController(t, wasmtest.New().Bytes(), p)

	_, err := c.Codegen(context.Background(), "", "py", "")
	assert.ErrorIs(t, err, executor.ErrUnsupported)
	assert.Equal(t, []bool{true, false}, p.busyStates())
	require.Len(t, p.codegenLines(), 1)
}

func TestLoadErrorShownOnTerminal(t *testing.T) {
	assets := wasmtest.Assets(wasmtest.New().Bytes())
	delete(assets, "lib/prelude.kip")

	p := newPromptingPresenter()
	c := newControllerWithAssets(t, resource.NewFS(assets), p)

	s, err := c.Execute(context.Background(), "", "")
	assert.Nil(t, s)

	var loadErr *resource.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, []string{err.Error()}, p.terminalLines())
	assert.Equal(t, []bool{true, false}, p.busyStates())
	assert.Equal(t, Status{}, c.Status())
}

func TestGuestFaultShownOnTerminal(t *testing.T) {
	p := newPromptingPresenter()
	c := newController(t, wasmtest.New().Write(1, "önce\n").Trap().Bytes(), p)

	s, err := c.Execute(context.Background(), "", "")
	require.NoError(t, err)

	ev := waitDone(t, s)
	assert.Equal(t, executor.EventError, ev.Kind)
	lines := p.terminalLines()
	require.Len(t, lines, 2)
	assert.Equal(t, "önce", lines[0])
	assert.Contains(t, lines[1], "unreachable")
}

func TestExitCode(t *testing.T) {
	p := newPromptingPresenter()
	c := newController(t, wasmtest.New().Exit(7).Bytes(), p)

	s, err := c.Execute(context.Background(), "", "")
	require.NoError(t, err)

	ev := waitDone(t, s)
	assert.Equal(t, executor.EventExit, ev.Kind)
	assert.Equal(t, uint32(7), ev.ExitCode)
}

func TestStop(t *testing.T) {
	p := newPromptingPresenter()
	c := newController(t, wasmtest.New().EchoLines().Bytes(), p)

	s, err := c.Execute(context.Background(), "", "")
	require.NoError(t, err)
	waitPrompt(t, p)

	st := c.Status()
	assert.Equal(t, s.ID(), st.Session)
	assert.Equal(t, "execute", st.Mode)
	assert.True(t, st.Busy)

	assert.True(t, c.Stop())
	assert.False(t, c.Stop())
	assert.False(t, c.Submit("geç"))

	ev := waitDone(t, s)
	assert.Equal(t, ErrSessionStopped.Error(), ev.Diagnostic)
	assert.Equal(t, []bool{true, false}, p.busyStates())
	assert.Equal(t, Status{}, c.Status())
}

func TestSequentialSessions(t *testing.T) {
	p := newPromptingPresenter()
	c := newController(t, wasmtest.New().Write(1, "tamam\n").Bytes(), p)

	for i := 0; i < 3; i++ {
		s, err := c.Execute(context.Background(), "", "")
		require.NoError(t, err)
		waitDone(t, s)
		assert.Equal(t, []string{"tamam"}, p.terminalLines())
	}
	assert.Equal(t, []bool{true, false, true, false, true, false}, p.busyStates())
}

func TestClosed(t *testing.T) {
	p := newPromptingPresenter()
	c := newController(t, wasmtest.New().Bytes(), p)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Execute(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrControllerClosed)
	assert.False(t, c.Submit("x"))
	assert.False(t, c.Stop())
}

func TestInputEchoDisabled(t *testing.T) {
	p := newPromptingPresenter()
	c := newController(t, wasmtest.New().Echo().Bytes(), p, WithInputEcho(false))

	s, err := c.Execute(context.Background(), "", "")
	require.NoError(t, err)
	waitPrompt(t, p)
	require.True(t, c.Submit("sessiz"))

	waitDone(t, s)
	assert.Equal(t, []string{"sessiz"}, p.terminalLines())
}
