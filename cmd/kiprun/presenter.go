package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/caffeineduck/kiprun/controller"
	"github.com/caffeineduck/kiprun/executor"
)

// termPresenter prints a session to plain output streams. Notices go to
// errOut so program output stays clean.
type termPresenter struct {
	out    io.Writer
	errOut io.Writer
	mu     sync.Mutex
}

func (p *termPresenter) Terminal(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch line {
	case controller.NoticeUnavailable, controller.NoticeNoStdin, controller.NoticeStdinEOF:
		printNotice(p.errOut, line)
	default:
		fmt.Fprintln(p.out, line)
	}
}

func (p *termPresenter) Codegen(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func (p *termPresenter) Reset(executor.Mode) {}

func (p *termPresenter) Busy(bool) {}

// promptPresenter answers stdin requests with lines read from in.
type promptPresenter struct {
	*termPresenter
	in   *bufio.Reader
	ctrl *controller.Controller
}

func (p *promptPresenter) PromptInput() {
	go func() {
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			p.ctrl.SubmitEOF()
			return
		}
		p.ctrl.Submit(strings.TrimRight(line, "\r\n"))
	}()
}

func (p *promptPresenter) DismissInput() {}
