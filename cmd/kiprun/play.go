package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/caffeineduck/kiprun/controller"
	"github.com/caffeineduck/kiprun/executor"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const (
	editPrompt  = "kip> "
	inputPrompt = controller.InputEcho
)

var playCmd = &cobra.Command{
	Use:   "play [file]",
	Short: "Interactive playground",
	Long: `Start an interactive playground.

Type Kip source lines to build up a program, then run it. While a program
waits for input the prompt changes to › and the next line is sent to it;
an empty line or Ctrl+D ends its input.

Commands:
  :run               Run the program
  :codegen [target]  Translate the program (default target js)
  :load <file>       Replace the program with a file
  :show              Print the program
  :clear             Empty the program
  :lang [tag]        Show or set the diagnostic language
  :stop              Stop the running program
  :status            Show the current session
  :quit              Leave (or Ctrl+D)

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().String("history", "", "History file path (default: ~/.kiprun_history)")
	rootCmd.AddCommand(playCmd)
}

// playPresenter writes sessions above the readline prompt.
type playPresenter struct {
	mu       sync.Mutex
	out      io.Writer
	rl       *readline.Instance
	awaiting atomic.Bool
}

func (p *playPresenter) Terminal(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func (p *playPresenter) Codegen(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, dimStyle.Render("│ ")+line)
}

func (p *playPresenter) Reset(mode executor.Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, titleStyle.Render("── "+mode.String()+" ──"))
}

func (p *playPresenter) Busy(busy bool) {
	if !busy {
		p.setPrompt(editPrompt)
	}
}

func (p *playPresenter) PromptInput() {
	p.awaiting.Store(true)
	p.setPrompt(inputPrompt)
}

func (p *playPresenter) DismissInput() {
	p.awaiting.Store(false)
	p.setPrompt(editPrompt)
}

func (p *playPresenter) setPrompt(prompt string) {
	if p.rl == nil {
		return
	}
	p.rl.SetPrompt(prompt)
	p.rl.Refresh()
}

// playground holds the program being edited and dispatches commands.
type playground struct {
	ctrl   *controller.Controller
	out    io.Writer
	lines  []string
	lang   string
	target string
}

func (pg *playground) source() string {
	if len(pg.lines) == 0 {
		return ""
	}
	return strings.Join(pg.lines, "\n") + "\n"
}

// command runs one ':' command and reports whether the playground should
// exit.
func (pg *playground) command(ctx context.Context, line string) bool {
	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	if len(fields) == 0 {
		return false
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "run", "r":
		if _, err := pg.ctrl.Execute(ctx, pg.source(), pg.lang); err != nil && !isShownErr(err) {
			printError(pg.out, err)
		}
	case "codegen", "c":
		target := pg.target
		if arg != "" {
			target = arg
		}
		if _, err := pg.ctrl.Codegen(ctx, pg.source(), target, pg.lang); err != nil && !isShownErr(err) {
			printError(pg.out, err)
		}
	case "load":
		if arg == "" {
			printError(pg.out, fmt.Errorf("usage: :load <file>"))
			return false
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			printError(pg.out, err)
			return false
		}
		pg.lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		fmt.Fprintf(pg.out, "loaded %d lines from %s\n", len(pg.lines), arg)
	case "show":
		for i, l := range pg.lines {
			fmt.Fprintf(pg.out, "%s %s\n", dimStyle.Render(fmt.Sprintf("%3d", i+1)), l)
		}
	case "clear":
		pg.lines = nil
	case "lang":
		if arg == "" {
			fmt.Fprintln(pg.out, pg.lang)
			return false
		}
		pg.lang = arg
	case "stop":
		if !pg.ctrl.Stop() {
			fmt.Fprintln(pg.out, "nothing running")
		}
	case "status":
		st := pg.ctrl.Status()
		if st.Session == "" {
			fmt.Fprintln(pg.out, "idle")
			return false
		}
		fmt.Fprintf(pg.out, "%s %s pending=%v\n", st.Mode, st.Session, st.Pending)
	case "quit", "q", "exit":
		return true
	case "help", "h":
		fmt.Fprintln(pg.out, "commands: :run :codegen [target] :load <file> :show :clear :lang [tag] :stop :status :quit")
	default:
		printError(pg.out, fmt.Errorf("unknown command %q (try :help)", fields[0]))
	}
	return false
}

func isShownErr(err error) bool {
	_, ok := sessionError(err).(*exitError)
	return ok
}

func runPlay(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".kiprun_history")
	}

	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}
	defer executor.CloseShared()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            editPrompt,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	presenter := &playPresenter{out: rl.Stdout(), rl: rl}
	c := controller.New(exec, presenter,
		controller.WithLogger(logger.WithField("component", "controller")),
		controller.WithInteractive(cfg.Stdin.Interactive),
		controller.WithInputEcho(false),
		controller.WithCodegenTimeout(cfg.Runtime.CodegenTimeout),
	)
	defer c.Close()

	pg := &playground{ctrl: c, out: rl.Stdout(), lang: cfg.Guest.Lang, target: cfg.Guest.Target}
	if len(args) > 0 {
		pg.command(cmd.Context(), ":load "+args[0])
	}

	fmt.Fprintln(rl.Stderr(), titleStyle.Render("kiprun playground")+dimStyle.Render(" (:help for commands, Ctrl+D to exit)"))

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			c.Stop()
			continue
		}
		if err == io.EOF {
			if presenter.awaiting.Load() && c.SubmitEOF() {
				continue
			}
			fmt.Fprintln(rl.Stdout())
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		if presenter.awaiting.Load() {
			if c.Submit(line) {
				continue
			}
		}

		if strings.HasPrefix(line, ":") {
			if pg.command(cmd.Context(), line) {
				return nil
			}
			continue
		}
		pg.lines = append(pg.lines, line)
	}
}
