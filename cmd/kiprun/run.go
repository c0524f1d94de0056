package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/caffeineduck/kiprun/controller"
	"github.com/caffeineduck/kiprun/executor"
	"github.com/caffeineduck/kiprun/resource"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a Kip program",
	Long: `Run a Kip program in the sandbox.

Source can be provided via:
  - File argument: kiprun run program.kip
  - Inline flag: kiprun run -c 'yazdır 5.'
  - Stdin: echo 'yazdır 5.' | kiprun run

When the program reads input, lines are taken from the terminal. An empty
line or Ctrl+D ends the input. Source piped on stdin leaves the program
without interactive input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("code", "c", "", "Source to run")
	runCmd.Flags().Bool("interactive", true, "Answer stdin requests from the terminal")
	rootCmd.AddCommand(runCmd)
}

// readSource returns the program text and whether it was read from stdin.
func readSource(cmd *cobra.Command, args []string) (string, bool, error) {
	code, _ := cmd.Flags().GetString("code")

	switch {
	case code != "":
		return code, false, nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", false, err
		}
		return string(data), false, nil
	default:
		if isTerminal(cmd.InOrStdin()) {
			return "", false, nil
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", false, fmt.Errorf("read stdin: %w", err)
		}
		return string(data), true, nil
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	source, fromStdin, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	if source == "" {
		return cmd.Help()
	}

	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}
	defer executor.CloseShared()

	view := &termPresenter{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
	interactive := cfg.Stdin.Interactive && !fromStdin

	var (
		presenter controller.Presenter = view
		prompter  *promptPresenter
	)
	if interactive {
		prompter = &promptPresenter{termPresenter: view, in: bufio.NewReader(cmd.InOrStdin())}
		presenter = prompter
	}

	c := controller.New(exec, presenter,
		controller.WithLogger(logger.WithField("component", "controller")),
		controller.WithInteractive(interactive),
		controller.WithInputEcho(!isTerminal(cmd.InOrStdin())),
	)
	defer c.Close()
	if prompter != nil {
		prompter.ctrl = c
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, err := c.Execute(ctx, source, cfg.Guest.Lang)
	if err != nil {
		return sessionError(err)
	}
	return waitSession(ctx, c, s)
}

// sessionError hides start failures the controller has already shown on
// the session's sink.
func sessionError(err error) error {
	var loadErr *resource.LoadError
	if errors.As(err, &loadErr) || errors.Is(err, executor.ErrUnsupported) {
		return &exitError{code: 1}
	}
	return err
}

func waitSession(ctx context.Context, c *controller.Controller, s *controller.Session) error {
	ev, err := s.Wait(ctx)
	if err != nil {
		c.Stop()
		return err
	}
	switch {
	case ev.Kind == executor.EventError:
		return &exitError{code: 1}
	case ev.ExitCode != 0:
		return &exitError{code: int(ev.ExitCode)}
	default:
		return nil
	}
}
