package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/caffeineduck/kiprun/controller"
	"github.com/caffeineduck/kiprun/executor"
	"github.com/spf13/cobra"
)

var codegenCmd = &cobra.Command{
	Use:   "codegen [file]",
	Short: "Translate a Kip program to another language",
	Long: `Translate a Kip program with the guest's code generator and print the
result. Source is taken from a file, -c or stdin, as for run.

Code generation never reads stdin and is stopped after --timeout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCodegen,
}

func init() {
	codegenCmd.Flags().StringP("code", "c", "", "Source to translate")
	codegenCmd.Flags().StringP("target", "t", "js", "Target language")
	codegenCmd.Flags().Duration("timeout", 30*time.Second, "Code generation timeout")
	rootCmd.AddCommand(codegenCmd)
}

func runCodegen(cmd *cobra.Command, args []string) error {
	source, _, err := readSource(cmd, args)
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

	c := controller.New(exec, &termPresenter{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()},
		controller.WithLogger(logger.WithField("component", "controller")),
		controller.WithCodegenTimeout(cfg.Runtime.CodegenTimeout),
	)
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, err := c.Codegen(ctx, source, cfg.Guest.Target, cfg.Guest.Lang)
	if err != nil {
		return sessionError(err)
	}
	return waitSession(ctx, c, s)
}
