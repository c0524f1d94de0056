package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caffeineduck/kiprun/executor"
	"github.com/caffeineduck/kiprun/internal/config"
	"github.com/caffeineduck/kiprun/internal/logging"
	"github.com/caffeineduck/kiprun/language/kip"
	"github.com/caffeineduck/kiprun/resource"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rootCmd = &cobra.Command{
	Use:   "kiprun",
	Short: "Run Kip programs in a WebAssembly sandbox",
	Long: `kiprun - Run the Kip playground toolchain under wazero.

The guest image and its library sources are loaded from a local asset
directory (--assets) or a base URL (--assets-url). Programs that read from
stdin are answered interactively from the terminal.

Settings can also come from ~/.config/kiprun/config.toml (or the file named
by KIPRUN_CONFIG) and KIPRUN_* environment variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var (
	cfg    config.Config
	logger = logrus.New()
)

var errNoAssets = errors.New("no assets configured: use --assets or --assets-url")

// exitError carries a guest exit status whose diagnostic, if any, has
// already been shown.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// flagKeys maps configuration keys to the flags that override them.
var flagKeys = map[string]string{
	"assets.dir":              "assets",
	"assets.url":              "assets-url",
	"guest.lang":              "lang",
	"guest.target":            "target",
	"cache.disabled":          "no-cache",
	"runtime.memory":          "memory",
	"runtime.codegen_timeout": "timeout",
	"stdin.interactive":       "interactive",
	"log.level":               "log-level",
	"log.format":              "log-format",
	"serve.addr":              "addr",
}

func init() {
	rootCmd.PersistentFlags().String("assets", "", "Asset directory holding kip-playground.wasm and assets/")
	rootCmd.PersistentFlags().String("assets-url", "", "Base URL to load assets from")
	rootCmd.PersistentFlags().StringP("lang", "l", "tr", "Diagnostic language: tr, en")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache")
	rootCmd.PersistentFlags().String("memory", "", "Memory limit: 16mb, 64mb, 256mb, 1gb")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text, json")
}

func setup(cmd *cobra.Command, args []string) error {
	v, err := config.New()
	if err != nil {
		return err
	}
	if err := config.BindFlags(v, cmd.Flags(), flagKeys); err != nil {
		return err
	}
	c, err := config.Load(v)
	if err != nil {
		return err
	}

	l, err := logging.New(c.Log.Level, c.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

func assetLoader(c config.Config) (resource.Loader, error) {
	switch {
	case c.Assets.Dir != "":
		return resource.NewDir(c.Assets.Dir), nil
	case c.Assets.URL != "":
		h, err := resource.NewHTTP(resource.HTTPConfig{BaseURL: c.Assets.URL})
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, errNoAssets
	}
}

// newExecutor returns the process-wide executor for the Kip guest. Callers
// release it with executor.CloseShared.
func newExecutor(c config.Config) (*executor.Executor, error) {
	loader, err := assetLoader(c)
	if err != nil {
		return nil, err
	}

	opts := []executor.Option{
		executor.WithLogger(logger.WithField("component", "executor")),
	}
	if !c.Cache.Disabled {
		opts = append(opts, executor.WithDiskCache(c.Cache.Dir))
	}
	if pages := parseMemoryLimit(c.Runtime.Memory); pages > 0 {
		opts = append(opts, executor.WithMemoryLimit(pages))
	}
	return executor.Shared(kip.New(), loader, opts...)
}

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "16mb":
		return executor.MemoryLimit16MB
	case "64mb":
		return executor.MemoryLimit64MB
	case "256mb":
		return executor.MemoryLimit256MB
	case "1gb":
		return executor.MemoryLimit1GB
	default:
		return 0 // use default
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
