package executor

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/caffeineduck/kiprun/bridge"
	"github.com/caffeineduck/kiprun/resource"
	"github.com/caffeineduck/kiprun/vfs"
	"github.com/sirupsen/logrus"
	"github.com/tetratelabs/wazero"
)

// Result holds the outcome of one guest run.
type Result struct {
	ExitCode uint32
	Duration time.Duration
	Error    error
}

// Executor manages the WASM runtime and the lazily compiled guest image.
type Executor struct {
	guest  Guest
	loader resource.Loader
	log    *logrus.Entry

	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule
	mu       sync.RWMutex
	closed   bool
}

// New creates an Executor for guest, loading resources through loader.
func New(guest Guest, loader resource.Loader, opts ...Option) (*Executor, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = DefaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := bridge.InstantiateWASI(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	e := &Executor{
		guest:   guest,
		loader:  loader,
		log:     cfg.log.WithField("guest", guest.Name()),
		runtime: rt,
		cache:   cache,
	}

	if cfg.precompile {
		if _, err := e.image(ctx); err != nil {
			e.Close()
			return nil, fmt.Errorf("precompile %s: %w", guest.Name(), err)
		}
	}

	return e, nil
}

// Guest returns the guest this executor launches.
func (e *Executor) Guest() Guest {
	return e.guest
}

// image returns the compiled guest, loading and compiling it on first use.
// A failed load or compile is not cached.
func (e *Executor) image(ctx context.Context) (wazero.CompiledModule, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrExecutorClosed
	}
	if e.compiled != nil {
		compiled := e.compiled
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrExecutorClosed
	}
	if e.compiled != nil {
		return e.compiled, nil
	}

	start := time.Now()
	bin, err := e.loader.Load(ctx, e.guest.ImagePath())
	if err != nil {
		return nil, err
	}

	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, &resource.LoadError{Path: e.guest.ImagePath(), Err: fmt.Errorf("compile: %w", err)}
	}

	e.log.WithFields(logrus.Fields{
		"path":     e.guest.ImagePath(),
		"bytes":    len(bin),
		"duration": time.Since(start),
	}).Debug("compiled guest image")

	e.compiled = compiled
	return compiled, nil
}

// Prepare resolves everything a run needs before the guest starts: the
// compiled image and a fresh virtual filesystem. Any unreachable resource
// fails here, so a returned Job never launches partially.
func (e *Executor) Prepare(ctx context.Context, req Request) (*Job, error) {
	args, err := e.args(req)
	if err != nil {
		return nil, err
	}

	compiled, err := e.image(ctx)
	if err != nil {
		return nil, err
	}

	layout := e.guest.Layout()
	fsys, err := vfs.Build(ctx, e.loader, layout, req.Source())
	if err != nil {
		return nil, err
	}

	job := &Job{
		exec:     e,
		req:      req,
		compiled: compiled,
		fsys:     fsys,
		args:     args,
	}
	if r, ok := req.(*ExecRequest); ok {
		job.stdin = r.Stdin()
	}
	return job, nil
}

func (e *Executor) args(req Request) ([]string, error) {
	lang := req.Lang()
	langs := e.guest.Languages()
	if lang == "" && len(langs) > 0 {
		lang = langs[0]
	}
	if lang != "" && len(langs) > 0 && !slices.Contains(langs, lang) {
		return nil, unsupported("language", lang, langs)
	}

	srcPath := path.Join("/", e.guest.Layout().SourceName)

	switch r := req.(type) {
	case *ExecRequest:
		return e.guest.ExecArgs(srcPath, lang), nil
	case *CodegenRequest:
		targets := e.guest.CodegenTargets()
		if !slices.Contains(targets, r.Target()) {
			return nil, unsupported("codegen target", r.Target(), targets)
		}
		return e.guest.CodegenArgs(r.Target(), srcPath, lang), nil
	default:
		return nil, fmt.Errorf("unknown request type %T", req)
	}
}

// Run prepares and runs req, blocking until the guest terminates. Every
// event, including the terminal one, is passed to emit. A preparation
// failure is reported as a single error event.
func (e *Executor) Run(ctx context.Context, req Request, emit Emitter) Result {
	start := time.Now()

	job, err := e.Prepare(ctx, req)
	if err != nil {
		emit(Event{Kind: EventError, Diagnostic: err.Error()})
		return Result{Error: err, Duration: time.Since(start)}
	}
	return job.Run(ctx, emit)
}

// Close releases all resources held by the Executor.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()

	var errs []error
	if err := e.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// DefaultCacheDir returns the compilation cache directory used by
// WithDiskCache when none is given.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "kiprun")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "kiprun")
	}
	return filepath.Join(os.TempDir(), "kiprun-cache")
}
