package executor

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/caffeineduck/kiprun/bridge"
	"github.com/caffeineduck/kiprun/stdin"
	"github.com/caffeineduck/kiprun/vfs"
	"github.com/sirupsen/logrus"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/experimental/sysfs"
	"github.com/tetratelabs/wazero/sys"
)

// Job is a prepared run: the compiled image, a built filesystem and the
// guest arguments. A Job runs at most once.
type Job struct {
	exec     *Executor
	req      Request
	compiled wazero.CompiledModule
	fsys     *vfs.Image
	args     []string
	stdin    *stdin.Channel
}

// Args returns the guest argv.
func (j *Job) Args() []string {
	return j.args
}

// FS returns the virtual root filesystem mounted for the guest. Anything the
// guest wrote during Run is visible here afterwards.
func (j *Job) FS() *vfs.Image {
	return j.fsys
}

// Run instantiates the guest and blocks until it terminates. Output lines,
// stdin requests and exactly one terminal event are passed to emit in
// production order. Nothing raised by the guest or by emit escapes Run.
func (j *Job) Run(ctx context.Context, emit Emitter) (result Result) {
	start := time.Now()
	log := j.exec.log.WithField("mode", j.req.Mode())

	var terminated bool
	terminate := func(ev Event) {
		if terminated {
			return
		}
		terminated = true
		emit(ev)
	}

	defer func() {
		if r := recover(); r != nil {
			err := &GuestFault{Err: fmt.Errorf("panic: %v", r)}
			log.WithError(err).Error("guest run panicked")
			result = Result{Error: err, Duration: time.Since(start)}
			func() {
				defer func() { recover() }()
				terminate(Event{Kind: EventError, Diagnostic: err.Error()})
			}()
		}
	}()

	console := &bridge.Console{
		Stdout: bridge.NewLineWriter(func(line string) {
			emit(Event{Kind: EventStdout, Line: line})
		}),
		Stderr: bridge.NewLineWriter(func(line string) {
			emit(Event{Kind: EventStderr, Line: line})
		}),
		Stdin: bridge.NewStdin(j.stdin, func() {
			emit(Event{Kind: EventStdin})
		}),
	}

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(console.Stdout).
		WithStderr(console.Stderr).
		WithStdin(console.Stdin).
		WithArgs(j.args...).
		WithFSConfig(wazero.NewFSConfig().(sysfs.FSConfig).WithSysFSMount(j.fsys.Mount(), "/")).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader).
		WithName("")

	env := j.exec.guest.Env()
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		moduleConfig = moduleConfig.WithEnv(k, env[k])
	}

	log.WithField("args", j.args).Debug("starting guest")

	mod, err := j.exec.runtime.InstantiateModule(ctx, j.compiled, moduleConfig)
	if mod != nil {
		mod.Close(context.Background())
	}
	console.Flush()

	result = Result{Duration: time.Since(start)}

	var exitErr *sys.ExitError
	switch {
	case err == nil:
	case ctx.Err() != nil:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.Error = &GuestFault{Err: fmt.Errorf("timeout after %v", result.Duration.Round(time.Millisecond))}
		} else {
			result.Error = &GuestFault{Err: ctx.Err()}
		}
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.Error = &GuestFault{Err: err}
	}

	if result.Error != nil {
		log.WithError(result.Error).Debug("guest faulted")
		terminate(Event{Kind: EventError, Diagnostic: result.Error.Error()})
		return result
	}

	log.WithFields(logrus.Fields{
		"exit_code": result.ExitCode,
		"duration":  result.Duration,
	}).Debug("guest exited")
	terminate(Event{Kind: EventExit, ExitCode: result.ExitCode})
	return result
}
