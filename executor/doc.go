// Package executor launches a sandboxed WASI guest with a virtual root
// filesystem and console bridge attached.
//
// # Overview
//
// The executor owns one wazero runtime and the guest's compiled image. The
// image is compiled lazily on first use and cached read-only for the life of
// the executor; it is never recompiled. Every run builds a fresh virtual
// filesystem, so sessions never share mutable state.
//
// # Basic Usage
//
//	exec, err := executor.New(kip.New(), resource.NewDir("./assets"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	req, _ := executor.NewCodegenRequest(source, "js", "tr")
//	result := exec.Run(ctx, req, func(ev executor.Event) {
//	    fmt.Println(ev.Line)
//	})
//
// # Requests
//
// A [Request] is either an [ExecRequest] or a [CodegenRequest]. Only
// execute requests can carry an interactive stdin channel; code generation
// is assumed non-interactive and always reads EOF.
//
// # Events
//
// Output reaches the caller as [Event] values in production order: one
// event per complete stdout or stderr line, a stdin event each time the
// guest blocks for input, and exactly one terminal exit or error event.
//
// # Guest Interface
//
// To run a different guest, implement the [Guest] interface.
// See [github.com/caffeineduck/kiprun/language/kip] for an example.
package executor
