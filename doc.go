// Package kiprun hosts the Kip playground guest, a WASI preview1 module, and
// drives it from Go.
//
// # Overview
//
// Every session instantiates the guest afresh over a read-only in-memory
// filesystem holding the standard library, the morphology data and the
// user's program. Guest output is delivered line by line; guest reads from
// stdin block until the host supplies a line.
//
// # Basic Usage
//
//	exec, _ := executor.New(kip.New(), resource.NewDir("./assets"))
//	defer exec.Close()
//
//	ctrl := controller.New(exec, presenter)
//	defer ctrl.Close()
//
//	// Run with interactive stdin
//	s, _ := ctrl.Execute(ctx, `"merhaba"i yaz.`, "tr")
//	<-s.Done()
//
//	// Translate to JavaScript
//	s, _ = ctrl.Codegen(ctx, source, "js", "")
//
// # Input
//
// When the guest reads stdin the controller asks its presenter for input.
// [controller.Controller.Submit] answers with a line and
// [controller.Controller.SubmitEOF] ends the input.
//
// See the [executor], [controller], [stdin], [vfs] and [language/kip]
// packages for detailed API documentation.
package kiprun
