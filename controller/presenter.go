package controller

import "github.com/caffeineduck/kiprun/executor"

// Presenter is what the operator sees. Its methods are called from the
// controller goroutine, one at a time, and must not call back into the
// Controller.
type Presenter interface {
	// Terminal appends a line to the terminal: execute-mode output,
	// diagnostics, notices and echoed input.
	Terminal(line string)

	// Codegen appends a line to the generated-code view.
	Codegen(line string)

	// Reset clears the view of mode before a session starts.
	Reset(mode executor.Mode)

	// Busy disables (true) or re-enables (false) the controls that start a
	// session.
	Busy(busy bool)
}

// InputPrompter is implemented by presenters that can take operator input.
// Without it execute sessions read EOF from stdin.
type InputPrompter interface {
	// PromptInput shows an input field for one line.
	PromptInput()

	// DismissInput hides the input field.
	DismissInput()
}
