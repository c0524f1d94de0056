package executor

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/caffeineduck/kiprun/stdin"
)

// Mode selects what a session does with the guest.
type Mode int

const (
	ModeExecute Mode = iota + 1
	ModeCodegen
)

func (m Mode) String() string {
	switch m {
	case ModeExecute:
		return "execute"
	case ModeCodegen:
		return "codegen"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

var (
	ErrInvalidLang   = errors.New("invalid language tag")
	ErrInvalidTarget = errors.New("invalid codegen target")
)

var (
	langPattern   = regexp.MustCompile(`^[a-z]{2,8}(-[A-Za-z0-9]{1,8})*$`)
	targetPattern = regexp.MustCompile(`^[a-z][a-z0-9_+-]{0,31}$`)
)

// Request is a validated, immutable description of one guest run. It is
// either an *ExecRequest or a *CodegenRequest.
type Request interface {
	Mode() Mode
	Source() string
	// Lang is the diagnostic language tag; empty selects the guest default.
	Lang() string
	isRequest()
}

// ExecRequest runs the user source with a live terminal.
type ExecRequest struct {
	source string
	lang   string
	stdin  *stdin.Channel
}

// NewExecRequest validates an execute request. ch may be nil, in which case
// the guest reads EOF from stdin.
func NewExecRequest(source, lang string, ch *stdin.Channel) (*ExecRequest, error) {
	if err := validateLang(lang); err != nil {
		return nil, err
	}
	return &ExecRequest{source: source, lang: lang, stdin: ch}, nil
}

func (r *ExecRequest) Mode() Mode     { return ModeExecute }
func (r *ExecRequest) Source() string { return r.source }
func (r *ExecRequest) Lang() string   { return r.lang }
func (*ExecRequest) isRequest()       {}

// Stdin returns the interactive channel, or nil when input is unavailable.
func (r *ExecRequest) Stdin() *stdin.Channel { return r.stdin }

// CodegenRequest translates the user source to another language. It has no
// stdin channel.
type CodegenRequest struct {
	source string
	lang   string
	target string
}

// NewCodegenRequest validates a code generation request.
func NewCodegenRequest(source, target, lang string) (*CodegenRequest, error) {
	if !targetPattern.MatchString(target) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	if err := validateLang(lang); err != nil {
		return nil, err
	}
	return &CodegenRequest{source: source, lang: lang, target: target}, nil
}

func (r *CodegenRequest) Mode() Mode     { return ModeCodegen }
func (r *CodegenRequest) Source() string { return r.source }
func (r *CodegenRequest) Lang() string   { return r.lang }
func (*CodegenRequest) isRequest()       {}

// Target returns the code generation target language.
func (r *CodegenRequest) Target() string { return r.target }

func validateLang(lang string) error {
	if lang == "" || langPattern.MatchString(lang) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidLang, lang)
}
