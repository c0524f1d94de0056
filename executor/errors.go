package executor

import (
	"errors"
	"fmt"

	"github.com/agnivade/levenshtein"
)

var (
	ErrExecutorClosed = errors.New("executor closed")
	ErrUnsupported    = errors.New("unsupported by guest")
)

// GuestFault reports an abnormal guest termination: a trap, a host-side
// panic, or a cancelled run.
type GuestFault struct {
	Err error
}

func (e *GuestFault) Error() string {
	return fmt.Sprintf("execution failed: %v", e.Err)
}

func (e *GuestFault) Unwrap() error { return e.Err }

// unsupported builds an ErrUnsupported error for value, suggesting the
// closest accepted option when one is near enough to be a typo.
func unsupported(kind, value string, accepted []string) error {
	if s := suggest(value, accepted); s != "" {
		return fmt.Errorf("%w: %s %q (did you mean %q?)", ErrUnsupported, kind, value, s)
	}
	return fmt.Errorf("%w: %s %q (accepted: %v)", ErrUnsupported, kind, value, accepted)
}

func suggest(value string, options []string) string {
	best, bestDist := "", 3
	for _, opt := range options {
		if d := levenshtein.ComputeDistance(value, opt); d < bestDist {
			best, bestDist = opt, d
		}
	}
	return best
}
