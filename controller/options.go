package controller

import (
	"time"

	"github.com/caffeineduck/kiprun/internal/logging"
	"github.com/sirupsen/logrus"
)

// Option configures a Controller.
type Option func(*config)

type config struct {
	log            *logrus.Entry
	interactive    bool
	echo           bool
	codegenTimeout time.Duration
}

func defaultConfig() config {
	return config{
		log:            logging.Discard(),
		interactive:    true,
		echo:           true,
		codegenTimeout: 30 * time.Second,
	}
}

// WithLogger sets the logger used for session lifecycle messages.
func WithLogger(log *logrus.Entry) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithInteractive enables or disables interactive stdin. When disabled,
// execute sessions read EOF and the operator is told so.
func WithInteractive(enabled bool) Option {
	return func(c *config) {
		c.interactive = enabled
	}
}

// WithCodegenTimeout bounds codegen sessions. Zero means no limit. Execute
// sessions are never timed out since they wait on the operator.
func WithCodegenTimeout(d time.Duration) Option {
	return func(c *config) {
		c.codegenTimeout = d
	}
}

// WithInputEcho controls whether submitted lines are echoed to the
// terminal. Disable it when the operator's terminal already shows them.
func WithInputEcho(enabled bool) Option {
	return func(c *config) {
		c.echo = enabled
	}
}
