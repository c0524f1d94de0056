package executor

import (
	"github.com/caffeineduck/kiprun/internal/logging"
	"github.com/sirupsen/logrus"
)

// Option configures the Executor at creation time.
type Option func(*config)

type config struct {
	diskCache        bool
	cacheDir         string
	precompile       bool
	memoryLimitPages uint32
	log              *logrus.Entry
}

func defaultConfig() config {
	return config{log: logging.Discard()}
}

// WithDiskCache keeps compiled guest images on disk across processes, in dir
// if given and under the user cache directory otherwise.
func WithDiskCache(dir ...string) Option {
	return func(c *config) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile loads and compiles the guest image at Executor creation
// time instead of on first run.
func WithPrecompile() Option {
	return func(c *config) {
		c.precompile = true
	}
}

// WithMemoryLimit caps guest memory at pages wasm pages. Zero leaves the
// runtime's own ceiling in place.
func WithMemoryLimit(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(log *logrus.Entry) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// Page counts accepted by WithMemoryLimit, named by the memory they allow.
const (
	MemoryLimit16MB  uint32 = 16 << 20 / wasmPageSize
	MemoryLimit64MB  uint32 = 64 << 20 / wasmPageSize
	MemoryLimit256MB uint32 = 256 << 20 / wasmPageSize
	MemoryLimit1GB   uint32 = 1 << 30 / wasmPageSize
)

const wasmPageSize = 64 << 10
