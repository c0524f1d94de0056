package executor

import (
	"sync"

	"github.com/caffeineduck/kiprun/resource"
)

// The process-wide executor. Its compiled guest image is the only state
// shared between sessions.
var (
	sharedMu   sync.Mutex
	sharedExec *Executor
)

// Shared returns the process-wide Executor, creating it on first call. Later
// calls return the same instance and ignore their arguments. A failed
// creation is not cached.
func Shared(guest Guest, loader resource.Loader, opts ...Option) (*Executor, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedExec != nil {
		return sharedExec, nil
	}

	exec, err := New(guest, loader, opts...)
	if err != nil {
		return nil, err
	}
	sharedExec = exec
	return sharedExec, nil
}

// CloseShared closes the process-wide Executor. Call it at process exit.
func CloseShared() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedExec == nil {
		return nil
	}
	err := sharedExec.Close()
	sharedExec = nil
	return err
}
