package executor

import "fmt"

// EventKind tags an Event.
type EventKind int

const (
	EventStdout EventKind = iota + 1
	EventStderr
	EventStdin
	EventExit
	EventError
)

var eventNames = map[EventKind]string{
	EventStdout: "stdout",
	EventStderr: "stderr",
	EventStdin:  "stdin",
	EventExit:   "exit",
	EventError:  "error",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	name, ok := eventNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a kind name.
func (k *EventKind) UnmarshalText(text []byte) error {
	for kind, name := range eventNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", text)
}

// Terminal reports whether the kind ends a run.
func (k EventKind) Terminal() bool {
	return k == EventExit || k == EventError
}

// Event is one message from a running guest.
type Event struct {
	Kind       EventKind `json:"type"`
	Line       string    `json:"line,omitempty"`
	ExitCode   uint32    `json:"code,omitempty"`
	Diagnostic string    `json:"error,omitempty"`
}

// Emitter receives events in production order. Calls come from the guest's
// goroutine and may block; blocking stalls the guest.
type Emitter func(Event)
