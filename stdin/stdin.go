// Package stdin lets a guest blocked in a console read be satisfied later by
// an operator answering a prompt.
//
// A [Channel] pairs a [Signal] (state and length words) with a fixed-size
// [Data] buffer. The guest side ([Reader]) raises a request and blocks on
// the signal; the controller side ([Channel.Fulfill]) copies one line into
// the buffer and wakes it. At most one request is outstanding at a time.
package stdin

import (
	"errors"
	"fmt"
	"sync"
)

// Capacity is the size of the data buffer carrying one delivered line.
const Capacity = 64 * 1024

// ErrChannelUnavailable reports that interactive input cannot be offered
// for a session. Reads fall back to EOF.
var ErrChannelUnavailable = errors.New("interactive stdin unavailable")

// State is the value of the signal's state word.
type State int32

const (
	Idle State = iota
	Requested
	Fulfilled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Fulfilled:
		return "fulfilled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Signal holds the two control words shared by both sides.
type Signal struct {
	mu     sync.Mutex
	cond   *sync.Cond
	state  State
	length int
	closed bool
}

// Data is the shared line buffer.
type Data [Capacity]byte

// Channel is one session's signal and data pair.
type Channel struct {
	signal Signal
	data   Data
}

// New returns an idle channel.
func New() *Channel {
	c := &Channel{}
	c.signal.cond = sync.NewCond(&c.signal.mu)
	return c
}

// State returns the current state word.
func (c *Channel) State() State {
	c.signal.mu.Lock()
	defer c.signal.mu.Unlock()
	return c.signal.state
}

// Closed reports whether the channel has been torn down.
func (c *Channel) Closed() bool {
	c.signal.mu.Lock()
	defer c.signal.mu.Unlock()
	return c.signal.closed
}

// Fulfill delivers line plus a terminating newline to the outstanding
// request. Content beyond Capacity is silently dropped. It returns false,
// doing nothing, when no request is outstanding or the channel is closed.
func (c *Channel) Fulfill(line string) bool {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	return c.deliver(buf)
}

// FulfillEOF answers the outstanding request with a zero-length line, which
// the guest observes as end of file.
func (c *Channel) FulfillEOF() bool {
	return c.deliver(nil)
}

func (c *Channel) deliver(line []byte) bool {
	c.signal.mu.Lock()
	defer c.signal.mu.Unlock()

	if c.signal.closed || c.signal.state != Requested {
		return false
	}

	n := copy(c.data[:], line)
	clear(c.data[n:])
	c.signal.length = n
	c.signal.state = Fulfilled
	c.signal.cond.Signal()
	return true
}

// Close tears the channel down. A reader blocked on it wakes and observes
// EOF; later fulfillments are ignored.
func (c *Channel) Close() {
	c.signal.mu.Lock()
	defer c.signal.mu.Unlock()

	if c.signal.closed {
		return
	}
	c.signal.closed = true
	c.signal.cond.Broadcast()
}

// request moves Idle to Requested. It reports false if the channel is
// closed or a request is already outstanding.
func (c *Channel) request() bool {
	c.signal.mu.Lock()
	defer c.signal.mu.Unlock()

	if c.signal.closed || c.signal.state != Idle {
		return false
	}
	c.signal.state = Requested
	return true
}

// await blocks until the state leaves Requested or the channel closes, then
// takes the delivered line. A nil result means EOF.
func (c *Channel) await() []byte {
	c.signal.mu.Lock()
	defer c.signal.mu.Unlock()

	for c.signal.state == Requested && !c.signal.closed {
		c.signal.cond.Wait()
	}

	if c.signal.state != Fulfilled {
		return nil
	}

	line := make([]byte, c.signal.length)
	copy(line, c.data[:c.signal.length])
	c.signal.state = Idle
	c.signal.length = 0
	return line
}
