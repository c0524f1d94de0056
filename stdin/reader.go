package stdin

import "io"

// Reader is the guest side of a Channel.
type Reader struct {
	ch      *Channel
	request func()

	pending []byte
	offset  int
}

// NewReader returns a reader that calls request each time it has to ask
// the controller for a new line. request runs on the guest's goroutine
// before the reader blocks.
func NewReader(ch *Channel, request func()) *Reader {
	if request == nil {
		request = func() {}
	}
	return &Reader{ch: ch, request: request}
}

// Buffered returns the number of delivered bytes not yet read.
func (r *Reader) Buffered() int {
	return len(r.pending) - r.offset
}

// Read returns buffered bytes if any remain; otherwise it requests a line
// and blocks until the controller fulfills the request or tears the channel
// down.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if r.offset < len(r.pending) {
		n := copy(p, r.pending[r.offset:])
		r.offset += n
		return n, nil
	}

	if !r.ch.request() {
		return 0, io.EOF
	}
	r.request()

	line := r.ch.await()
	r.pending = line
	r.offset = 0
	if len(line) == 0 {
		return 0, io.EOF
	}

	n := copy(p, line)
	r.offset = n
	return n, nil
}
