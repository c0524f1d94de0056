// Package bridge implements the guest's three console descriptors on top of
// host primitives.
//
// Output descriptors are line-buffered: one callback per complete line.
// Stdin is either interactive, backed by a [stdin.Channel], or permanently
// at end of file. [InstantiateWASI] makes all three look like non-seekable
// character devices to the guest.
package bridge

import (
	"bytes"
	"io"
	"sync"

	"github.com/caffeineduck/kiprun/stdin"
)

// LineWriter buffers guest output and emits one line per terminator. The
// terminator itself is not part of the emitted line.
type LineWriter struct {
	emit func(line string)

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLineWriter returns a writer calling emit for every complete line.
func NewLineWriter(emit func(line string)) *LineWriter {
	return &LineWriter{emit: emit}
}

func (w *LineWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(data)
	for len(data) > 0 {
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			w.buf.Write(data)
			break
		}
		w.buf.Write(data[:idx])
		line := w.buf.String()
		w.buf.Reset()
		w.emit(line)
		data = data[idx+1:]
	}
	return n, nil
}

// Flush emits any partial trailing line. It is called once the guest has
// exited.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return
	}
	line := w.buf.String()
	w.buf.Reset()
	w.emit(line)
}

// Stdin is the guest's standard input descriptor.
type Stdin struct {
	r           io.Reader
	interactive bool
}

// NewStdin returns an interactive descriptor when ch is non-nil, calling
// request each time the guest needs a line. With a nil channel every read
// returns EOF immediately.
func NewStdin(ch *stdin.Channel, request func()) *Stdin {
	if ch == nil {
		return &Stdin{r: eofReader{}}
	}
	return &Stdin{r: stdin.NewReader(ch, request), interactive: true}
}

// Interactive reports whether reads are served by an operator.
func (s *Stdin) Interactive() bool { return s.interactive }

func (s *Stdin) Read(p []byte) (int, error) { return s.r.Read(p) }

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// Console groups the three descriptors handed to one guest instance.
type Console struct {
	Stdin  *Stdin
	Stdout *LineWriter
	Stderr *LineWriter
}

// Flush emits partial trailing lines on both output descriptors, stdout
// first.
func (c *Console) Flush() {
	c.Stdout.Flush()
	c.Stderr.Flush()
}
