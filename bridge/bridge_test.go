package bridge

import (
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/caffeineduck/kiprun/stdin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect() (*[]string, func(string)) {
	var lines []string
	return &lines, func(line string) { lines = append(lines, line) }
}

func TestLineWriter(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		want   []string
		flush  []string
	}{
		{"single line", []string{"hello\n"}, []string{"hello"}, nil},
		{"split across writes", []string{"hel", "lo\nwor", "ld\n"}, []string{"hello", "world"}, nil},
		{"many lines in one write", []string{"a\nb\nc\n"}, []string{"a", "b", "c"}, nil},
		{"empty lines", []string{"\n\n"}, []string{"", ""}, nil},
		{"partial tail", []string{"done\npartial"}, []string{"done"}, []string{"done", "partial"}},
		{"carriage return kept", []string{"dos\r\n"}, []string{"dos\r"}, nil},
		{"utf8", []string{"giriş\n"}, []string{"giriş"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, emit := collect()
			w := NewLineWriter(emit)
			for _, s := range tt.writes {
				n, err := w.Write([]byte(s))
				require.NoError(t, err)
				assert.Equal(t, len(s), n)
			}
			assert.Equal(t, tt.want, *lines)

			w.Flush()
			want := tt.flush
			if want == nil {
				want = tt.want
			}
			assert.Equal(t, want, *lines)
		})
	}
}

func TestLineWriterFlushOnce(t *testing.T) {
	lines, emit := collect()
	w := NewLineWriter(emit)
	w.Write([]byte("tail"))
	w.Flush()
	w.Flush()
	assert.Equal(t, []string{"tail"}, *lines)
}

func TestEmptyStdin(t *testing.T) {
	s := NewStdin(nil, func() { t.Error("empty stdin must not request input") })
	assert.False(t, s.Interactive())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			n, err := s.Read(make([]byte, 16))
			assert.Zero(t, n)
			assert.Equal(t, io.EOF, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("empty stdin blocked")
	}
}

func TestInteractiveStdin(t *testing.T) {
	ch := stdin.New()
	requested := make(chan struct{}, 1)
	s := NewStdin(ch, func() { requested <- struct{}{} })
	assert.True(t, s.Interactive())

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := s.Read(buf)
		got <- string(buf[:n])
	}()

	<-requested
	require.True(t, ch.Fulfill("5"))
	assert.Equal(t, "5\n", <-got)
}

func TestPatchFdstat(t *testing.T) {
	tests := []struct {
		name     string
		filetype byte
		want     byte
		rights   uint64
	}{
		{"stdio block device", filetypeBlockDevice, filetypeCharacterDevice, 0x1fe &^ (rightFdSeek | rightFdTell)},
		{"reopened regular file", 4, 4, 0x1fe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, fdstatSize)
			buf[0] = tt.filetype
			binary.LittleEndian.PutUint64(buf[8:], 0x1fe)

			patchFdstat(buf)
			assert.Equal(t, tt.want, buf[0])
			assert.Equal(t, tt.rights, binary.LittleEndian.Uint64(buf[8:]))
		})
	}
}

func TestPatchFilestat(t *testing.T) {
	buf := make([]byte, filestatSize)
	buf[filestatTypeOff] = filetypeBlockDevice
	patchFilestat(buf)
	assert.Equal(t, byte(filetypeCharacterDevice), buf[filestatTypeOff])

	buf[filestatTypeOff] = 3
	patchFilestat(buf)
	assert.Equal(t, byte(3), buf[filestatTypeOff])
}
