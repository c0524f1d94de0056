// Package wasmtest assembles small WASI preview1 guests for tests, so the
// harness can be exercised end to end without binary fixtures.
package wasmtest

import (
	"path"
	"testing/fstest"

	"github.com/caffeineduck/kiprun/vfs"
)

const (
	importFdRead = iota
	importFdWrite
	importProcExit
	importPathOpen
	importFdFdstatGet
	funcStart
)

// path_open flags and rights accepted by Open.
const (
	Create          = 1 << 0
	Truncate        = 1 << 3
	RightsRead      = 1 << 1
	RightsReadWrite = RightsRead | 1<<6
)

// Memory layout shared by every op.
const (
	readIov   = 0  // {buf: bufAddr, len: bufSize}
	nread     = 8  // bytes read by the last fd_read
	writeIov  = 16 // {buf: bufAddr, len: set at runtime}
	nwritten  = 24
	openedFd  = 40
	fdstatBuf = 48 // 24 bytes
	digits    = 80 // two decimal digits and a newline
	digitsIov = 88 // {buf: digits, len: 3}
	scratch   = 96
	dataStart = 256
	bufAddr   = 4096
	bufSize   = 4096
)

// Program builds a guest whose _start runs a fixed sequence of ops.
type Program struct {
	code []byte
	data []byte
}

// New returns an empty program. Its _start returns immediately.
func New() *Program {
	data := make([]byte, dataStart)
	putU32(data[readIov:], bufAddr)
	putU32(data[readIov+4:], bufSize)
	putU32(data[writeIov:], bufAddr)
	data[digits+2] = '\n'
	putU32(data[digitsIov:], digits)
	putU32(data[digitsIov+4:], 3)
	return &Program{data: data}
}

// Write writes s to fd with a single fd_write call.
func (p *Program) Write(fd int32, s string) *Program {
	iov := p.iov(s)
	p.code = append(p.code, i32(fd)...)
	p.code = append(p.code, i32(iov)...)
	p.code = append(p.code, i32(1)...)
	p.code = append(p.code, i32(nwritten)...)
	p.code = append(p.code, call(importFdWrite)...)
	p.code = append(p.code, 0x1a) // drop
	return p
}

// Echo reads once from stdin and writes whatever it got to stdout.
func (p *Program) Echo() *Program {
	p.code = append(p.code, readStdin()...)
	p.code = append(p.code, writeBuffer()...)
	return p
}

// EchoLines reads from stdin until EOF, copying every chunk to stdout.
func (p *Program) EchoLines() *Program {
	p.code = append(p.code, 0x02, 0x40) // block
	p.code = append(p.code, 0x03, 0x40) // loop
	p.code = append(p.code, readStdin()...)
	p.code = append(p.code, i32(nread)...)
	p.code = append(p.code, 0x28, 0x02, 0x00) // i32.load
	p.code = append(p.code, 0x45)             // i32.eqz
	p.code = append(p.code, 0x0d, 0x01)       // br_if 1
	p.code = append(p.code, writeBuffer()...)
	p.code = append(p.code, 0x0c, 0x00) // br 0
	p.code = append(p.code, 0x0b, 0x0b)
	return p
}

// Cat opens name relative to the first preopened directory and copies up to
// one buffer of its contents to stdout.
func (p *Program) Cat(name string) *Program {
	ptr, n := p.str(name)
	p.code = append(p.code, pathOpen(ptr, n, 0, RightsRead)...)
	p.code = append(p.code, 0x1a)

	p.code = append(p.code, i32(openedFd)...)
	p.code = append(p.code, 0x28, 0x02, 0x00) // i32.load
	p.code = append(p.code, i32(readIov)...)
	p.code = append(p.code, i32(1)...)
	p.code = append(p.code, i32(nread)...)
	p.code = append(p.code, call(importFdRead)...)
	p.code = append(p.code, 0x1a)
	p.code = append(p.code, writeBuffer()...)
	return p
}

// Open calls path_open on name relative to the first preopened directory and
// prints the errno it returned as a two digit line. The opened descriptor is
// kept for WriteOpened.
func (p *Program) Open(name string, oflags int32, rights int64) *Program {
	ptr, n := p.str(name)
	p.code = append(p.code, printNumber(pathOpen(ptr, n, oflags, rights))...)
	return p
}

// WriteOpened writes s to the descriptor the last Open or Cat produced.
func (p *Program) WriteOpened(s string) *Program {
	iov := p.iov(s)
	p.code = append(p.code, i32(openedFd)...)
	p.code = append(p.code, 0x28, 0x02, 0x00) // i32.load
	p.code = append(p.code, i32(iov)...)
	p.code = append(p.code, i32(1)...)
	p.code = append(p.code, i32(nwritten)...)
	p.code = append(p.code, call(importFdWrite)...)
	p.code = append(p.code, 0x1a)
	return p
}

// Filetype prints the WASI filetype fd_fdstat_get reports for fd as a two
// digit line.
func (p *Program) Filetype(fd int32) *Program {
	p.code = append(p.code, printNumber(cat(
		i32(fd), i32(fdstatBuf),
		call(importFdFdstatGet), []byte{0x1a},
		i32(fdstatBuf),
		[]byte{0x2d, 0x00, 0x00}, // i32.load8_u
	))...)
	return p
}

// Exit calls proc_exit with code.
func (p *Program) Exit(code int32) *Program {
	p.code = append(p.code, i32(code)...)
	p.code = append(p.code, call(importProcExit)...)
	return p
}

// Spin loops forever. Only cancelling the run stops it.
func (p *Program) Spin() *Program {
	p.code = append(p.code, 0x03, 0x40, 0x0c, 0x00, 0x0b) // loop br 0 end
	return p
}

// Trap executes unreachable.
func (p *Program) Trap() *Program {
	p.code = append(p.code, 0x00)
	return p
}

// iov stores s in the data segment behind a single iovec and returns the
// iovec's address.
func (p *Program) iov(s string) int32 {
	iov := int32(len(p.data))
	p.data = append(p.data, make([]byte, 8)...)
	putU32(p.data[iov:], uint32(iov+8))
	putU32(p.data[iov+4:], uint32(len(s)))
	p.data = append(p.data, s...)
	return iov
}

// str stores s in the data segment and returns its address and length.
func (p *Program) str(s string) (int32, int32) {
	ptr := int32(len(p.data))
	p.data = append(p.data, s...)
	return ptr, int32(len(s))
}

// Bytes assembles the module.
func (p *Program) Bytes() []byte {
	i32x4 := []byte{0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f}
	i32v := []byte{0x60, 0x01, 0x7f, 0x00}
	vv := []byte{0x60, 0x00, 0x00}
	pathOpenType := []byte{0x60, 0x09, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7e, 0x7e, 0x7f, 0x7f, 0x01, 0x7f}
	i32x2 := []byte{0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f}

	wasi := "wasi_snapshot_preview1"
	imports := vec(
		cat(name(wasi), name("fd_read"), []byte{0x00, 0x00}),
		cat(name(wasi), name("fd_write"), []byte{0x00, 0x00}),
		cat(name(wasi), name("proc_exit"), []byte{0x00, 0x01}),
		cat(name(wasi), name("path_open"), []byte{0x00, 0x03}),
		cat(name(wasi), name("fd_fdstat_get"), []byte{0x00, 0x04}),
	)

	body := cat([]byte{0x00}, p.code, []byte{0x0b})

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, vec(i32x4, i32v, vv, pathOpenType, i32x2))...)
	out = append(out, section(2, imports)...)
	out = append(out, section(3, vec([]byte{0x02}))...)
	out = append(out, section(5, vec([]byte{0x00, 0x01}))...)
	out = append(out, section(7, vec(
		cat(name("_start"), []byte{0x00, funcStart}),
		cat(name("memory"), []byte{0x02, 0x00}),
	))...)
	out = append(out, section(10, vec(cat(uleb(uint32(len(body))), body)))...)
	out = append(out, section(11, vec(cat(
		[]byte{0x00, 0x41, 0x00, 0x0b},
		uleb(uint32(len(p.data))),
		p.data,
	)))...)
	return out
}

// pathOpen leaves path_open's errno on the stack.
func pathOpen(ptr, n, oflags int32, rights int64) []byte {
	return cat(
		i32(3), // first preopen
		i32(0), // dirflags
		i32(ptr), i32(n),
		i32(oflags),
		i64(rights),
		i64(0), // no inherited rights
		i32(0), // fdflags
		i32(openedFd),
		call(importPathOpen),
	)
}

// printNumber runs value, which must leave one i32 on the stack, and writes
// that number modulo 100 to stdout as two digits and a newline.
func printNumber(value []byte) []byte {
	digit := func(at int32, op byte) []byte {
		return cat(
			i32(at),
			i32(scratch), []byte{0x28, 0x02, 0x00}, // i32.load
			i32(10), []byte{op},
			i32('0'), []byte{0x6a}, // i32.add
			[]byte{0x3a, 0x00, 0x00}, // i32.store8
		)
	}
	return cat(
		i32(scratch), value, []byte{0x36, 0x02, 0x00}, // i32.store
		i32(scratch), i32(scratch), []byte{0x28, 0x02, 0x00},
		i32(100), []byte{0x70}, // i32.rem_u
		[]byte{0x36, 0x02, 0x00},
		digit(digits, 0x6e),   // i32.div_u
		digit(digits+1, 0x70), // i32.rem_u
		i32(1), i32(digitsIov), i32(1), i32(nwritten),
		call(importFdWrite), []byte{0x1a},
	)
}

func readStdin() []byte {
	return cat(
		i32(0), i32(readIov), i32(1), i32(nread),
		call(importFdRead), []byte{0x1a},
	)
}

// writeBuffer writes the bytes of the last read to stdout.
func writeBuffer() []byte {
	return cat(
		i32(writeIov+4), i32(nread),
		[]byte{0x28, 0x02, 0x00}, // i32.load
		[]byte{0x36, 0x02, 0x00}, // i32.store
		i32(1), i32(writeIov), i32(1), i32(nwritten),
		call(importFdWrite), []byte{0x1a},
	)
}

func call(idx byte) []byte { return []byte{0x10, idx} }

func i32(v int32) []byte { return append([]byte{0x41}, sleb(int64(v))...) }

func i64(v int64) []byte { return append([]byte{0x42}, sleb(v)...) }

func section(id byte, content []byte) []byte {
	return cat([]byte{id}, uleb(uint32(len(content))), content)
}

func vec(items ...[]byte) []byte {
	return cat(append([][]byte{uleb(uint32(len(items)))}, items...)...)
}

func name(s string) []byte { return cat(uleb(uint32(len(s))), []byte(s)) }

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Guest is an executor.Guest serving a test module.
type Guest struct {
	Langs   []string
	Targets []string
}

func (g Guest) Name() string      { return "testguest" }
func (g Guest) ImagePath() string { return "guest.wasm" }

func (g Guest) Layout() vfs.Layout {
	return vfs.Layout{
		LibDir:       "lib",
		LibSource:    "lib",
		Manifest:     []string{"prelude.kip"},
		VendorDir:    "vendor",
		VendorSource: "vendor/data.bin",
		SourceName:   "main.kip",
	}
}

func (g Guest) Env() map[string]string { return map[string]string{"KIP_DATADIR": "/"} }

func (g Guest) Languages() []string {
	if g.Langs == nil {
		return []string{"tr", "en"}
	}
	return g.Langs
}

func (g Guest) CodegenTargets() []string {
	if g.Targets == nil {
		return []string{"js"}
	}
	return g.Targets
}

func (g Guest) ExecArgs(p, lang string) []string {
	return []string{g.Name(), "--exec", p, "--lang", lang}
}

func (g Guest) CodegenArgs(target, p, lang string) []string {
	return []string{g.Name(), "--codegen", target, p, "--lang", lang}
}

// Assets returns a resource tree holding module and the resources Guest's
// layout expects.
func Assets(module []byte) fstest.MapFS {
	layout := Guest{}.Layout()
	return fstest.MapFS{
		"guest.wasm":                                {Data: module},
		path.Join(layout.LibSource, "prelude.kip"): {Data: []byte("prelude")},
		layout.VendorSource:                         {Data: []byte{0x00, 0x01}},
	}
}
