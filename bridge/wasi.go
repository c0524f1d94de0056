package bridge

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASI preview1 values the console wrappers rewrite.
const (
	filetypeBlockDevice     = 1
	filetypeCharacterDevice = 2

	rightFdSeek = 1 << 2
	rightFdTell = 1 << 5

	errnoNosys = 52
	errnoSpipe = 70

	fdstatSize      = 24
	filestatSize    = 64
	filestatTypeOff = 16
)

// wazero describes stdio that is not an *os.File as a block device with seek
// rights. These wrap the stock functions and correct what they report for
// descriptors 0 to 2.
var consoleWrappers = map[string]func(api.GoModuleFunction) api.GoModuleFunc{
	"fd_fdstat_get":   fdstatGet,
	"fd_filestat_get": filestatGet,
	"fd_seek":         unseekable,
	"fd_tell":         unseekable,
}

// InstantiateWASI instantiates wasi_snapshot_preview1 into r with the
// console descriptors reported as non-seekable character devices.
func InstantiateWASI(ctx context.Context, r wazero.Runtime) (api.Closer, error) {
	b := r.NewHostModuleBuilder(wasi_snapshot_preview1.ModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(b)

	stock, err := b.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile WASI: %w", err)
	}
	defs := stock.ExportedFunctions()

	for name, wrap := range consoleWrappers {
		def, ok := defs[name]
		if !ok {
			stock.Close(ctx)
			return nil, fmt.Errorf("WASI function %s not found", name)
		}
		fn, ok := def.GoFunction().(api.GoModuleFunction)
		if !ok {
			stock.Close(ctx)
			return nil, fmt.Errorf("WASI function %s is not a host function", name)
		}
		b.NewFunctionBuilder().
			WithGoModuleFunction(wrap(fn), def.ParamTypes(), def.ResultTypes()).
			WithParameterNames(def.ParamNames()...).
			WithResultNames(def.ResultNames()...).
			Export(name)
	}
	stock.Close(ctx)

	return b.Instantiate(ctx)
}

func isConsole(fd uint64) bool {
	return uint32(fd) <= 2
}

func fdstatGet(stock api.GoModuleFunction) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		fd, result := stack[0], uint32(stack[1])
		stock.Call(ctx, mod, stack)
		if stack[0] != 0 || !isConsole(fd) {
			return
		}
		if buf, ok := mod.Memory().Read(result, fdstatSize); ok {
			patchFdstat(buf)
		}
	}
}

func filestatGet(stock api.GoModuleFunction) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		fd, result := stack[0], uint32(stack[1])
		stock.Call(ctx, mod, stack)
		if stack[0] != 0 || !isConsole(fd) {
			return
		}
		if buf, ok := mod.Memory().Read(result, filestatSize); ok {
			patchFilestat(buf)
		}
	}
}

func unseekable(stock api.GoModuleFunction) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		fd := stack[0]
		stock.Call(ctx, mod, stack)
		if isConsole(fd) && stack[0] == errnoNosys {
			stack[0] = errnoSpipe
		}
	}
}

// patchFdstat rewrites a stdio fdstat as a character device without seek or
// tell rights. A descriptor the guest reopened onto a real file is left
// alone.
func patchFdstat(buf []byte) {
	if buf[0] != filetypeBlockDevice {
		return
	}
	buf[0] = filetypeCharacterDevice
	rights := binary.LittleEndian.Uint64(buf[8:])
	binary.LittleEndian.PutUint64(buf[8:], rights&^(rightFdSeek|rightFdTell))
}

func patchFilestat(buf []byte) {
	if buf[filestatTypeOff] == filetypeBlockDevice {
		buf[filestatTypeOff] = filetypeCharacterDevice
	}
}
