package executor

import "github.com/caffeineduck/kiprun/vfs"

// Guest describes a WASI program the executor can launch.
type Guest interface {
	// Name is the program token passed as argv[0] (e.g., "kip-playground").
	Name() string

	// ImagePath is the resource path of the compiled WASM image.
	ImagePath() string

	// Layout describes the virtual root filesystem built for every run.
	Layout() vfs.Layout

	// Env returns the environment of the guest, including the variable
	// naming its root data directory.
	Env() map[string]string

	// Languages lists the accepted diagnostic language tags. The first one
	// is the default.
	Languages() []string

	// CodegenTargets lists the accepted code generation targets.
	CodegenTargets() []string

	// ExecArgs returns argv for running the source file at path.
	ExecArgs(path, lang string) []string

	// CodegenArgs returns argv for translating the source file at path.
	CodegenArgs(target, path, lang string) []string
}
