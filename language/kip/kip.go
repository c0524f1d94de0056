// Package kip describes the Kip playground guest: where its image and
// resources live, how its root filesystem is laid out and how it is invoked.
package kip

import (
	"slices"

	"github.com/caffeineduck/kiprun/vfs"
)

// Program is the guest's argv[0].
const Program = "kip-playground"

// Resource paths, relative to the asset root.
const (
	ImagePath    = "kip-playground.wasm"
	LibSource    = "assets/lib"
	VendorSource = "assets/vendor/trmorph.fst"
)

// SourceName is the user source file at the guest root.
const SourceName = "main.kip"

// DataDirEnv names the variable telling the guest where its root data
// directory is mounted.
const DataDirEnv = "KIP_DATADIR"

// Manifest lists the library sources mounted under /lib, in load order.
var Manifest = []string{
	"giriş.kip",
	"temel.kip",
	"temel-doğruluk.kip",
	"temel-dizge.kip",
	"temel-etki.kip",
	"temel-liste.kip",
	"temel-tam-sayı.kip",
}

var (
	languages = []string{"tr", "en"}
	targets   = []string{"js"}
)

// Kip implements executor.Guest for the Kip playground build.
type Kip struct{}

// New returns the Kip guest profile.
func New() *Kip {
	return &Kip{}
}

// Name returns "kip-playground".
func (k *Kip) Name() string {
	return Program
}

// ImagePath returns the resource path of the compiled playground.
func (k *Kip) ImagePath() string {
	return ImagePath
}

// Layout returns the /lib, /vendor and /main.kip tree.
func (k *Kip) Layout() vfs.Layout {
	return vfs.Layout{
		LibDir:       "lib",
		LibSource:    LibSource,
		Manifest:     slices.Clone(Manifest),
		VendorDir:    "vendor",
		VendorSource: VendorSource,
		SourceName:   SourceName,
	}
}

func (k *Kip) Env() map[string]string {
	return map[string]string{DataDirEnv: "/"}
}

// Languages returns the diagnostic languages; Turkish is the default.
func (k *Kip) Languages() []string {
	return slices.Clone(languages)
}

func (k *Kip) CodegenTargets() []string {
	return slices.Clone(targets)
}

func (k *Kip) ExecArgs(path, lang string) []string {
	return []string{Program, "--exec", path, "--lang", lang}
}

func (k *Kip) CodegenArgs(target, path, lang string) []string {
	return []string{Program, "--codegen", target, path, "--lang", lang}
}

// Resources returns every resource path a session needs, image first.
func Resources() []string {
	paths := make([]string, 0, len(Manifest)+2)
	paths = append(paths, ImagePath)
	for _, name := range Manifest {
		paths = append(paths, LibSource+"/"+name)
	}
	return append(paths, VendorSource)
}
