// Package vfs assembles the in-memory root tree a guest session sees.
//
// An [Image] is built fresh for every session from library sources, one
// vendor resource and the user's source text, on top of an afero memory
// filesystem. It is mounted as the guest's only preopened directory. The
// guest may rewrite its source and create scratch files; the library and
// vendor directories stay read-only, and nothing is ever written to the host.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/caffeineduck/kiprun/resource"
	"github.com/spf13/afero"
	experimentalsys "github.com/tetratelabs/wazero/experimental/sys"
)

// Modes of the entries Build creates.
const (
	ReadOnlyFile fs.FileMode = 0o444
	ReadOnlyDir  fs.FileMode = 0o555
	SourceFile   fs.FileMode = 0o644
	ScratchDir   fs.FileMode = 0o755
)

// Layout describes where the session resources live inside the image and
// where they are loaded from.
type Layout struct {
	// LibDir is the guest directory holding library sources ("lib").
	LibDir string
	// LibSource is the resource directory the manifest entries are loaded from.
	LibSource string
	// Manifest lists the library file names, relative to LibDir.
	Manifest []string
	// VendorDir is the guest directory holding the vendor resource ("vendor").
	VendorDir string
	// VendorSource is the resource path of the vendor binary.
	VendorSource string
	// SourceName is the user source file name at the image root.
	SourceName string
}

var errEmptyName = errors.New("empty name")

// Image is one session's root filesystem.
type Image struct {
	fs   afero.Fs
	iofs afero.IOFS
}

var (
	_ fs.ReadDirFS  = (*Image)(nil)
	_ fs.ReadFileFS = (*Image)(nil)
	_ fs.StatFS     = (*Image)(nil)
)

// New returns an empty image.
func New() *Image {
	mfs := afero.NewMemMapFs()
	return &Image{fs: mfs, iofs: afero.NewIOFS(mfs)}
}

// Build loads every manifest entry and the vendor resource exactly once and
// assembles the session image. The first unreachable resource aborts the
// build with a *resource.LoadError.
func Build(ctx context.Context, loader resource.Loader, layout Layout, source string) (*Image, error) {
	img := New()

	if err := img.fs.Mkdir(layout.LibDir, ScratchDir); err != nil {
		return nil, err
	}
	for _, name := range layout.Manifest {
		if name == "" {
			return nil, &resource.LoadError{Path: layout.LibDir, Err: errEmptyName}
		}
		src := path.Join(layout.LibSource, name)
		data, err := loader.Load(ctx, src)
		if err != nil {
			return nil, asLoadError(src, err)
		}
		if err := img.WriteFile(path.Join(layout.LibDir, name), data, ReadOnlyFile); err != nil {
			return nil, err
		}
	}

	if err := img.fs.Mkdir(layout.VendorDir, ScratchDir); err != nil {
		return nil, err
	}
	if layout.VendorSource != "" {
		data, err := loader.Load(ctx, layout.VendorSource)
		if err != nil {
			return nil, asLoadError(layout.VendorSource, err)
		}
		if err := img.WriteFile(path.Join(layout.VendorDir, path.Base(layout.VendorSource)), data, ReadOnlyFile); err != nil {
			return nil, err
		}
	}

	if err := img.WriteFile(layout.SourceName, []byte(source), SourceFile); err != nil {
		return nil, err
	}

	for _, dir := range []string{layout.LibDir, layout.VendorDir} {
		if err := img.fs.Chmod(dir, ReadOnlyDir); err != nil {
			return nil, fmt.Errorf("seal %s: %w", dir, err)
		}
	}
	return img, nil
}

func asLoadError(p string, err error) error {
	var loadErr *resource.LoadError
	if errors.As(err, &loadErr) {
		return err
	}
	return &resource.LoadError{Path: p, Err: err}
}

// WriteFile stores data at name with perm, creating parent directories. It
// bypasses the permission checks the guest mount applies.
func (m *Image) WriteFile(name string, data []byte, perm fs.FileMode) error {
	if dir := path.Dir(name); dir != "." {
		if err := m.fs.MkdirAll(dir, ScratchDir); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(m.fs, name, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return m.fs.Chmod(name, perm)
}

// Open implements fs.FS.
func (m *Image) Open(name string) (fs.File, error) { return m.iofs.Open(name) }

// Stat implements fs.StatFS.
func (m *Image) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	return m.iofs.Stat(name)
}

// ReadFile implements fs.ReadFileFS. The returned slice is a copy.
func (m *Image) ReadFile(name string) ([]byte, error) { return m.iofs.ReadFile(name) }

// ReadDir implements fs.ReadDirFS. Entries are sorted by name.
func (m *Image) ReadDir(name string) ([]fs.DirEntry, error) { return m.iofs.ReadDir(name) }

// Mount returns the image as the guest sees it: writable, except that
// read-only entries and the contents of read-only directories can be neither
// changed nor removed.
func (m *Image) Mount() experimentalsys.FS {
	return &mount{fs: m.fs}
}
