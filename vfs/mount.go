package vfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
	experimentalsys "github.com/tetratelabs/wazero/experimental/sys"
	"github.com/tetratelabs/wazero/sys"
)

// mount adapts an afero filesystem to wazero's sys.FS. afero's memory
// filesystem ignores permission bits, so every mutating call checks them
// here: a file without a write bit cannot be opened for writing, and a
// directory without one accepts no new, renamed or removed entries.
type mount struct {
	experimentalsys.UnimplementedFS
	fs afero.Fs
}

const root = "/"

// clean turns a guest path into the afero name of the entry.
func clean(p string) string {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	if p == "." || p == "" {
		return root
	}
	return p
}

func parent(name string) string {
	return clean(path.Dir(name))
}

func writable(info fs.FileInfo) bool {
	return info.Mode().Perm()&0o200 != 0
}

func errno(err error) experimentalsys.Errno {
	return experimentalsys.UnwrapOSError(err)
}

// checkParent reports whether entries may be added to or removed from the
// directory holding name.
func (m *mount) checkParent(name string) experimentalsys.Errno {
	if name == root {
		return experimentalsys.EPERM
	}
	info, err := m.fs.Stat(parent(name))
	switch {
	case err != nil:
		return errno(err)
	case !info.IsDir():
		return experimentalsys.ENOTDIR
	case !writable(info):
		return experimentalsys.EACCES
	}
	return 0
}

// checkEntry reports whether the existing entry name may be replaced, moved
// or removed.
func (m *mount) checkEntry(name string) (fs.FileInfo, experimentalsys.Errno) {
	info, err := m.fs.Stat(name)
	if err != nil {
		return nil, errno(err)
	}
	if e := m.checkParent(name); e != 0 {
		return nil, e
	}
	if !writable(info) {
		return nil, experimentalsys.EACCES
	}
	return info, 0
}

// OpenFile implements the same method as documented on sys.FS.
func (m *mount) OpenFile(p string, flag experimentalsys.Oflag, perm fs.FileMode) (experimentalsys.File, experimentalsys.Errno) {
	name := clean(p)
	write := flag&(experimentalsys.O_WRONLY|experimentalsys.O_RDWR) != 0

	info, err := m.fs.Stat(name)
	switch {
	case err == nil:
		if flag&experimentalsys.O_CREAT != 0 && flag&experimentalsys.O_EXCL != 0 {
			return nil, experimentalsys.EEXIST
		}
		if info.IsDir() && write {
			return nil, experimentalsys.EISDIR
		}
		if !info.IsDir() && flag&experimentalsys.O_DIRECTORY != 0 {
			return nil, experimentalsys.ENOTDIR
		}
		if write && !writable(info) {
			return nil, experimentalsys.EACCES
		}
	case errors.Is(err, fs.ErrNotExist):
		if flag&experimentalsys.O_CREAT == 0 {
			return nil, experimentalsys.ENOENT
		}
		if e := m.checkParent(name); e != 0 {
			return nil, e
		}
	default:
		return nil, errno(err)
	}

	f, err := m.fs.OpenFile(name, osFlag(flag), perm)
	if err != nil {
		return nil, errno(err)
	}
	return &file{
		fs:       m.fs,
		name:     name,
		f:        f,
		dir:      info != nil && info.IsDir(),
		writable: write,
		append:   flag&experimentalsys.O_APPEND != 0,
	}, 0
}

func osFlag(flag experimentalsys.Oflag) int {
	var f int
	switch {
	case flag&experimentalsys.O_RDWR != 0:
		f = os.O_RDWR
	case flag&experimentalsys.O_WRONLY != 0:
		f = os.O_WRONLY
	default:
		f = os.O_RDONLY
	}
	if flag&experimentalsys.O_CREAT != 0 {
		f |= os.O_CREATE
	}
	if flag&experimentalsys.O_EXCL != 0 {
		f |= os.O_EXCL
	}
	if flag&experimentalsys.O_TRUNC != 0 {
		f |= os.O_TRUNC
	}
	return f
}

// Lstat implements the same method as documented on sys.FS. There are no
// symbolic links.
func (m *mount) Lstat(p string) (sys.Stat_t, experimentalsys.Errno) {
	return m.Stat(p)
}

// Stat implements the same method as documented on sys.FS.
func (m *mount) Stat(p string) (sys.Stat_t, experimentalsys.Errno) {
	info, err := m.fs.Stat(clean(p))
	if err != nil {
		return sys.Stat_t{}, errno(err)
	}
	return sys.NewStat_t(info), 0
}

// Mkdir implements the same method as documented on sys.FS.
func (m *mount) Mkdir(p string, perm fs.FileMode) experimentalsys.Errno {
	name := clean(p)
	if _, err := m.fs.Stat(name); err == nil {
		return experimentalsys.EEXIST
	}
	if e := m.checkParent(name); e != 0 {
		return e
	}
	return errno(m.fs.Mkdir(name, perm))
}

// Chmod implements the same method as documented on sys.FS. A read-only
// entry stays read-only.
func (m *mount) Chmod(p string, perm fs.FileMode) experimentalsys.Errno {
	name := clean(p)
	if _, e := m.checkEntry(name); e != 0 {
		return e
	}
	return errno(m.fs.Chmod(name, perm))
}

// Rename implements the same method as documented on sys.FS.
func (m *mount) Rename(from, to string) experimentalsys.Errno {
	src, dst := clean(from), clean(to)
	info, e := m.checkEntry(src)
	if e != 0 {
		return e
	}
	if src == dst {
		return 0
	}
	if e := m.checkParent(dst); e != 0 {
		return e
	}

	if existing, err := m.fs.Stat(dst); err == nil {
		if !writable(existing) {
			return experimentalsys.EACCES
		}
		switch {
		case existing.IsDir() && !info.IsDir():
			return experimentalsys.EISDIR
		case !existing.IsDir() && info.IsDir():
			return experimentalsys.ENOTDIR
		case existing.IsDir():
			if e := m.checkEmpty(dst); e != 0 {
				return e
			}
		}
		if err := m.fs.Remove(dst); err != nil {
			return errno(err)
		}
	}
	return errno(m.fs.Rename(src, dst))
}

// Rmdir implements the same method as documented on sys.FS.
func (m *mount) Rmdir(p string) experimentalsys.Errno {
	name := clean(p)
	info, e := m.checkEntry(name)
	if e != 0 {
		return e
	}
	if !info.IsDir() {
		return experimentalsys.ENOTDIR
	}
	if e := m.checkEmpty(name); e != 0 {
		return e
	}
	return errno(m.fs.Remove(name))
}

// Unlink implements the same method as documented on sys.FS.
func (m *mount) Unlink(p string) experimentalsys.Errno {
	name := clean(p)
	info, err := m.fs.Stat(name)
	if err != nil {
		return errno(err)
	}
	if info.IsDir() {
		return experimentalsys.EISDIR
	}
	if e := m.checkParent(name); e != 0 {
		return e
	}
	return errno(m.fs.Remove(name))
}

func (m *mount) checkEmpty(name string) experimentalsys.Errno {
	entries, err := afero.ReadDir(m.fs, name)
	if err != nil {
		return errno(err)
	}
	if len(entries) > 0 {
		return experimentalsys.ENOTEMPTY
	}
	return 0
}

// file is an open afero file seen through sys.File.
type file struct {
	experimentalsys.UnimplementedFile

	fs       afero.Fs
	name     string
	f        afero.File
	dir      bool
	writable bool
	append   bool
	closed   bool
}

// IsDir implements the same method as documented on sys.File.
func (f *file) IsDir() (bool, experimentalsys.Errno) {
	return f.dir, 0
}

// IsAppend implements the same method as documented on sys.File.
func (f *file) IsAppend() bool {
	return f.append
}

// SetAppend implements the same method as documented on sys.File.
func (f *file) SetAppend(enable bool) experimentalsys.Errno {
	f.append = enable
	return 0
}

// Stat implements the same method as documented on sys.File.
func (f *file) Stat() (sys.Stat_t, experimentalsys.Errno) {
	if f.closed {
		return sys.Stat_t{}, experimentalsys.EBADF
	}
	info, err := f.f.Stat()
	if err != nil {
		return sys.Stat_t{}, errno(err)
	}
	return sys.NewStat_t(info), 0
}

// Read implements the same method as documented on sys.File.
func (f *file) Read(buf []byte) (int, experimentalsys.Errno) {
	if e := f.readable(); e != 0 {
		return 0, e
	}
	n, err := f.f.Read(buf)
	return n, errno(err)
}

// Pread implements the same method as documented on sys.File.
func (f *file) Pread(buf []byte, off int64) (int, experimentalsys.Errno) {
	if e := f.readable(); e != 0 {
		return 0, e
	}
	n, err := f.f.ReadAt(buf, off)
	return n, errno(err)
}

func (f *file) readable() experimentalsys.Errno {
	switch {
	case f.closed:
		return experimentalsys.EBADF
	case f.dir:
		return experimentalsys.EISDIR
	}
	return 0
}

// Seek implements the same method as documented on sys.File. Seeking a
// directory to zero rewinds it.
func (f *file) Seek(offset int64, whence int) (int64, experimentalsys.Errno) {
	if f.closed {
		return 0, experimentalsys.EBADF
	}
	if f.dir {
		if offset != 0 || whence != io.SeekStart {
			return 0, experimentalsys.EISDIR
		}
		reopened, err := f.fs.Open(f.name)
		if err != nil {
			return 0, errno(err)
		}
		f.f.Close()
		f.f = reopened
		return 0, 0
	}
	if offset < 0 && whence == io.SeekStart {
		return 0, experimentalsys.EINVAL
	}
	n, err := f.f.Seek(offset, whence)
	return n, errno(err)
}

// Readdir implements the same method as documented on sys.File.
func (f *file) Readdir(n int) ([]experimentalsys.Dirent, experimentalsys.Errno) {
	if f.closed {
		return nil, experimentalsys.EBADF
	}
	if !f.dir {
		return nil, experimentalsys.ENOTDIR
	}
	infos, err := f.f.Readdir(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errno(err)
	}
	dirents := make([]experimentalsys.Dirent, 0, len(infos))
	for _, info := range infos {
		dirents = append(dirents, experimentalsys.Dirent{Name: info.Name(), Type: info.Mode().Type()})
	}
	return dirents, 0
}

// Write implements the same method as documented on sys.File.
func (f *file) Write(buf []byte) (int, experimentalsys.Errno) {
	if e := f.checkWrite(); e != 0 {
		return 0, e
	}
	if f.append {
		if _, err := f.f.Seek(0, io.SeekEnd); err != nil {
			return 0, errno(err)
		}
	}
	n, err := f.f.Write(buf)
	return n, errno(err)
}

// Pwrite implements the same method as documented on sys.File. The file
// offset is left where it was.
func (f *file) Pwrite(buf []byte, off int64) (int, experimentalsys.Errno) {
	if e := f.checkWrite(); e != 0 {
		return 0, e
	}
	cur, err := f.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errno(err)
	}
	n, err := f.f.WriteAt(buf, off)
	if _, serr := f.f.Seek(cur, io.SeekStart); err == nil {
		err = serr
	}
	return n, errno(err)
}

// Truncate implements the same method as documented on sys.File.
func (f *file) Truncate(size int64) experimentalsys.Errno {
	if e := f.checkWrite(); e != 0 {
		return e
	}
	if size < 0 {
		return experimentalsys.EINVAL
	}
	return errno(f.f.Truncate(size))
}

func (f *file) checkWrite() experimentalsys.Errno {
	switch {
	case f.closed:
		return experimentalsys.EBADF
	case f.dir:
		return experimentalsys.EISDIR
	case !f.writable:
		return experimentalsys.EBADF
	}
	return 0
}

// Sync implements the same method as documented on sys.File.
func (f *file) Sync() experimentalsys.Errno {
	if f.closed {
		return experimentalsys.EBADF
	}
	return 0
}

// Datasync implements the same method as documented on sys.File.
func (f *file) Datasync() experimentalsys.Errno {
	return f.Sync()
}

// Close implements the same method as documented on sys.File.
func (f *file) Close() experimentalsys.Errno {
	if f.closed {
		return 0
	}
	f.closed = true
	return errno(f.f.Close())
}
