// Package resource resolves the named resources a guest session needs: the
// compiled guest image, library sources and vendor data.
//
// A [Loader] is the only way the harness touches resources, so the same
// session can be backed by a host directory, an embedded tree or a remote
// asset server.
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const (
	DefaultMaxSize        = 256 << 20 // 256MB
	DefaultRequestTimeout = 60 * time.Second
)

// ErrInvalidPath is returned for paths that are absolute after cleaning or
// try to escape the loader root.
var ErrInvalidPath = errors.New("invalid resource path")

// LoadError reports a resource that could not be loaded. It is fatal to
// session start.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader resolves a slash-separated resource path to its bytes.
type Loader interface {
	Load(ctx context.Context, name string) ([]byte, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, name string) ([]byte, error)

func (f LoaderFunc) Load(ctx context.Context, name string) ([]byte, error) {
	return f(ctx, name)
}

// Clean normalizes a resource path to the fs.ValidPath form.
func Clean(name string) (string, error) {
	p := path.Clean("/" + strings.TrimPrefix(name, "/"))
	p = strings.TrimPrefix(p, "/")
	if p == "" || !fs.ValidPath(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return p, nil
}

// FS loads resources from an fs.FS, such as an embed.FS.
type FS struct {
	fsys    fs.FS
	maxSize int64
}

// NewFS returns a loader reading from fsys.
func NewFS(fsys fs.FS) *FS {
	return &FS{fsys: fsys, maxSize: DefaultMaxSize}
}

// NewDir returns a loader reading from a host directory.
func NewDir(dir string) *FS {
	return NewFS(os.DirFS(dir))
}

func (l *FS) Load(ctx context.Context, name string) ([]byte, error) {
	p, err := Clean(name)
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Path: p, Err: err}
	}

	info, err := fs.Stat(l.fsys, p)
	if err != nil {
		return nil, &LoadError{Path: p, Err: err}
	}
	if info.IsDir() {
		return nil, &LoadError{Path: p, Err: errors.New("is a directory")}
	}
	if info.Size() > l.maxSize {
		return nil, &LoadError{Path: p, Err: fmt.Errorf("size %d exceeds limit %d", info.Size(), l.maxSize)}
	}

	data, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		return nil, &LoadError{Path: p, Err: err}
	}
	return data, nil
}

// HTTPConfig configures an HTTP loader.
type HTTPConfig struct {
	BaseURL        string
	MaxSize        int64
	RequestTimeout time.Duration
	Client         *http.Client
}

// HTTP loads resources relative to a base URL.
type HTTP struct {
	base    *url.URL
	maxSize int64
	client  *http.Client
}

// NewHTTP returns a loader fetching resources below cfg.BaseURL.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &HTTP{base: base, maxSize: cfg.MaxSize, client: client}, nil
}

// URL returns the absolute location of a resource.
func (h *HTTP) URL(name string) (string, error) {
	p, err := Clean(name)
	if err != nil {
		return "", err
	}
	return h.base.ResolveReference(&url.URL{Path: p}).String(), nil
}

func (h *HTTP) Load(ctx context.Context, name string) ([]byte, error) {
	target, err := h.URL(name)
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &LoadError{Path: name, Err: fmt.Errorf("unexpected status: %s", resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxSize+1))
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	if int64(len(data)) > h.maxSize {
		return nil, &LoadError{Path: name, Err: fmt.Errorf("body exceeds limit %d", h.maxSize)}
	}
	return data, nil
}
