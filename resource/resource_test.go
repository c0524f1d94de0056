package resource

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "lib/temel.kip", "lib/temel.kip", false},
		{"leading slash", "/vendor/trmorph.fst", "vendor/trmorph.fst", false},
		{"dot segments", "./lib/../lib/giriş.kip", "lib/giriş.kip", false},
		{"escape collapses to root", "../../etc/passwd", "etc/passwd", false},
		{"empty", "", "", true},
		{"root", "/", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clean(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFSLoad(t *testing.T) {
	loader := NewFS(fstest.MapFS{
		"lib/temel.kip":      {Data: []byte("temel")},
		"vendor/trmorph.fst": {Data: []byte{0x01, 0x02}},
	})

	data, err := loader.Load(context.Background(), "/lib/temel.kip")
	require.NoError(t, err)
	assert.Equal(t, "temel", string(data))

	_, err = loader.Load(context.Background(), "lib/missing.kip")
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "lib/missing.kip", loadErr.Path)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = loader.Load(context.Background(), "lib")
	require.ErrorAs(t, err, &loadErr)
}

func TestFSLoadCanceled(t *testing.T) {
	loader := NewFS(fstest.MapFS{"a": {Data: []byte("a")}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "giriş.kip"), []byte("giriş"), 0o644))

	data, err := NewDir(dir).Load(context.Background(), "lib/giriş.kip")
	require.NoError(t, err)
	assert.Equal(t, "giriş", string(data))
}

func TestHTTPLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/assets/lib/giriş.kip":
			w.Write([]byte("giriş"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	loader, err := NewHTTP(HTTPConfig{BaseURL: srv.URL + "/assets"})
	require.NoError(t, err)

	data, err := loader.Load(context.Background(), "lib/giriş.kip")
	require.NoError(t, err)
	assert.Equal(t, "giriş", string(data))

	_, err = loader.Load(context.Background(), "lib/missing.kip")
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Error(), "404")
}

func TestHTTPLoadSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	loader, err := NewHTTP(HTTPConfig{BaseURL: srv.URL, MaxSize: 16})
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), "big.bin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestNewHTTPRejectsScheme(t *testing.T) {
	_, err := NewHTTP(HTTPConfig{BaseURL: "file:///tmp"})
	assert.Error(t, err)
}
