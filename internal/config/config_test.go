package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KIPRUN_CONFIG", "")
}

func TestDefaults(t *testing.T) {
	isolate(t)

	v, err := New()
	require.NoError(t, err)
	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "tr", c.Guest.Lang)
	assert.Equal(t, "js", c.Guest.Target)
	assert.True(t, c.Stdin.Interactive)
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, 30*time.Second, c.Runtime.CodegenTimeout)
	assert.False(t, c.HasAssets())
}

func TestConfigFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "kiprun.toml")
	content := `
[assets]
dir = "/opt/kip"

[guest]
lang = "en"

[runtime]
memory = "64mb"
codegen_timeout = "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("KIPRUN_CONFIG", path)

	v, err := New()
	require.NoError(t, err)
	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/opt/kip", c.Assets.Dir)
	assert.Equal(t, "en", c.Guest.Lang)
	assert.Equal(t, "64mb", c.Runtime.Memory)
	assert.Equal(t, 5*time.Second, c.Runtime.CodegenTimeout)
	assert.True(t, c.HasAssets())
}

func TestMissingExplicitFile(t *testing.T) {
	isolate(t)
	t.Setenv("KIPRUN_CONFIG", filepath.Join(t.TempDir(), "absent.toml"))

	_, err := New()
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("KIPRUN_STDIN_INTERACTIVE", "false")
	t.Setenv("KIPRUN_LOG_FORMAT", "json")

	v, err := New()
	require.NoError(t, err)
	c, err := Load(v)
	require.NoError(t, err)

	assert.False(t, c.Stdin.Interactive)
	assert.Equal(t, "json", c.Log.Format)
}

func TestBindFlags(t *testing.T) {
	isolate(t)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("lang", "", "")
	flags.String("assets", "", "")
	require.NoError(t, flags.Parse([]string{"--lang", "en", "--assets", "./dist"}))

	v, err := New()
	require.NoError(t, err)
	require.NoError(t, BindFlags(v, flags, map[string]string{
		"guest.lang": "lang",
		"assets.dir": "assets",
		"serve.addr": "missing",
	}))

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "en", c.Guest.Lang)
	assert.Equal(t, "./dist", c.Assets.Dir)
	assert.Equal(t, "127.0.0.1:8080", c.Serve.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{Log: LogConfig{Format: "text"}}, true},
		{"bad format", Config{Log: LogConfig{Format: "xml"}}, false},
		{"bad url", Config{Log: LogConfig{Format: "json"}, Assets: AssetsConfig{URL: "ftp://x"}}, false},
		{"bad memory", Config{Log: LogConfig{Format: "text"}, Runtime: RuntimeConfig{Memory: "3mb"}}, false},
		{"negative timeout", Config{Log: LogConfig{Format: "text"}, Runtime: RuntimeConfig{CodegenTimeout: -time.Second}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
