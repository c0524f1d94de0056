// Package config loads kiprun settings from defaults, an optional config
// file, KIPRUN_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. KIPRUN_GUEST_LANG.
const EnvPrefix = "KIPRUN"

// Config holds application configuration.
type Config struct {
	Assets  AssetsConfig  `mapstructure:"assets"`
	Guest   GuestConfig   `mapstructure:"guest"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Stdin   StdinConfig   `mapstructure:"stdin"`
	Log     LogConfig     `mapstructure:"log"`
	Serve   ServeConfig   `mapstructure:"serve"`
}

// AssetsConfig locates the guest image and its resources. Dir wins over URL.
type AssetsConfig struct {
	Dir string `mapstructure:"dir"`
	URL string `mapstructure:"url"`
}

// GuestConfig holds guest invocation defaults.
type GuestConfig struct {
	Lang   string `mapstructure:"lang"`
	Target string `mapstructure:"target"`
}

// CacheConfig controls the on-disk compilation cache.
type CacheConfig struct {
	Dir      string `mapstructure:"dir"`
	Disabled bool   `mapstructure:"disabled"`
}

// RuntimeConfig holds sandbox limits. Memory is one of 16mb, 64mb, 256mb
// or 1gb; empty leaves the runtime default.
type RuntimeConfig struct {
	Memory         string        `mapstructure:"memory"`
	CodegenTimeout time.Duration `mapstructure:"codegen_timeout"`
}

// StdinConfig controls interactive input.
type StdinConfig struct {
	Interactive bool `mapstructure:"interactive"`
}

// LogConfig holds logrus settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServeConfig holds HTTP playground settings.
type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// New returns a viper instance with defaults applied and the config file, if
// any, read. KIPRUN_CONFIG names an explicit file; otherwise
// ~/.config/kiprun/config.{toml,yaml} is used when present.
func New() (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("assets.dir", "")
	v.SetDefault("assets.url", "")
	v.SetDefault("guest.lang", "tr")
	v.SetDefault("guest.target", "js")
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.disabled", false)
	v.SetDefault("runtime.memory", "")
	v.SetDefault("runtime.codegen_timeout", "30s")
	v.SetDefault("stdin.interactive", true)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("serve.addr", "127.0.0.1:8080")

	cfgPath := os.Getenv(EnvPrefix + "_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".config", "kiprun"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// BindFlags binds each key to the flag of the given name in flags. Unknown
// flag names are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	switch strings.ToLower(c.Runtime.Memory) {
	case "", "16mb", "64mb", "256mb", "1gb":
	default:
		return fmt.Errorf("runtime.memory: unknown limit %q", c.Runtime.Memory)
	}
	if c.Runtime.CodegenTimeout < 0 {
		return fmt.Errorf("runtime.codegen_timeout: must not be negative")
	}
	if c.Assets.URL != "" && !strings.HasPrefix(c.Assets.URL, "http://") && !strings.HasPrefix(c.Assets.URL, "https://") {
		return fmt.Errorf("assets.url: %q is not an http(s) URL", c.Assets.URL)
	}
	return nil
}

// HasAssets reports whether any asset source is configured.
func (c Config) HasAssets() bool {
	return c.Assets.Dir != "" || c.Assets.URL != ""
}
