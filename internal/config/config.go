// Package config loads the service configuration. Values are layered:
// built-in defaults, then an optional YAML file, then environment variables
// (a .env file fills in variables the environment does not set). Command
// line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sensiblebit/jksconvert/internal/toolchain"
)

// Defaults.
const (
	DefaultListenAddr      = ":5000"
	DefaultMaxUploadBytes  = 5 << 20
	DefaultAlias           = "1"
	DefaultValidateTimeout = 10 * time.Second
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
)

// EnvPrefix prefixes every environment variable the service reads, except
// the legacy DEFAULT_JKS_PASS.
const EnvPrefix = "JKSCONVERT_"

// LegacyPasswordEnv is the default password variable of earlier deployments.
const LegacyPasswordEnv = "DEFAULT_JKS_PASS"

// Config is the service configuration. It is built once at startup and
// passed to constructors.
type Config struct {
	ListenAddr      string        `yaml:"listenAddr"`
	MaxUploadBytes  int64         `yaml:"maxUploadBytes"`
	DefaultPassword string        `yaml:"defaultPassword"`
	DefaultAlias    string        `yaml:"defaultAlias"`
	WorkspaceRoot   string        `yaml:"workspaceRoot"`
	ValidateTimeout time.Duration `yaml:"validateTimeout"`
	Toolchain       string        `yaml:"toolchain"`
	KeytoolPath     string        `yaml:"keytoolPath"`
	OpenSSLPath     string        `yaml:"opensslPath"`
	LogLevel        string        `yaml:"logLevel"`
	LogFile         string        `yaml:"logFile"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:      DefaultListenAddr,
		MaxUploadBytes:  DefaultMaxUploadBytes,
		DefaultAlias:    DefaultAlias,
		ValidateTimeout: DefaultValidateTimeout,
		Toolchain:       toolchain.NameExec,
		LogLevel:        "info",
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
	}
}

// Load builds the configuration from the YAML file at path and the
// environment. An empty path skips the file. envFile names a dotenv file;
// a missing envFile is not an error.
func Load(path, envFile string) (Config, error) {
	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = m
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}
	return load(path, func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}

	if v, ok := lookup(LegacyPasswordEnv); ok {
		cfg.DefaultPassword = v
	}
	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("DEFAULT_PASSWORD", &cfg.DefaultPassword)
	str("DEFAULT_ALIAS", &cfg.DefaultAlias)
	str("WORKSPACE_ROOT", &cfg.WorkspaceRoot)
	str("TOOLCHAIN", &cfg.Toolchain)
	str("KEYTOOL", &cfg.KeytoolPath)
	str("OPENSSL", &cfg.OpenSSLPath)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FILE", &cfg.LogFile)

	if v, ok := lookup(EnvPrefix + "MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_BYTES: %w", EnvPrefix, err)
		}
		cfg.MaxUploadBytes = n
	}
	for name, dst := range map[string]*time.Duration{
		"VALIDATE_TIMEOUT": &cfg.ValidateTimeout,
		"READ_TIMEOUT":     &cfg.ReadTimeout,
		"WRITE_TIMEOUT":    &cfg.WriteTimeout,
	} {
		if err := dur(name, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("maxUploadBytes must be positive, got %d", c.MaxUploadBytes)
	case c.ValidateTimeout <= 0:
		return fmt.Errorf("validateTimeout must be positive, got %s", c.ValidateTimeout)
	case c.DefaultAlias == "":
		return errors.New("defaultAlias must not be empty")
	case c.ListenAddr == "":
		return errors.New("listenAddr must not be empty")
	}
	switch c.Toolchain {
	case toolchain.NameExec, toolchain.NameNative:
	default:
		return fmt.Errorf("unknown toolchain %q (use %s or %s)", c.Toolchain, toolchain.NameExec, toolchain.NameNative)
	}
	return nil
}
