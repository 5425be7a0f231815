package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// WHY: With no file and no environment the service must start with the
	// documented defaults, including the 5 MiB upload ceiling.
	t.Parallel()

	cfg, err := load("", mapLookup(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("got %+v, want defaults", cfg)
	}
	if cfg.MaxUploadBytes != 5*1024*1024 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
}

func TestLoad_Layering(t *testing.T) {
	// WHY: Environment variables override the YAML file, which overrides the
	// defaults; the prefixed password wins over the legacy variable.
	t.Parallel()

	path := writeConfig(t, "jksconvert.yaml", `
listenAddr: ":8443"
maxUploadBytes: 1048576
defaultAlias: server
validateTimeout: 3s
toolchain: native
`)
	cfg, err := load(path, mapLookup(map[string]string{
		LegacyPasswordEnv:            "legacy",
		EnvPrefix + "DEFAULT_PASSWORD": "preferred",
		EnvPrefix + "LISTEN_ADDR":      ":9000",
		EnvPrefix + "WRITE_TIMEOUT":    "2m",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.MaxUploadBytes != 1<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.DefaultAlias != "server" || cfg.Toolchain != "native" {
		t.Errorf("alias=%q toolchain=%q", cfg.DefaultAlias, cfg.Toolchain)
	}
	if cfg.ValidateTimeout != 3*time.Second || cfg.WriteTimeout != 2*time.Minute {
		t.Errorf("timeouts = %v / %v", cfg.ValidateTimeout, cfg.WriteTimeout)
	}
	if cfg.DefaultPassword != "preferred" {
		t.Errorf("DefaultPassword = %q", cfg.DefaultPassword)
	}
}

func TestLoad_LegacyPassword(t *testing.T) {
	// WHY: Existing deployments set DEFAULT_JKS_PASS.
	t.Parallel()

	cfg, err := load("", mapLookup(map[string]string{LegacyPasswordEnv: "changeit"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultPassword != "changeit" {
		t.Errorf("DefaultPassword = %q", cfg.DefaultPassword)
	}
}

func TestLoad_Errors(t *testing.T) {
	// WHY: Bad configuration must stop startup with a message naming the
	// offending setting.
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{"zero ceiling", "maxUploadBytes: 0\n", nil, "maxUploadBytes"},
		{"unknown toolchain", "toolchain: java\n", nil, "unknown toolchain"},
		{"bad yaml", "listenAddr: [\n", nil, "parsing config"},
		{"bad env size", "", map[string]string{EnvPrefix + "MAX_UPLOAD_BYTES": "5MB"}, "MAX_UPLOAD_BYTES"},
		{"bad env duration", "", map[string]string{EnvPrefix + "VALIDATE_TIMEOUT": "ten"}, "VALIDATE_TIMEOUT"},
		{"negative timeout", "validateTimeout: -1s\n", nil, "validateTimeout"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := ""
			if tt.yaml != "" {
				path = writeConfig(t, "c.yaml", tt.yaml)
			}
			_, err := load(path, mapLookup(tt.env))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	// WHY: A .env file supplies settings the process environment does not.
	t.Parallel()

	envFile := writeConfig(t, ".env", "JKSCONVERT_DEFAULT_ALIAS=fromdotenv\nJKSCONVERT_TOOLCHAIN=native\n")
	cfg, err := Load("", envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultAlias != "fromdotenv" || cfg.Toolchain != "native" {
		t.Errorf("alias=%q toolchain=%q", cfg.DefaultAlias, cfg.Toolchain)
	}
}

func TestLoad_MissingDotEnv(t *testing.T) {
	// WHY: The default .env path rarely exists; its absence is not an error.
	t.Parallel()

	if _, err := Load("", filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("Load: %v", err)
	}
}
