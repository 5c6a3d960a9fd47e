// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "0.0.0.0:3000"

database:
  path: "./data/users.db"
  seed: true

messages:
  path: "./data/messages.json"

auth:
  jwt_secret: "test-secret"
  token_ttl: "12h"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:3000" {
		t.Errorf("HTTPAddr = %q, want 0.0.0.0:3000", cfg.Server.HTTPAddr)
	}
	if !cfg.Database.Seed {
		t.Error("Database.Seed = false, want true")
	}
	if cfg.Messages.Path != "./data/messages.json" {
		t.Errorf("Messages.Path = %q", cfg.Messages.Path)
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Errorf("TokenTTL = %v, want 12h", cfg.Auth.TokenTTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("CKAM_TEST_SECRET", "expanded-secret")

	path := writeConfig(t, `
server:
  http_addr: ":3000"
database:
  path: "./users.db"
messages:
  path: "./messages.json"
auth:
  jwt_secret: "${CKAM_TEST_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "expanded-secret" {
		t.Errorf("JWTSecret = %q, want expanded-secret", cfg.Auth.JWTSecret)
	}
}

func TestLoad_DefaultTokenTTL(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":3000"
database:
  path: "./users.db"
messages:
  path: "./messages.json"
auth:
  jwt_secret: "secret"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("TokenTTL = %v, want default 24h", cfg.Auth.TokenTTL)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":3000"
database:
  path: "./users.db"
messages:
  path: "./messages.json"
auth:
  jwt_secret: "secret"
  token_ttl: "not-a-duration"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() succeeded, want duration parse error")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing http_addr",
			content: `
database:
  path: "./users.db"
messages:
  path: "./messages.json"
auth:
  jwt_secret: "secret"
`,
			wantErr: "server.http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: ":3000"
messages:
  path: "./messages.json"
auth:
  jwt_secret: "secret"
`,
			wantErr: "database.path",
		},
		{
			name: "missing messages path",
			content: `
server:
  http_addr: ":3000"
database:
  path: "./users.db"
auth:
  jwt_secret: "secret"
`,
			wantErr: "messages.path",
		},
		{
			name: "missing jwt secret",
			content: `
server:
  http_addr: ":3000"
database:
  path: "./users.db"
messages:
  path: "./messages.json"
`,
			wantErr: "auth.jwt_secret",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() succeeded, want file error")
	}
}
