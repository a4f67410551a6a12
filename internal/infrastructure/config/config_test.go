package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  driver: "sqlite"
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
    issuer: "onward-test"
    access_token_ttl: 5m
    refresh_token_ttl: 48h
  permission_cache_ttl: 30s
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Security.JWT.Issuer != "onward-test" {
		t.Errorf("JWT.Issuer = %q, want %q", cfg.Security.JWT.Issuer, "onward-test")
	}
	if cfg.Security.JWT.AccessTokenTTL != 5*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 5m", cfg.Security.JWT.AccessTokenTTL)
	}
	if cfg.Security.JWT.RefreshTokenTTL != 48*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want 48h", cfg.Security.JWT.RefreshTokenTTL)
	}
	if cfg.Security.PermissionCacheTTL != 30*time.Second {
		t.Errorf("PermissionCacheTTL = %v, want 30s", cfg.Security.PermissionCacheTTL)
	}
	// Unset sections keep their defaults.
	if cfg.Security.Password.Iterations != 3 {
		t.Errorf("Password.Iterations = %d, want 3", cfg.Security.Password.Iterations)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"
api:
  port: 8080
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for missing jwt secret, got nil")
	}
	if !strings.Contains(err.Error(), "security.jwt.secret") {
		t.Errorf("Load() error = %v, want mention of security.jwt.secret", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"
security:
  jwt:
    secret: "short"
`)
	t.Setenv("ONWARD_JWT_SECRET", validJWTSecret)
	t.Setenv("ONWARD_ACCESS_TOKEN_TTL", "2m")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Security.JWT.Secret != validJWTSecret {
		t.Errorf("JWT.Secret was not overridden by environment")
	}
	if cfg.Security.JWT.AccessTokenTTL != 2*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 2m", cfg.Security.JWT.AccessTokenTTL)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"
`)
	envFile := filepath.Join(filepath.Dir(configPath), ".env")
	content := "ONWARD_JWT_SECRET=" + validJWTSecret + "\nONWARD_LOG_LEVEL=debug\n"
	if err := os.WriteFile(envFile, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	// Register restoration of the real environment, then clear the variables
	// so the .env file is the only source.
	t.Setenv("ONWARD_JWT_SECRET", "")
	t.Setenv("ONWARD_LOG_LEVEL", "")
	os.Unsetenv("ONWARD_JWT_SECRET") //nolint:errcheck // test setup
	os.Unsetenv("ONWARD_LOG_LEVEL")  //nolint:errcheck // test setup

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Security.JWT.Secret != validJWTSecret {
		t.Errorf("JWT.Secret was not read from .env")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Database.Path = "/data/onward.db"
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: true,
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Database.Driver = DriverPostgres },
			wantErr: true,
		},
		{
			name: "postgres with dsn",
			mutate: func(c *Config) {
				c.Database.Driver = DriverPostgres
				c.Database.DSN = "postgres://onward@localhost/onward"
			},
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
		},
		{
			name:    "zero access ttl",
			mutate:  func(c *Config) { c.Security.JWT.AccessTokenTTL = 0 },
			wantErr: true,
		},
		{
			name:    "refresh ttl not longer than access ttl",
			mutate:  func(c *Config) { c.Security.JWT.RefreshTokenTTL = c.Security.JWT.AccessTokenTTL },
			wantErr: true,
		},
		{
			name:    "refresh token entropy too low",
			mutate:  func(c *Config) { c.Security.RefreshTokenBytes = 16 },
			wantErr: true,
		},
		{
			name:    "argon memory below lane minimum",
			mutate:  func(c *Config) { c.Security.Password.Memory = 4 },
			wantErr: true,
		},
		{
			name:    "argon zero iterations",
			mutate:  func(c *Config) { c.Security.Password.Iterations = 0 },
			wantErr: true,
		},
		{
			name:    "short salt",
			mutate:  func(c *Config) { c.Security.Password.SaltLength = 8 },
			wantErr: true,
		},
		{
			name: "rate limit enabled without budget",
			mutate: func(c *Config) {
				c.Security.RateLimit.Enabled = true
				c.Security.RateLimit.RequestsPerMinute = 0
			},
			wantErr: true,
		},
		{
			name:    "telemetry without endpoint",
			mutate:  func(c *Config) { c.Telemetry.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	lookuper := envconfig.MapLookuper(map[string]string{
		"ONWARD_DATABASE_PATH":     "/custom/path.db",
		"ONWARD_DATABASE_DSN":      "postgres://localhost/onward",
		"ONWARD_MQTT_HOST":         "mqtt.example.com",
		"ONWARD_MQTT_USERNAME":     "testuser",
		"ONWARD_MQTT_PASSWORD":     "testpass",
		"ONWARD_API_HOST":          "192.168.1.1",
		"ONWARD_API_PORT":          "9443",
		"ONWARD_INFLUXDB_TOKEN":    "secret-token",
		"ONWARD_JWT_SECRET":        "jwt-secret",
		"ONWARD_REFRESH_TOKEN_TTL": "72h",
		// Unprefixed variables are ignored.
		"LOG_LEVEL": "debug",
	})

	if err := applyEnvOverrides(context.Background(), cfg, lookuper); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.Database.DSN != "postgres://localhost/onward" {
		t.Errorf("Database.DSN = %q", cfg.Database.DSN)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 9443 {
		t.Errorf("API.Port = %d, want 9443", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
	if cfg.Security.JWT.RefreshTokenTTL != 72*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want 72h", cfg.Security.JWT.RefreshTokenTTL)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, "info")
	}
	// Values with no matching variable keep their defaults.
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("defaultConfig Database.Driver = %q, want %q", cfg.Database.Driver, DriverSQLite)
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Security.JWT.AccessTokenTTL != 15*time.Minute {
		t.Errorf("defaultConfig AccessTokenTTL = %v, want 15m", cfg.Security.JWT.AccessTokenTTL)
	}
	if cfg.Security.RefreshTokenBytes < 32 {
		t.Errorf("defaultConfig RefreshTokenBytes = %d, want >= 32", cfg.Security.RefreshTokenBytes)
	}
	// The defaults only lack a secret.
	cfg.Security.JWT.Secret = validJWTSecret
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig with secret should validate: %v", err)
	}
}
