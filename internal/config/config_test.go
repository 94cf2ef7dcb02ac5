package config

import (
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Expected default addr, got %s", cfg.Server.Addr())
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Expected sqlite3 driver, got %s", cfg.Database.Driver)
	}
	if cfg.Inheritance.MaxDepth != 16 {
		t.Errorf("Expected max depth 16, got %d", cfg.Inheritance.MaxDepth)
	}
	if cfg.Log.Level != "info" || cfg.Log.Encoding != "console" {
		t.Errorf("Expected info/console logging, got %s/%s", cfg.Log.Level, cfg.Log.Encoding)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://localhost/webscenarios")
	t.Setenv("BOOTSTRAP_API_KEY", "bootstrap")
	t.Setenv("INHERITANCE_MAX_DEPTH", "4")
	t.Setenv("OIDC_ALLOWED_DOMAINS", "example.com, example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Expected postgres driver, got %s", cfg.Database.Driver)
	}
	if cfg.Auth.BootstrapAPIKey != "bootstrap" {
		t.Errorf("Expected bootstrap key, got %s", cfg.Auth.BootstrapAPIKey)
	}
	if cfg.Inheritance.MaxDepth != 4 {
		t.Errorf("Expected max depth 4, got %d", cfg.Inheritance.MaxDepth)
	}
	domains := cfg.OIDC.GetAllowedDomains()
	if len(domains) != 2 || domains[1] != "example.org" {
		t.Errorf("Expected trimmed domains, got %v", domains)
	}
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Setenv("INHERITANCE_MAX_DEPTH", "deep")

	if _, err := Load(); err == nil {
		t.Error("Expected error for non-numeric depth")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:      ServerConfig{Host: "0.0.0.0", Port: 8080},
			Database:    DatabaseConfig{Driver: "sqlite3", DSN: "test.db"},
			Inheritance: InheritanceConfig{MaxDepth: 16},
			Log:         LogConfig{Level: "info", Encoding: "console"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "DB_DSN"},
		{"zero depth", func(c *Config) { c.Inheritance.MaxDepth = 0 }, "INHERITANCE_MAX_DEPTH"},
		{"bad encoding", func(c *Config) { c.Log.Encoding = "xml" }, "LOG_ENCODING"},
		{"oidc without issuer", func(c *Config) { c.OIDC.Enabled = true }, "OIDC_ISSUER_URL"},
		{"oidc with short secret", func(c *Config) {
			c.OIDC = OIDCConfig{
				Enabled:      true,
				IssuerURL:    "https://issuer.example.com",
				ClientID:     "client",
				ClientSecret: "secret",
				RedirectURL:  "https://app.example.com/auth/callback",
				StateSecret:  "short",
			}
		}, "OIDC_STATE_SECRET"},
		{"oidc complete", func(c *Config) {
			c.OIDC = OIDCConfig{
				Enabled:      true,
				IssuerURL:    "https://issuer.example.com",
				ClientID:     "client",
				ClientSecret: "secret",
				RedirectURL:  "https://app.example.com/auth/callback",
				StateSecret:  strings.Repeat("ab", 32),
			}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGetStateSecretBytes(t *testing.T) {
	hexSecret := OIDCConfig{StateSecret: strings.Repeat("0f", 32)}
	b, err := hexSecret.GetStateSecretBytes()
	if err != nil || len(b) != 32 || b[0] != 0x0f {
		t.Errorf("Expected decoded hex secret, got %v, %v", b, err)
	}

	raw := OIDCConfig{StateSecret: strings.Repeat("x", 32)}
	b, err = raw.GetStateSecretBytes()
	if err != nil || string(b) != strings.Repeat("x", 32) {
		t.Errorf("Expected raw secret, got %v, %v", b, err)
	}
}
