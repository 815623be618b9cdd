package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_DefaultPort(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Provider.Name != ProviderYahoo {
		t.Errorf("Provider.Name default = %q, want %q", cfg.Provider.Name, ProviderYahoo)
	}
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("STOCKFETCH_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_InvalidPortEnvIgnored(t *testing.T) {
	t.Setenv("STOCKFETCH_PORT", "not-a-port")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestConfig_ExportDirEnablesExport(t *testing.T) {
	t.Setenv("STOCKFETCH_EXPORT_DIR", "/tmp/exports")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if !cfg.Export.Enabled {
		t.Error("Export.Enabled = false, want true when STOCKFETCH_EXPORT_DIR is set")
	}
	if cfg.Export.Dir != "/tmp/exports" {
		t.Errorf("Export.Dir = %q, want /tmp/exports", cfg.Export.Dir)
	}
}

func TestConfig_ProviderEnvOverride(t *testing.T) {
	t.Setenv("STOCKFETCH_PROVIDER", " EODHD ")
	t.Setenv("EODHD_API_KEY", "env-key")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Provider.Name != ProviderEODHD {
		t.Errorf("Provider.Name = %q, want %q", cfg.Provider.Name, ProviderEODHD)
	}
	if cfg.Clients.EODHD.APIKey != "env-key" {
		t.Errorf("EODHD.APIKey = %q, want env-key", cfg.Clients.EODHD.APIKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown provider", func(c *Config) { c.Provider.Name = "bloomberg" }, true},
		{"eodhd without key", func(c *Config) { c.Provider.Name = ProviderEODHD }, true},
		{"eodhd with key", func(c *Config) {
			c.Provider.Name = ProviderEODHD
			c.Clients.EODHD.APIKey = "k"
		}, false},
		{"negative cache size", func(c *Config) { c.Cache.MaxEntries = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_LoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stockfetch.toml")
	content := `
environment = "production"

[server]
port = 9191

[cache]
max_entries = 16
ttl = "15m"

[export]
enabled = true
dir = "/var/exports"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(filepath.Join(dir, "missing.toml"), path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want default retained", cfg.Server.Host)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}
	if cfg.Cache.MaxEntries != 16 || cfg.Cache.GetTTL() != 15*time.Minute {
		t.Errorf("Cache = %+v, want 16 entries and 15m ttl", cfg.Cache)
	}
	if !cfg.Export.Enabled || cfg.Export.Dir != "/var/exports" {
		t.Errorf("Export = %+v", cfg.Export)
	}
}

func TestConfig_LoadConfigInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[server\nport ="), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() error = nil, want parse error")
	}
}

func TestConfig_GetTimeout(t *testing.T) {
	y := YahooConfig{Timeout: "5s"}
	if y.GetTimeout() != 5*time.Second {
		t.Errorf("YahooConfig.GetTimeout() = %v, want 5s", y.GetTimeout())
	}
	e := EODHDConfig{Timeout: "garbage"}
	if e.GetTimeout() != 30*time.Second {
		t.Errorf("EODHDConfig.GetTimeout() = %v, want 30s fallback", e.GetTimeout())
	}
}

func TestCacheConfig_GetTTL(t *testing.T) {
	tests := []struct {
		ttl  string
		want time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"10m", 10 * time.Minute},
		{"-5m", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		c := CacheConfig{TTL: tt.ttl}
		if got := c.GetTTL(); got != tt.want {
			t.Errorf("GetTTL(%q) = %v, want %v", tt.ttl, got, tt.want)
		}
	}
}
