package config

import (
	"batchexecute/codec"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Client.ResponseType != "c" || !cfg.Client.Strict {
		t.Fatalf("expected compressed strict client by default, got %+v", cfg.Client)
	}
	if cfg.ClientProfile() != codec.ProfileStandard {
		t.Fatalf("expected standard profile")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batchexecute.yaml")
	data := `
service: translate
endpoints:
  - host: translate.google.com
    app: TranslateWebserverUi
    weight: 3
  - url: https://example.com/_/App/data/batchexecute
client:
  response_type: ""
  profile: legacy
  request_id: 42
  balancer: weighted_random
  params:
    hl: en
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service != "translate" || len(cfg.Endpoints) != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	eps := cfg.RegistryEndpoints()
	if eps[0].Host != "translate.google.com" || eps[0].Weight != 3 || eps[1].URL == "" {
		t.Fatalf("unexpected endpoints %+v", eps)
	}
	if cfg.Client.ResponseType != "" || cfg.ClientProfile() != codec.ProfileLegacy || cfg.Client.RequestID != 42 {
		t.Fatalf("unexpected client config %+v", cfg.Client)
	}
	if cfg.Client.Params["hl"] != "en" {
		t.Fatalf("expected params from file")
	}
	// Untouched sections keep their defaults.
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default server port, got %d", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BATCHEXECUTE_SERVICE", "translate")
	t.Setenv("BATCHEXECUTE_ENDPOINT_URLS", "https://a.example/_/A/data/batchexecute, https://b.example/_/B/data/batchexecute")
	t.Setenv("BATCHEXECUTE_REGISTRY_MODE", "etcd")
	t.Setenv("BATCHEXECUTE_ETCD_ENDPOINTS", "etcd1:2379, etcd2:2379")
	t.Setenv("BATCHEXECUTE_CLIENT_STRICT", "false")
	t.Setenv("BATCHEXECUTE_CLIENT_REQUEST_ID", "1234")
	t.Setenv("BATCHEXECUTE_CLIENT_RATE_LIMIT", "2.5")
	t.Setenv("BATCHEXECUTE_CLIENT_RATE_BURST", "5")
	t.Setenv("BATCHEXECUTE_CLIENT_AT_TOKEN", "secret")
	t.Setenv("BATCHEXECUTE_CLIENT_COOKIE", "SID=abc")
	t.Setenv("BATCHEXECUTE_SERVER_PORT", "9090")
	t.Setenv("BATCHEXECUTE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service != "translate" {
		t.Fatalf("expected service override")
	}
	if len(cfg.Endpoints) != 2 || cfg.Endpoints[1].URL != "https://b.example/_/B/data/batchexecute" {
		t.Fatalf("expected endpoint urls override, got %+v", cfg.Endpoints)
	}
	if cfg.Registry.Mode != "etcd" || len(cfg.Registry.EtcdEndpoints) != 2 {
		t.Fatalf("expected registry override, got %+v", cfg.Registry)
	}
	if cfg.Client.Strict {
		t.Fatal("expected strict override false")
	}
	if cfg.Client.RequestID != 1234 {
		t.Fatalf("expected request id 1234, got %d", cfg.Client.RequestID)
	}
	if cfg.Client.RateLimit != 2.5 || cfg.Client.RateBurst != 5 {
		t.Fatalf("expected rate limit override")
	}
	if cfg.Client.Body["at"] != "secret" || cfg.Client.Headers["Cookie"] != "SID=abc" {
		t.Fatalf("expected secret overrides, got %v %v", cfg.Client.Body, cfg.Client.Headers)
	}
	if cfg.Server.Port != 9090 || cfg.Telemetry.LogLevel != "debug" {
		t.Fatalf("expected server and telemetry overrides")
	}
}

func TestEnvResponseTypeNone(t *testing.T) {
	t.Setenv("BATCHEXECUTE_CLIENT_RESPONSE_TYPE", "none")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Client.ResponseType != "" {
		t.Fatalf("expected unframed response type, got %q", cfg.Client.ResponseType)
	}

	t.Setenv("BATCHEXECUTE_CLIENT_RESPONSE_TYPE", " ")
	if cfg, _ = Load(""); cfg.Client.ResponseType != "c" {
		t.Fatalf("expected blank value to keep default, got %q", cfg.Client.ResponseType)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty service":      func(c *Config) { c.Service = "" },
		"endpoint no app":    func(c *Config) { c.Endpoints = []EndpointConfig{{Host: "example.com"}} },
		"bad registry":       func(c *Config) { c.Registry.Mode = "zookeeper" },
		"etcd no endpoints":  func(c *Config) { c.Registry.Mode = "etcd"; c.Registry.EtcdEndpoints = nil },
		"bad response type":  func(c *Config) { c.Client.ResponseType = "b" },
		"bad profile":        func(c *Config) { c.Client.Profile = "new" },
		"bad balancer":       func(c *Config) { c.Client.Balancer = "random" },
		"request id range":   func(c *Config) { c.Client.RequestID = 42 },
		"rate without burst": func(c *Config) { c.Client.RateLimit = 1 },
		"bad port":           func(c *Config) { c.Server.Port = 0 },
		"bad log level":      func(c *Config) { c.Telemetry.LogLevel = "trace" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
	if err := validate(Default()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
