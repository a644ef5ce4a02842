package config

import (
	"batchexecute/codec"
	"batchexecute/registry"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type EndpointConfig struct {
	Host   string `yaml:"host"`
	App    string `yaml:"app"`
	User   string `yaml:"user"`
	URL    string `yaml:"url"`
	Weight int    `yaml:"weight"`
}

type RegistryConfig struct {
	Mode          string   `yaml:"mode"` // static, etcd
	EtcdEndpoints []string `yaml:"etcd_endpoints"`
	TTLSeconds    int      `yaml:"ttl_seconds"`
}

type ClientConfig struct {
	ResponseType   string            `yaml:"response_type"` // "c", or "" for the unframed format ("none" from the environment)
	Strict         bool              `yaml:"strict"`
	Profile        string            `yaml:"profile"` // standard, legacy
	RequestID      int               `yaml:"request_id"`
	Balancer       string            `yaml:"balancer"`
	TimeoutMS      int               `yaml:"timeout_ms"`
	RateLimit      float64           `yaml:"rate_limit"`
	RateBurst      int               `yaml:"rate_burst"`
	MaxConcurrency int               `yaml:"max_concurrency"`
	MaxBodyBytes   int               `yaml:"max_body_bytes"`
	Params         map[string]string `yaml:"params"`
	Body           map[string]string `yaml:"body"`
	Headers        map[string]string `yaml:"headers"`
}

type ServerConfig struct {
	Bind          string `yaml:"bind"`
	Port          int    `yaml:"port"`
	App           string `yaml:"app"`
	AdvertiseHost string `yaml:"advertise_host"`
	TimeoutMS     int    `yaml:"timeout_ms"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	MetricsPath string `yaml:"metrics_path"`
	TraceStdout bool   `yaml:"trace_stdout"`
}

type Config struct {
	Service   string           `yaml:"service"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Registry  RegistryConfig   `yaml:"registry"`
	Client    ClientConfig     `yaml:"client"`
	Server    ServerConfig     `yaml:"server"`
	Telemetry TelemetryConfig  `yaml:"telemetry"`
}

func Default() Config {
	return Config{
		Service: "default",
		Registry: RegistryConfig{
			Mode:          "static",
			EtcdEndpoints: []string{"localhost:2379"},
			TTLSeconds:    10,
		},
		Client: ClientConfig{
			ResponseType:   string(codec.ResponseTypeCompressed),
			Strict:         true,
			Profile:        "standard",
			Balancer:       "round_robin",
			TimeoutMS:      30000,
			MaxConcurrency: 8,
			MaxBodyBytes:   32 << 20,
		},
		Server: ServerConfig{
			Bind:      "127.0.0.1",
			Port:      8080,
			App:       "LocalApp",
			TimeoutMS: 10000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			MetricsPath: "/metrics",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Service, "BATCHEXECUTE_SERVICE")
	overrideURLs(&cfg.Endpoints, "BATCHEXECUTE_ENDPOINT_URLS")
	overrideString(&cfg.Registry.Mode, "BATCHEXECUTE_REGISTRY_MODE")
	overrideStringSlice(&cfg.Registry.EtcdEndpoints, "BATCHEXECUTE_ETCD_ENDPOINTS")
	overrideInt(&cfg.Registry.TTLSeconds, "BATCHEXECUTE_REGISTRY_TTL_SECONDS")
	overrideResponseType(&cfg.Client.ResponseType, "BATCHEXECUTE_CLIENT_RESPONSE_TYPE")
	overrideBool(&cfg.Client.Strict, "BATCHEXECUTE_CLIENT_STRICT")
	overrideString(&cfg.Client.Profile, "BATCHEXECUTE_CLIENT_PROFILE")
	overrideInt(&cfg.Client.RequestID, "BATCHEXECUTE_CLIENT_REQUEST_ID")
	overrideString(&cfg.Client.Balancer, "BATCHEXECUTE_CLIENT_BALANCER")
	overrideInt(&cfg.Client.TimeoutMS, "BATCHEXECUTE_CLIENT_TIMEOUT_MS")
	overrideFloat(&cfg.Client.RateLimit, "BATCHEXECUTE_CLIENT_RATE_LIMIT")
	overrideInt(&cfg.Client.RateBurst, "BATCHEXECUTE_CLIENT_RATE_BURST")
	overrideInt(&cfg.Client.MaxConcurrency, "BATCHEXECUTE_CLIENT_MAX_CONCURRENCY")
	overrideInt(&cfg.Client.MaxBodyBytes, "BATCHEXECUTE_CLIENT_MAX_BODY_BYTES")
	overrideMapEntry(&cfg.Client.Body, "at", "BATCHEXECUTE_CLIENT_AT_TOKEN")
	overrideMapEntry(&cfg.Client.Headers, "Cookie", "BATCHEXECUTE_CLIENT_COOKIE")
	overrideString(&cfg.Server.Bind, "BATCHEXECUTE_SERVER_BIND")
	overrideInt(&cfg.Server.Port, "BATCHEXECUTE_SERVER_PORT")
	overrideString(&cfg.Server.App, "BATCHEXECUTE_SERVER_APP")
	overrideString(&cfg.Server.AdvertiseHost, "BATCHEXECUTE_SERVER_ADVERTISE_HOST")
	overrideInt(&cfg.Server.TimeoutMS, "BATCHEXECUTE_SERVER_TIMEOUT_MS")
	overrideString(&cfg.Telemetry.LogLevel, "BATCHEXECUTE_LOG_LEVEL")
	overrideString(&cfg.Telemetry.MetricsPath, "BATCHEXECUTE_METRICS_PATH")
	overrideBool(&cfg.Telemetry.TraceStdout, "BATCHEXECUTE_TRACE_STDOUT")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

// overrideResponseType reads "none" as the unframed format, which an
// empty variable cannot select.
func overrideResponseType(target *string, envKey string) {
	value, ok := os.LookupEnv(envKey)
	if !ok {
		return
	}
	switch value = strings.TrimSpace(value); value {
	case "":
	case "none":
		*target = string(codec.ResponseTypeDefault)
	default:
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parts := splitList(value); len(parts) > 0 {
			*target = parts
		}
	}
}

// overrideURLs replaces the endpoint list with one URL endpoint per entry.
func overrideURLs(target *[]EndpointConfig, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := splitList(value)
		if len(parts) == 0 {
			return
		}
		eps := make([]EndpointConfig, len(parts))
		for i, p := range parts {
			eps[i] = EndpointConfig{URL: p}
		}
		*target = eps
	}
}

// overrideMapEntry sets (*target)[key] for secrets that should not live
// in the config file, such as the "at" session token.
func overrideMapEntry(target *map[string]string, key, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		if *target == nil {
			*target = make(map[string]string)
		}
		(*target)[key] = value
	}
}

func splitList(value string) []string {
	var trimmed []string
	for _, p := range strings.Split(value, ",") {
		if s := strings.TrimSpace(p); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	return trimmed
}

func validate(cfg Config) error {
	if cfg.Service == "" {
		return errors.New("service must not be empty")
	}
	for i, ep := range cfg.Endpoints {
		if ep.URL == "" && (ep.Host == "" || ep.App == "") {
			return fmt.Errorf("endpoints[%d] needs a url or both host and app", i)
		}
		if ep.Weight < 0 {
			return fmt.Errorf("endpoints[%d].weight must be >= 0", i)
		}
	}
	switch cfg.Registry.Mode {
	case "static":
	case "etcd":
		if len(cfg.Registry.EtcdEndpoints) == 0 {
			return errors.New("registry.etcd_endpoints must not be empty when mode=etcd")
		}
	default:
		return errors.New("registry.mode must be one of static|etcd")
	}
	if cfg.Registry.TTLSeconds <= 0 {
		return errors.New("registry.ttl_seconds must be positive")
	}
	if _, err := codec.GetDecoder(codec.ResponseType(cfg.Client.ResponseType)); err != nil {
		return fmt.Errorf("client.response_type: %w", err)
	}
	switch cfg.Client.Profile {
	case "standard", "legacy":
	default:
		return errors.New("client.profile must be one of standard|legacy")
	}
	switch cfg.Client.Balancer {
	case "round_robin", "weighted_random", "consistent_hash":
	default:
		return errors.New("client.balancer must be one of round_robin|weighted_random|consistent_hash")
	}
	if cfg.Client.RequestID != 0 {
		lo, hi := cfg.ClientProfile().Range()
		if cfg.Client.RequestID < lo || cfg.Client.RequestID > hi {
			return fmt.Errorf("client.request_id must be in the %d-%d range", lo, hi)
		}
	}
	if cfg.Client.TimeoutMS < 0 {
		return errors.New("client.timeout_ms must be >= 0")
	}
	if cfg.Client.RateLimit < 0 {
		return errors.New("client.rate_limit must be >= 0")
	}
	if cfg.Client.RateLimit > 0 && cfg.Client.RateBurst <= 0 {
		return errors.New("client.rate_burst must be >= 1 when rate_limit is set")
	}
	if cfg.Client.MaxConcurrency <= 0 {
		return errors.New("client.max_concurrency must be >= 1")
	}
	if cfg.Client.MaxBodyBytes <= 0 {
		return errors.New("client.max_body_bytes must be positive")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if cfg.Server.App == "" {
		return errors.New("server.app must not be empty")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	return nil
}

// ClientProfile maps client.profile to a codec.Profile.
func (c Config) ClientProfile() codec.Profile {
	if c.Client.Profile == "legacy" {
		return codec.ProfileLegacy
	}
	return codec.ProfileStandard
}

// RegistryEndpoints converts the configured endpoints.
func (c Config) RegistryEndpoints() []registry.Endpoint {
	eps := make([]registry.Endpoint, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		eps[i] = registry.Endpoint{Host: ep.Host, App: ep.App, User: ep.User, URL: ep.URL, Weight: ep.Weight}
	}
	return eps
}
