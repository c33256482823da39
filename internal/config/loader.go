package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration from, in order:
//  1. built-in defaults
//  2. a YAML file (configPath, else GATEWAY_CONFIG, else ./gateway.yaml if present)
//  3. environment variables
//  4. upstream.api_key_file
//
// and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if cfg.Upstream.APIKeyFile != "" && cfg.Upstream.APIKey == "" {
		data, err := os.ReadFile(cfg.Upstream.APIKeyFile)
		if err != nil {
			return nil, fmt.Errorf("upstream.api_key_file: %w", err)
		}
		cfg.Upstream.APIKey = strings.TrimSpace(string(data))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("gateway.yaml"); err == nil {
		return "gateway.yaml"
	}
	return ""
}

// loadYAMLFile overlays the file onto cfg; absent keys keep their values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"PORT":              &cfg.Server.Port,
		"GATEWAY_VERSION":   &cfg.Server.VersionID,
		"HUNYUAN_API_URL":   &cfg.Upstream.URL,
		"HUNYUAN_HOST":      &cfg.Upstream.Host,
		"HUNYUAN_API_KEY":   &cfg.Upstream.APIKey,
		"HUNYUAN_STAFFNAME": &cfg.Upstream.StaffName,
		"HUNYUAN_WSID":      &cfg.Upstream.WSID,
		"HUNYUAN_POLARIS":   &cfg.Upstream.Polaris,
		"CACHE_BACKEND":     &cfg.Cache.Backend,
		"REDIS_ADDR":        &cfg.Cache.RedisAddr,
		"ENV":               &cfg.Log.Env,
		"LOG_LEVEL":         &cfg.Log.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"UPSTREAM_TIMEOUT": &cfg.Upstream.Timeout,
		"REQUEST_TIMEOUT":  &cfg.Server.RequestTimeout,
		"CACHE_TTL":        &cfg.Cache.TTL,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_BODY_BYTES: %w", err)
		}
		cfg.Server.MaxBodyBytes = n
	}
	return nil
}
