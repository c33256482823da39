// Package config holds the gateway configuration. It is built once at
// startup and passed by value to the components that need it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"hunyuan-gateway/internal/llm"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Models   ModelsConfig   `yaml:"models"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // non-streaming routes only
	VersionID      string        `yaml:"version_id"`
}

type UpstreamConfig struct {
	URL        string        `yaml:"url"`
	Host       string        `yaml:"host"`
	APIKey     string        `yaml:"api_key"`
	APIKeyFile string        `yaml:"api_key_file"`
	StaffName  string        `yaml:"staffname"`
	WSID       string        `yaml:"wsid"`
	Polaris    string        `yaml:"polaris"`
	Origin     string        `yaml:"origin"`
	Referer    string        `yaml:"referer"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
}

type ModelsConfig struct {
	Available []string `yaml:"available"`
	Fallback  string   `yaml:"fallback"`
	OwnedBy   string   `yaml:"owned_by"`
}

type CacheConfig struct {
	Backend   string        `yaml:"backend"` // "none", "memory" or "redis"
	TTL       time.Duration `yaml:"ttl"`
	Prefix    string        `yaml:"prefix"`
	RedisAddr string        `yaml:"redis_addr"`
}

type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8000",
			MaxBodyBytes:   2 * 1024 * 1024,
			RequestTimeout: 15 * time.Second,
			VersionID:      "v1",
		},
		Upstream: UpstreamConfig{
			URL:       "http://llm.hunyuan.tencent.com/aide/api/v2/triton_image/demo_text_chat/",
			Host:      "llm.hunyuan.tencent.com",
			StaffName: "staryxzhang",
			WSID:      "10697",
			Polaris:   "stream-server-online-sbs-10697",
			Origin:    "https://llm.hunyuan.tencent.com",
			Referer:   "https://llm.hunyuan.tencent.com/",
			Timeout:   5 * time.Minute,
		},
		Models: ModelsConfig{
			Available: append([]string(nil), llm.DefaultModels...),
			Fallback:  llm.ModelT1,
			OwnedBy:   "tencent",
		},
		Cache: CacheConfig{
			Backend:   "none",
			TTL:       5 * time.Minute,
			Prefix:    "hunyuan-gateway",
			RedisAddr: "127.0.0.1:6379",
		},
		Log: LogConfig{
			Env:   "production",
			Level: "info",
		},
	}
}

// Validate checks the fields the gateway cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if p, err := strconv.Atoi(c.Server.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %q", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}

	if c.Upstream.URL == "" {
		errs = append(errs, errors.New("upstream.url is required"))
	} else if u, err := url.Parse(c.Upstream.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("upstream.url must be an http(s) URL, got %q", c.Upstream.URL))
	}

	if c.Models.Fallback == "" {
		errs = append(errs, errors.New("models.fallback is required"))
	}

	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be none, memory or redis, got %q", c.Cache.Backend))
	}

	return errors.Join(errs...)
}

// LLM returns the upstream client configuration.
func (c *Config) LLM() llm.Config {
	return llm.Config{
		URL:       c.Upstream.URL,
		Host:      c.Upstream.Host,
		StaffName: c.Upstream.StaffName,
		WSID:      c.Upstream.WSID,
		Polaris:   c.Upstream.Polaris,
		Origin:    c.Upstream.Origin,
		Referer:   c.Upstream.Referer,
		UserAgent: c.Upstream.UserAgent,
		Timeout:   c.Upstream.Timeout,
	}
}
