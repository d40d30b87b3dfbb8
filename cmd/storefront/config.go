package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/httpx"
)

// Config carries every tunable of the storefront. Values resolve in three
// layers: built-in defaults, then a TOML file named by CONFIG_FILE, then
// environment variables.
type Config struct {
	Addr     string `toml:"addr"`
	BasePath string `toml:"base_path"`

	GatewayURL          string `toml:"gateway_url"`
	GatewayAuthHeader   string `toml:"gateway_auth_header"`
	GatewayAuthToken    string `toml:"gateway_auth_token"`
	GatewayTimeoutMS    int    `toml:"gateway_timeout_ms"`
	GatewayRetries      int    `toml:"gateway_retries"`
	GatewayRetryDelayMS int    `toml:"gateway_retry_delay_ms"`

	RedisAddr       string `toml:"redis_addr"`
	CacheTTLSec     int    `toml:"cache_ttl_sec"`
	CacheMaxEntries int    `toml:"cache_max_entries"`

	CORSAllowedOrigins string `toml:"cors_allowed_origins"`

	RateLimitEnabled   bool   `toml:"rate_limit_enabled"`
	RateLimitPerMinute int    `toml:"rate_limit_per_minute"`
	RateLimitWindowSec int    `toml:"rate_limit_window_sec"`
	TrustedProxyCIDRs  string `toml:"trusted_proxy_cidrs"`

	SessionMode      string `toml:"session_mode"`
	SessionSecret    string `toml:"session_hs256_secret"`
	SessionJWKSURL   string `toml:"session_jwks_url"`
	SessionIssuer    string `toml:"session_issuer"`
	SessionAudience  string `toml:"session_audience"`
	SessionTimeoutMS int    `toml:"session_timeout_ms"`

	ReadHeaderTimeoutSec int `toml:"http_read_header_timeout_sec"`
	ReadTimeoutSec       int `toml:"http_read_timeout_sec"`
	WriteTimeoutSec      int `toml:"http_write_timeout_sec"`
	IdleTimeoutSec       int `toml:"http_idle_timeout_sec"`
}

func defaultConfig() Config {
	return Config{
		Addr:                 ":8090",
		BasePath:             "/api/v1",
		GatewayURL:           "http://localhost:3000",
		GatewayTimeoutMS:     3000,
		GatewayRetries:       2,
		GatewayRetryDelayMS:  50,
		CacheTTLSec:          30,
		CacheMaxEntries:      256,
		RateLimitEnabled:     true,
		RateLimitPerMinute:   120,
		RateLimitWindowSec:   60,
		SessionMode:          "off",
		SessionTimeoutMS:     5000,
		ReadHeaderTimeoutSec: 5,
		ReadTimeoutSec:       15,
		WriteTimeoutSec:      30,
		IdleTimeoutSec:       120,
	}
}

func loadConfig() (Config, error) {
	_ = godotenv.Load()
	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	cfg.BasePath = normalizeBasePath(cfg.BasePath)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envString(&cfg.Addr, "ADDR")
	envString(&cfg.BasePath, "BASE_PATH")
	envString(&cfg.GatewayURL, "GATEWAY_URL")
	envString(&cfg.GatewayAuthHeader, "GATEWAY_AUTH_HEADER")
	envString(&cfg.GatewayAuthToken, "GATEWAY_AUTH_TOKEN")
	envInt(&cfg.GatewayTimeoutMS, "GATEWAY_TIMEOUT_MS")
	envInt(&cfg.GatewayRetries, "GATEWAY_RETRIES")
	envInt(&cfg.GatewayRetryDelayMS, "GATEWAY_RETRY_DELAY_MS")
	envString(&cfg.RedisAddr, "REDIS_ADDR")
	envInt(&cfg.CacheTTLSec, "CACHE_TTL_SEC")
	envInt(&cfg.CacheMaxEntries, "CACHE_MAX_ENTRIES")
	envString(&cfg.CORSAllowedOrigins, "CORS_ALLOWED_ORIGINS")
	envBool(&cfg.RateLimitEnabled, "RATE_LIMIT_ENABLED")
	envInt(&cfg.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE")
	envInt(&cfg.RateLimitWindowSec, "RATE_LIMIT_WINDOW_SEC")
	envString(&cfg.TrustedProxyCIDRs, "TRUSTED_PROXY_CIDRS")
	envString(&cfg.SessionMode, "SESSION_MODE")
	envString(&cfg.SessionSecret, "SESSION_HS256_SECRET")
	envString(&cfg.SessionJWKSURL, "SESSION_JWKS_URL")
	envString(&cfg.SessionIssuer, "SESSION_ISSUER")
	envString(&cfg.SessionAudience, "SESSION_AUDIENCE")
	envInt(&cfg.SessionTimeoutMS, "SESSION_TIMEOUT_MS")
	envInt(&cfg.ReadHeaderTimeoutSec, "HTTP_READ_HEADER_TIMEOUT_SEC")
	envInt(&cfg.ReadTimeoutSec, "HTTP_READ_TIMEOUT_SEC")
	envInt(&cfg.WriteTimeoutSec, "HTTP_WRITE_TIMEOUT_SEC")
	envInt(&cfg.IdleTimeoutSec, "HTTP_IDLE_TIMEOUT_SEC")
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("ADDR must not be empty")
	}
	if !httpx.IsValidURL(c.GatewayURL) {
		return fmt.Errorf("GATEWAY_URL %q must be an absolute URL", c.GatewayURL)
	}
	switch strings.ToLower(strings.TrimSpace(c.SessionMode)) {
	case "", "off":
	case "hs256":
		if strings.TrimSpace(c.SessionSecret) == "" {
			return fmt.Errorf("SESSION_MODE=hs256 requires SESSION_HS256_SECRET")
		}
	case "rs256":
		if !httpx.IsValidURL(c.SessionJWKSURL) {
			return fmt.Errorf("SESSION_MODE=rs256 requires a valid SESSION_JWKS_URL, got %q", c.SessionJWKSURL)
		}
	default:
		return fmt.Errorf("SESSION_MODE %q must be one of off, hs256, rs256", c.SessionMode)
	}
	return nil
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/api/v1"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func envString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = strings.EqualFold(v, "true")
	}
}
