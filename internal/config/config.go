// Package config loads the service configuration from defaults, an optional
// YAML file and ROLLCALL_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"rollcall.app/internal/auth"
)

// EnvPrefix is stripped from environment variables; "__" separates nested keys,
// so ROLLCALL_AUTH__ACCESS_TTL sets auth.access_ttl.
const EnvPrefix = "ROLLCALL_"

type Config struct {
	Env      string         `koanf:"env"`
	Log      LogConfig      `koanf:"log"`
	HTTP     HTTPConfig     `koanf:"http"`
	GRPC     GRPCConfig     `koanf:"grpc"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Auth     AuthConfig     `koanf:"auth"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type HTTPConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	RateLimitRPS      float64       `koanf:"rate_limit_rps"`
	RateLimitBurst    int           `koanf:"rate_limit_burst"`
	AllowedOrigins    []string      `koanf:"allowed_origins"`
	// TrustedProxies are CIDRs whose X-Forwarded-For is believed.
	TrustedProxies    []string      `koanf:"trusted_proxies"`
}

// GRPCConfig leaves the gRPC listener disabled when Addr is empty.
type GRPCConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig falls back to in-memory stores when DSN is empty.
type DatabaseConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// RedisConfig moves the revocation set to Redis when Addr is set.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type AuthConfig struct {
	Issuer             string        `koanf:"issuer"`
	AccessSecret       string        `koanf:"access_secret"`
	RefreshSecret      string        `koanf:"refresh_secret"`
	AccessTTL          time.Duration `koanf:"access_ttl"`
	RefreshTTL         time.Duration `koanf:"refresh_ttl"`
	RefreshInBody      bool          `koanf:"refresh_in_body"`
	PasswordAlgorithm  string        `koanf:"password_algorithm"`
	BcryptCost         int           `koanf:"bcrypt_cost"`
	Argon2             Argon2Config  `koanf:"argon2"`
	HashWorkers        int           `koanf:"hash_workers"`
	NamespacePrefix    string        `koanf:"namespace_prefix"`
	NamespaceMaxLen    int           `koanf:"namespace_max_len"`
	NamespaceCacheSize int64         `koanf:"namespace_cache_size"`
	OperationTimeout   time.Duration `koanf:"operation_timeout"`
	RetryAttempts      int           `koanf:"retry_attempts"`
	RetryInterval      time.Duration `koanf:"retry_interval"`
}

type Argon2Config struct {
	Memory      uint32 `koanf:"memory"`
	Iterations  uint32 `koanf:"iterations"`
	Parallelism uint8  `koanf:"parallelism"`
	KeyLength   uint32 `koanf:"key_length"`
	SaltLength  uint32 `koanf:"salt_length"`
}

func defaults() map[string]any {
	a := auth.DefaultConfig()
	return map[string]any{
		"env":                        "development",
		"log.level":                  "info",
		"http.addr":                  ":8080",
		"http.read_header_timeout":   "5s",
		"http.shutdown_timeout":      "10s",
		"http.rate_limit_rps":        5.0,
		"http.rate_limit_burst":      10,
		"grpc.addr":                  "",
		"database.max_open_conns":    20,
		"database.max_idle_conns":    10,
		"database.conn_max_lifetime": "30m",
		"redis.db":                   0,
		"auth.issuer":                a.Issuer,
		"auth.access_ttl":            a.AccessTTL.String(),
		"auth.refresh_ttl":           a.RefreshTTL.String(),
		"auth.refresh_in_body":       false,
		"auth.password_algorithm":    a.PasswordAlgorithm,
		"auth.bcrypt_cost":           a.BcryptCost,
		"auth.argon2.memory":         a.Argon2.Memory,
		"auth.argon2.iterations":     a.Argon2.Iterations,
		"auth.argon2.parallelism":    a.Argon2.Parallelism,
		"auth.argon2.key_length":     a.Argon2.KeyLength,
		"auth.argon2.salt_length":    a.Argon2.SaltLength,
		"auth.hash_workers":          a.HashWorkers,
		"auth.namespace_prefix":      a.NamespacePrefix,
		"auth.namespace_max_len":     a.NamespaceMaxLen,
		"auth.namespace_cache_size":  10000,
		"auth.operation_timeout":     a.OperationTimeout.String(),
		"auth.retry_attempts":        a.RetryAttempts,
		"auth.retry_interval":        a.RetryInterval.String(),
	}
}

// Load reads configuration. path may be empty to skip the YAML file.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config defaults: %w", err)
	}
	if path = strings.TrimSpace(path); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("config env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Production reports whether the service runs in production mode, which
// forces Secure cookies.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// Validate checks transport settings and the derived auth configuration.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.RateLimitRPS <= 0 || c.HTTP.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("http rate limit must be positive"))
	}
	if _, err := c.HTTP.Proxies(); err != nil {
		errs = append(errs, err)
	}
	if err := c.AuthCore().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Proxies parses TrustedProxies. A bare address is taken as a single host.
func (h HTTPConfig) Proxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(h.TrustedProxies))
	for _, raw := range h.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("http.trusted_proxies: %w", err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("http.trusted_proxies: %w", err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// AuthCore converts the auth section into the core configuration.
func (c Config) AuthCore() auth.Config {
	a := c.Auth
	return auth.Config{
		Issuer:            a.Issuer,
		AccessSecret:      []byte(a.AccessSecret),
		RefreshSecret:     []byte(a.RefreshSecret),
		AccessTTL:         a.AccessTTL,
		RefreshTTL:        a.RefreshTTL,
		PasswordAlgorithm: strings.ToLower(a.PasswordAlgorithm),
		BcryptCost:        a.BcryptCost,
		Argon2: auth.Argon2Params{
			Memory:      a.Argon2.Memory,
			Iterations:  a.Argon2.Iterations,
			Parallelism: a.Argon2.Parallelism,
			KeyLength:   a.Argon2.KeyLength,
			SaltLength:  a.Argon2.SaltLength,
		},
		HashWorkers:      a.HashWorkers,
		NamespacePrefix:  a.NamespacePrefix,
		NamespaceMaxLen:  a.NamespaceMaxLen,
		OperationTimeout: a.OperationTimeout,
		RetryAttempts:    a.RetryAttempts,
		RetryInterval:    a.RetryInterval,
	}
}
