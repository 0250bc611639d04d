// Package config loads service settings from defaults, an optional config
// file, a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TASKNEST"

type Config struct {
	DatabaseURL  string
	Port         string
	LogLevel     slog.Level
	StoreTimeout time.Duration

	JWTSecret string
	JWTIssuer string

	StripeSecretKey string
	SiteDomain      string
	Currency        string
	CoinPackages    map[int64]int64

	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int

	NotificationWorkers int
}

// legacyEnv are the bare variable names accepted alongside the prefixed ones.
var legacyEnv = map[string]string{
	"database_url": "DATABASE_URL",
	"port":         "PORT",
	"jwt_secret":   "JWT_SECRET",
}

// LoadDotenv reads a .env file into the process environment if one exists.
// Variables already set are left alone.
func LoadDotenv(files ...string) {
	_ = godotenv.Load(files...)
}

// New returns a viper instance with defaults and environment bindings applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("store_timeout", "5s")
	v.SetDefault("jwt_issuer", "")
	v.SetDefault("site_domain", "http://localhost:3000")
	v.SetDefault("currency", "usd")
	v.SetDefault("coin_packages", "10:100,150:1000,500:2000,1000:3500")
	v.SetDefault("allowed_origins", "http://localhost:3000")
	v.SetDefault("rate_limit_rps", 10)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("notification_workers", 10)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(key), legacy)
	}
	return v
}

// Load builds a Config from v. A non-empty configFile is read first.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		DatabaseURL:         v.GetString("database_url"),
		Port:                v.GetString("port"),
		StoreTimeout:        v.GetDuration("store_timeout"),
		JWTSecret:           v.GetString("jwt_secret"),
		JWTIssuer:           v.GetString("jwt_issuer"),
		StripeSecretKey:     v.GetString("stripe_secret_key"),
		SiteDomain:          strings.TrimRight(v.GetString("site_domain"), "/"),
		Currency:            strings.ToLower(v.GetString("currency")),
		AllowedOrigins:      stringList(v.Get("allowed_origins")),
		RateLimitRPS:        v.GetFloat64("rate_limit_rps"),
		RateLimitBurst:      v.GetInt("rate_limit_burst"),
		NotificationWorkers: v.GetInt("notification_workers"),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	packages, err := ParseCoinPackages(v.GetString("coin_packages"))
	if err != nil {
		return nil, err
	}
	cfg.CoinPackages = packages
	return cfg, nil
}

// Validate reports the first setting that would stop the service from working.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store_timeout must be positive"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limits cannot be negative"))
	}
	if c.NotificationWorkers < 1 {
		errs = append(errs, errors.New("notification_workers must be at least 1"))
	}
	return errors.Join(errs...)
}

// ParseCoinPackages parses "coins:cents,coins:cents" into a price table.
func ParseCoinPackages(s string) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		coins, cents, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("coin package %q: want coins:cents", part)
		}
		c, err := strconv.ParseInt(strings.TrimSpace(coins), 10, 64)
		if err != nil || c <= 0 {
			return nil, fmt.Errorf("coin package %q: invalid coin count", part)
		}
		p, err := strconv.ParseInt(strings.TrimSpace(cents), 10, 64)
		if err != nil || p < 0 {
			return nil, fmt.Errorf("coin package %q: invalid price", part)
		}
		out[c] = p
	}
	if len(out) == 0 {
		return nil, errors.New("at least one coin package is required")
	}
	return out, nil
}

// PackageList returns the coin counts in ascending order.
func (c *Config) PackageList() []int64 {
	out := make([]int64, 0, len(c.CoinPackages))
	for k := range c.CoinPackages {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func stringList(raw any) []string {
	var parts []string
	switch t := raw.(type) {
	case string:
		parts = strings.Split(t, ",")
	case []string:
		parts = t
	case []any:
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
