// Package config resolves the gateway's optional tuning knobs.
//
// Adapted from the teacher's internal/v1/config: the same
// accumulate-all-errors-then-join validation style and getEnvOrDefault/
// isValidHostPort helpers, but reshaped around this domain's contract. The
// two positional CLI arguments (irc-bind, backend-host) are load-bearing
// and are parsed in cmd/ircbridge, never here — everything in this package
// is optional, with a built-in default, and may additionally be set from a
// TOML file when IRCBRIDGE_CONFIG points at one.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every optional tuning knob the gateway accepts.
type Config struct {
	// LogLevel holds the log_level / IRCBRIDGE_LOG_LEVEL setting. The
	// logger does not read it: verbosity follows DevelopmentMode only
	// (debug level in development mode, info level otherwise).
	LogLevel string
	// DevelopmentMode switches the zap logger to its human-readable preset.
	DevelopmentMode bool

	// AdminHTTPAddr is where /healthz and /metrics are served. Empty
	// disables the admin server entirely.
	AdminHTTPAddr string

	// FleetRedisAddr, when non-empty, enables the cross-instance heartbeat
	// publisher. Empty means single-instance mode.
	FleetRedisAddr     string
	FleetRedisPassword string

	// Rate limit formats, in github.com/ulule/limiter's "<limit>-<period>"
	// syntax (e.g. "20-M" for 20 per minute), one per guarded command class.
	RateLimitJoin    string
	RateLimitPrivmsg string
	RateLimitNick    string

	// ShutdownGraceSeconds is loaded and checked to be non-negative, but
	// nothing in the gateway reads it: shutdown does not wait for sessions
	// to finish in-flight writes.
	ShutdownGraceSeconds int
}

// tomlConfig mirrors Config's fields for TOML decoding; only the subset a
// deployment wants to override needs to be present in the file.
type tomlConfig struct {
	LogLevel             *string `toml:"log_level"`
	DevelopmentMode      *bool   `toml:"development_mode"`
	AdminHTTPAddr        *string `toml:"admin_http_addr"`
	FleetRedisAddr       *string `toml:"fleet_redis_addr"`
	FleetRedisPassword   *string `toml:"fleet_redis_password"`
	RateLimitJoin        *string `toml:"rate_limit_join"`
	RateLimitPrivmsg     *string `toml:"rate_limit_privmsg"`
	RateLimitNick        *string `toml:"rate_limit_nick"`
	ShutdownGraceSeconds *int    `toml:"shutdown_grace_seconds"`
}

// Load resolves configuration from built-in defaults, then an optional TOML
// file named by IRCBRIDGE_CONFIG, then environment variables, each layer
// overriding the previous. It returns every validation problem joined
// together rather than failing on the first one.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:             "info",
		DevelopmentMode:      false,
		AdminHTTPAddr:        "127.0.0.1:9090",
		RateLimitJoin:        "10-M",
		RateLimitPrivmsg:     "60-M",
		RateLimitNick:        "5-M",
		ShutdownGraceSeconds: 5,
	}

	if path := os.Getenv("IRCBRIDGE_CONFIG"); path != "" {
		if err := applyTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	var errs []string
	if cfg.AdminHTTPAddr != "" && !isValidHostPort(cfg.AdminHTTPAddr) {
		errs = append(errs, fmt.Sprintf("admin http addr must be 'host:port' (got %q)", cfg.AdminHTTPAddr))
	}
	if cfg.FleetRedisAddr != "" && !isValidHostPort(cfg.FleetRedisAddr) {
		errs = append(errs, fmt.Sprintf("fleet redis addr must be 'host:port' (got %q)", cfg.FleetRedisAddr))
	}
	if cfg.ShutdownGraceSeconds < 0 {
		errs = append(errs, "shutdown grace seconds must not be negative")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return cfg, nil
}

func applyTOML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var t tomlConfig
	if err := toml.Unmarshal(data, &t); err != nil {
		return err
	}
	if t.LogLevel != nil {
		cfg.LogLevel = *t.LogLevel
	}
	if t.DevelopmentMode != nil {
		cfg.DevelopmentMode = *t.DevelopmentMode
	}
	if t.AdminHTTPAddr != nil {
		cfg.AdminHTTPAddr = *t.AdminHTTPAddr
	}
	if t.FleetRedisAddr != nil {
		cfg.FleetRedisAddr = *t.FleetRedisAddr
	}
	if t.FleetRedisPassword != nil {
		cfg.FleetRedisPassword = *t.FleetRedisPassword
	}
	if t.RateLimitJoin != nil {
		cfg.RateLimitJoin = *t.RateLimitJoin
	}
	if t.RateLimitPrivmsg != nil {
		cfg.RateLimitPrivmsg = *t.RateLimitPrivmsg
	}
	if t.RateLimitNick != nil {
		cfg.RateLimitNick = *t.RateLimitNick
	}
	if t.ShutdownGraceSeconds != nil {
		cfg.ShutdownGraceSeconds = *t.ShutdownGraceSeconds
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = getEnvOrDefault("IRCBRIDGE_LOG_LEVEL", cfg.LogLevel)
	cfg.DevelopmentMode = getEnvOrDefault("IRCBRIDGE_DEV", boolString(cfg.DevelopmentMode)) == "true"
	cfg.AdminHTTPAddr = getEnvOrDefault("IRCBRIDGE_ADMIN_ADDR", cfg.AdminHTTPAddr)
	cfg.FleetRedisAddr = getEnvOrDefault("IRCBRIDGE_FLEET_REDIS_ADDR", cfg.FleetRedisAddr)
	cfg.FleetRedisPassword = getEnvOrDefault("IRCBRIDGE_FLEET_REDIS_PASSWORD", cfg.FleetRedisPassword)
	cfg.RateLimitJoin = getEnvOrDefault("IRCBRIDGE_RATE_LIMIT_JOIN", cfg.RateLimitJoin)
	cfg.RateLimitPrivmsg = getEnvOrDefault("IRCBRIDGE_RATE_LIMIT_PRIVMSG", cfg.RateLimitPrivmsg)
	cfg.RateLimitNick = getEnvOrDefault("IRCBRIDGE_RATE_LIMIT_NICK", cfg.RateLimitNick)

	if v := os.Getenv("IRCBRIDGE_SHUTDOWN_GRACE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ShutdownGraceSeconds = n
		}
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// isValidHostPort checks if a string is in the format "host:port".
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}
	if parts[0] == "" {
		return false
	}
	return true
}
