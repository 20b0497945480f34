package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/receiptctl/internal/capture"
	"github.com/danmuck/receiptctl/internal/logging"
	"github.com/danmuck/receiptctl/internal/relay"
	"github.com/danmuck/receiptctl/internal/report"
	"github.com/rs/zerolog"
)

var (
	ErrPrinterAddrRequired = errors.New("config: printer addr required when printer is enabled")
	ErrInvalidAttempts     = errors.New("config: printer max_attempts must be at least 1")
	ErrInvalidRedisEntries = errors.New("config: redis max_entries must not be negative")
	ErrInvalidCorsOrigin   = errors.New("config: http cors_origins entries must be \"*\" or start with http:// or https://")
)

// HTTPConfig controls the read-only report API. An empty Addr disables it.
type HTTPConfig struct {
	Addr        string
	CorsOrigins []string
}

// RedisConfig controls the optional redis report sink. An empty Addr
// disables it.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	Key        string
	Channel    string
	MaxEntries int64
}

type LogConfig struct {
	Level zerolog.Level
	JSON  bool
}

// Config is the full receiptctl runtime configuration.
type Config struct {
	Listener capture.Config
	Printer  relay.Config
	HTTP     HTTPConfig
	Redis    RedisConfig
	Log      LogConfig
}

func Default() Config {
	return Config{
		Listener: capture.DefaultConfig(),
		Printer:  relay.DefaultConfig(),
		HTTP: HTTPConfig{
			Addr:        "127.0.0.1:8080",
			CorsOrigins: []string{"http://localhost:3000"},
		},
		Redis: RedisConfig{
			Key:        report.DefaultRedisKey,
			Channel:    report.DefaultRedisChannel,
			MaxEntries: 1000,
		},
		Log: LogConfig{Level: zerolog.InfoLevel},
	}
}

func (c Config) Validate() error {
	if err := c.Listener.Validate(); err != nil {
		return err
	}
	if c.Printer.Enabled && strings.TrimSpace(c.Printer.Addr) == "" {
		return ErrPrinterAddrRequired
	}
	if c.Printer.MaxAttempts < 1 {
		return ErrInvalidAttempts
	}
	if c.Redis.MaxEntries < 0 {
		return ErrInvalidRedisEntries
	}
	for _, origin := range c.HTTP.CorsOrigins {
		if !validOrigin(origin) {
			return fmt.Errorf("%w: %q", ErrInvalidCorsOrigin, origin)
		}
	}
	return nil
}

// validOrigin mirrors the origin rules gin-contrib/cors enforces at router
// construction.
func validOrigin(origin string) bool {
	return origin == "*" ||
		strings.HasPrefix(origin, "http://") ||
		strings.HasPrefix(origin, "https://")
}

// receiptctl config.toml key mapping to runtime settings.
type fileConfig struct {
	Listener struct {
		Addr        string `toml:"addr"`
		ChunkSize   int    `toml:"chunk_size"`
		IdleTimeout string `toml:"idle_timeout"`
		MaxJobBytes int    `toml:"max_job_bytes"`
	} `toml:"listener"`
	Printer struct {
		Enabled        bool   `toml:"enabled"`
		Addr           string `toml:"addr"`
		ConnectTimeout string `toml:"connect_timeout"`
		WriteTimeout   string `toml:"write_timeout"`
		MaxAttempts    int    `toml:"max_attempts"`
		BackoffInitial string `toml:"backoff_initial"`
		BackoffMax     string `toml:"backoff_max"`
	} `toml:"printer"`
	HTTP struct {
		Addr        string   `toml:"addr"`
		CorsOrigins []string `toml:"cors_origins"`
	} `toml:"http"`
	Redis struct {
		Addr       string `toml:"addr"`
		Password   string `toml:"password"`
		DB         int    `toml:"db"`
		Key        string `toml:"key"`
		Channel    string `toml:"channel"`
		MaxEntries int64  `toml:"max_entries"`
	} `toml:"redis"`
	Log struct {
		Level string `toml:"level"`
		JSON  bool   `toml:"json"`
	} `toml:"log"`
}

// Load decodes path and overlays the keys it defines onto Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load receiptctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load receiptctl config: unknown key %q", undecoded[0].String())
	}

	d := durations{meta: meta}

	if meta.IsDefined("listener", "addr") {
		cfg.Listener.Addr = strings.TrimSpace(raw.Listener.Addr)
	}
	if meta.IsDefined("listener", "chunk_size") {
		cfg.Listener.ChunkSize = raw.Listener.ChunkSize
	}
	d.parse(&cfg.Listener.IdleTimeout, raw.Listener.IdleTimeout, "listener", "idle_timeout")
	if meta.IsDefined("listener", "max_job_bytes") {
		cfg.Listener.MaxJobBytes = raw.Listener.MaxJobBytes
	}

	if meta.IsDefined("printer", "enabled") {
		cfg.Printer.Enabled = raw.Printer.Enabled
	}
	if meta.IsDefined("printer", "addr") {
		cfg.Printer.Addr = strings.TrimSpace(raw.Printer.Addr)
	}
	d.parse(&cfg.Printer.ConnectTimeout, raw.Printer.ConnectTimeout, "printer", "connect_timeout")
	d.parse(&cfg.Printer.WriteTimeout, raw.Printer.WriteTimeout, "printer", "write_timeout")
	if meta.IsDefined("printer", "max_attempts") {
		cfg.Printer.MaxAttempts = raw.Printer.MaxAttempts
	}
	d.parse(&cfg.Printer.Backoff.InitialDelay, raw.Printer.BackoffInitial, "printer", "backoff_initial")
	d.parse(&cfg.Printer.Backoff.MaxDelay, raw.Printer.BackoffMax, "printer", "backoff_max")

	if meta.IsDefined("http", "addr") {
		cfg.HTTP.Addr = strings.TrimSpace(raw.HTTP.Addr)
	}
	if meta.IsDefined("http", "cors_origins") {
		cfg.HTTP.CorsOrigins = raw.HTTP.CorsOrigins
	}

	if meta.IsDefined("redis", "addr") {
		cfg.Redis.Addr = strings.TrimSpace(raw.Redis.Addr)
	}
	if meta.IsDefined("redis", "password") {
		cfg.Redis.Password = raw.Redis.Password
	}
	if meta.IsDefined("redis", "db") {
		cfg.Redis.DB = raw.Redis.DB
	}
	if meta.IsDefined("redis", "key") {
		cfg.Redis.Key = strings.TrimSpace(raw.Redis.Key)
	}
	if meta.IsDefined("redis", "channel") {
		cfg.Redis.Channel = strings.TrimSpace(raw.Redis.Channel)
	}
	if meta.IsDefined("redis", "max_entries") {
		cfg.Redis.MaxEntries = raw.Redis.MaxEntries
	}

	if meta.IsDefined("log", "level") {
		level, ok := logging.ParseLevel(raw.Log.Level)
		if !ok {
			d.err = errors.Join(d.err, fmt.Errorf("log.level: unknown level %q", raw.Log.Level))
		}
		cfg.Log.Level = level
	}
	if meta.IsDefined("log", "json") {
		cfg.Log.JSON = raw.Log.JSON
	}

	if d.err != nil {
		return Config{}, fmt.Errorf("load receiptctl config: %w", d.err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load receiptctl config: %w", err)
	}
	return cfg, nil
}

// durations collects parse failures so one bad key reports alongside others.
type durations struct {
	meta toml.MetaData
	err  error
}

func (d *durations) parse(dst *time.Duration, raw string, key ...string) {
	if !d.meta.IsDefined(key...) {
		return
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		d.err = errors.Join(d.err, fmt.Errorf("%s: %w", strings.Join(key, "."), err))
		return
	}
	*dst = v
}
