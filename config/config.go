package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	Environment     string `mapstructure:"environment"`
	ReadTimeout     string `mapstructure:"read_timeout"`
	WriteTimeout    string `mapstructure:"write_timeout"`
	ShutdownTimeout string `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	AddSource  bool   `mapstructure:"add_source"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// CircuitConfig mirrors circuitbreaker.Settings with durations as strings.
// Zero or empty fields inherit from the layer below.
type CircuitConfig struct {
	FailureThreshold     int     `mapstructure:"failure_threshold"`
	FailureRateThreshold float64 `mapstructure:"failure_rate_threshold"`
	Timeout              string  `mapstructure:"timeout"`
	OpenDuration         string  `mapstructure:"open_duration"`
	HalfOpenRequests     int     `mapstructure:"half_open_requests"`
	WindowSize           int     `mapstructure:"window_size"`
	WindowDuration       string  `mapstructure:"window_duration"`
	BackoffMultiplier    float64 `mapstructure:"backoff_multiplier"`
	MaxBackoff           string  `mapstructure:"max_backoff"`
}

type ServiceConfig struct {
	CircuitConfig  `mapstructure:",squash"`
	HealthURL      string `mapstructure:"health_url"`
	HealthInterval string `mapstructure:"health_interval"`
}

type ResilienceConfig struct {
	Defaults    CircuitConfig            `mapstructure:"defaults"`
	Services    map[string]ServiceConfig `mapstructure:"services"`
	ReviewQueue int                      `mapstructure:"review_queue"`
}

type MetricsConfig struct {
	Interval    string `mapstructure:"interval"`
	Prometheus  bool   `mapstructure:"prometheus"`
	EventBuffer int    `mapstructure:"event_buffer"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      string `mapstructure:"ttl"`
}

type PersistenceConfig struct {
	Backend    string      `mapstructure:"backend"`
	Key        string      `mapstructure:"key"`
	Checkpoint string      `mapstructure:"checkpoint"`
	Redis      RedisConfig `mapstructure:"redis"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Resilience  ResilienceConfig  `mapstructure:"resilience"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := circuitbreaker.DefaultSettings()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("resilience.defaults.failure_threshold", d.FailureThreshold)
	v.SetDefault("resilience.defaults.failure_rate_threshold", d.FailureRateThreshold)
	v.SetDefault("resilience.defaults.timeout", d.Timeout.String())
	v.SetDefault("resilience.defaults.open_duration", d.OpenDuration.String())
	v.SetDefault("resilience.defaults.half_open_requests", d.HalfOpenRequests)
	v.SetDefault("resilience.defaults.window_size", d.WindowSize)
	v.SetDefault("resilience.defaults.window_duration", d.WindowDuration.String())
	v.SetDefault("resilience.defaults.backoff_multiplier", d.BackoffMultiplier)
	v.SetDefault("resilience.defaults.max_backoff", d.MaxBackoff.String())

	v.SetDefault("resilience.review_queue", 100)

	v.SetDefault("metrics.interval", "1m")
	v.SetDefault("metrics.prometheus", true)
	v.SetDefault("metrics.event_buffer", 1000)

	v.SetDefault("persistence.backend", BackendMemory)
	v.SetDefault("persistence.key", "resilience:snapshot")
	v.SetDefault("persistence.checkpoint", "@every 5m")
	v.SetDefault("persistence.redis.address", "localhost:6379")
}

// Settings parses c into circuit settings. Empty durations stay zero so
// they inherit when merged.
func (c CircuitConfig) Settings() (circuitbreaker.Settings, error) {
	s := circuitbreaker.Settings{
		FailureThreshold:     c.FailureThreshold,
		FailureRateThreshold: c.FailureRateThreshold,
		HalfOpenRequests:     c.HalfOpenRequests,
		WindowSize:           c.WindowSize,
		BackoffMultiplier:    c.BackoffMultiplier,
	}

	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"timeout", c.Timeout, &s.Timeout},
		{"open_duration", c.OpenDuration, &s.OpenDuration},
		{"window_duration", c.WindowDuration, &s.WindowDuration},
		{"max_backoff", c.MaxBackoff, &s.MaxBackoff},
	} {
		parsed, err := parseOptionalDuration(d.value)
		if err != nil {
			return circuitbreaker.Settings{}, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return s, nil
}

// DefaultSettings layers resilience.defaults over the built-in defaults.
func (c *Config) DefaultSettings() (circuitbreaker.Settings, error) {
	overrides, err := c.Resilience.Defaults.Settings()
	if err != nil {
		return circuitbreaker.Settings{}, fmt.Errorf("resilience.defaults: %w", err)
	}
	return circuitbreaker.DefaultSettings().Merge(overrides), nil
}

// ServiceSettings returns the per-service overrides keyed by service name.
func (c *Config) ServiceSettings() (map[string]circuitbreaker.Settings, error) {
	settings := make(map[string]circuitbreaker.Settings, len(c.Resilience.Services))
	for name, svc := range c.Resilience.Services {
		s, err := svc.Settings()
		if err != nil {
			return nil, fmt.Errorf("resilience.services.%s: %w", name, err)
		}
		settings[name] = s
	}
	return settings, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
					validation.Field(&sc.ReadTimeout, validation.By(validateOptionalDuration)),
					validation.Field(&sc.WriteTimeout, validation.By(validateOptionalDuration)),
					validation.Field(&sc.ShutdownTimeout, validation.By(validateOptionalDuration)),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
					validation.Field(&lc.MaxSizeMB, validation.Min(0)),
					validation.Field(&lc.MaxBackups, validation.Min(0)),
					validation.Field(&lc.MaxAgeDays, validation.Min(0)),
				)
			}),
		),
		validation.Field(&c.Resilience,
			validation.By(func(value interface{}) error {
				rc, ok := value.(ResilienceConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ResilienceConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.Defaults, validation.By(validateCircuitConfig)),
					validation.Field(&rc.Services, validation.Each(validation.By(validateServiceConfig))),
					validation.Field(&rc.ReviewQueue, validation.Min(0)),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&mc.EventBuffer, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.Persistence,
			validation.By(func(value interface{}) error {
				pc, ok := value.(PersistenceConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a PersistenceConfig")
				}
				enabled := pc.Backend != BackendNone
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.Backend,
						validation.Required,
						validation.In(BackendNone, BackendMemory, BackendRedis),
					),
					validation.Field(&pc.Key, validation.When(enabled, validation.Required)),
					validation.Field(&pc.Checkpoint, validation.By(validateCronSpec)),
					validation.Field(&pc.Redis,
						validation.When(pc.Backend == BackendRedis, validation.By(validateRedisConfig)),
					),
				)
			}),
		),
	)
}

func validateCircuitConfig(value interface{}) error {
	cc, ok := value.(CircuitConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a CircuitConfig")
	}

	return validation.ValidateStruct(&cc,
		validation.Field(&cc.FailureThreshold, validation.Min(0)),
		validation.Field(&cc.FailureRateThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&cc.Timeout, validation.By(validateOptionalDuration)),
		validation.Field(&cc.OpenDuration, validation.By(validateOptionalDuration)),
		validation.Field(&cc.HalfOpenRequests, validation.Min(0)),
		validation.Field(&cc.WindowSize, validation.Min(0)),
		validation.Field(&cc.WindowDuration, validation.By(validateOptionalDuration)),
		validation.Field(&cc.BackoffMultiplier,
			validation.When(cc.BackoffMultiplier != 0, validation.Min(1.0)),
		),
		validation.Field(&cc.MaxBackoff, validation.By(validateOptionalDuration)),
	)
}

func validateServiceConfig(value interface{}) error {
	sc, ok := value.(ServiceConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ServiceConfig")
	}

	if err := validateCircuitConfig(sc.CircuitConfig); err != nil {
		return err
	}

	return validation.ValidateStruct(&sc,
		validation.Field(&sc.HealthURL, validation.When(sc.HealthURL != "", validation.By(validateServerURL))),
		validation.Field(&sc.HealthInterval,
			validation.When(sc.HealthURL != "", validation.Required),
			validation.By(validateOptionalDuration),
		),
	)
}

func validateRedisConfig(value interface{}) error {
	rc, ok := value.(RedisConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a RedisConfig")
	}

	return validation.ValidateStruct(&rc,
		validation.Field(&rc.Address,
			validation.Required,
			validation.By(validateHostPort),
		),
		validation.Field(&rc.DB, validation.Min(0)),
		validation.Field(&rc.TTL, validation.By(validateOptionalDuration)),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateOptionalDuration(value interface{}) error {
	if s, ok := value.(string); ok && s == "" {
		return nil
	}
	return validateDuration(value)
}

func validateCronSpec(value interface{}) error {
	spec, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if spec == "" {
		return nil
	}

	if _, err := cron.ParseStandard(spec); err != nil {
		return validation.NewError("validation_invalid_cron", "must be a valid cron spec (e.g., @every 5m, */10 * * * *)")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "server URL cannot be empty")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

func parseOptionalDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}
