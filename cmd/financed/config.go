package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xraph/finance"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/store/storeconfig"
	"github.com/xraph/finance/usage/remote"
)

// envPrefix namespaces environment overrides, e.g. FINANCE_STORE_URL.
const envPrefix = "FINANCE"

// Config is the daemon configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Store storeconfig.Config `mapstructure:"store"`

	WorkerInterval time.Duration `mapstructure:"worker_interval"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
	HookTimeout    time.Duration `mapstructure:"hook_timeout"`

	Usage    UsageConfig    `mapstructure:"usage"`
	Actuator ActuatorConfig `mapstructure:"actuator"`
	Events   EventsConfig   `mapstructure:"events"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`

	Audit bool `mapstructure:"audit"`

	Plans []PlanConfig `mapstructure:"plans"`
}

// UsageConfig selects the usage-record service. An empty base URL means no
// usage is ever billed.
type UsageConfig struct {
	remote.Config `mapstructure:",squash"`

	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
}

// ActuatorConfig selects the resource backend: "none" or "docker".
type ActuatorConfig struct {
	Driver           string        `mapstructure:"driver"`
	StopGrace        int           `mapstructure:"stop_grace"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
}

// EventsConfig enables publishing lifecycle events to RabbitMQ.
type EventsConfig struct {
	RabbitMQURL string `mapstructure:"rabbitmq_url"`
	Exchange    string `mapstructure:"exchange"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// PlanConfig declares a plan applied on start.
type PlanConfig struct {
	Name    string            `mapstructure:"name"`
	Kind    string            `mapstructure:"kind"`
	Options map[string]string `mapstructure:"options"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("store.driver", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.path", "")
	v.SetDefault("store.database", "finance")
	v.SetDefault("store.prefix", "finance")
	v.SetDefault("store.max_conns", 0)

	v.SetDefault("worker_interval", finance.DefaultWorkerInterval)
	v.SetDefault("stop_timeout", finance.DefaultStopTimeout)
	v.SetDefault("hook_timeout", plugin.DefaultHookTimeout)

	v.SetDefault("usage.base_url", "")
	v.SetDefault("usage.token", "")
	v.SetDefault("usage.timeout", 10*time.Second)
	v.SetDefault("usage.retry_count", 2)
	v.SetDefault("usage.breaker_threshold", 5)
	v.SetDefault("usage.breaker_timeout", 30*time.Second)

	v.SetDefault("actuator.driver", "none")
	v.SetDefault("actuator.stop_grace", 30)
	v.SetDefault("actuator.breaker_threshold", 5)
	v.SetDefault("actuator.breaker_timeout", 30*time.Second)

	v.SetDefault("events.rabbitmq_url", "")
	v.SetDefault("events.exchange", "finance.events")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("audit", false)
}

// loadConfig reads .env (if present), then the config file (explicit path
// or financed.{yaml,toml,json} in the working directory or /etc/finance),
// then FINANCE_* environment variables.
func loadConfig(v *viper.Viper, path string) (Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("financed")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/finance")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the configured level and format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("%w: log level %q", finance.ErrConfiguration, level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("%w: log format %q", finance.ErrConfiguration, format)
}
