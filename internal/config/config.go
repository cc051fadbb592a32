// Package config loads the process configuration from defaults, an optional
// flowcore.yaml and FLOWCORE_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type StoreDriver string

const (
	StoreDriverMemory   StoreDriver = "memory"
	StoreDriverPostgres StoreDriver = "postgres"
	StoreDriverMongo    StoreDriver = "mongo"

	EnvPrefix      = "FLOWCORE"
	ConfigFileName = "flowcore"
)

type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	Dispatcher  DispatcherConfig  `mapstructure:"dispatcher"`
	Executor    ExecutorConfig    `mapstructure:"executor"`
	Store       StoreConfig       `mapstructure:"store"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Log         LogConfig         `mapstructure:"log"`
}

type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

type DispatcherConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	Concurrency       int           `mapstructure:"concurrency"`
	EvaluationTimeout time.Duration `mapstructure:"evaluation_timeout"`
	MaxEventsPerTick  int           `mapstructure:"max_events_per_tick"`
}

type ExecutorConfig struct {
	AdapterTimeout    time.Duration `mapstructure:"adapter_timeout"`
	CodeTimeout       time.Duration `mapstructure:"code_timeout"`
	MaxLoopIterations int           `mapstructure:"max_loop_iterations"`
}

type StoreConfig struct {
	Driver        StoreDriver `mapstructure:"driver"`
	PostgresDSN   string      `mapstructure:"postgres_dsn"`
	MongoURI      string      `mapstructure:"mongo_uri"`
	MongoDatabase string      `mapstructure:"mongo_database"`
	SeedFile      string      `mapstructure:"seed_file"`
}

type RedisConfig struct {
	// URL enables the execution event stream when set.
	URL string `mapstructure:"url"`
}

type CredentialsConfig struct {
	X25519PrivateKey string `mapstructure:"x25519_private_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.address", ":8081")

	v.SetDefault("dispatcher.tick_interval", 30*time.Second)
	v.SetDefault("dispatcher.concurrency", 8)
	v.SetDefault("dispatcher.evaluation_timeout", 2*time.Minute)
	v.SetDefault("dispatcher.max_events_per_tick", 5)

	v.SetDefault("executor.adapter_timeout", 30*time.Second)
	v.SetDefault("executor.code_timeout", 5*time.Second)
	v.SetDefault("executor.max_loop_iterations", 1000)

	v.SetDefault("store.driver", string(StoreDriverMemory))
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.mongo_uri", "")
	v.SetDefault("store.mongo_database", "flowcore")
	v.SetDefault("store.seed_file", "")

	v.SetDefault("redis.url", "")
	v.SetDefault("credentials.x25519_private_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// New returns a viper instance with defaults, env binding and the config file
// search paths set up. configFile, when not empty, replaces the search.
func New(configFile string) *viper.Viper {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		return v
	}

	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.flowcore")

	return v
}

// Load reads the config file if there is one, then unmarshals and validates.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}

		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) Validate() error {
	var problems []string

	if c.HTTP.Address == "" {
		problems = append(problems, "http.address must be set")
	}

	if c.Dispatcher.TickInterval <= 0 {
		problems = append(problems, "dispatcher.tick_interval must be positive")
	}

	if c.Dispatcher.Concurrency <= 0 {
		problems = append(problems, "dispatcher.concurrency must be positive")
	}

	if c.Dispatcher.EvaluationTimeout <= 0 {
		problems = append(problems, "dispatcher.evaluation_timeout must be positive")
	}

	if c.Dispatcher.MaxEventsPerTick <= 0 {
		problems = append(problems, "dispatcher.max_events_per_tick must be positive")
	}

	if c.Executor.AdapterTimeout <= 0 || c.Executor.CodeTimeout <= 0 {
		problems = append(problems, "executor timeouts must be positive")
	}

	if c.Executor.MaxLoopIterations <= 0 {
		problems = append(problems, "executor.max_loop_iterations must be positive")
	}

	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.Store.PostgresDSN == "" {
			problems = append(problems, "store.postgres_dsn is required for the postgres driver")
		}
	case StoreDriverMongo:
		if c.Store.MongoURI == "" {
			problems = append(problems, "store.mongo_uri is required for the mongo driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}
