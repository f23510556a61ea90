package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultEnvPrefix is the environment variable prefix used when none is
// given.
const DefaultEnvPrefix = "GEDM"

// Loader loads a [Config].
type Loader interface {
	Load() (*Config, error)
}

// ViperLoader loads configuration with precedence env > file > defaults.
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a new ViperLoader. configFile may be empty.
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	if strings.TrimSpace(envPrefix) == "" {
		envPrefix = DefaultEnvPrefix
	}
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load implements [Loader].
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("uri", cfg.URI)
	v.SetDefault("database", cfg.Database)
	v.SetDefault("connect_timeout", cfg.ConnectTimeout)
	v.SetDefault("operation_timeout", cfg.OperationTimeout)
	v.SetDefault("write_concern", cfg.WriteConcern)
	v.SetDefault("journal", cfg.Journal)
	v.SetDefault("read_preference", cfg.ReadPreference)

	v.SetDefault("mapper.discriminator_key", cfg.Mapper.DiscriminatorKey)
	v.SetDefault("mapper.store_nulls", cfg.Mapper.StoreNulls)
	v.SetDefault("mapper.store_empties", cfg.Mapper.StoreEmpties)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("uri", l.prefixedEnv("URI"))
	_ = v.BindEnv("database", l.prefixedEnv("DATABASE"))
	_ = v.BindEnv("connect_timeout", l.prefixedEnv("CONNECT_TIMEOUT"))
	_ = v.BindEnv("operation_timeout", l.prefixedEnv("OPERATION_TIMEOUT"))
	_ = v.BindEnv("write_concern", l.prefixedEnv("WRITE_CONCERN"))
	_ = v.BindEnv("journal", l.prefixedEnv("JOURNAL"))
	_ = v.BindEnv("read_preference", l.prefixedEnv("READ_PREFERENCE"))

	_ = v.BindEnv("mapper.discriminator_key", l.prefixedEnv("MAPPER_DISCRIMINATOR_KEY"))
	_ = v.BindEnv("mapper.store_nulls", l.prefixedEnv("MAPPER_STORE_NULLS"))
	_ = v.BindEnv("mapper.store_empties", l.prefixedEnv("MAPPER_STORE_EMPTIES"))

	_ = v.BindEnv("log.level", l.prefixedEnv("LOG_LEVEL"))
	_ = v.BindEnv("log.format", l.prefixedEnv("LOG_FORMAT"))
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	return strings.ToUpper(strings.TrimSpace(l.envPrefix)) + "_" + suffix
}
