// Package config loads the connection, mapping and logging settings of a
// datastore.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Config holds every setting used by [github.com/vinicius-lino-figueiredo/gedm.Connect].
type Config struct {
	URI              string        `mapstructure:"uri"`
	Database         string        `mapstructure:"database"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// WriteConcern is "majority", "unacknowledged" or a number of nodes.
	WriteConcern string `mapstructure:"write_concern"`
	Journal      bool   `mapstructure:"journal"`
	// ReadPreference is a read preference mode name, like "primary" or
	// "secondaryPreferred".
	ReadPreference string       `mapstructure:"read_preference"`
	Mapper         MapperConfig `mapstructure:"mapper"`
	Log            LogConfig    `mapstructure:"log"`
}

// MapperConfig holds the mapper settings.
type MapperConfig struct {
	DiscriminatorKey string `mapstructure:"discriminator_key"`
	StoreNulls       bool   `mapstructure:"store_nulls"`
	StoreEmpties     bool   `mapstructure:"store_empties"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		URI:              "mongodb://localhost:27017",
		Database:         "gedm",
		ConnectTimeout:   10 * time.Second,
		OperationTimeout: 30 * time.Second,
		WriteConcern:     "1",
		ReadPreference:   "primary",
		Mapper: MapperConfig{
			DiscriminatorKey: "className",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration, returning every problem found.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.URI) == "" {
		errs = append(errs, errors.New("uri is required"))
	}
	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if c.ConnectTimeout < 0 {
		errs = append(errs, errors.New("connect_timeout must not be negative"))
	}
	if c.OperationTimeout < 0 {
		errs = append(errs, errors.New("operation_timeout must not be negative"))
	}
	if _, err := c.WriteConcernValue(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ReadPref(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Mapper.DiscriminatorKey) == "" {
		errs = append(errs, errors.New("mapper.discriminator_key is required"))
	}
	return errors.Join(errs...)
}

// WriteConcernValue converts WriteConcern and Journal into a driver write
// concern.
func (c *Config) WriteConcernValue() (*writeconcern.WriteConcern, error) {
	var wc *writeconcern.WriteConcern
	switch w := strings.ToLower(strings.TrimSpace(c.WriteConcern)); w {
	case "", "1":
		wc = writeconcern.W1()
	case "majority":
		wc = writeconcern.Majority()
	case "unacknowledged", "0":
		if c.Journal {
			return nil, errors.New("write_concern: journal requires an acknowledged write concern")
		}
		return writeconcern.Unacknowledged(), nil
	default:
		n, err := strconv.Atoi(w)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("write_concern: invalid value %q", c.WriteConcern)
		}
		wc = &writeconcern.WriteConcern{W: n}
	}
	if c.Journal {
		j := true
		wc.Journal = &j
	}
	return wc, nil
}

// ReadPref converts ReadPreference into a driver read preference.
func (c *Config) ReadPref() (*readpref.ReadPref, error) {
	name := strings.TrimSpace(c.ReadPreference)
	if name == "" {
		return readpref.Primary(), nil
	}
	mode, err := readpref.ModeFromString(name)
	if err != nil {
		return nil, fmt.Errorf("read_preference: %w", err)
	}
	rp, err := readpref.New(mode)
	if err != nil {
		return nil, fmt.Errorf("read_preference: %w", err)
	}
	return rp, nil
}
