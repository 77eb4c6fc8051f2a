// Package config loads connection settings and conversion mappings.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Driver string

const (
	DriverPostgres  Driver = "postgres"
	DriverSQLServer Driver = "sqlserver"
)

// Config holds all configuration for the application, read from the
// environment (populated from .env in main) and an optional config file.
type Config struct {
	SourceDriver       Driver
	PostgresConnString string
	PostgresSSL        bool
	SQLConnString      string
	MongoConnString    string
	// MongoDatabase falls back to the database named in MongoConnString.
	MongoDatabase string

	BatchSize           int
	CacheDirectory      string
	UseMetadataCache    bool
	CreateMetadataCache bool
	IncludeNulls        bool
	LogLevel            string
}

// NewViper returns a viper instance reading the environment and, when file
// is set, the given .env, .yaml or .json file.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	if file == "" {
		return v, nil
	}
	v.SetConfigFile(file)
	if ext := strings.TrimPrefix(filepath.Ext(file), "."); ext != "" {
		v.SetConfigType(ext)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", file, err)
	}
	return v, nil
}

// LoadConfig reads and validates the configuration held by v.
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		SourceDriver:        Driver(strings.ToLower(v.GetString(KeySourceDriver))),
		PostgresConnString:  v.GetString(KeyPostgresConnString),
		PostgresSSL:         v.GetBool(KeyPostgresSSL),
		SQLConnString:       v.GetString(KeySQLConnString),
		MongoConnString:     v.GetString(KeyMongoConnString),
		MongoDatabase:       v.GetString(KeyMongoDatabase),
		BatchSize:           v.GetInt(KeyBatchSize),
		CacheDirectory:      v.GetString(KeyCacheDirectory),
		UseMetadataCache:    v.GetBool(KeyUseMetadataCache),
		CreateMetadataCache: v.GetBool(KeyCreateMetadataCache),
		IncludeNulls:        v.GetBool(KeyIncludeNulls),
		LogLevel:            v.GetString(KeyLogLevel),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.SourceDriver {
	case DriverPostgres:
		if c.PostgresConnString == "" {
			return errors.New(KeyPostgresConnString + " environment variable not set")
		}
	case DriverSQLServer:
		if c.SQLConnString == "" {
			return errors.New(KeySQLConnString + " environment variable not set")
		}
	default:
		return fmt.Errorf("unsupported %s %q, expected %s or %s", KeySourceDriver, c.SourceDriver, DriverPostgres, DriverSQLServer)
	}
	if c.MongoConnString == "" {
		return errors.New(KeyMongoConnString + " environment variable not set")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%s must be positive, got %d", KeyBatchSize, c.BatchSize)
	}
	return nil
}

// SourceConnString returns the connection string of the configured driver.
func (c *Config) SourceConnString() string {
	if c.SourceDriver == DriverSQLServer {
		return c.SQLConnString
	}
	return c.PostgresConnString
}
