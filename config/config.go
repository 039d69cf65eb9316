package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"apibase/database"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FailurePolicy decides what a failed database connect does to a running server.
type FailurePolicy string

const (
	// PolicyDegraded logs the failure and keeps serving without persistence.
	PolicyDegraded FailurePolicy = "degraded"
	// PolicyFatal stops the server with the connect error.
	PolicyFatal FailurePolicy = "fatal"
)

type Config struct {
	Port int `mapstructure:"port"`

	MongoUser           string        `mapstructure:"mongo_user"`
	MongoPassword       string        `mapstructure:"mongo_password"`
	MongoPath           string        `mapstructure:"mongo_path"`
	MongoURIOverride    string        `mapstructure:"mongo_uri"`
	MongoDB             string        `mapstructure:"mongo_db"`
	MongoConnectTimeout time.Duration `mapstructure:"mongo_connect_timeout"`
	DBFailurePolicy     FailurePolicy `mapstructure:"db_failure_policy"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`

	CORSOrigins []string `mapstructure:"cors_origins"`
	BodyLimit   int64    `mapstructure:"body_limit"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SetDefaults registers every key so AutomaticEnv can resolve it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("mongo_user", "")
	v.SetDefault("mongo_password", "")
	v.SetDefault("mongo_path", "")
	v.SetDefault("mongo_uri", "")
	v.SetDefault("mongo_db", "apibase")
	v.SetDefault("mongo_connect_timeout", 30*time.Second)
	v.SetDefault("db_failure_policy", string(PolicyDegraded))
	v.SetDefault("jwt_secret", "change_me")
	v.SetDefault("jwt_ttl", 24*time.Hour)
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("body_limit", 100<<10)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "dev")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("env_file", ".env")
	v.SetDefault("config_file", "")
}

// Load reads .env, the environment and an optional config file into a Config.
// The viper instance may carry bound CLI flags.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	if envFile := v.GetString("env_file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.CORSOrigins = splitOrigins(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the server cannot start without.
// MONGO_USER, MONGO_PASSWORD and MONGO_PATH are left alone: a bad URI is a
// connect failure, not a startup failure.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.DBFailurePolicy {
	case PolicyDegraded, PolicyFatal:
	default:
		return fmt.Errorf("db_failure_policy must be %q or %q, got %q", PolicyDegraded, PolicyFatal, c.DBFailurePolicy)
	}
	if c.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive, got %d", c.BodyLimit)
	}
	if c.MongoConnectTimeout <= 0 {
		return errors.New("mongo_connect_timeout must be positive")
	}
	if c.JWTTTL <= 0 {
		return errors.New("jwt_ttl must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	return nil
}

// MongoURI returns MONGO_URI when set, otherwise the URI assembled from
// MONGO_USER, MONGO_PASSWORD and MONGO_PATH.
func (c *Config) MongoURI() string {
	if c.MongoURIOverride != "" {
		return c.MongoURIOverride
	}
	return database.BuildURI(c.MongoUser, c.MongoPassword, c.MongoPath)
}

func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}
