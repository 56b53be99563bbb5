// Package config loads rosterql settings from defaults, an optional .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key without an explicit environment name:
// server.max-body-bytes is read from ROSTERQL_SERVER_MAX_BODY_BYTES.
const EnvPrefix = "ROSTERQL"

// Keys that keep their conventional, unprefixed environment names.
var envOverrides = map[string]string{
	"db.url":     "DATABASE_URL",
	"log.level":  "LOG_LEVEL",
	"log.format": "LOG_FORMAT",
}

type Config struct {
	DB      DB      `mapstructure:"db"`
	Log     Log     `mapstructure:"log"`
	Server  Server  `mapstructure:"server"`
	Pool    Pool    `mapstructure:"pool"`
	GraphQL GraphQL `mapstructure:"graphql"`
	Otel    Otel    `mapstructure:"otel"`
}

type DB struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max-conns"`
	// ConnMaxLifetime recycles connections older than this; zero keeps them.
	ConnMaxLifetime time.Duration `mapstructure:"conn-max-lifetime"`
	// Migrate applies pending migrations when serve starts.
	Migrate bool `mapstructure:"migrate"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Server struct {
	Addr string `mapstructure:"addr"`
	// PublicURL is the externally visible base URL, used for the GraphiQL
	// endpoint. Derived from Addr when empty.
	PublicURL       string        `mapstructure:"public-url"`
	MaxBodyBytes    int64         `mapstructure:"max-body-bytes"`
	ExecTimeout     time.Duration `mapstructure:"exec-timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
	RateLimit       float64       `mapstructure:"rate-limit"`
	RateBurst       int           `mapstructure:"rate-burst"`
	Pretty          bool          `mapstructure:"pretty"`
	CORSOrigins     []string      `mapstructure:"cors-origins"`
}

type Pool struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue-depth"`
}

type GraphQL struct {
	Introspection bool `mapstructure:"introspection"`
}

type Otel struct {
	Endpoint string `mapstructure:"endpoint"`
	Service  string `mapstructure:"service"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.url", "")
	v.SetDefault("db.max-conns", 10)
	v.SetDefault("db.conn-max-lifetime", 30*time.Minute)
	v.SetDefault("db.migrate", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.addr", "localhost:8080")
	v.SetDefault("server.public-url", "")
	v.SetDefault("server.max-body-bytes", 1<<20)
	v.SetDefault("server.exec-timeout", time.Duration(0))
	v.SetDefault("server.shutdown-timeout", 10*time.Second)
	v.SetDefault("server.rate-limit", 0.0)
	v.SetDefault("server.rate-burst", 0)
	v.SetDefault("server.pretty", false)
	v.SetDefault("server.cors-origins", []string{})
	v.SetDefault("pool.workers", 0)
	v.SetDefault("pool.queue-depth", 64)
	v.SetDefault("graphql.introspection", true)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service", "rosterql")
}

// EnvName returns the environment variable a key is read from.
func EnvName(key string) string {
	if name, ok := envOverrides[key]; ok {
		return name
	}
	r := strings.NewReplacer(".", "_", "-", "_")
	return EnvPrefix + "_" + strings.ToUpper(r.Replace(key))
}

// Load reads the configuration. envFile names a dotenv file; when it is
// empty ".env" is tried and silently skipped if absent. A named file that
// does not exist is an error.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	optional := envFile == ""
	if optional {
		envFile = ".env"
	}
	file, err := readEnvFile(envFile, optional)
	if err != nil {
		return nil, err
	}

	for _, key := range v.AllKeys() {
		name := EnvName(key)
		// dotenv keys are lowercased by viper
		if file != nil && file.IsSet(strings.ToLower(name)) {
			v.SetDefault(key, file.Get(strings.ToLower(name)))
		}
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readEnvFile(path string, optional bool) (*viper.Viper, error) {
	if _, err := os.Stat(path); err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	f := viper.New()
	f.SetConfigFile(path)
	f.SetConfigType("env")
	if err := f.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return f, nil
}

// splitList flattens comma separated entries, which is how list values
// arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: %s: unknown level %q", EnvName("log.level"), c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: %s: unknown format %q", EnvName("log.format"), c.Log.Format)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config: %s must not be empty", EnvName("server.addr"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: %s must be positive", EnvName("server.max-body-bytes"))
	}
	if c.Server.ExecTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("config: timeouts must not be negative")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("config: rate limit settings must not be negative")
	}
	if c.Pool.Workers < 0 {
		return fmt.Errorf("config: %s must not be negative", EnvName("pool.workers"))
	}
	if c.Pool.QueueDepth < 0 {
		return fmt.Errorf("config: %s must not be negative", EnvName("pool.queue-depth"))
	}
	if c.DB.MaxConns < 0 {
		return fmt.Errorf("config: %s must not be negative", EnvName("db.max-conns"))
	}
	if c.DB.ConnMaxLifetime < 0 {
		return fmt.Errorf("config: %s must not be negative", EnvName("db.conn-max-lifetime"))
	}
	return nil
}

// EndpointURL is the absolute URL of the GraphQL endpoint.
func (s Server) EndpointURL() string {
	base := strings.TrimSuffix(s.PublicURL, "/")
	if base == "" {
		addr := s.Addr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		base = "http://" + addr
	}
	return base + "/graphql"
}
