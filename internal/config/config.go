// Package config loads the process settings from the environment, optional
// .env files and an optional YAML file. Settings are read once at start and
// never change afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	// EnginePostgres selects the PostgreSQL storage engine.
	EnginePostgres = "postgres"
	// EngineSQLite selects the file based SQLite storage engine.
	EngineSQLite = "sqlite"

	// SessionEngineDB keeps sessions in the SQL database.
	SessionEngineDB = "db"
	// SessionEngineCache keeps sessions in Redis.
	SessionEngineCache = "cache"
)

// Config represents the application configuration structure.
type Config struct {
	// Environment selects the logger flavour (development, production).
	Environment string `env:"ENVIRONMENT" env-default:"development" yaml:"environment"`
	// LogLevel overrides the environment's default log level.
	LogLevel string `env:"LOG_LEVEL" yaml:"logLevel"`

	// SecretKey signs session cookies.
	SecretKey string `env:"SECRET_KEY" env-required:"true" yaml:"secretKey"`
	// Debug exposes error details in responses and enables pprof.
	Debug bool `env:"DEBUG" env-default:"false" yaml:"debug"`
	// AllowedHosts lists the Host header values the app answers to, space separated.
	AllowedHosts []string `env:"ALLOWED_HOSTS" env-separator:" " yaml:"allowedHosts"`

	// HTTP contains the application server listener settings.
	HTTP struct {
		// Addr is the address and port the HTTP server will listen on
		Addr string `env:"HTTP_ADDR" env-default:":8000" yaml:"addr"`
		// ReadTimeout is the maximum duration for reading the entire request, including the body
		ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"1m" yaml:"readTimeout"`
		// ReadHeaderTimeout is the amount of time allowed to read request headers
		ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"10s" yaml:"readHeaderTimeout"`
		// WriteTimeout is the maximum duration before timing out writes of the response
		WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"2m" yaml:"writeTimeout"`
		// IdleTimeout is the maximum amount of time to wait for the next request when keep-alives are enabled
		IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"2m" yaml:"idleTimeout"`
		// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header
		MaxHeaderBytes int `env:"HTTP_MAX_HEADER_BYTES" env-default:"0" yaml:"maxHeaderBytes"`
	} `yaml:"http"`

	// Workers sizes the request worker pool.
	Workers struct {
		// Count is the number of requests served concurrently.
		Count int `env:"WEB_CONCURRENCY" env-default:"3" yaml:"count"`
		// Backlog is how many requests may wait for a free worker before 503.
		Backlog int `env:"WEB_BACKLOG" env-default:"64" yaml:"backlog"`
	} `yaml:"workers"`

	// Ops contains the metrics and health listener settings.
	Ops struct {
		// Addr is the ops listener address. Empty disables it.
		Addr string `env:"OPS_ADDR" env-default:":9090" yaml:"addr"`
	} `yaml:"ops"`

	// Database contains all database connection related configurations
	Database struct {
		// Engine is postgres or sqlite.
		Engine string `env:"SQL_ENGINE" env-default:"sqlite" yaml:"engine"`
		// Name is the database name, or the file path for sqlite.
		Name string `env:"SQL_DATABASE" env-default:"db.sqlite3" yaml:"name"`
		// User for database authentication
		User string `env:"SQL_USER" yaml:"user"`
		// Password for database authentication
		Password string `env:"SQL_PASSWORD" yaml:"password"`
		// Host is the database server hostname or IP address
		Host string `env:"SQL_HOST" env-default:"localhost" yaml:"host"`
		// Port is the database server port number
		Port int `env:"SQL_PORT" env-default:"5432" yaml:"port"`
		// SslMode defines the SSL mode for the database connection
		SslMode string `env:"SQL_SSL_MODE" env-default:"disable" yaml:"sslMode"`
		// ConnMaxLifetime is the maximum amount of time a connection may be reused
		ConnMaxLifetime time.Duration `env:"SQL_CONNECTION_MAX_LIFETIME" env-default:"3m" yaml:"connMaxLifetime"`
		// ConnMaxIdleTime is the maximum amount of time a connection may be idle
		ConnMaxIdleTime time.Duration `env:"SQL_CONNECTION_MAX_IDLE_TIME" env-default:"3m" yaml:"connMaxIdleTime"`
	} `yaml:"database"`

	// Session configures admin login sessions.
	Session struct {
		// Engine is db or cache.
		Engine string `env:"SESSION_ENGINE" env-default:"db" yaml:"engine"`
		// CacheURL is the redis URL used by the cache engine.
		CacheURL string `env:"CACHE_URL" yaml:"cacheUrl"`
		// CookieAge is how long a login lasts.
		CookieAge time.Duration `env:"SESSION_COOKIE_AGE" env-default:"336h" yaml:"cookieAge"`
		// CookieSecure marks the session cookie Secure.
		CookieSecure bool `env:"SESSION_COOKIE_SECURE" env-default:"false" yaml:"cookieSecure"`
		// ClearInterval is how often expired sessions are deleted on postgres.
		ClearInterval time.Duration `env:"SESSION_CLEAR_INTERVAL" env-default:"24h" yaml:"clearInterval"`
	} `yaml:"session"`

	// Static configures collected static files.
	Static struct {
		// URL is the path prefix static files are served under.
		URL string `env:"STATIC_URL" env-default:"/static/" yaml:"url"`
		// Root is the directory collectstatic writes to and the proxy serves from.
		Root string `env:"STATIC_ROOT" env-default:"staticfiles" yaml:"root"`
	} `yaml:"static"`

	// Proxy configures the reverse proxy tier.
	Proxy struct {
		// Addr is the plain HTTP listener.
		Addr string `env:"PROXY_ADDR" env-default:":80" yaml:"addr"`
		// TLSAddr is the HTTPS listener, used only when a certificate is set.
		TLSAddr string `env:"PROXY_TLS_ADDR" env-default:":443" yaml:"tlsAddr"`
		// CertFile and KeyFile enable the HTTPS listener.
		CertFile string `env:"PROXY_TLS_CERT" yaml:"certFile"`
		KeyFile  string `env:"PROXY_TLS_KEY" yaml:"keyFile"`
		// Upstream is the application server base URL.
		Upstream string `env:"PROXY_UPSTREAM" env-default:"http://web:8000" yaml:"upstream"`
		// UpstreamTimeout bounds the wait for upstream response headers.
		UpstreamTimeout time.Duration `env:"PROXY_UPSTREAM_TIMEOUT" env-default:"60s" yaml:"upstreamTimeout"`
		// MaxBodyBytes rejects larger request bodies with 413.
		MaxBodyBytes int64 `env:"PROXY_MAX_BODY_BYTES" env-default:"10485760" yaml:"maxBodyBytes"`
	} `yaml:"proxy"`

	// GracefulShutdownTimeout is the maximum duration to wait for ongoing requests to complete during shutdown
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"10s" yaml:"gracefulShutdownTimeout"` //nolint: lll
}

// Load reads envFiles into the process environment (existing variables win),
// then fills a Config from the YAML file at configPath, when it exists, and
// the environment.
func Load(configPath string, envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("could not load env files: %w", err)
		}
	}

	var cfg Config
	if configPath != "" && fileExists(configPath) {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("could not read config from environment: %w", err)
	}

	cfg.Static.URL = normalizePrefix(cfg.Static.URL)

	return &cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}

func normalizePrefix(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}

	return p
}

// Validate checks settings that only make sense together. Every problem is
// reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY must not be empty"))
	}
	if !c.Debug && len(c.AllowedHosts) == 0 {
		errs = append(errs, errors.New("ALLOWED_HOSTS must be set when DEBUG is off"))
	}
	if c.Workers.Count < 1 {
		errs = append(errs, fmt.Errorf("WEB_CONCURRENCY must be at least 1, got %d", c.Workers.Count))
	}
	if c.Workers.Backlog < 0 {
		errs = append(errs, fmt.Errorf("WEB_BACKLOG must not be negative, got %d", c.Workers.Backlog))
	}

	switch c.Database.Engine {
	case EngineSQLite:
		if c.Database.Name == "" {
			errs = append(errs, errors.New("SQL_DATABASE must name the sqlite file"))
		}
	case EnginePostgres:
		if c.Database.Name == "" || c.Database.User == "" || c.Database.Host == "" {
			errs = append(errs, errors.New("postgres needs SQL_DATABASE, SQL_USER and SQL_HOST"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SQL_ENGINE %q, want %s or %s",
			c.Database.Engine, EnginePostgres, EngineSQLite))
	}

	switch c.Session.Engine {
	case SessionEngineDB:
	case SessionEngineCache:
		if c.Session.CacheURL == "" {
			errs = append(errs, errors.New("CACHE_URL must be set when SESSION_ENGINE is cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_ENGINE %q, want %s or %s",
			c.Session.Engine, SessionEngineDB, SessionEngineCache))
	}
	if c.Session.CookieAge <= 0 {
		errs = append(errs, errors.New("SESSION_COOKIE_AGE must be positive"))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.SecretKey != "" {
		c.SecretKey = "********"
	}
	if c.Database.Password != "" {
		c.Database.Password = "********"
	}

	return c
}
