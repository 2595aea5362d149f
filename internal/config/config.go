package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/adapters/cache"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/logger"
)

// Config is filled by kong from flags, then environment, then defaults.
type Config struct {
	DB struct {
		Host     string `help:"Postgres host." env:"DB_HOST" default:"localhost"`
		Port     string `help:"Postgres port." env:"DB_PORT" default:"5432"`
		User     string `help:"Postgres user." env:"DB_USER" default:"kanso_user"`
		Password string `help:"Postgres password." env:"DB_PASSWORD"`
		Name     string `help:"Postgres database." env:"DB_NAME" default:"kanso_db"`
		SSLMode  string `help:"Postgres sslmode." name:"sslmode" env:"DB_SSLMODE" default:"disable" enum:"disable,allow,prefer,require,verify-ca,verify-full"`
	} `embed:"" prefix:"db-"`

	Redis struct {
		Host     string `help:"Redis host." env:"REDIS_HOST" default:"localhost"`
		Port     string `help:"Redis port." env:"REDIS_PORT" default:"6379"`
		Password string `help:"Redis password." env:"REDIS_PASSWORD"`
		DB       int    `help:"Redis logical database." env:"REDIS_DB" default:"0"`
	} `embed:"" prefix:"redis-"`

	Log struct {
		Level  string `help:"Log level." env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error"`
		Format string `help:"Log format." env:"LOG_FORMAT" default:"text" enum:"text,json,logfmt"`
		File   string `help:"Also write logs to this file, rotated." env:"LOG_FILE"`
	} `embed:"" prefix:"log-"`

	DefaultTimezone  string        `help:"IANA zone for users without a valid one." env:"DEFAULT_TIMEZONE" default:"UTC"`
	StatementTimeout time.Duration `help:"Upper bound for one write transaction." env:"STATEMENT_TIMEOUT" default:"5s"`
	ProgressCacheTTL time.Duration `help:"Lifetime of cached goal progress." env:"PROGRESS_CACHE_TTL" default:"5m"`
	MigrationsDir    string        `help:"Directory holding goose migrations." env:"MIGRATIONS_DIR" default:"migrations" type:"path"`
}

// LoadDotEnv reads an optional .env so kong can see its values. Variables
// already set in the environment win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			logger.Debug("loaded env file", "path", p)
		}
	}
}

// DSN builds a postgres:// URL usable by pgx, the pgx stdlib driver and lib/pq.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     fmt.Sprintf("%s:%s", c.DB.Host, c.DB.Port),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": []string{c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c *Config) RedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Host:     c.Redis.Host,
		Port:     c.Redis.Port,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		File:   c.Log.File,
	}
}
