package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	Env         string `env:"ENV,default=development"`
	Port        int    `env:"PORT,default=5000"`
	MetricsPort int    `env:"METRICS_PORT,default=9091"`

	DataDir   string `env:"DATA_DIR,default=."`
	AppsFile  string `env:"APPS_FILE,default=apps.json"`
	UsersFile string `env:"USERS_FILE,default=users.json"`

	// DatabaseURL switches collection storage from JSON files to Postgres.
	DatabaseURL      string `env:"DATABASE_CONNECTION_POOL_URL"`
	DatabaseMaxConns int    `env:"DATABASE_MAX_CONNS,default=16"`

	LogFormat string `env:"LOG_FORMAT,default=json"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`

	RecordTimestamps   bool          `env:"RECORD_TIMESTAMPS,default=false"`
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS,default=*"`
	MaxBodyBytes       int64         `env:"MAX_BODY_BYTES,default=1048576"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// LoadConfig reads .env files (if any) into the environment and decodes Config from it.
func LoadConfig(envFiles ...string) (Config, error) {
	// A missing .env is normal in deployments where the platform sets the environment.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid METRICS_PORT %d", c.MetricsPort)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q, want json or text", c.LogFormat)
	}
	return nil
}

// AppsPath and UsersPath resolve the collection files against DataDir.
func (c Config) AppsPath() string  { return c.resolve(c.AppsFile) }
func (c Config) UsersPath() string { return c.resolve(c.UsersFile) }

func (c Config) resolve(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(c.DataDir, file)
}

func (c Config) AllowedOrigins() []string {
	origins := make([]string, 0)
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
