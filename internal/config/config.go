package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. COACHD_DB_DSN.
const EnvPrefix = "COACHD"

type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Otel     OtelConfig
	Metrics  MetricsConfig
	Export   ExportConfig
	Members  MembersConfig
	Frontend FrontendConfig
	Build    BuildInfo
}

type ServerConfig struct {
	Addr        string
	Mode        string // dev or prod; picks the log encoder and gin mode
	CORSOrigins []string
}

// DBConfig selects the store. Driver "memory" keeps data in a JSON snapshot file.
type DBConfig struct {
	Driver        string
	DSN           string
	MigrationsDir string
	SnapshotPath  string
}

type CacheConfig struct {
	Kind      string // lru, redis or none
	Size      int
	TTL       time.Duration
	RedisAddr string
	Prefix    string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

type OtelConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
	ServiceName string
	Environment string
}

type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

type ExportConfig struct {
	FontPath string
}

type MembersConfig struct {
	ReminderWindow time.Duration
}

// FrontendConfig serves the admin UI: StaticDir wins over DevURL.
type FrontendConfig struct {
	StaticDir string
	DevURL    string
}

type BuildInfo struct {
	Commit    string
	BuildTime string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "dev")
	v.SetDefault("server.cors_origins", "")

	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.migrations_dir", "")
	v.SetDefault("db.snapshot_path", "./data/coachdesk.json")

	v.SetDefault("cache.kind", "lru")
	v.SetDefault("cache.size", 512)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.prefix", "coachd:")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "coachd")
	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", true)
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.service_name", "coachd")
	v.SetDefault("otel.environment", "dev")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "coachd")

	v.SetDefault("export.font_path", "")
	v.SetDefault("members.reminder_window", "168h")

	v.SetDefault("frontend.static_dir", "")
	v.SetDefault("frontend.dev_url", "")

	v.SetDefault("build.commit", "")
	v.SetDefault("build.time", "")
}

// Load reads defaults, then the optional config file, then COACHD_* environment
// variables. An empty path looks for coachd.{yaml,json,toml} in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("coachd")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:        v.GetString("server.addr"),
			Mode:        strings.ToLower(v.GetString("server.mode")),
			CORSOrigins: splitList(v.GetString("server.cors_origins")),
		},
		DB: DBConfig{
			Driver:        strings.ToLower(v.GetString("db.driver")),
			DSN:           v.GetString("db.dsn"),
			MigrationsDir: v.GetString("db.migrations_dir"),
			SnapshotPath:  v.GetString("db.snapshot_path"),
		},
		Cache: CacheConfig{
			Kind:      strings.ToLower(v.GetString("cache.kind")),
			Size:      v.GetInt("cache.size"),
			TTL:       v.GetDuration("cache.ttl"),
			RedisAddr: v.GetString("cache.redis_addr"),
			Prefix:    v.GetString("cache.prefix"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
			TokenTTL:  v.GetDuration("auth.token_ttl"),
		},
		Otel: OtelConfig{
			Enabled:     v.GetBool("otel.enabled"),
			Endpoint:    v.GetString("otel.endpoint"),
			Insecure:    v.GetBool("otel.insecure"),
			SampleRatio: v.GetFloat64("otel.sample_ratio"),
			ServiceName: v.GetString("otel.service_name"),
			Environment: v.GetString("otel.environment"),
		},
		Metrics: MetricsConfig{
			Enabled:   v.GetBool("metrics.enabled"),
			Namespace: v.GetString("metrics.namespace"),
		},
		Export:  ExportConfig{FontPath: v.GetString("export.font_path")},
		Members: MembersConfig{ReminderWindow: v.GetDuration("members.reminder_window")},
		Frontend: FrontendConfig{
			StaticDir: v.GetString("frontend.static_dir"),
			DevURL:    v.GetString("frontend.dev_url"),
		},
		Build: BuildInfo{
			Commit:    v.GetString("build.commit"),
			BuildTime: v.GetString("build.time"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combinations that would otherwise fail at first request.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "memory":
	case "sqlite3", "postgres":
		if strings.TrimSpace(c.DB.DSN) == "" {
			return fmt.Errorf("db.dsn is required for driver %q", c.DB.Driver)
		}
	default:
		return fmt.Errorf("unknown db.driver %q", c.DB.Driver)
	}
	switch c.Cache.Kind {
	case "lru", "redis", "none":
	default:
		return fmt.Errorf("unknown cache.kind %q", c.Cache.Kind)
	}
	if c.Cache.Kind == "lru" && c.Cache.Size <= 0 {
		return errors.New("cache.size must be positive")
	}
	if c.Members.ReminderWindow <= 0 {
		return errors.New("members.reminder_window must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
