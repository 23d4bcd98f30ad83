package microfeed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/eringen/microfeed/docstore"
)

// SiteConfig holds all configuration for a microfeed site.
type SiteConfig struct {
	Name        string // Site name (default "microfeed")
	URL         string // Canonical URL (default "http://localhost:3000")
	Description string // Site description for RSS and meta tags

	Addr string // Listen address (default ":3000")

	StoreDriver   string // sqlite, mongo, postgres or memory (default sqlite)
	DatabasePath  string // SQLite path (default "data/feed.db")
	MongoURI      string
	MongoDatabase string // default taken from the URI path, else "microfeed"
	PostgresDSN   string

	JWTSecret     string // Required: HS256 key for identity tokens
	SessionSecret string // Required: cookie session key
	CookieSecure  bool   // Set true for HTTPS

	TimelineLimit    int           // Posts on the home timeline (default 50)
	ProfileLimit     int           // Posts on the profile page (default 25)
	TimelineCacheTTL time.Duration // default 30s
	SessionIdle      time.Duration // Edit sessions idle this long are dropped (default 30m)
	SessionSweep     string        // cron spec for the sweeper (default "@every 5m")
	PostRate         int           // New posts per user per minute (default 10)

	LogLevel string // debug, info, warn, error (default info)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "microfeed"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.StoreDriver == "" {
		c.StoreDriver = docstore.DriverSQLite
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/feed.db"
	}
	if c.TimelineLimit <= 0 {
		c.TimelineLimit = 50
	}
	if c.ProfileLimit <= 0 {
		c.ProfileLimit = 25
	}
	if c.TimelineCacheTTL == 0 {
		c.TimelineCacheTTL = 30 * time.Second
	}
	if c.SessionIdle == 0 {
		c.SessionIdle = 30 * time.Minute
	}
	if c.SessionSweep == "" {
		c.SessionSweep = "@every 5m"
	}
	if c.PostRate <= 0 {
		c.PostRate = 10
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c SiteConfig) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWTSecret is required"))
	}
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SessionSecret is required"))
	}
	return errors.Join(errs...)
}

// dsn returns the connection string for the configured store driver.
func (c SiteConfig) dsn() string {
	switch c.StoreDriver {
	case docstore.DriverMongo:
		return c.MongoURI
	case docstore.DriverPostgres:
		return c.PostgresDSN
	case docstore.DriverMemory:
		return ""
	}
	return c.DatabasePath
}

// LoadConfig reads .env (if present), then config.yaml from dir (if present),
// then the environment. Environment variables win; a key such as
// "site_name" is read from SITE_NAME.
func LoadConfig(dir string) (SiteConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("addr", ":3000")
	v.SetDefault("store_driver", docstore.DriverSQLite)
	v.SetDefault("database_path", "data/feed.db")
	v.SetDefault("timeline_limit", 50)
	v.SetDefault("profile_limit", 25)
	v.SetDefault("timeline_cache_ttl", "30s")
	v.SetDefault("session_idle", "30m")
	v.SetDefault("session_sweep", "@every 5m")
	v.SetDefault("post_rate", 10)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return SiteConfig{}, fmt.Errorf("microfeed: read config: %w", err)
		}
	}

	cfg := SiteConfig{
		Name:             v.GetString("site_name"),
		URL:              v.GetString("site_url"),
		Description:      v.GetString("site_description"),
		Addr:             v.GetString("addr"),
		StoreDriver:      v.GetString("store_driver"),
		DatabasePath:     v.GetString("database_path"),
		MongoURI:         v.GetString("mongo_uri"),
		MongoDatabase:    v.GetString("mongo_database"),
		PostgresDSN:      v.GetString("postgres_dsn"),
		JWTSecret:        v.GetString("jwt_secret"),
		SessionSecret:    v.GetString("session_secret"),
		CookieSecure:     v.GetBool("cookie_secure"),
		TimelineLimit:    v.GetInt("timeline_limit"),
		ProfileLimit:     v.GetInt("profile_limit"),
		TimelineCacheTTL: v.GetDuration("timeline_cache_ttl"),
		SessionIdle:      v.GetDuration("session_idle"),
		SessionSweep:     v.GetString("session_sweep"),
		PostRate:         v.GetInt("post_rate"),
		LogLevel:         v.GetString("log_level"),
	}
	cfg.setDefaults()
	return cfg, nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithStore uses s instead of opening the configured driver. The App takes
// ownership and closes it.
func WithStore(s docstore.Store) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithIdentity replaces the default identity chain.
func WithIdentity(p IdentityProvider) Option {
	return func(a *App) {
		a.Identity = p
	}
}

// WithViews replaces the default views.
func WithViews(v ViewFuncs) Option {
	return func(a *App) {
		a.Views = v
	}
}

// WithClock sets the time source used for post timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}
