package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "AUTHUSER"

// Session store backends accepted by session.store.
const (
	SessionStoreBun   = "bun"
	SessionStoreRedis = "redis"
)

// DefaultAuthChain mirrors middleware.DefaultChain in its config string form.
const DefaultAuthChain = "session,basic,redirectIfUnauthenticated,ownerOnly,requireAuthenticated"

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN)
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Maximum database connection pool size
	MaxDBConnections int

	// Enable debug logging
	Debug bool

	// Upper bound applied to every storage call made on behalf of a request
	StorageTimeout time.Duration

	// bcrypt work factor for new password hashes
	BcryptCost int

	Auth      AuthConfig
	Session   SessionConfig
	Token     TokenConfig
	RBAC      RBACConfig
	LoginRate RateConfig

	// Origins allowed by the CORS policy
	AllowedOrigins []string
}

// AuthConfig controls the middleware pipeline and login/logout responses.
type AuthConfig struct {
	// Chain is the comma separated selector list used when a route does not
	// supply its own.
	Chain string

	// CreateChain guards principal creation. Empty leaves it public.
	CreateChain string

	// LoginPath is where RedirectIfUnauthenticated sends anonymous clients.
	LoginPath string

	// LoginRedirect, when set, makes a successful login answer with a
	// redirect instead of the principal payload.
	LoginRedirect string

	// LogoutRedirect, when set, makes logout answer with a redirect.
	LogoutRedirect string
}

// SessionConfig selects and configures the session store.
type SessionConfig struct {
	Store      string
	TTL        time.Duration
	CookieName string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// TokenConfig configures bearer tokens issued at login.
type TokenConfig struct {
	TTL time.Duration
}

// RBACConfig toggles casbin enforcement on role mutations.
type RBACConfig struct {
	Enabled bool
}

// RateConfig configures the per-client login limiter.
type RateConfig struct {
	RPS   int
	Burst int
}

func setDefaults() {
	viper.SetDefault("database_url", "file:authuser.db?cache=shared")
	viper.SetDefault("server_addr", "localhost:8080")
	viper.SetDefault("debug", false)
	viper.SetDefault("max_db_connections", 25)
	viper.SetDefault("storage_timeout", 5*time.Second)
	viper.SetDefault("bcrypt_cost", 12)

	viper.SetDefault("auth.chain", DefaultAuthChain)
	viper.SetDefault("auth.create_chain", "")
	viper.SetDefault("auth.login_path", "/login")
	viper.SetDefault("auth.login_redirect", "")
	viper.SetDefault("auth.logout_redirect", "")

	viper.SetDefault("session.store", SessionStoreBun)
	viper.SetDefault("session.ttl", 12*time.Hour)
	viper.SetDefault("session.cookie_name", "authuser.session")
	viper.SetDefault("session.redis_addr", "localhost:6379")
	viper.SetDefault("session.redis_password", "")
	viper.SetDefault("session.redis_db", 0)

	viper.SetDefault("token.ttl", 24*time.Hour)
	viper.SetDefault("rbac.enabled", false)

	viper.SetDefault("login_rate.rps", 5)
	viper.SetDefault("login_rate.burst", 10)

	viper.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
}

// Load reads configuration from the global viper instance. Environment
// variables (AUTHUSER_ prefix, "." replaced by "_") take precedence over any
// config file previously read into viper.
func Load() (*Config, error) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	cfg := &Config{
		DatabaseURL:      viper.GetString("database_url"),
		ServerAddr:       viper.GetString("server_addr"),
		MaxDBConnections: viper.GetInt("max_db_connections"),
		Debug:            viper.GetBool("debug"),
		StorageTimeout:   viper.GetDuration("storage_timeout"),
		BcryptCost:       viper.GetInt("bcrypt_cost"),
		Auth: AuthConfig{
			Chain:          viper.GetString("auth.chain"),
			CreateChain:    viper.GetString("auth.create_chain"),
			LoginPath:      viper.GetString("auth.login_path"),
			LoginRedirect:  viper.GetString("auth.login_redirect"),
			LogoutRedirect: viper.GetString("auth.logout_redirect"),
		},
		Session: SessionConfig{
			Store:         strings.ToLower(viper.GetString("session.store")),
			TTL:           viper.GetDuration("session.ttl"),
			CookieName:    viper.GetString("session.cookie_name"),
			RedisAddr:     viper.GetString("session.redis_addr"),
			RedisPassword: viper.GetString("session.redis_password"),
			RedisDB:       viper.GetInt("session.redis_db"),
		},
		Token: TokenConfig{
			TTL: viper.GetDuration("token.ttl"),
		},
		RBAC: RBACConfig{
			Enabled: viper.GetBool("rbac.enabled"),
		},
		LoginRate: RateConfig{
			RPS:   viper.GetInt("login_rate.rps"),
			Burst: viper.GetInt("login_rate.burst"),
		},
		AllowedOrigins: viper.GetStringSlice("cors.allowed_origins"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges. It does not parse Auth.Chain; the server
// does that when it builds the pipeline.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.StorageTimeout <= 0 {
		return fmt.Errorf("storage_timeout must be positive, got %s", c.StorageTimeout)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	switch c.Session.Store {
	case SessionStoreBun, SessionStoreRedis:
	default:
		return fmt.Errorf("unknown session.store %q (want %q or %q)", c.Session.Store, SessionStoreBun, SessionStoreRedis)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("token.ttl must be positive, got %s", c.Token.TTL)
	}
	if c.Auth.LoginPath == "" {
		return fmt.Errorf("auth.login_path is required")
	}
	if c.LoginRate.RPS <= 0 || c.LoginRate.Burst <= 0 {
		return fmt.Errorf("login_rate.rps and login_rate.burst must be positive")
	}
	return nil
}
