package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database drivers accepted by database.driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is resolved once at startup and passed by value into constructors.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Billing    BillingConfig
	Completion CompletionConfig
	Webhooks   WebhookConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port           string
	PublicURL      string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Enabled            bool
	Addr               string
	Password           string
	DB                 int
	RateLimitPerMinute int
	WebhookDedupTTL    time.Duration
}

// AuthConfig verifies identity-provider session tokens. Exactly one of
// JWTSecret (HS256) and JWTPublicKey (RS256 PEM) must be set.
type AuthConfig struct {
	JWTSecret    string
	JWTPublicKey string
	Issuer       string
}

type BillingConfig struct {
	StartingBalance int64
	CostPerTurn     int64
	// Products maps a payment-provider price id to the credits it grants.
	Products        map[string]int64
	StripeSecretKey string
	StripeAPIURL    string
}

type CompletionConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Models       []string
	Timeout      time.Duration
	SiteURL      string
	SiteName     string
}

type WebhookConfig struct {
	IdentitySecret string
	PaymentSecret  string
	Tolerance      time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// envBindings maps viper keys to environment variables.
var envBindings = map[string]string{
	"server.port":            "PORT",
	"server.public_url":      "PUBLIC_URL",
	"server.allowed_origins": "ALLOWED_ORIGINS",
	"server.read_timeout":    "SERVER_READ_TIMEOUT",
	"server.write_timeout":   "SERVER_WRITE_TIMEOUT",
	"server.idle_timeout":    "SERVER_IDLE_TIMEOUT",

	"database.driver":            "DATABASE_DRIVER",
	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.name":              "DATABASE_NAME",
	"database.ssl_mode":          "DATABASE_SSL_MODE",
	"database.path":              "DATABASE_PATH",
	"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime": "DATABASE_CONN_MAX_LIFETIME",
	"database.auto_migrate":      "DATABASE_AUTO_MIGRATE",

	"redis.enabled":               "REDIS_ENABLED",
	"redis.addr":                  "REDIS_ADDR",
	"redis.password":              "REDIS_PASSWORD",
	"redis.db":                    "REDIS_DB",
	"redis.rate_limit_per_minute": "REDIS_RATE_LIMIT_PER_MINUTE",
	"redis.webhook_dedup_ttl":     "REDIS_WEBHOOK_DEDUP_TTL",

	"auth.jwt_secret":     "JWT_SECRET_KEY",
	"auth.jwt_public_key": "JWT_PUBLIC_KEY",
	"auth.issuer":         "JWT_ISSUER",

	"billing.starting_balance":  "INITIAL_USER_CREDITS",
	"billing.cost_per_turn":     "CREDITS_PER_CHAT_TURN",
	"billing.products":          "BILLING_PRODUCTS",
	"billing.stripe_secret_key": "STRIPE_SECRET_KEY",
	"billing.stripe_api_url":    "STRIPE_API_URL",

	"completion.base_url":      "COMPLETION_BASE_URL",
	"completion.api_key":       "OPENROUTER_API_KEY",
	"completion.default_model": "COMPLETION_DEFAULT_MODEL",
	"completion.models":        "COMPLETION_MODELS",
	"completion.timeout":       "COMPLETION_TIMEOUT",
	"completion.site_url":      "YOUR_SITE_URL",
	"completion.site_name":     "YOUR_SITE_NAME",

	"webhooks.identity_secret": "CLERK_WEBHOOK_SECRET",
	"webhooks.payment_secret":  "STRIPE_WEBHOOK_SECRET",
	"webhooks.tolerance":       "WEBHOOK_TOLERANCE",

	"log.level":  "LOG_LEVEL",
	"log.format": "LOG_FORMAT",
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.public_url", "http://localhost:3000")
	v.SetDefault("server.allowed_origins", "http://localhost:3000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 45*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "genfoo")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "genfoo.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.rate_limit_per_minute", 30)
	v.SetDefault("redis.webhook_dedup_ttl", 24*time.Hour)

	v.SetDefault("billing.starting_balance", 20)
	v.SetDefault("billing.cost_per_turn", 1)
	v.SetDefault("billing.stripe_api_url", "https://api.stripe.com")

	v.SetDefault("completion.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("completion.default_model", "google/gemini-2.5-flash")
	v.SetDefault("completion.models", "google/gemini-2.5-flash,openai/o1-pro")
	v.SetDefault("completion.timeout", 30*time.Second)
	v.SetDefault("completion.site_url", "http://localhost:3000")
	v.SetDefault("completion.site_name", "GenFoo")

	v.SetDefault("webhooks.tolerance", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	products, err := ParseProducts(v.GetString("billing.products"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			PublicURL:      strings.TrimRight(v.GetString("server.public_url"), "/"),
			AllowedOrigins: splitList(v.GetString("server.allowed_origins")),
			ReadTimeout:    v.GetDuration("server.read_timeout"),
			WriteTimeout:   v.GetDuration("server.write_timeout"),
			IdleTimeout:    v.GetDuration("server.idle_timeout"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:            v.GetBool("redis.enabled"),
			Addr:               v.GetString("redis.addr"),
			Password:           v.GetString("redis.password"),
			DB:                 v.GetInt("redis.db"),
			RateLimitPerMinute: v.GetInt("redis.rate_limit_per_minute"),
			WebhookDedupTTL:    v.GetDuration("redis.webhook_dedup_ttl"),
		},
		Auth: AuthConfig{
			JWTSecret:    v.GetString("auth.jwt_secret"),
			JWTPublicKey: v.GetString("auth.jwt_public_key"),
			Issuer:       v.GetString("auth.issuer"),
		},
		Billing: BillingConfig{
			StartingBalance: v.GetInt64("billing.starting_balance"),
			CostPerTurn:     v.GetInt64("billing.cost_per_turn"),
			Products:        products,
			StripeSecretKey: v.GetString("billing.stripe_secret_key"),
			StripeAPIURL:    strings.TrimRight(v.GetString("billing.stripe_api_url"), "/"),
		},
		Completion: CompletionConfig{
			BaseURL:      strings.TrimRight(v.GetString("completion.base_url"), "/"),
			APIKey:       v.GetString("completion.api_key"),
			DefaultModel: strings.TrimSpace(v.GetString("completion.default_model")),
			Models:       splitList(v.GetString("completion.models")),
			Timeout:      v.GetDuration("completion.timeout"),
			SiteURL:      v.GetString("completion.site_url"),
			SiteName:     v.GetString("completion.site_name"),
		},
		Webhooks: WebhookConfig{
			IdentitySecret: v.GetString("webhooks.identity_secret"),
			PaymentSecret:  v.GetString("webhooks.payment_secret"),
			Tolerance:      v.GetDuration("webhooks.tolerance"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects partial or ambiguous configuration.
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("database: host and name are required for postgres"))
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database: path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("database: unsupported driver %q", c.Database.Driver))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis: addr is required when enabled"))
		}
		if c.Redis.RateLimitPerMinute <= 0 {
			errs = append(errs, errors.New("redis: rate_limit_per_minute must be positive"))
		}
	}

	hasSecret := strings.TrimSpace(c.Auth.JWTSecret) != ""
	hasKey := strings.TrimSpace(c.Auth.JWTPublicKey) != ""
	if hasSecret == hasKey {
		errs = append(errs, errors.New("auth: exactly one of jwt_secret and jwt_public_key must be set"))
	}

	if c.Billing.StartingBalance < 0 {
		errs = append(errs, errors.New("billing: starting_balance must not be negative"))
	}
	if c.Billing.CostPerTurn <= 0 {
		errs = append(errs, errors.New("billing: cost_per_turn must be positive"))
	}
	if len(c.Billing.Products) == 0 {
		errs = append(errs, errors.New("billing: at least one product is required"))
	}
	if c.Billing.StripeSecretKey == "" {
		errs = append(errs, errors.New("billing: stripe_secret_key is required"))
	}

	if c.Completion.APIKey == "" {
		errs = append(errs, errors.New("completion: api_key is required"))
	}
	if c.Completion.Timeout <= 0 {
		errs = append(errs, errors.New("completion: timeout must be positive"))
	}
	if len(c.Completion.Models) == 0 {
		errs = append(errs, errors.New("completion: at least one model is required"))
	} else if !contains(c.Completion.Models, c.Completion.DefaultModel) {
		errs = append(errs, fmt.Errorf("completion: default model %q is not in the allow-list", c.Completion.DefaultModel))
	}

	if c.Webhooks.IdentitySecret == "" {
		errs = append(errs, errors.New("webhooks: identity_secret is required"))
	}
	if c.Webhooks.PaymentSecret == "" {
		errs = append(errs, errors.New("webhooks: payment_secret is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseProducts parses "price_a=1200,price_b=500" into a price -> credits map.
func ParseProducts(raw string) (map[string]int64, error) {
	products := make(map[string]int64)
	for _, item := range splitList(raw) {
		id, amount, ok := strings.Cut(item, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("config: billing product %q must be price_id=credits", item)
		}
		credits, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
		if err != nil || credits <= 0 {
			return nil, fmt.Errorf("config: billing product %q must grant a positive number of credits", id)
		}
		if _, dup := products[id]; dup {
			return nil, fmt.Errorf("config: duplicate billing product %q", id)
		}
		products[id] = credits
	}
	return products, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
