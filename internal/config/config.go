package config

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server     ServerConfig     `env:",prefix=SERVER_"`
	Postgres   PostgresConfig   `env:",prefix=POSTGRES_"`
	Redis      RedisConfig      `env:",prefix=REDIS_"`
	Oura       OuraConfig       `env:",prefix=OURA_"`
	Sync       SyncConfig       `env:",prefix=SYNC_"`
	Analysis   AnalysisConfig   `env:",prefix=ANALYSIS_"`
	Onboarding OnboardingConfig `env:",prefix=ONBOARDING_"`
	Secrets    SecretsConfig    `env:",prefix=SECRETS_"`
	Auth       AuthConfig       `env:",prefix=AUTH_"`
	CORS       CORSConfig       `env:",prefix=CORS_"`
	Sentry     SentryConfig     `env:",prefix=SENTRY_"`
	Env        string           `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=90s"`
}

type PostgresConfig struct {
	Host            string   `env:"HOST,default=localhost"`
	Port            string   `env:"PORT,default=5432"`
	User            string   `env:"USER,default=wearable_sync"`
	Password        string   `env:"PASSWORD,default=wearable_sync_password"`
	DBName          string   `env:"DB,default=wearable_sync_db"`
	SSLMode         string   `env:"SSLMODE,default=disable"`
	MaxOpenConns    int      `env:"MAX_OPEN_CONNS,default=20"`
	MaxIdleConns    int      `env:"MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime Duration `env:"CONN_MAX_LIFETIME,default=30m"`
	AutoMigrate     bool     `env:"AUTO_MIGRATE,default=false"`
	MigrationsPath  string   `env:"MIGRATIONS_PATH,default=file://migrations"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

// OuraConfig describes the wearable provider API and its OAuth client
type OuraConfig struct {
	Provider      string   `env:"PROVIDER_NAME,default=oura"`
	APIBaseURL    string   `env:"API_BASE_URL,default=https://api.ouraring.com/v2/usercollection"`
	TokenURL      string   `env:"TOKEN_URL,default=https://api.ouraring.com/oauth/token"`
	ClientID      string   `env:"CLIENT_ID,default="`
	ClientSecret  string   `env:"CLIENT_SECRET,default="`
	MaxPages      int      `env:"MAX_PAGES,default=10"`
	RefreshMargin Duration `env:"REFRESH_MARGIN,default=1m"`
}

type SyncConfig struct {
	DefaultRangeDays  int      `env:"DEFAULT_RANGE_DAYS,default=30"`
	FetchConcurrency  int      `env:"FETCH_CONCURRENCY,default=5"`
	StreamTimeout     Duration `env:"STREAM_TIMEOUT,default=15s"`
	RefreshLockTTL    Duration `env:"REFRESH_LOCK_TTL,default=30s"`
	RefreshLockWait   Duration `env:"REFRESH_LOCK_WAIT,default=10s"`
	SessionCookie     string   `env:"SESSION_COOKIE,default=oura_access_token"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
}

type AnalysisConfig struct {
	BaseURL      string   `env:"BASE_URL,default="`
	Timeout      Duration `env:"TIMEOUT,default=30s"`
	PremiumTiers []string `env:"PREMIUM_TIERS,default=pro,max"`
	Background   bool     `env:"BACKGROUND,default=false"`
	Workers      int      `env:"WORKERS,default=2"`
}

// OnboardingConfig lists the onboarding tables in precedence order
type OnboardingConfig struct {
	Sources []string `env:"SOURCES,default=onboarding_responses,funnel_submissions"`
}

type SecretsConfig struct {
	// EncryptionKey is a 32 byte key, hex or base64 encoded. When empty the
	// legacy base64 encoding is used for stored tokens.
	EncryptionKey string `env:"ENCRYPTION_KEY,default="`
}

type AuthConfig struct {
	// JWTSecret enables bearer authentication of callers on /api/v1 when set
	JWTSecret string `env:"JWT_SECRET,default="`
	Issuer    string `env:"JWT_ISSUER,default="`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

type SentryConfig struct {
	DSN string `env:"DSN,default="`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// URL returns the connection string in URL form, as golang-migrate expects
func (p PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%s", p.Host, p.Port),
		Path:     "/" + p.DBName,
		RawQuery: url.Values{"sslmode": []string{p.SSLMode}}.Encode(),
	}
	return u.String()
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var config Config

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &config,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if (c.Oura.ClientID == "") != (c.Oura.ClientSecret == "") {
		return fmt.Errorf("OURA_CLIENT_ID and OURA_CLIENT_SECRET must be set together")
	}

	if c.Sync.FetchConcurrency < 1 {
		return fmt.Errorf("SYNC_FETCH_CONCURRENCY must be at least 1")
	}

	if c.Sync.DefaultRangeDays < 1 {
		return fmt.Errorf("SYNC_DEFAULT_RANGE_DAYS must be at least 1")
	}

	if len(c.Onboarding.Sources) == 0 {
		return fmt.Errorf("ONBOARDING_SOURCES must list at least one table")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters long")
	}

	if c.Analysis.Background && c.Analysis.Workers < 1 {
		return fmt.Errorf("ANALYSIS_WORKERS must be at least 1 in background mode")
	}

	return nil
}
