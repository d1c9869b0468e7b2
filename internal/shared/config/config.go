package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Encryption   EncryptionConfig
	Scheduler    SchedulerConfig
	TLS          TLSConfig
	Provider     ProviderConfig
	Link         LinkConfig
	Aggregation  AggregationConfig
	Firebase     FirebaseConfig
	Telemetry    TelemetryConfig
	MessagesFile string
	SignInPath   string
	DataBackend  string
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrateOnBoot bool
}

type JWTConfig struct {
	Secret     string
	SessionTTL time.Duration
}

type EncryptionConfig struct {
	Key string
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

// ProviderConfig selects and configures the account aggregation provider.
type ProviderConfig struct {
	Name         string // plaid or sandbox
	ClientID     string
	Secret       string
	Environment  string // sandbox or production
	ClientName   string
	CountryCodes []string
	Products     []string
	Language     string
	HTTPTimeout  time.Duration
}

type LinkConfig struct {
	TokenTTL time.Duration
}

type AggregationConfig struct {
	FetchTimeout       time.Duration
	MaxConcurrency     int
	LookbackDays       int
	RecentTransactions int
}

type FirebaseConfig struct {
	CredentialsFile string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
	SampleRatio  float64
}

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	ProviderPlaid   = "plaid"
	ProviderSandbox = "sandbox"
)

func Load() (*Config, error) {

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	sessionTTL, err := time.ParseDuration(getEnv("JWT_SESSION_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_SESSION_TTL: %w", err)
	}

	// Parse scheduler configuration
	schedulerEnabled := getBoolEnv("SCHEDULER_ENABLED", true)
	schedulerTimes := splitList(getEnv("SCHEDULER_TIMES", "03:00,15:00"))
	schedulerWorkers, err := strconv.Atoi(getEnv("SCHEDULER_WORKERS", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_WORKERS: %w", err)
	}
	schedulerJobDelay, err := time.ParseDuration(getEnv("SCHEDULER_JOB_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_JOB_DELAY: %w", err)
	}
	schedulerQueueSize, err := strconv.Atoi(getEnv("SCHEDULER_QUEUE_SIZE", "16"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_QUEUE_SIZE: %w", err)
	}

	providerTimeout, err := time.ParseDuration(getEnv("PROVIDER_HTTP_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_HTTP_TIMEOUT: %w", err)
	}

	linkTTL, err := time.ParseDuration(getEnv("LINK_TOKEN_TTL", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid LINK_TOKEN_TTL: %w", err)
	}

	fetchTimeout, err := time.ParseDuration(getEnv("AGGREGATION_FETCH_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid AGGREGATION_FETCH_TIMEOUT: %w", err)
	}
	maxConcurrency, err := strconv.Atoi(getEnv("AGGREGATION_MAX_CONCURRENCY", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid AGGREGATION_MAX_CONCURRENCY: %w", err)
	}
	lookbackDays, err := strconv.Atoi(getEnv("TRANSACTIONS_LOOKBACK_DAYS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRANSACTIONS_LOOKBACK_DAYS: %w", err)
	}
	recentLimit, err := strconv.Atoi(getEnv("RECENT_TRANSACTIONS_LIMIT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECENT_TRANSACTIONS_LIMIT: %w", err)
	}

	sampleRatio, err := strconv.ParseFloat(getEnv("OTEL_SAMPLE_RATIO", "1"), 64)
	if err != nil || sampleRatio < 0 || sampleRatio > 1 {
		return nil, fmt.Errorf("invalid OTEL_SAMPLE_RATIO: must be between 0 and 1")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: splitList(getEnv("ALLOWED_HOSTS", "")),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          dbPort,
			User:          getEnv("DB_USER", "horizon"),
			Password:      getEnv("DB_PASSWORD", ""),
			DBName:        getEnv("DB_NAME", "horizon"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MigrateOnBoot: getBoolEnv("DB_MIGRATE_ON_BOOT", true),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			SessionTTL: sessionTTL,
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:       schedulerEnabled,
			ScheduleTimes: schedulerTimes,
			WorkerCount:   schedulerWorkers,
			JobDelay:      schedulerJobDelay,
			QueueSize:     schedulerQueueSize,
			RunOnStartup:  getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Provider: ProviderConfig{
			Name:         strings.ToLower(getEnv("PROVIDER", ProviderSandbox)),
			ClientID:     getEnv("PLAID_CLIENT_ID", ""),
			Secret:       getEnv("PLAID_SECRET", ""),
			Environment:  strings.ToLower(getEnv("PLAID_ENV", "sandbox")),
			ClientName:   getEnv("PLAID_CLIENT_NAME", "Horizon"),
			CountryCodes: splitList(getEnv("PLAID_COUNTRY_CODES", "US")),
			Products:     splitList(getEnv("PLAID_PRODUCTS", "auth,transactions")),
			Language:     getEnv("PLAID_LANGUAGE", "en"),
			HTTPTimeout:  providerTimeout,
		},
		Link: LinkConfig{
			TokenTTL: linkTTL,
		},
		Aggregation: AggregationConfig{
			FetchTimeout:       fetchTimeout,
			MaxConcurrency:     maxConcurrency,
			LookbackDays:       lookbackDays,
			RecentTransactions: recentLimit,
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "horizon-api"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9464"),
			SampleRatio:  sampleRatio,
		},
		MessagesFile: getEnv("MESSAGES_FILE", ""),
		SignInPath:   getEnv("SIGN_IN_PATH", "/sign-in"),
		DataBackend:  strings.ToLower(getEnv("DATA_BACKEND", BackendPostgres)),
	}

	// Validate required fields
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Encryption.Key == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	switch cfg.DataBackend {
	case BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("DATA_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, cfg.DataBackend)
	}

	switch cfg.Provider.Name {
	case ProviderSandbox:
	case ProviderPlaid:
		if cfg.Provider.ClientID == "" || cfg.Provider.Secret == "" {
			return nil, fmt.Errorf("PLAID_CLIENT_ID and PLAID_SECRET are required when PROVIDER=plaid")
		}
	default:
		return nil, fmt.Errorf("PROVIDER must be %q or %q, got %q", ProviderPlaid, ProviderSandbox, cfg.Provider.Name)
	}

	if cfg.Aggregation.FetchTimeout <= 0 {
		return nil, fmt.Errorf("AGGREGATION_FETCH_TIMEOUT must be positive")
	}
	if cfg.Aggregation.MaxConcurrency < 1 {
		return nil, fmt.Errorf("AGGREGATION_MAX_CONCURRENCY must be at least 1")
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as expected by the migrate driver.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
