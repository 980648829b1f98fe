package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AuthFirebase = "firebase"
	AuthJWKS     = "jwks"
	AuthHMAC     = "hmac"

	StorageMongo     = "mongo"
	StorageFirestore = "firestore"
	StoragePostgres  = "postgres"
	StorageMemory    = "memory"
)

type Config struct {
	Server    ServerConfig
	TLS       TLSConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	AllowedHosts    []string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type AuthConfig struct {
	Provider string
	Firebase FirebaseConfig
	Issuer   string
	Audience string
	JWKSURL  string
	// HMACSecret signs and verifies tokens when Provider is hmac.
	HMACSecret string
}

type FirebaseConfig struct {
	CredentialsFile string
	ProjectID       string
}

type StorageConfig struct {
	Driver    string
	Mongo     MongoConfig
	Firestore FirestoreConfig
	Database  DatabaseConfig
	// Migrate creates tables and indexes at startup.
	Migrate bool
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type FirestoreConfig struct {
	Collection string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// ListenChanges follows the table's change notifications and logs them.
	ListenChanges bool
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
	Environment  string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	dbMaxOpen, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}
	dbMaxIdle, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}
	dbConnLifetime, err := time.ParseDuration(getEnv("DB_CONN_MAX_LIFETIME", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	requestTimeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Host:            getEnv("HOST", "0.0.0.0"),
			AllowedHosts:    splitList(getEnv("ALLOWED_HOSTS", "")),
			ShutdownTimeout: shutdownTimeout,
			RequestTimeout:  requestTimeout,
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Auth: AuthConfig{
			Provider: strings.ToLower(getEnv("AUTH_PROVIDER", AuthFirebase)),
			Firebase: FirebaseConfig{
				CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
				ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			},
			Issuer:     getEnv("AUTH_ISSUER", ""),
			Audience:   getEnv("AUTH_AUDIENCE", ""),
			JWKSURL:    getEnv("AUTH_JWKS_URL", ""),
			HMACSecret: getEnv("AUTH_HMAC_SECRET", ""),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageMongo)),
			Mongo: MongoConfig{
				URI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
				Database:   getEnv("MONGO_DATABASE", "fintrack"),
				Collection: getEnv("MONGO_COLLECTION", "my_transactions"),
			},
			Firestore: FirestoreConfig{
				Collection: getEnv("FIRESTORE_COLLECTION", "my_transactions"),
			},
			Database: DatabaseConfig{
				Host:            getEnv("DB_HOST", "localhost"),
				Port:            dbPort,
				User:            getEnv("DB_USER", "fintrack"),
				Password:        getEnv("DB_PASSWORD", ""),
				DBName:          getEnv("DB_NAME", "fintrack"),
				SSLMode:         getEnv("DB_SSLMODE", "disable"),
				MaxOpenConns:    dbMaxOpen,
				MaxIdleConns:    dbMaxIdle,
				ConnMaxLifetime: dbConnLifetime,
				ListenChanges:   getBoolEnv("DB_LISTEN_CHANGES", false),
			},
			Migrate: getBoolEnv("STORAGE_MIGRATE", true),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "fintrack-api"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9464"),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Auth.Provider {
	case AuthFirebase:
	case AuthJWKS:
		if c.Auth.JWKSURL == "" {
			return fmt.Errorf("AUTH_JWKS_URL is required when AUTH_PROVIDER=jwks")
		}
		if c.Auth.Issuer == "" || c.Auth.Audience == "" {
			return fmt.Errorf("AUTH_ISSUER and AUTH_AUDIENCE are required when AUTH_PROVIDER=jwks")
		}
	case AuthHMAC:
		if len(c.Auth.HMACSecret) < 32 {
			return fmt.Errorf("AUTH_HMAC_SECRET must be at least 32 bytes when AUTH_PROVIDER=hmac")
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.Auth.Provider)
	}

	switch c.Storage.Driver {
	case StorageMongo:
		if c.Storage.Mongo.URI == "" {
			return fmt.Errorf("MONGO_URI is required when STORAGE_DRIVER=mongo")
		}
	case StorageFirestore:
		if c.Storage.Firestore.Collection == "" {
			return fmt.Errorf("FIRESTORE_COLLECTION is required when STORAGE_DRIVER=firestore")
		}
	case StoragePostgres:
		if c.Storage.Database.Host == "" || c.Storage.Database.DBName == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required when STORAGE_DRIVER=postgres")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.TLS.Enabled {
		if c.TLS.CertPath == "" {
			return fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if c.TLS.KeyPath == "" {
			return fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
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
