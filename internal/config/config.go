// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
	_ "time/tzdata" // AUTH_TIMEZONE must resolve on hosts without zoneinfo
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Audit    AuditConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// StoreConfig selects the grid backend and the sheets the record store binds to.
type StoreConfig struct {
	// Backend is one of: memory, sqlite, postgres (default: sqlite)
	Backend string `env:"STORE_BACKEND" default:"sqlite"`

	// Book identifies the workbook; several books can share one database.
	Book string `env:"STORE_BOOK" default:"main"`

	UsersSheet string `env:"STORE_USERS_SHEET" default:"users"`
	AuditSheet string `env:"STORE_AUDIT_SHEET" default:"audit"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `env:"STORE_SQLITE_PATH" envAlt:"SQLITE_PATH" default:"./data/sheetusers.db"`

	// IDStrategy is one of: digest, ksuid, snowflake, uuid (default: digest)
	IDStrategy string `env:"STORE_ID_STRATEGY" default:"digest"`

	// SnowflakeNode is the node number for the snowflake strategy (0-1023).
	SnowflakeNode int64 `env:"STORE_SNOWFLAKE_NODE" default:"1"`

	// Bootstrap creates missing sheets with the expected header rows on startup.
	Bootstrap bool `env:"STORE_BOOTSTRAP" default:"true"`
}

// DatabaseConfig holds PostgreSQL connection settings for the postgres backend.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required when STORE_BACKEND=postgres)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// AuthConfig holds credential hashing and session token settings.
type AuthConfig struct {
	// PasswordHasher is bcrypt or md5 (md5 only for sheets carrying legacy digests)
	PasswordHasher string `env:"AUTH_PASSWORD_HASHER" default:"bcrypt"`
	BcryptCost     int    `env:"AUTH_BCRYPT_COST" default:"10"`

	// JWTSecret signs session tokens (required)
	JWTSecret string        `env:"AUTH_JWT_SECRET" envAlt:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `env:"AUTH_TOKEN_TTL" default:"12h"`

	// RequireToken protects the user and audit API behind a bearer token.
	RequireToken bool `env:"AUTH_REQUIRE_TOKEN" default:"true"`

	// Timezone is used for lastLogin and audit timestamps (default: America/Bogota)
	Timezone string `env:"AUTH_TIMEZONE" envAlt:"TZ_NAME" default:"America/Bogota"`

	// SerializeWrites guards check-then-act sequences in the user service.
	SerializeWrites bool `env:"AUTH_SERIALIZE_WRITES" default:"true"`

	// BootstrapAdmin* seed an admin account when the users sheet is empty, so
	// the first token can be obtained with RequireToken on.
	BootstrapAdminDocument string `env:"AUTH_BOOTSTRAP_ADMIN_DOCUMENT"`
	BootstrapAdminPassword string `env:"AUTH_BOOTSTRAP_ADMIN_PASSWORD"`
	BootstrapAdminName     string `env:"AUTH_BOOTSTRAP_ADMIN_NAME" default:"administrador"`
}

// AuditConfig holds audit trail retention settings.
type AuditConfig struct {
	Enabled bool `env:"AUDIT_ENABLED" default:"true"`

	// RetentionDays is how long audit rows are kept (default: 90)
	RetentionDays int `env:"AUDIT_RETENTION_DAYS" default:"90"`

	// PruneSchedule is a cron spec for the prune job (default: @daily)
	PruneSchedule string `env:"AUDIT_PRUNE_SCHEDULE" default:"@daily"`
}

// ImportConfig holds CSV bulk import limits.
type ImportConfig struct {
	// MaxConcurrent is how many imports may run at once (default: 2)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"2"`

	// MaxWait is how long a request waits for a free slot (default: 30s)
	MaxWait time.Duration `env:"IMPORT_MAX_WAIT" default:"30s"`

	// MaxRows caps the data rows of one file; 0 disables the cap (default: 5000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"5000"`

	// MaxFileSize is the largest accepted upload in bytes (default: 10MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`

	// Timeout bounds one import request and replaces SERVER_REQUEST_TIMEOUT
	// and the server read/write timeouts for that route. Each row costs one
	// password hash, so it must cover MaxRows hashes (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// LoginLimit is requests per minute for the login endpoint (default: 10)
	LoginLimit int `env:"RATE_LIMIT_LOGIN" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Location resolves the configured timezone.
func (c *AuthConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
