package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct walks the struct tree and fills every field carrying an env tag.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value, err := lookup(field.Tag)
		if err != nil {
			return err
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// lookup resolves a field's raw value: primary var, alternate var, then default.
func lookup(tag reflect.StructTag) (string, error) {
	name := tag.Get("env")

	if value := os.Getenv(name); value != "" {
		return value, nil
	}
	if alt := tag.Get("envAlt"); alt != "" {
		if value := os.Getenv(alt); value != "" {
			return value, nil
		}
	}
	if tag.Get("required") == "true" {
		return "", fmt.Errorf("required environment variable %s is not set", name)
	}
	return tag.Get("default"), nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		var items []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		fail("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		fail("SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		fail("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Store
	switch strings.ToLower(c.Store.Backend) {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			fail("STORE_SQLITE_PATH is required when STORE_BACKEND=sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			fail("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
		if c.Database.MaxConns <= 0 {
			fail("DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			fail("DB_MIN_CONNS must be non-negative")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			fail("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	default:
		fail("STORE_BACKEND (%q) must be one of: memory, sqlite, postgres", c.Store.Backend)
	}
	if c.Store.Book == "" {
		fail("STORE_BOOK must not be empty")
	}
	if c.Store.UsersSheet == "" || c.Store.AuditSheet == "" {
		fail("STORE_USERS_SHEET and STORE_AUDIT_SHEET must not be empty")
	} else if c.Store.UsersSheet == c.Store.AuditSheet {
		fail("STORE_USERS_SHEET and STORE_AUDIT_SHEET must differ")
	}
	switch strings.ToLower(c.Store.IDStrategy) {
	case "digest", "ksuid", "uuid":
	case "snowflake":
		if c.Store.SnowflakeNode < 0 || c.Store.SnowflakeNode > 1023 {
			fail("STORE_SNOWFLAKE_NODE (%d) must be 0-1023", c.Store.SnowflakeNode)
		}
	default:
		fail("STORE_ID_STRATEGY (%q) must be one of: digest, ksuid, snowflake, uuid", c.Store.IDStrategy)
	}

	// Auth
	switch strings.ToLower(c.Auth.PasswordHasher) {
	case "bcrypt":
		if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
			fail("AUTH_BCRYPT_COST (%d) must be 4-31", c.Auth.BcryptCost)
		}
	case "md5":
	default:
		fail("AUTH_PASSWORD_HASHER (%q) must be one of: bcrypt, md5", c.Auth.PasswordHasher)
	}
	if len(c.Auth.JWTSecret) < 16 {
		fail("AUTH_JWT_SECRET must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		fail("AUTH_TOKEN_TTL must be positive")
	}
	if (c.Auth.BootstrapAdminDocument == "") != (c.Auth.BootstrapAdminPassword == "") {
		fail("AUTH_BOOTSTRAP_ADMIN_DOCUMENT and AUTH_BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	if _, err := c.Auth.Location(); err != nil {
		fail("AUTH_TIMEZONE (%q) is not a known location", c.Auth.Timezone)
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.RetentionDays <= 0 {
			fail("AUDIT_RETENTION_DAYS must be positive")
		}
		if c.Audit.PruneSchedule == "" {
			fail("AUDIT_PRUNE_SCHEDULE must not be empty when auditing is enabled")
		}
	}

	// Import
	if c.Import.MaxConcurrent <= 0 {
		fail("IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxWait <= 0 {
		fail("IMPORT_MAX_WAIT must be positive")
	}
	if c.Import.MaxRows < 0 {
		fail("IMPORT_MAX_ROWS must be non-negative")
	}
	if c.Import.MaxFileSize <= 0 {
		fail("IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.Timeout <= 0 {
		fail("IMPORT_TIMEOUT must be positive")
	}

	// Rate limits
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		fail("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.LoginLimit <= 0 {
		fail("RATE_LIMIT_LOGIN must be positive when rate limiting is enabled")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		fail("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		fail("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Secrets and connection strings are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Store: {Backend: %q, Book: %q, Users: %q, Audit: %q, IDStrategy: %q}, ",
		c.Store.Backend, c.Store.Book, c.Store.UsersSheet, c.Store.AuditSheet, c.Store.IDStrategy)
	fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Auth: {Hasher: %q, JWTSecret: [MASKED], TokenTTL: %s, RequireToken: %v}, ",
		c.Auth.PasswordHasher, c.Auth.TokenTTL, c.Auth.RequireToken)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
