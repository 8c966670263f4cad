package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Data sources.
const (
	SourceCSV    = "csv"
	SourceSheets = "sheets"
	SourceMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Source selection
	DataSource    string
	SheetCSVURL   string
	MemoryCSVPath string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
	GoogleOAuthClientJSON    string
	GoogleOAuthTokenJSON     string

	// Refresh loop
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	HistoryLimit    int

	// AMQP; an empty URL disables publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	LogLevel        string
	DisplayTimezone string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fundboard.db"),

		DataSource:    strings.ToLower(getEnv("DATA_SOURCE", SourceCSV)),
		SheetCSVURL:   getEnv("SHEET_CSV_URL", ""),
		MemoryCSVPath: getEnv("MEMORY_CSV_PATH", "./data/sample.csv"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenJSON:     getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),

		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 10*time.Second),
		FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 15*time.Second),
		HistoryLimit:    getEnvInt("HISTORY_LIMIT", 50),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fundboard"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "celebrations"),

		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		DisplayTimezone: getEnv("DISPLAY_TIMEZONE", "America/Toronto"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	validSources := []string{SourceCSV, SourceSheets, SourceMemory}
	if !slices.Contains(validSources, c.DataSource) {
		errors = append(errors, fmt.Sprintf("invalid data source '%s': must be one of %v", c.DataSource, validSources))
	}

	switch c.DataSource {
	case SourceCSV:
		if c.SheetCSVURL == "" {
			errors = append(errors, "SHEET_CSV_URL is required when using csv source")
		} else if u, err := url.Parse(c.SheetCSVURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid SHEET_CSV_URL '%s': %v", c.SheetCSVURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid SHEET_CSV_URL scheme '%s': must be 'http' or 'https'", u.Scheme))
		}

	case SourceMemory:
		if c.MemoryCSVPath == "" {
			errors = append(errors, "MEMORY_CSV_PATH is required when using memory source")
		} else if _, err := os.Stat(c.MemoryCSVPath); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("memory CSV file does not exist: %s", c.MemoryCSVPath))
		}

	case SourceSheets:
		errors = append(errors, c.validateSheets()...)
	}

	if c.RefreshInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 1 second", c.RefreshInterval))
	} else if c.RefreshInterval > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at most 1 hour", c.RefreshInterval))
	}

	if c.FetchTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be at least 1 second", c.FetchTimeout))
	} else if c.FetchTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be at most 5 minutes", c.FetchTimeout))
	}

	if c.HistoryLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid history limit %d: must be at least 1", c.HistoryLimit))
	} else if c.HistoryLimit > 1000 {
		errors = append(errors, fmt.Sprintf("invalid history limit %d: must be at most 1000", c.HistoryLimit))
	}

	if c.AMQPURL != "" {
		errors = append(errors, c.validateAMQP()...)
	}
	errors = append(errors, c.validateLogLevel()...)

	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid display timezone '%s': %v", c.DisplayTimezone, err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks only what the celebration worker uses: the broker
// settings, which are mandatory there, and the log level.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required")
	} else {
		errors = append(errors, c.validateAMQP()...)
	}
	errors = append(errors, c.validateLogLevel()...)

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateAMQP() []string {
	var errors []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errors
}

func (c *Config) validateLogLevel() []string {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, c.LogLevel) {
		return []string{fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels)}
	}
	return nil
}

func (c *Config) validateSheets() []string {
	var errors []string
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required when using sheets source")
	}

	hasServiceAccount := c.GoogleServiceAccountJSON != "" || c.GoogleServiceAccountFile != ""
	hasClient := c.GoogleOAuthClientJSON != "" || c.GoogleOAuthClientFile != ""
	hasToken := c.GoogleOAuthTokenJSON != "" || c.GoogleOAuthTokenFile != ""

	switch {
	case hasServiceAccount:
	case !hasClient:
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON|FILE or GOOGLE_OAUTH_CLIENT_FILE|JSON must be provided for sheets source")
	case !hasToken:
		errors = append(errors, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided for sheets source")
	}

	for label, path := range map[string]string{
		"service account": c.GoogleServiceAccountFile,
		"OAuth client":    c.GoogleOAuthClientFile,
		"OAuth token":     c.GoogleOAuthTokenFile,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google %s file does not exist: %s", label, path))
		}
	}
	return errors
}

// Location returns the display timezone, falling back to UTC when it cannot
// be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AMQPEnabled reports whether change events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
