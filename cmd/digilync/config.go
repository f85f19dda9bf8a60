package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/DigiLync/digilync/internal/api"
	"github.com/DigiLync/digilync/internal/messaging"
	"github.com/DigiLync/digilync/internal/scheduler"
	"github.com/DigiLync/digilync/internal/store"
	"github.com/DigiLync/digilync/internal/util"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for DigiLync state data
	DefaultStateDir = "/var/lib/digilync"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "digilync.db"
	// DefaultWhatsmeowFileName is the default whatsmeow device store filename
	DefaultWhatsmeowFileName = "whatsmeow.db"
)

// WhatsApp transports.
const (
	TransportTwilio    = "twilio"
	TransportWhatsmeow = "whatsmeow"
	TransportNone      = "none"
)

// Config holds the process configuration: .env and environment first,
// then command line flags.
type Config struct {
	LogLevel          string
	StateDir          string
	DatabaseURL       string
	InMemory          bool
	APIAddr           string
	Transport         string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFrom        string
	ValidateSignature bool
	PublicURL         string
	WhatsmeowDSN      string
	QROutput          string
	NumericCode       bool
	MetricsCron       string
	CountryCode       string
	CORSOrigins       []string
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	publicURL := util.StringEnv("WEBHOOK_PUBLIC_URL", "")
	cfg := Config{
		LogLevel:          util.StringEnv("LOG_LEVEL", "debug"),
		StateDir:          util.StringEnv("DIGILYNC_STATE_DIR", DefaultStateDir),
		DatabaseURL:       util.StringEnv("DATABASE_URL", ""),
		APIAddr:           util.StringEnv("API_ADDR", api.DefaultServerAddress),
		Transport:         strings.ToLower(util.StringEnv("WHATSAPP_TRANSPORT", TransportTwilio)),
		TwilioAccountSID:  util.StringEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   util.StringEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:        util.StringEnv("TWILIO_WHATSAPP_FROM", ""),
		ValidateSignature: util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", publicURL != ""),
		PublicURL:         publicURL,
		WhatsmeowDSN:      util.StringEnv("WHATSMEOW_DB_DSN", ""),
		MetricsCron:       util.StringEnv("METRICS_REFRESH_CRON", scheduler.DefaultMetricsRefreshCron),
		CountryCode:       util.StringEnv("DEFAULT_COUNTRY_CODE", messaging.DefaultCountryCode),
		CORSOrigins:       splitList(util.StringEnv("CORS_ALLOWED_ORIGINS", "")),
	}

	slog.Debug("environment variables loaded",
		"DIGILYNC_STATE_DIR", cfg.StateDir,
		"DATABASE_URL_SET", cfg.DatabaseURL != "",
		"API_ADDR", cfg.APIAddr,
		"WHATSAPP_TRANSPORT", cfg.Transport,
		"TWILIO_CREDENTIALS_SET", cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "",
		"TWILIO_VALIDATE_SIGNATURE", cfg.ValidateSignature,
		"WEBHOOK_PUBLIC_URL", cfg.PublicURL,
		"METRICS_REFRESH_CRON", cfg.MetricsCron,
		"CORS_ALLOWED_ORIGINS", cfg.CORSOrigins)
	return cfg
}

// bindFlags registers flags that override cfg.
func bindFlags(cmd *cobra.Command, cfg *Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error (overrides $LOG_LEVEL)")
	f.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for DigiLync data (overrides $DIGILYNC_STATE_DIR)")
	f.StringVar(&cfg.DatabaseURL, "db-dsn", cfg.DatabaseURL, "PostgreSQL DSN or SQLite path (overrides $DATABASE_URL)")
	f.BoolVar(&cfg.InMemory, "in-memory", false, "use the in-memory store; data is lost on exit")
	f.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)")
	f.StringVar(&cfg.Transport, "transport", cfg.Transport, "WhatsApp transport: twilio, whatsmeow or none (overrides $WHATSAPP_TRANSPORT)")
	f.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "externally visible base URL (overrides $WEBHOOK_PUBLIC_URL)")
	f.StringVar(&cfg.WhatsmeowDSN, "whatsmeow-dsn", cfg.WhatsmeowDSN, "whatsmeow device store DSN (overrides $WHATSMEOW_DB_DSN)")
	f.StringVar(&cfg.QROutput, "qr-output", "", "path to write the whatsmeow login QR code")
	f.BoolVar(&cfg.NumericCode, "numeric-code", false, "print the raw whatsmeow pairing code instead of a QR code")
	f.StringVar(&cfg.MetricsCron, "metrics-cron", cfg.MetricsCron, "cron schedule for public metrics refresh (overrides $METRICS_REFRESH_CRON)")
	f.StringVar(&cfg.CountryCode, "country-code", cfg.CountryCode, "country code for national phone numbers (overrides $DEFAULT_COUNTRY_CODE)")
	f.StringSliceVar(&cfg.CORSOrigins, "cors-origins", cfg.CORSOrigins, "browser origins allowed to call the API, default any (overrides $CORS_ALLOWED_ORIGINS)")
}

// splitList parses a comma separated list, dropping blank entries.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// storeDSN resolves the application database: explicit DSN, in-memory, or
// SQLite inside the state directory.
func (c Config) storeDSN() string {
	switch {
	case c.InMemory:
		return ""
	case c.DatabaseURL != "":
		return c.DatabaseURL
	default:
		return filepath.Join(c.StateDir, DefaultDBFileName)
	}
}

func (c Config) whatsmeowDSN() string {
	if c.WhatsmeowDSN != "" {
		return c.WhatsmeowDSN
	}
	return filepath.Join(c.StateDir, DefaultWhatsmeowFileName)
}

// needsStateLock reports whether the process keeps file databases in the
// state directory.
func (c Config) needsStateLock() bool {
	dsn := c.storeDSN()
	if dsn != "" && store.DetectDSNType(dsn) == "sqlite3" {
		return true
	}
	return c.Transport == TransportWhatsmeow && store.DetectDSNType(c.whatsmeowDSN()) == "sqlite3"
}

func (c Config) validate() error {
	switch c.Transport {
	case TransportTwilio, TransportWhatsmeow, TransportNone:
	default:
		return fmt.Errorf("unknown WhatsApp transport %q", c.Transport)
	}
	if c.CountryCode == "" {
		return fmt.Errorf("country code must not be empty")
	}
	for _, r := range c.CountryCode {
		if r < '0' || r > '9' {
			return fmt.Errorf("country code %q must be digits only", c.CountryCode)
		}
	}
	return nil
}

// initializeLogger sets up structured logging at the configured level.
func initializeLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}
