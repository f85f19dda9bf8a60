package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DigiLync/digilync/internal/messaging"
	"github.com/DigiLync/digilync/internal/scheduler"
)

// clearEnv unsets every variable loadEnvironmentConfig reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LOG_LEVEL", "DIGILYNC_STATE_DIR", "DATABASE_URL", "API_ADDR", "WHATSAPP_TRANSPORT",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_WHATSAPP_FROM", "TWILIO_VALIDATE_SIGNATURE",
		"WEBHOOK_PUBLIC_URL", "WHATSMEOW_DB_DSN", "METRICS_REFRESH_CRON", "DEFAULT_COUNTRY_CODE", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
	// godotenv reads .env from the working directory.
	t.Chdir(t.TempDir())
}

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd(Config{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "digilync dev") || !strings.Contains(out, "commit: none") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestRootCmdListsSubcommands(t *testing.T) {
	cmd := newRootCmd(Config{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, sub := range []string{"serve", "migrate", "version"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("expected help to list %q", sub)
		}
	}
}

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg := loadEnvironmentConfig()

	if cfg.StateDir != DefaultStateDir {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, DefaultStateDir)
	}
	if cfg.Transport != TransportTwilio {
		t.Errorf("Transport = %q, want %q", cfg.Transport, TransportTwilio)
	}
	if cfg.MetricsCron != scheduler.DefaultMetricsRefreshCron {
		t.Errorf("MetricsCron = %q", cfg.MetricsCron)
	}
	if cfg.CountryCode != messaging.DefaultCountryCode {
		t.Errorf("CountryCode = %q", cfg.CountryCode)
	}
	if cfg.ValidateSignature {
		t.Error("signature validation should default off without a public URL")
	}
	if got := cfg.storeDSN(); got != filepath.Join(DefaultStateDir, DefaultDBFileName) {
		t.Errorf("storeDSN = %q", got)
	}
}

func TestLoadEnvironmentConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("WHATSAPP_TRANSPORT", "WhatsMeow")
	t.Setenv("WEBHOOK_PUBLIC_URL", "https://api.digilync.test")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/digilync")
	t.Setenv("DEFAULT_COUNTRY_CODE", "234")

	cfg := loadEnvironmentConfig()
	if cfg.Transport != TransportWhatsmeow {
		t.Errorf("Transport = %q", cfg.Transport)
	}
	if !cfg.ValidateSignature {
		t.Error("signature validation should default on with a public URL")
	}
	if cfg.storeDSN() != "postgres://u:p@localhost/digilync" {
		t.Errorf("storeDSN = %q", cfg.storeDSN())
	}
	if cfg.CountryCode != "234" {
		t.Errorf("CountryCode = %q", cfg.CountryCode)
	}
}

func TestCORSOriginsFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://admin.digilync.test, ,https://digilync.test ")

	cfg := loadEnvironmentConfig()
	want := []string{"https://admin.digilync.test", "https://digilync.test"}
	if strings.Join(cfg.CORSOrigins, "|") != strings.Join(want, "|") {
		t.Errorf("CORSOrigins = %q, want %q", cfg.CORSOrigins, want)
	}
	if n := len(buildAPIOptions(cfg)); n != 2 {
		t.Errorf("expected address and CORS options, got %d", n)
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfg := Config{StateDir: "/env/state", Transport: TransportTwilio, CountryCode: "237"}
	cmd := newServeCmd(cfg)
	if err := cmd.ParseFlags([]string{"--state-dir", "/flag/state", "--transport", "none", "--in-memory"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	state, _ := cmd.Flags().GetString("state-dir")
	transport, _ := cmd.Flags().GetString("transport")
	inMemory, _ := cmd.Flags().GetBool("in-memory")
	if state != "/flag/state" || transport != TransportNone || !inMemory {
		t.Errorf("flags not applied: state=%q transport=%q in-memory=%v", state, transport, inMemory)
	}
}

func TestNeedsStateLock(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"default sqlite", Config{StateDir: "/s", Transport: TransportTwilio}, true},
		{"postgres twilio", Config{DatabaseURL: "postgres://h/db", Transport: TransportTwilio}, false},
		{"in-memory twilio", Config{InMemory: true, Transport: TransportTwilio}, false},
		{"postgres whatsmeow sqlite device", Config{DatabaseURL: "postgres://h/db", StateDir: "/s", Transport: TransportWhatsmeow}, true},
		{"postgres whatsmeow postgres device", Config{DatabaseURL: "postgres://h/db", WhatsmeowDSN: "postgres://h/wa", Transport: TransportWhatsmeow}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.needsStateLock(); got != tt.want {
				t.Errorf("needsStateLock() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Transport: TransportNone, CountryCode: "237"}
	if err := valid.validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, cfg := range []Config{
		{Transport: "sms", CountryCode: "237"},
		{Transport: TransportTwilio, CountryCode: ""},
		{Transport: TransportTwilio, CountryCode: "+237"},
	} {
		if err := cfg.validate(); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}

func TestBuildMessagingServiceWithoutTransport(t *testing.T) {
	clearEnv(t)
	for _, transport := range []string{TransportNone, TransportTwilio} {
		svc, closeFn, err := buildMessagingService(context.Background(), Config{Transport: transport})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", transport, err)
		}
		closeFn()
		if svc != nil {
			t.Errorf("%s: expected no service without credentials, got %T", transport, svc)
		}
	}
}

func TestBuildMessagingServiceTwilio(t *testing.T) {
	clearEnv(t)
	svc, _, err := buildMessagingService(context.Background(), Config{
		Transport:        TransportTwilio,
		TwilioAccountSID: "ACtest",
		TwilioAuthToken:  "token",
		TwilioFrom:       "+15550001111",
		CountryCode:      "237",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := svc.(*messaging.TwilioService); !ok {
		t.Fatalf("expected *messaging.TwilioService, got %T", svc)
	}
	defer svc.Stop()
	if got, _ := svc.ValidateAndCanonicalizeRecipient("0675000111"); got != "+237675000111" {
		t.Errorf("expected country code applied, got %q", got)
	}
}

func TestBuildAPIOptions(t *testing.T) {
	base := Config{APIAddr: ":9000", Transport: TransportTwilio}
	if n := len(buildAPIOptions(base)); n != 1 {
		t.Errorf("expected only the address option, got %d", n)
	}
	withSig := base
	withSig.PublicURL = "https://api.digilync.test"
	withSig.ValidateSignature = true
	withSig.TwilioAuthToken = "token"
	if n := len(buildAPIOptions(withSig)); n != 3 {
		t.Errorf("expected address, public URL and signature options, got %d", n)
	}
	withSig.TwilioAuthToken = ""
	if n := len(buildAPIOptions(withSig)); n != 2 {
		t.Errorf("expected signature option skipped without a token, got %d", n)
	}
}

func TestRunMigrateSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{StateDir: dir}
	buf := new(bytes.Buffer)
	if err := runMigrate(buf, cfg); err != nil {
		t.Fatalf("runMigrate failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Migrations applied (sqlite3)") {
		t.Errorf("unexpected output: %s", buf.String())
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultDBFileName)); err != nil {
		t.Errorf("expected database file: %v", err)
	}
	if err := runMigrate(buf, Config{InMemory: true}); err == nil {
		t.Error("expected error without a database")
	}
}
