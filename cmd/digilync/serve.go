package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/DigiLync/digilync/internal/api"
	"github.com/DigiLync/digilync/internal/conversation"
	"github.com/DigiLync/digilync/internal/lockfile"
	"github.com/DigiLync/digilync/internal/messaging"
	"github.com/DigiLync/digilync/internal/scheduler"
	"github.com/DigiLync/digilync/internal/store"
	"github.com/DigiLync/digilync/internal/twiliowhatsapp"
	"github.com/DigiLync/digilync/internal/whatsapp"
)

const metricsJobName = "public-metrics-refresh"

// serve runs the API server, the WhatsApp transport and the scheduler until
// ctx is cancelled.
func serve(ctx context.Context, cfg Config) error {
	initializeLogger(cfg.LogLevel)
	if err := cfg.validate(); err != nil {
		return err
	}
	slog.Info("Bootstrapping DigiLync", "version", Version, "transport", cfg.Transport, "api_addr", cfg.APIAddr)

	if cfg.needsStateLock() {
		lock, err := lockfile.AcquireLock(cfg.StateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := store.Open(cfg.storeDSN())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	svc, closeTransport, err := buildMessagingService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTransport()

	engine := conversation.NewEngine(st)
	server := api.NewServer(st, svc, engine, buildAPIOptions(cfg)...)

	if svc != nil {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("start messaging service: %w", err)
		}
		defer svc.Stop()
		server.ResponseHandler().Start(ctx, svc)
	}

	sched := scheduler.NewScheduler(ctx)
	defer sched.Stop()
	if err := sched.AddJob(metricsJobName, cfg.MetricsCron, server.Metrics().Refresh); err != nil {
		return err
	}
	sched.RunNow(metricsJobName, server.Metrics().Refresh)

	if err := server.Run(ctx); err != nil {
		slog.Error("DigiLync failed to run", "error", err)
		return err
	}
	slog.Info("DigiLync exited successfully")
	return nil
}

// buildMessagingService returns the configured WhatsApp transport, or a nil
// Service when none is available. The returned func releases the transport.
func buildMessagingService(ctx context.Context, cfg Config) (messaging.Service, func(), error) {
	noop := func() {}
	switch cfg.Transport {
	case TransportTwilio:
		opts := []twiliowhatsapp.Option{
			twiliowhatsapp.WithAccountSID(cfg.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(cfg.TwilioAuthToken),
			twiliowhatsapp.WithFromWhats(cfg.TwilioFrom),
		}
		if cfg.PublicURL != "" {
			opts = append(opts, twiliowhatsapp.WithStatusCallback(cfg.PublicURL+"/api/whatsapp/status"))
		}
		client, err := twiliowhatsapp.NewClient(opts...)
		if errors.Is(err, twiliowhatsapp.ErrMissingCredentials) {
			slog.Warn("Twilio credentials not set, WhatsApp webhook disabled")
			return nil, noop, nil
		}
		if err != nil {
			return nil, noop, fmt.Errorf("twilio client: %w", err)
		}
		return messaging.NewTwilioService(client, messaging.WithCountryCode(cfg.CountryCode)), noop, nil

	case TransportWhatsmeow:
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(cfg.whatsmeowDSN())}
		if cfg.QROutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(cfg.QROutput))
		}
		if cfg.NumericCode {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, noop, fmt.Errorf("whatsmeow client: %w", err)
		}
		return messaging.NewWhatsAppService(client), client.Disconnect, nil

	default:
		slog.Info("WhatsApp transport disabled")
		return nil, noop, nil
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(cfg Config) []api.Option {
	apiOpts := []api.Option{api.WithAddr(cfg.APIAddr)}
	if cfg.PublicURL != "" {
		apiOpts = append(apiOpts, api.WithPublicURL(cfg.PublicURL))
	}
	if len(cfg.CORSOrigins) > 0 {
		apiOpts = append(apiOpts, api.WithCORSOrigins(cfg.CORSOrigins...))
	}
	if cfg.Transport == TransportTwilio && cfg.ValidateSignature {
		if cfg.TwilioAuthToken == "" {
			slog.Warn("Signature validation requested without TWILIO_AUTH_TOKEN, skipping")
		} else {
			apiOpts = append(apiOpts, api.WithSignatureValidation(cfg.TwilioAuthToken))
		}
	}
	return apiOpts
}

// runMigrate opens the configured store, which applies pending migrations.
func runMigrate(out io.Writer, cfg Config) error {
	dsn := cfg.storeDSN()
	if dsn == "" {
		return errors.New("migrate: no database configured")
	}
	st, err := store.Open(dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := st.Close(); err != nil {
		return fmt.Errorf("migrate: close store: %w", err)
	}
	fmt.Fprintf(out, "Migrations applied (%s)\n", store.DetectDSNType(dsn))
	return nil
}
