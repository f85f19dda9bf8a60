package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DigiLync/digilync/internal/models"
	"github.com/DigiLync/digilync/internal/twiliowhatsapp"
)

// TwilioService implements Service on top of the Twilio REST API. Inbound
// messages arrive through the HTTP webhook, so Responses never emits.
type TwilioService struct {
	client      twiliowhatsapp.Sender // real Twilio client or MockClient
	countryCode string
	receipts    chan models.Receipt
	responses   chan models.InboundMessage
	mu          sync.RWMutex
	stopped     bool
}

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithCountryCode sets the country code prepended to national numbers.
func WithCountryCode(code string) TwilioOption {
	return func(s *TwilioService) {
		if code != "" {
			s.countryCode = code
		}
	}
}

// NewTwilioService creates a TwilioService over client.
func NewTwilioService(client twiliowhatsapp.Sender, opts ...TwilioOption) *TwilioService {
	s := &TwilioService{
		client:      client,
		countryCode: DefaultCountryCode,
		receipts:    make(chan models.Receipt, DefaultChannelBufferSize),
		responses:   make(chan models.InboundMessage, DefaultChannelBufferSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateAndCanonicalizeRecipient normalizes recipient to E.164 using the
// service's default country code.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := CanonicalizeRecipient(recipient, s.countryCode)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op for Twilio.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the channels. Sends after Stop fail with ErrServiceStopped.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.receipts)
	close(s.responses)
	return nil
}

// SendMessage sends a text message via Twilio and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	return s.send(ctx, to, func(canonical string) (string, error) {
		return s.client.SendMessage(ctx, canonical, body)
	})
}

// SendTemplate sends an approved content template via Twilio.
func (s *TwilioService) SendTemplate(ctx context.Context, to string, contentSID string, vars map[string]string) error {
	return s.send(ctx, to, func(canonical string) (string, error) {
		return s.client.SendTemplate(ctx, canonical, contentSID, vars)
	})
}

func (s *TwilioService) send(ctx context.Context, to string, deliver func(canonical string) (string, error)) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.send: invalid recipient", "error", err, "to", to)
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrServiceStopped
	}

	sid, err := deliver(canonicalTo)
	if err != nil {
		return err
	}
	s.emitReceipt(models.Receipt{MessageID: sid, To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns the channel for sent message receipts
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns the inbound channel (unused for Twilio)
func (s *TwilioService) Responses() <-chan models.InboundMessage {
	return s.responses
}

// emitReceipt must be called with s.mu held for reading.
func (s *TwilioService) emitReceipt(receipt models.Receipt) {
	select {
	case s.receipts <- receipt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService receipts channel blocked, dropping receipt", "to", receipt.To, "message_id", receipt.MessageID)
	}
}
