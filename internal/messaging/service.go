// Package messaging delivers WhatsApp replies over the configured transport
// and routes inbound messages into the conversation engine.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/DigiLync/digilync/internal/models"
)

// Constants for messaging service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for receipt and response channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
	// DefaultCountryCode is prepended to national numbers (Cameroon).
	DefaultCountryCode = "237"
)

var (
	// ErrServiceStopped is returned when sending through a stopped service.
	ErrServiceStopped = errors.New("messaging service stopped")
	// ErrInvalidRecipient is returned for a recipient without usable digits.
	ErrInvalidRecipient = errors.New("invalid recipient phone number")
)

// Sender delivers a text message to a WhatsApp user.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Service defines a pluggable message delivery abstraction.
// It supports sending messages, and provides channels for receipt and inbound events.
type Service interface {
	Sender

	// ValidateAndCanonicalizeRecipient returns the recipient as an E.164
	// number ("+237675000111").
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// Start begins any background processing (e.g., event handling).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the channels.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of inbound messages delivered by the
	// transport itself. Webhook-driven transports never emit on it.
	Responses() <-chan models.InboundMessage
}
