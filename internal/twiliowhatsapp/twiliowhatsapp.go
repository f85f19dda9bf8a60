// Package twiliowhatsapp wraps the Twilio REST API for WhatsApp messaging in DigiLync.
package twiliowhatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// AddressPrefix marks a Twilio address as a WhatsApp channel.
const AddressPrefix = "whatsapp:"

// ErrMissingCredentials is returned when the account SID or auth token is absent.
var ErrMissingCredentials = errors.New("twilio account SID and auth token must be provided")

// Sender sends WhatsApp messages through Twilio. Recipients are E.164 numbers
// ("+237675000111"); the channel prefix is added here. The returned string is
// the Twilio message SID.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) (string, error)
	SendTemplate(ctx context.Context, to string, contentSID string, vars map[string]string) (string, error)
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID     string
	AuthToken      string
	FromWhats      string
	StatusCallback string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number, with or without the
// "whatsapp:" prefix.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// WithStatusCallback sets the URL Twilio posts delivery status updates to.
func WithStatusCallback(url string) Option {
	return func(o *Opts) { o.StatusCallback = url }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client         *twilio.RestClient
	fromWhats      string // "whatsapp:+1234567890"
	statusCallback string
}

// NewClient builds a Client. Unset options fall back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_WHATSAPP_FROM.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_WHATSAPP_FROM")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "",
		"StatusCallback_set", cfg.StatusCallback != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:         client,
		fromWhats:      Address(cfg.FromWhats),
		statusCallback: cfg.StatusCallback,
	}, nil
}

// Address returns number as a Twilio WhatsApp address.
func Address(number string) string {
	if strings.HasPrefix(number, AddressPrefix) {
		return number
	}
	return AddressPrefix + number
}

func (c *Client) baseParams(to string) *twilioApi.CreateMessageParams {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(Address(to))
	params.SetFrom(c.fromWhats)
	if c.statusCallback != "" {
		params.SetStatusCallback(c.statusCallback)
	}
	return params
}

func (c *Client) create(to string, params *twilioApi.CreateMessageParams) (string, error) {
	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Client.create: Twilio CreateMessage failed", "to", to, "error", err)
		return "", fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	var sid string
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("Client.create: Twilio message accepted", "to", to, "message_id", sid)
	return sid, nil
}

// SendMessage sends a plain text WhatsApp message.
func (c *Client) SendMessage(ctx context.Context, to string, body string) (string, error) {
	params := c.baseParams(to)
	params.SetBody(body)
	return c.create(to, params)
}

// SendTemplate sends an approved content template. vars are the numbered
// template placeholders, e.g. {"1": "Amara"}.
func (c *Client) SendTemplate(ctx context.Context, to string, contentSID string, vars map[string]string) (string, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	encoded, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("encode template variables: %w", err)
	}
	params := c.baseParams(to)
	params.SetContentSid(contentSID)
	params.SetContentVariables(string(encoded))
	return c.create(to, params)
}

// SignatureValidator checks the X-Twilio-Signature header of webhook requests.
type SignatureValidator struct {
	validator twilioclient.RequestValidator
}

// NewSignatureValidator creates a validator for the account's auth token.
func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{validator: twilioclient.NewRequestValidator(authToken)}
}

// Validate reports whether signature matches the public url and form params
// of a webhook request.
func (v *SignatureValidator) Validate(url string, params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	return v.validator.Validate(url, params, signature)
}

// MockClient records messages instead of calling Twilio. It is safe for
// concurrent use.
type MockClient struct {
	mu        sync.Mutex
	Err       error
	Sent      []SentMessage
	Templates []SentTemplate
	nextID    int
}

// SentMessage is a text message recorded by MockClient.
type SentMessage struct {
	To   string
	Body string
}

// SentTemplate is a template message recorded by MockClient.
type SentTemplate struct {
	To         string
	ContentSID string
	Vars       map[string]string
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) sid() string {
	m.nextID++
	return fmt.Sprintf("SM%032d", m.nextID)
}

// SendMessage records the message, or returns m.Err when set.
func (m *MockClient) SendMessage(ctx context.Context, to string, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return m.sid(), nil
}

// SendTemplate records the template send, or returns m.Err when set.
func (m *MockClient) SendTemplate(ctx context.Context, to string, contentSID string, vars map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.Templates = append(m.Templates, SentTemplate{To: to, ContentSID: contentSID, Vars: vars})
	return m.sid(), nil
}

// Messages returns a copy of the recorded text messages.
func (m *MockClient) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.Sent...)
}
