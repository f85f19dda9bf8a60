package messaging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/DigiLync/digilync/internal/models"
	"github.com/DigiLync/digilync/internal/whatsapp"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// eventSource is the part of whatsapp.Client the service subscribes to.
type eventSource interface {
	AddEventHandler(h func(evt any)) uint32
}

// WhatsAppService implements Service using the whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client      whatsapp.WhatsAppSender
	events      eventSource // nil for mocks
	countryCode string
	receipts    chan models.Receipt
	responses   chan models.InboundMessage
	mu          sync.RWMutex
	stopped     bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	s := &WhatsAppService{
		client:      client,
		countryCode: DefaultCountryCode,
		receipts:    make(chan models.Receipt, DefaultChannelBufferSize),
		responses:   make(chan models.InboundMessage, DefaultChannelBufferSize),
	}
	if src, ok := client.(eventSource); ok {
		s.events = src
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return s
}

// ValidateAndCanonicalizeRecipient normalizes recipient to E.164.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizeRecipient(recipient, s.countryCode)
}

// Start subscribes to whatsmeow events. Inbound messages and receipts are
// forwarded to the Responses and Receipts channels.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.events == nil {
		slog.Debug("WhatsAppService no event source available, skipping event handling (likely mock)")
		return nil
	}
	s.events.AddEventHandler(s.handleEvent)
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop closes the channels; later events are dropped.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.receipts)
	close(s.responses)
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrServiceStopped
	}

	id, err := s.client.SendMessage(ctx, canonicalTo, body)
	if err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", canonicalTo)
		return err
	}
	s.forwardReceipt(models.Receipt{MessageID: id, To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns a channel of receipt events.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns a channel of inbound messages.
func (s *WhatsAppService) Responses() <-chan models.InboundMessage {
	return s.responses
}

func (s *WhatsAppService) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		msg, ok := InboundFromEvent(v)
		if !ok {
			return
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.stopped {
			return
		}
		select {
		case s.responses <- msg:
			slog.Debug("WhatsAppService inbound message forwarded", "from", msg.From, "message_id", msg.MessageID)
		case <-time.After(DefaultChannelTimeout):
			slog.Warn("WhatsAppService responses channel blocked, dropping message", "from", msg.From, "timeout", DefaultChannelTimeout)
		}
	case *events.Receipt:
		for _, r := range receiptsFromEvent(v) {
			s.mu.RLock()
			if !s.stopped {
				s.forwardReceipt(r)
			}
			s.mu.RUnlock()
		}
	}
}

// forwardReceipt must be called with s.mu held for reading.
func (s *WhatsAppService) forwardReceipt(r models.Receipt) {
	select {
	case s.receipts <- r:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService receipts channel blocked, dropping receipt", "to", r.To, "timeout", DefaultChannelTimeout)
	}
}

// InboundFromEvent converts a whatsmeow message event. Group messages, our
// own messages and content without text or location are skipped.
func InboundFromEvent(evt *events.Message) (models.InboundMessage, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return models.InboundMessage{}, false
	}
	from, ok := phoneFromJID(evt.Info.Sender, evt.Info.SenderAlt)
	if !ok {
		slog.Warn("WhatsAppService dropping message without a phone number sender", "sender", evt.Info.Sender.String(), "message_id", evt.Info.ID)
		return models.InboundMessage{}, false
	}
	msg := models.InboundMessage{
		MessageID:   string(evt.Info.ID),
		From:        from,
		DisplayName: evt.Info.PushName,
	}

	m := evt.Message
	switch {
	case m.GetConversation() != "":
		msg.Text = m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		msg.Text = m.GetExtendedTextMessage().GetText()
	case m.GetLocationMessage() != nil:
		loc := m.GetLocationMessage()
		lat, lng := loc.GetDegreesLatitude(), loc.GetDegreesLongitude()
		msg.Latitude, msg.Longitude = &lat, &lng
	default:
		slog.Debug("WhatsAppService ignoring unsupported message type", "from", evt.Info.Sender.String())
		return models.InboundMessage{}, false
	}
	msg.Text = strings.TrimSpace(msg.Text)
	return msg, true
}

// phoneFromJID returns the E.164 phone number behind a user JID. Hidden
// (LID) identities carry the phone number JID in alt, when whatsmeow knows it.
func phoneFromJID(jid, alt types.JID) (string, bool) {
	if jid.Server == types.HiddenUserServer {
		jid = alt
	}
	if jid.Server != types.DefaultUserServer || jid.User == "" {
		return "", false
	}
	return "+" + jid.User, true
}

func receiptsFromEvent(evt *events.Receipt) []models.Receipt {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	default:
		return nil
	}
	to, _ := phoneFromJID(evt.MessageSource.Chat, evt.MessageSource.SenderAlt)
	out := make([]models.Receipt, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		out = append(out, models.Receipt{MessageID: string(id), To: to, Status: status, Time: evt.Timestamp.Unix()})
	}
	return out
}
