package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DigiLync/digilync/internal/models"
	"github.com/DigiLync/digilync/internal/store"
)

// ApologyMessage is sent when an inbound message could not be processed.
const ApologyMessage = "Sorry, something went wrong. Please try again later."

// ErrDuplicate marks an inbound message that was already processed.
var ErrDuplicate = errors.New("duplicate inbound message")

// Replier computes the reply for one inbound message.
type Replier interface {
	HandleIncoming(ctx context.Context, msg models.InboundMessage) (string, error)
}

// ResponseHandler routes inbound messages through the conversation engine and
// delivers the reply. Delivery is best effort: the session has already been
// updated when the reply is sent, and failed sends are logged, not retried.
type ResponseHandler struct {
	replier    Replier
	msgService Sender
	dedup      store.DedupRepo
	receipts   store.ReceiptStore
}

// HandlerOption configures a ResponseHandler.
type HandlerOption func(*ResponseHandler)

// WithDedup drops redelivered messages whose id was already recorded.
func WithDedup(repo store.DedupRepo) HandlerOption {
	return func(rh *ResponseHandler) { rh.dedup = repo }
}

// WithReceiptStore persists receipts read from the service in Start.
func WithReceiptStore(rs store.ReceiptStore) HandlerOption {
	return func(rh *ResponseHandler) { rh.receipts = rs }
}

// NewResponseHandler creates a new ResponseHandler.
func NewResponseHandler(replier Replier, msgService Sender, opts ...HandlerOption) *ResponseHandler {
	rh := &ResponseHandler{replier: replier, msgService: msgService}
	for _, opt := range opts {
		opt(rh)
	}
	return rh
}

// ProcessResponse handles one inbound message. It returns ErrDuplicate for
// redeliveries and a wrapped engine error after attempting to send the
// apology. A failed reply send is logged and not returned.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, msg models.InboundMessage) error {
	phone := models.NormalizePhone(msg.From)

	if rh.dedup != nil && msg.MessageID != "" {
		fresh, err := rh.dedup.RecordInbound(ctx, msg.MessageID, phone)
		switch {
		case err != nil:
			slog.Warn("ResponseHandler.ProcessResponse: dedup check failed, processing anyway", "message_id", msg.MessageID, "error", err)
		case !fresh:
			slog.Info("ResponseHandler.ProcessResponse: duplicate delivery dropped", "message_id", msg.MessageID, "from", phone)
			return ErrDuplicate
		}
	}

	reply, err := rh.replier.HandleIncoming(ctx, msg)
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: engine failed", "from", phone, "message_id", msg.MessageID, "error", err)
		if phone != "" {
			if sendErr := rh.msgService.SendMessage(ctx, phone, ApologyMessage); sendErr != nil {
				slog.Error("ResponseHandler.ProcessResponse: failed to send apology", "from", phone, "error", sendErr)
			}
		}
		return fmt.Errorf("handle inbound message: %w", err)
	}

	if rh.dedup != nil && msg.MessageID != "" {
		if err := rh.dedup.MarkProcessed(ctx, msg.MessageID); err != nil {
			slog.Warn("ResponseHandler.ProcessResponse: mark processed failed", "message_id", msg.MessageID, "error", err)
		}
	}

	if reply == "" {
		return nil
	}
	if err := rh.msgService.SendMessage(ctx, phone, reply); err != nil {
		slog.Error("ResponseHandler.ProcessResponse: reply delivery failed", "to", phone, "error", err)
		return nil
	}
	slog.Debug("ResponseHandler.ProcessResponse: reply sent", "to", phone, "reply_length", len(reply))
	return nil
}

// Start consumes the service's inbound and receipt channels until ctx is
// done or the channels close.
func (rh *ResponseHandler) Start(ctx context.Context, svc Service) {
	slog.Info("ResponseHandler starting response processing")

	go func() {
		defer slog.Info("ResponseHandler stopped response processing")
		responses := svc.Responses()
		receipts := svc.Receipts()
		for responses != nil || receipts != nil {
			select {
			case msg, ok := <-responses:
				if !ok {
					responses = nil
					continue
				}
				if err := rh.ProcessResponse(ctx, msg); err != nil && !errors.Is(err, ErrDuplicate) {
					slog.Error("ResponseHandler failed to process response", "error", err, "from", msg.From)
				}
			case r, ok := <-receipts:
				if !ok {
					receipts = nil
					continue
				}
				rh.recordReceipt(ctx, r)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (rh *ResponseHandler) recordReceipt(ctx context.Context, r models.Receipt) {
	if rh.receipts == nil || r.MessageID == "" {
		return
	}
	if err := rh.receipts.AddReceipt(ctx, r); err != nil {
		slog.Warn("ResponseHandler failed to record receipt", "message_id", r.MessageID, "status", r.Status, "error", err)
	}
}
