package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DigiLync/digilync/internal/models"
	"github.com/DigiLync/digilync/internal/store"
	"github.com/DigiLync/digilync/internal/twiliowhatsapp"
)

// stubReplier answers every message with reply, or fails with err.
type stubReplier struct {
	reply string
	err   error
	calls []models.InboundMessage
}

func (s *stubReplier) HandleIncoming(ctx context.Context, msg models.InboundMessage) (string, error) {
	s.calls = append(s.calls, msg)
	return s.reply, s.err
}

func newTestHandler(t *testing.T, replier Replier, opts ...HandlerOption) (*ResponseHandler, *twiliowhatsapp.MockClient) {
	t.Helper()
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	t.Cleanup(func() { svc.Stop() })
	return NewResponseHandler(replier, svc, opts...), mock
}

func TestProcessResponse_SendsReply(t *testing.T) {
	replier := &stubReplier{reply: "Welcome!"}
	rh, mock := newTestHandler(t, replier)

	err := rh.ProcessResponse(context.Background(), models.InboundMessage{From: "whatsapp:+237675000111", Text: "hi"})
	if err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	sent := mock.Messages()
	if len(sent) != 1 || sent[0].To != "+237675000111" || sent[0].Body != "Welcome!" {
		t.Errorf("unexpected sends: %+v", sent)
	}
}

func TestProcessResponse_EmptyReplySendsNothing(t *testing.T) {
	rh, mock := newTestHandler(t, &stubReplier{})

	if err := rh.ProcessResponse(context.Background(), models.InboundMessage{From: "+237675000111"}); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	if n := len(mock.Messages()); n != 0 {
		t.Errorf("expected no sends, got %d", n)
	}
}

func TestProcessResponse_EngineErrorSendsApology(t *testing.T) {
	engineErr := errors.New("database unavailable")
	rh, mock := newTestHandler(t, &stubReplier{err: engineErr})

	err := rh.ProcessResponse(context.Background(), models.InboundMessage{From: "+237675000111", Text: "hi"})
	if !errors.Is(err, engineErr) {
		t.Fatalf("expected wrapped engine error, got %v", err)
	}
	sent := mock.Messages()
	if len(sent) != 1 || sent[0].Body != ApologyMessage {
		t.Errorf("expected apology, got %+v", sent)
	}
}

func TestProcessResponse_SendFailureIsNotAnError(t *testing.T) {
	rh, mock := newTestHandler(t, &stubReplier{reply: "Welcome!"})
	mock.Err = errors.New("twilio down")

	if err := rh.ProcessResponse(context.Background(), models.InboundMessage{From: "+237675000111", Text: "hi"}); err != nil {
		t.Errorf("delivery failures must not fail processing, got %v", err)
	}
}

func TestProcessResponse_DropsDuplicates(t *testing.T) {
	st := store.NewInMemoryStore()
	replier := &stubReplier{reply: "ok"}
	rh, mock := newTestHandler(t, replier, WithDedup(st))
	msg := models.InboundMessage{MessageID: "SM1", From: "+237675000111", Text: "1"}

	if err := rh.ProcessResponse(context.Background(), msg); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := rh.ProcessResponse(context.Background(), msg); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on redelivery, got %v", err)
	}
	if len(replier.calls) != 1 || len(mock.Messages()) != 1 {
		t.Errorf("expected one engine call and one send, got %d and %d", len(replier.calls), len(mock.Messages()))
	}

	// Messages without an id are never deduplicated.
	msg.MessageID = ""
	rh.ProcessResponse(context.Background(), msg)
	rh.ProcessResponse(context.Background(), msg)
	if len(replier.calls) != 3 {
		t.Errorf("expected id-less messages to be processed, got %d calls", len(replier.calls))
	}
}

// failOnceReplier fails its first call and succeeds afterwards.
type failOnceReplier struct {
	calls int
}

func (f *failOnceReplier) HandleIncoming(ctx context.Context, msg models.InboundMessage) (string, error) {
	f.calls++
	if f.calls == 1 {
		return "", errors.New("db down")
	}
	return "ok", nil
}

func TestProcessResponse_RetryAfterEngineErrorIsProcessed(t *testing.T) {
	st := store.NewInMemoryStore()
	replier := &failOnceReplier{}
	rh, mock := newTestHandler(t, replier, WithDedup(st))
	msg := models.InboundMessage{MessageID: "SM1", From: "+237675000111", Text: "1"}

	if err := rh.ProcessResponse(context.Background(), msg); err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected engine error on first attempt, got %v", err)
	}
	if err := rh.ProcessResponse(context.Background(), msg); err != nil {
		t.Fatalf("expected retry to be processed, got %v", err)
	}
	if replier.calls != 2 {
		t.Errorf("expected two engine calls, got %d", replier.calls)
	}
	if err := rh.ProcessResponse(context.Background(), msg); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate after successful processing, got %v", err)
	}
	sent := mock.Messages()
	if len(sent) != 2 || sent[0].Body != ApologyMessage || sent[1].Body != "ok" {
		t.Errorf("expected apology then reply, got %+v", sent)
	}
}

func TestResponseHandler_StartRecordsReceiptsAndResponses(t *testing.T) {
	st := store.NewInMemoryStore()
	replier := &stubReplier{reply: "ok"}
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	rh := NewResponseHandler(replier, svc, WithReceiptStore(st))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rh.Start(ctx, svc)

	if err := svc.SendMessage(ctx, "+237675000111", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		receipts, _ := st.GetReceipts(ctx, "SM00000000000000000000000000000001")
		if len(receipts) == 1 {
			if receipts[0].Status != models.MessageStatusSent {
				t.Errorf("expected sent receipt, got %s", receipts[0].Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("receipt was not recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
	svc.Stop()
}
