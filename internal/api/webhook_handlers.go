package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DigiLync/digilync/internal/messaging"
	"github.com/DigiLync/digilync/internal/models"
)

// Twilio posts form-encoded bodies and only looks at the status code, so the
// webhook endpoints answer with plain text instead of the JSON envelope.

func (s *Server) whatsappWebhookHandler(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r.Context())
	if s.respHandler == nil {
		slog.Warn("Server.whatsappWebhook: WhatsApp not configured", "request_id", reqID)
		http.Error(w, "WhatsApp not configured", http.StatusServiceUnavailable)
		return
	}
	params, ok := s.parseTwilioForm(w, r)
	if !ok {
		return
	}

	from := strings.TrimSpace(params["From"])
	if from == "" {
		slog.Warn("Server.whatsappWebhook: missing From", "request_id", reqID)
		http.Error(w, "Missing From", http.StatusBadRequest)
		return
	}

	msg := models.InboundMessage{
		MessageID:   params["MessageSid"],
		From:        from,
		Text:        strings.TrimSpace(params["Body"]),
		Latitude:    parseCoordinate(params["Latitude"]),
		Longitude:   parseCoordinate(params["Longitude"]),
		DisplayName: params["ProfileName"],
	}
	slog.Debug("Server.whatsappWebhook: inbound message", "from", from, "message_id", msg.MessageID, "has_location", msg.HasLocation(), "request_id", reqID)

	err := s.respHandler.ProcessResponse(r.Context(), msg)
	switch {
	case errors.Is(err, messaging.ErrDuplicate):
		w.WriteHeader(http.StatusOK)
	case err != nil:
		slog.Error("Server.whatsappWebhook: processing failed", "from", from, "message_id", msg.MessageID, "error", err, "request_id", reqID)
		w.WriteHeader(http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) whatsappStatusHandler(w http.ResponseWriter, r *http.Request) {
	params, ok := s.parseTwilioForm(w, r)
	if !ok {
		return
	}
	receipt := models.Receipt{
		MessageID: params["MessageSid"],
		To:        models.NormalizePhone(params["To"]),
		Status:    models.MessageStatus(strings.ToLower(params["MessageStatus"])),
		ErrorCode: params["ErrorCode"],
		Time:      time.Now().Unix(),
	}
	if receipt.MessageID != "" && receipt.Status != "" {
		if err := s.st.AddReceipt(r.Context(), receipt); err != nil {
			slog.Warn("Server.whatsappStatus: failed to record receipt", "message_id", receipt.MessageID, "error", err, "request_id", requestID(r.Context()))
		}
	}
	w.WriteHeader(http.StatusOK)
}

// parseTwilioForm parses the form body and, when signature validation is
// enabled, verifies X-Twilio-Signature. It writes the error response itself.
func (s *Server) parseTwilioForm(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return nil, false
	}
	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	if s.validator != nil {
		url := s.webhookURL(r)
		if !s.validator.Validate(url, params, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("Server.parseTwilioForm: signature rejected", "url", url, "request_id", requestID(r.Context()))
			http.Error(w, "Invalid signature", http.StatusForbidden)
			return nil, false
		}
	}
	return params, true
}

// webhookURL reconstructs the URL Twilio signed.
func (s *Server) webhookURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func parseCoordinate(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}
