// Package models defines the core data structures for DigiLync.
//
// It includes the marketplace records (farmers, providers, bookings, ratings),
// the WhatsApp conversation session, and the JSON envelope used by the API.
package models

import "errors"

// Validation constants for input validation
const (
	// MaxNameLength defines the maximum allowed length for a person's full name
	MaxNameLength = 200
	// MaxNotesLength defines the maximum allowed length for free-form notes
	MaxNotesLength = 4096
	// MinRating is the lowest admin rating accepted
	MinRating = 1.0
	// MaxRating is the highest admin rating accepted
	MaxRating = 5.0
	// DefaultAdminID is used when a rating is submitted without an admin id
	DefaultAdminID int64 = 1
)

// Error variables for better error handling and testability
var (
	ErrMissingFullName     = errors.New("full name is required")
	ErrMissingPhone        = errors.New("phone is required")
	ErrNameTooLong         = errors.New("full name exceeds maximum length")
	ErrNotesTooLong        = errors.New("notes exceed maximum length")
	ErrNegativeValue       = errors.New("numeric values cannot be negative")
	ErrMissingBookingParty = errors.New("farmer_id and provider_id are required")
	ErrMissingServiceType  = errors.New("service_type is required")
	ErrInvalidBookingState = errors.New("invalid booking status")
	ErrMissingRatee        = errors.New("ratee_type and ratee_id are required")
	ErrInvalidRateeType    = errors.New("ratee_type must be farmer or provider")
	ErrRatingOutOfRange    = errors.New("rating must be between 1 and 5")
	ErrInvalidDate         = errors.New("scheduled_date must be in YYYY-MM-DD format")
	ErrInvalidTime         = errors.New("scheduled_time must be in HH:MM format")
)

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	// MessageStatusQueued indicates the message was accepted by the provider.
	MessageStatusQueued MessageStatus = "queued"
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
	// MessageStatusUndelivered indicates the carrier could not deliver the message.
	MessageStatusUndelivered MessageStatus = "undelivered"
)

// Receipt is a delivery status report for an outbound message.
type Receipt struct {
	MessageID string        `json:"message_id"`
	To        string        `json:"to"`
	Status    MessageStatus `json:"status"`
	ErrorCode string        `json:"error_code,omitempty"`
	Time      int64         `json:"time"`
}

// InboundMessage is a single message received from a WhatsApp user,
// independent of the transport that delivered it.
type InboundMessage struct {
	MessageID   string   `json:"message_id,omitempty"`
	From        string   `json:"from"`
	Text        string   `json:"text"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
}

// HasLocation reports whether both coordinates were shared.
func (m InboundMessage) HasLocation() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
