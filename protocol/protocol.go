// Package protocol provides the JSON wire types spoken by the agent's HTTP
// and WebSocket endpoints. It has no dependencies on the rest of the agent
// so clients can import it on its own.
package protocol

import (
	"encoding/json"
	"time"
)

// WebSocket message types.
const (
	WSTypeRegisterDevice = "registerDevice"
	WSTypeTagData        = "tagData"
	WSTypeHeartbeat      = "heartbeat"
	WSTypeAck            = "ack"
	WSTypeError          = "error"

	// Reader events are forwarded under their event names.
	WSTypeReaderWatch  = "reader-watch"
	WSTypeReaderStatus = "reader-status"
)

// WebSocketMessage is the envelope of every message the agent sends.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is the envelope of incoming messages. The payload is
// decoded once the type is known.
type WebSocketRequest struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the request payload into v. An absent payload
// decodes as an empty object.
func (r WebSocketRequest) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(r.Payload, v)
}

// WebSocketResponse answers a request.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorPayload describes a rejected request.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeParse          = "PARSE_ERROR"
	ErrCodeInvalidType    = "INVALID_MESSAGE_TYPE"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeRegistration   = "REGISTRATION_FAILED"
	ErrCodeInvalidTagData = "INVALID_TAG_DATA"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}
