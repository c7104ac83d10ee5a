package backend

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/dealproof/internal/round"
)

// MessageType distinguishes frames on the dealer websocket.
type MessageType string

const (
	MessageTypeRequest  MessageType = "request"
	MessageTypeResponse MessageType = "response"
	MessageTypePhase    MessageType = "phase"
)

// Method names understood by the dealer.
const (
	MethodRngMetadata        = "get_rng_metadata"
	MethodCardProvenance     = "get_card_provenance"
	MethodServerVerification = "request_server_verification"
)

// Error codes carried by failed responses.
const (
	CodeNotFound    = "not_found"
	CodeNotRevealed = "not_revealed"
	CodeUnavailable = "unavailable"
	CodeInvalid     = "invalid_request"
	CodeInternal    = "internal"
)

// Message is one websocket frame. Requests and responses are correlated by ID;
// phase pushes carry a round.Phase in Data.
type Message struct {
	Type      MessageType     `json:"type"`
	ID        uint64          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Round     round.ID        `json:"round_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *RPCError       `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// RPCError is a failed response.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewMessage marshals data into a message of the given type.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	msg := &Message{Type: msgType, Timestamp: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s data: %w", msgType, err)
		}
		msg.Data = raw
	}
	return msg, nil
}
