package ws

import "encoding/json"

// RPCMessage is the type-peek for incoming frames
type RPCMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Event   string          `json:"event,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCRequest is an outgoing request to the bridge
type RPCRequest struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// RPCResponse is an outgoing response
type RPCResponse struct {
	Type    string    `json:"type"`
	ID      string    `json:"id"`
	OK      bool      `json:"ok"`
	Payload any       `json:"payload,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Code + ": " + e.Message
}

// RPCEvent is an outgoing event
type RPCEvent struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Event is an event received from an authenticated bridge.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// Error codes shared with the bridge.
const (
	CodeAuthRequired  = "AUTH_REQUIRED"
	CodeAuthFailed    = "AUTH_FAILED"
	CodeUnknownMethod = "UNKNOWN_METHOD"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
)

func NewRequest(id, method string, params any) RPCRequest {
	return RPCRequest{Type: "req", ID: id, Method: method, Params: params}
}

func NewResponse(id string, payload any) RPCResponse {
	return RPCResponse{Type: "res", ID: id, OK: true, Payload: payload}
}

func NewErrorResponse(id, code, message string) RPCResponse {
	return RPCResponse{
		Type:  "res",
		ID:    id,
		OK:    false,
		Error: &RPCError{Code: code, Message: message},
	}
}

func NewEvent(event string, payload any) RPCEvent {
	return RPCEvent{Type: "event", Event: event, Payload: payload}
}
