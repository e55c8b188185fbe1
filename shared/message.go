package shared

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcpwire/mcpwire/shared/schema"
)

// Message is the in-memory representation of a single JSON-RPC frame.
// A request carries Method and a present ID; a notification carries Method
// without an "id" key; a response carries ID plus exactly one of
// Result/Error. The "id" key being present but null is distinct from the key
// being absent: the former is still a request.
type Message struct {
	ID        *schema.RequestID `json:"id,omitempty"`
	Timestamp time.Time         `json:"-"`
	Method    *string           `json:"method,omitempty"`
	Params    *json.RawMessage  `json:"params,omitempty"`
	Result    *json.RawMessage  `json:"result,omitempty"`
	Error     *JSONRPCError     `json:"error,omitempty"`

	SessionID string `json:"-"` // Transport session this frame arrived on, if any
}

// IsRequest reports whether the frame is a JSON-RPC request (method + id key).
func (m *Message) IsRequest() bool {
	return m.Method != nil && m.ID != nil
}

// IsNotification reports whether the frame is a notification (method, no id key).
func (m *Message) IsNotification() bool {
	return m.Method != nil && m.ID == nil
}

// IsResponse reports whether the frame is a response to a server-initiated request.
func (m *Message) IsResponse() bool {
	return m.Method == nil && (m.Result != nil || m.Error != nil)
}

// MessageValidator screens an inbound message before it reaches the
// dispatcher. A returned error rejects the message with -32600.
type MessageValidator interface {
	Validate(msg *Message) error
}

// rawFrame mirrors the wire layout with the id captured as raw JSON so that
// "id":null can be told apart from a missing id key.
type rawFrame struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  *string          `json:"method,omitempty"`
	Params  *json.RawMessage `json:"params,omitempty"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError    `json:"error,omitempty"`
}

func (f *rawFrame) toMessage() (*Message, error) {
	if f.JSONRPC != JSONRPCVersion {
		return nil, Errorf(JSONRPCErrorInvalidRequest, "invalid jsonrpc version: %q", f.JSONRPC)
	}
	msg := &Message{
		Method:    f.Method,
		Params:    f.Params,
		Result:    f.Result,
		Error:     f.Error,
		Timestamp: time.Now(),
	}
	if f.ID != nil {
		id := &schema.RequestID{}
		if err := json.Unmarshal(*f.ID, id); err != nil {
			return nil, Errorf(JSONRPCErrorInvalidRequest, "invalid request id: %v", err)
		}
		switch id.Value.(type) {
		case nil, string, float64:
		default:
			return nil, Errorf(JSONRPCErrorInvalidRequest, "request id must be a string, number or null")
		}
		msg.ID = id
	}
	if msg.Method == nil && msg.Result == nil && msg.Error == nil {
		return nil, Errorf(JSONRPCErrorInvalidRequest, "message has neither method nor result/error")
	}
	return msg, nil
}

// ParseMessages decodes a POST body into one or more messages. The second
// return value reports whether the body was a JSON array (a batch).
func ParseMessages(data []byte) ([]*Message, bool, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, false, Errorf(JSONRPCErrorParseError, "empty request body")
	}

	if trimmed[0] == '[' {
		var frames []rawFrame
		if err := json.Unmarshal(data, &frames); err != nil {
			return nil, true, Errorf(JSONRPCErrorParseError, "invalid JSON: %v", err)
		}
		if len(frames) == 0 {
			return nil, true, Errorf(JSONRPCErrorInvalidRequest, "empty batch")
		}
		msgs := make([]*Message, 0, len(frames))
		for i := range frames {
			msg, err := frames[i].toMessage()
			if err != nil {
				return nil, true, err
			}
			msgs = append(msgs, msg)
		}
		return msgs, true, nil
	}

	var frame rawFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, false, Errorf(JSONRPCErrorParseError, "invalid JSON: %v", err)
	}
	msg, err := frame.toMessage()
	if err != nil {
		return nil, false, err
	}
	return []*Message{msg}, false, nil
}

// NewRequest builds an outgoing request frame.
func NewRequest(id schema.RequestID, method string, params interface{}) (*Message, error) {
	var raw *json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request params: %w", err)
		}
		r := json.RawMessage(data)
		raw = &r
	}
	return &Message{ID: &id, Method: &method, Params: raw, Timestamp: time.Now()}, nil
}

// NewNotification builds an outgoing notification frame.
func NewNotification(method string, params interface{}) (*Message, error) {
	var raw *json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notification params: %w", err)
		}
		r := json.RawMessage(data)
		raw = &r
	}
	return &Message{Method: &method, Params: raw, Timestamp: time.Now()}, nil
}

// MarshalResponse encodes a response envelope for the given request id.
// err wins over result; a nil result marshals as JSON null.
func MarshalResponse(id *schema.RequestID, result interface{}, err error) ([]byte, error) {
	if err != nil {
		return json.Marshal(JSONRPCErrorResponse{
			JSONRPC: JSONRPCVersion,
			ID:      id,
			Error:   NewJSONRPCError(err),
		})
	}
	var raw json.RawMessage
	if result == nil {
		raw = json.RawMessage("null")
	} else {
		data, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			return json.Marshal(JSONRPCErrorResponse{
				JSONRPC: JSONRPCVersion,
				ID:      id,
				Error:   Errorf(JSONRPCErrorInternal, "failed to marshal result: %v", marshalErr),
			})
		}
		raw = data
	}
	return json.Marshal(JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: id, Result: &raw})
}
