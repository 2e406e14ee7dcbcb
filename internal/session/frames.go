// ABOUTME: Inbound and outbound JSON frame shapes
// ABOUTME: Correlation ids are echoed back exactly as the client sent them

package session

import (
	"encoding/json"
	"fmt"
)

// Inbound event names.
const (
	EventRun         = "run"
	EventCreateAsset = "create_asset"
	EventDeleteAsset = "delete_asset"
	EventStop        = "stop"
	EventActivate    = "activate"
	EventInput       = "input"
)

// Frame is an inbound text frame: {"id", "event", "input"|"data"}.
type Frame struct {
	ID    json.RawMessage `json:"id,omitempty"`
	Event string          `json:"event"`
	Input json.RawMessage `json:"input,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ParseFrame decodes an inbound text frame.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, newError(ProtocolViolation, "parse", err)
	}
	if f.ID == nil || string(f.ID) == "null" {
		f.ID = nil
	}
	return &f, nil
}

// RequestID returns the correlation id as a string. String ids are unquoted;
// other JSON values keep their literal text.
func (f *Frame) RequestID() string {
	if len(f.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.ID, &s); err == nil {
		return s
	}
	return string(f.ID)
}

// InputMap decodes the input payload as an object. Anything else yields an
// empty map.
func (f *Frame) InputMap() map[string]any {
	out := map[string]any{}
	if len(f.Input) > 0 {
		_ = json.Unmarshal(f.Input, &out)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// InputString returns a string input unquoted and any other input as its JSON text.
func (f *Frame) InputString() string {
	if len(f.Input) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Input, &s); err == nil {
		return s
	}
	return string(f.Input)
}

// decodeData decodes the data payload into v. A missing payload leaves v untouched.
func (f *Frame) decodeData(v any) error {
	if len(f.Data) == 0 || string(f.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return newError(ProtocolViolation, f.Event, fmt.Errorf("decoding data: %w", err))
	}
	return nil
}

// decodeInput decodes the input payload into v. A missing payload leaves v untouched.
func (f *Frame) decodeInput(v any) error {
	if len(f.Input) == 0 || string(f.Input) == "null" {
		return nil
	}
	if err := json.Unmarshal(f.Input, v); err != nil {
		return newError(ProtocolViolation, f.Event, fmt.Errorf("decoding input: %w", err))
	}
	return nil
}

type errorsFrame struct {
	Errors    []string        `json:"errors"`
	RequestID json.RawMessage `json:"request_id"`
}

// assetErrorFrame always carries every correlation key, null when the
// create_asset frame had no id.
type assetErrorFrame struct {
	Errors         []string        `json:"errors"`
	ReplyTo        json.RawMessage `json:"reply_to"`
	RequestID      json.RawMessage `json:"request_id"`
	AssetRequestID json.RawMessage `json:"asset_request_id"`
}

type doneFrame struct {
	Event     string          `json:"event"`
	RequestID json.RawMessage `json:"request_id"`
}

type batchDoneFrame struct {
	Event     string          `json:"event"`
	RequestID json.RawMessage `json:"request_id"`
	Data      map[string]any  `json:"data"`
}

type assetFrame struct {
	Asset          string          `json:"asset"`
	ReplyTo        json.RawMessage `json:"reply_to"`
	RequestID      json.RawMessage `json:"request_id"`
	AssetRequestID json.RawMessage `json:"asset_request_id"`
}

type activationFrame struct {
	Event string `json:"event"`
	Error string `json:"error,omitempty"`
}

type activationOutputFrame struct {
	Event  string         `json:"event"`
	Output map[string]any `json:"output"`
}
