package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// EncodeSSE writes env as a single Server-Sent Events frame:
//
//	event: <kind>
//	data: <json payload>
func EncodeSSE(w io.Writer, env Envelope) error {
	data, err := json.Marshal(env.Payload())
	if err != nil {
		return errors.Join(ErrMalformedInput, err)
	}
	var buf bytes.Buffer
	buf.Grow(len(env.Kind()) + len(data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(sanitizeField(env.Kind()))
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Join(ErrTransport, err)
	}
	return nil
}

// EncodeFrame renders env as a socket text frame: the payload object with a
// "type" key set to the kind. A "type" key in the payload is overwritten.
func EncodeFrame(env Envelope) ([]byte, error) {
	obj := env.Payload()
	obj["type"] = env.Kind()
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, errors.Join(ErrMalformedInput, err)
	}
	return data, nil
}

// Frame is a decoded inbound socket message.
type Frame struct {
	Type string
	Raw  json.RawMessage
}

// DecodeFrame parses an inbound `{"type": ...}` object.
func DecodeFrame(data []byte) (Frame, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Frame{}, errors.Join(ErrMalformedInput, err)
	}
	if head.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedInput)
	}
	return Frame{Type: head.Type, Raw: data}, nil
}

// Bind decodes the frame into v and validates its struct tags.
func (f Frame) Bind(v any) error {
	if err := json.Unmarshal(f.Raw, v); err != nil {
		return errors.Join(ErrMalformedInput, err)
	}
	if err := validate.Struct(v); err != nil {
		return errors.Join(ErrMalformedInput, err)
	}
	return nil
}

// sanitizeField keeps an event name on one line.
func sanitizeField(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
