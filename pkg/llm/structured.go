package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences removes markdown fences a model may wrap JSON in.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// NewResponse builds the Response for raw model text. Blank freeform text is
// an empty result; structured requests must yield valid JSON once fences are
// stripped.
func NewResponse(kind TaskKind, backend, op, raw string) (*Response, error) {
	if kind == TaskFreeform {
		text := strings.TrimSpace(raw)
		if text == "" {
			return nil, Wrap(ErrEmptyResult, backend, op, fmt.Errorf("blank text"))
		}
		return &Response{Text: text}, nil
	}

	clean := StripCodeFences(raw)
	if clean == "" || !json.Valid([]byte(clean)) {
		return nil, Wrap(ErrMalformedResponse, backend, op, fmt.Errorf("invalid JSON payload: %.120q", clean))
	}
	return &Response{Data: json.RawMessage(clean)}, nil
}

// Decode unmarshals a structured response into T. A shape mismatch is a
// malformed response, never a partially filled value.
func Decode[T any](resp *Response) (T, error) {
	var out T
	if resp == nil || len(resp.Data) == 0 {
		return out, fmt.Errorf("decode: %w", ErrMalformedResponse)
	}
	dec := json.NewDecoder(bytes.NewReader(resp.Data))
	var tmp T
	if err := dec.Decode(&tmp); err != nil {
		return out, fmt.Errorf("decode: %w: %v", ErrMalformedResponse, err)
	}
	return tmp, nil
}
