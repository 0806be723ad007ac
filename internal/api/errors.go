package api

import (
	"encoding/json"
	"fmt"
)

// FallbackMessage is shown when a failed response carries no usable message.
const FallbackMessage = "Something went wrong. Please try again."

// Error is a non-success response from the verification service. Message is
// the text the service sent, suitable for showing to the user unmodified.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// ExtractMessage picks the user-facing message out of an error body. The
// first available of these wins: a top-level "message" string, the "msg" of
// the first entry of a "detail" list, a "detail" string, a "message" inside a
// "detail" object. Anything else yields FallbackMessage.
func ExtractMessage(body []byte) string {
	var payload struct {
		Message json.RawMessage `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return FallbackMessage
	}

	if msg, ok := asString(payload.Message); ok {
		return msg
	}

	var fieldErrors []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(payload.Detail, &fieldErrors) == nil && len(fieldErrors) > 0 {
		if fieldErrors[0].Msg != "" {
			return fieldErrors[0].Msg
		}
		return FallbackMessage
	}

	if msg, ok := asString(payload.Detail); ok {
		return msg
	}

	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(payload.Detail, &nested) == nil && nested.Message != "" {
		return nested.Message
	}
	return FallbackMessage
}

func asString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

// TransportError wraps a failure to reach the service at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
