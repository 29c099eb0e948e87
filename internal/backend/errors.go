package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend: status %d", e.StatusCode)
}

// Message returns the human-readable backend message carried by err, or
// fallback when err carries none.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

const maxErrorBody = 64 << 10

func readAPIError(status int, body io.Reader) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return &APIError{StatusCode: status, Message: extractMessage(raw)}
}

// extractMessage looks for message, detail and error fields, then for the
// first field validation error of the form {"field": ["msg"]}.
func extractMessage(raw []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"message", "detail", "error"} {
		if msg := stringValue(payload[key]); msg != "" {
			return msg
		}
	}

	fields := make([]string, 0, len(payload))
	for k := range payload {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for _, field := range fields {
		var list []string
		if err := json.Unmarshal(payload[field], &list); err == nil && len(list) > 0 {
			return strings.TrimSpace(list[0])
		}
	}
	return ""
}

func stringValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0])
	}
	return ""
}
