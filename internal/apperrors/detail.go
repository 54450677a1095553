package apperrors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// FromResponse classifies a non-2xx backend response. body is the raw
// response body; it may be empty or not JSON at all.
func FromResponse(status int, body []byte) *Error {
	detail, existing := decodeDetail(body)

	switch {
	case status == http.StatusUnauthorized || status == 419:
		msg := detail
		if msg == "" {
			msg = "Your session has expired. Please log in again."
		}
		return &Error{Code: CodeAuth, Message: msg, Status: status}
	case status == http.StatusConflict && existing != nil:
		return Conflict(*existing)
	}

	msg := detail
	if msg == "" {
		msg = fmt.Sprintf("The server answered %d %s.", status, http.StatusText(status))
	}
	return &Error{Code: CodeServer, Message: msg, Status: status}
}

func decodeDetail(body []byte) (string, *ExistingRegistration) {
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if len(body) == 0 || json.Unmarshal(body, &env) != nil || len(env.Detail) == 0 {
		return strings.TrimSpace(plainText(body)), nil
	}

	var s string
	if err := json.Unmarshal(env.Detail, &s); err == nil {
		return strings.TrimSpace(s), nil
	}

	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(env.Detail, &list); err == nil {
		msgs := make([]string, 0, len(list))
		for _, item := range list {
			if m := strings.TrimSpace(item.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; "), nil
	}

	var obj struct {
		Message              string                `json:"message"`
		Msg                  string                `json:"msg"`
		Error                string                `json:"error"`
		ExistingRegistration *ExistingRegistration `json:"existing_registration"`
	}
	if err := json.Unmarshal(env.Detail, &obj); err == nil {
		msg := firstNonEmpty(obj.Message, obj.Msg, obj.Error)
		return strings.TrimSpace(msg), obj.ExistingRegistration
	}
	return "", nil
}

// plainText keeps short non-JSON bodies (proxies, gateways) readable.
func plainText(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" || strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") || strings.HasPrefix(s, "<") {
		return ""
	}
	if r := []rune(s); len(r) > maxPlainText {
		s = string(r[:maxPlainText])
	}
	return s
}

const maxPlainText = 200

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
