package parse

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Error codes returned by Parse Server that the gateway reacts to.
const (
	CodeObjectNotFound      = 101
	CodeUsernameTaken       = 202
	CodeSessionMissing      = 206
	CodeInvalidSessionToken = 209
)

// Error is a failure reported by the backend as {"code": n, "error": "..."}.
type Error struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return e.Message
}

func decodeError(status int, raw []byte) error {
	perr := &Error{Status: status}
	if err := json.Unmarshal(raw, perr); err != nil || strings.TrimSpace(perr.Message) == "" {
		perr.Message = strings.TrimSpace(string(raw))
		if perr.Message == "" {
			perr.Message = http.StatusText(status)
		}
	}
	return perr
}

// IsInvalidSession reports whether err means the caller's session token is unknown or expired.
func IsInvalidSession(err error) bool {
	var perr *Error
	if !errors.As(err, &perr) {
		return false
	}
	return perr.Code == CodeInvalidSessionToken || perr.Code == CodeSessionMissing
}

// IsNotFound reports whether the backend has no object with the requested id.
func IsNotFound(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Code == CodeObjectNotFound
}
