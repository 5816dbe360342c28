package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the routing engine. Conflict-class codes are
// deliberately distinct so the dashboard can tell "agent full" from
// "already claimed".
const (
	CodeNotFound           = "not_found"
	CodeAtCapacity         = "at_capacity"
	CodeAlreadyClaimed     = "already_claimed"
	CodeWrongAssignee      = "wrong_assignee"
	CodeConversationClosed = "conversation_closed"
	CodeInvalidState       = "invalid_state"
	CodeFeedbackExists     = "feedback_exists"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidInput       = "invalid_input"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(err error) *Error {
	return New(http.StatusNotFound, CodeNotFound, err)
}

func Conflict(code string, err error) *Error {
	return New(http.StatusConflict, code, err)
}

func InvalidState(err error) *Error {
	return New(http.StatusConflict, CodeInvalidState, err)
}

func BadRequest(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidInput, err)
}

// HasCode reports whether err (or anything it wraps) is an *Error carrying
// the given code.
func HasCode(err error, code string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
