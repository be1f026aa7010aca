package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the transport layer can pick a status code
// without inspecting messages.
type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindValidation
	KindProcessing
	KindPersistence
	KindNotFound
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindProcessing:
		return "processing"
	case KindPersistence:
		return "persistence"
	case KindNotFound:
		return "not_found"
	case KindBusy:
		return "busy"
	default:
		return "internal"
	}
}

// Machine-readable codes carried in error envelopes.
const (
	CodeMissingAPIKey      = "missing_api_key"
	CodeInvalidAPIKey      = "invalid_api_key"
	CodeInvalidRequest     = "invalid_request"
	CodeMissingUserMessage = "missing_user_message"
	CodeProcessingFailed   = "processing_failed"
	CodePersistenceFailed  = "persistence_failed"
	CodeNotFound           = "not_found"
	CodeServerBusy         = "server_busy"
	CodeInternal           = "internal_error"
)

// Error is the tagged result returned by gateway components.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func MissingAPIKey() *Error {
	return New(KindAuth, CodeMissingAPIKey, "Missing bearer token.")
}

func InvalidAPIKey() *Error {
	return New(KindAuth, CodeInvalidAPIKey, "Invalid API key.")
}

func InvalidRequest(message string) *Error {
	return New(KindValidation, CodeInvalidRequest, message)
}

func MissingUserMessage() *Error {
	return New(KindValidation, CodeMissingUserMessage, "No user message found")
}

func NotFound(message string) *Error {
	return New(KindNotFound, CodeNotFound, message)
}

// As extracts an *Error from err. Untagged errors are reported as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindInternal, CodeInternal, "internal server error", err)
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
