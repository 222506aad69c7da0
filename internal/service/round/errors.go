package round

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies generation failures.
type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindMissingMetadata Kind = "missing_metadata"
	KindProvider        Kind = "provider"
	KindEmptyResponse   Kind = "empty_response"
	KindMalformedJSON   Kind = "malformed_json"
	KindInvalidShape    Kind = "invalid_shape"
	KindUnexpected      Kind = "unexpected"
)

// Error is returned by every failing generation step.
type Error struct {
	Kind    Kind
	Message string
	// Status is the upstream HTTP status for provider failures.
	Status  int
	Details string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Kind == KindProvider && e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to the status served to clients.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindMissingMetadata:
		return http.StatusBadRequest
	case KindProvider:
		if e.Status >= 400 {
			return e.Status
		}
		return http.StatusBadGateway
	case KindEmptyResponse, KindMalformedJSON:
		return http.StatusBadGateway
	case KindInvalidShape:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func ConfigurationError(msg string) *Error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

func MissingMetadataError() *Error {
	return &Error{Kind: KindMissingMetadata, Message: "missing table metadata or participants"}
}

// ProviderError keeps the raw upstream body so it can be forwarded verbatim.
func ProviderError(status int, body string) *Error {
	return &Error{Kind: KindProvider, Message: "completion provider request failed", Status: status, Details: body}
}

func EmptyResponseError() *Error {
	return &Error{Kind: KindEmptyResponse, Message: "completion provider returned no content"}
}

func MalformedJSONError(err error) *Error {
	e := &Error{Kind: KindMalformedJSON, Message: "failed to parse completion JSON", Err: err}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

func InvalidShapeError() *Error {
	return &Error{Kind: KindInvalidShape, Message: "invalid response structure from model"}
}

func UnexpectedError(err error) *Error {
	return &Error{Kind: KindUnexpected, Message: "unexpected server error", Err: err}
}

// AsError extracts a *Error; anything else is reported as unexpected.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr
	}
	return UnexpectedError(err)
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return AsError(err).Kind
}
