package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTransportFailure   = errors.New("transport failure")
	ErrQuotaOrAuthFailure = errors.New("quota or auth failure")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrEmptyResult        = errors.New("empty result")
)

type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindTransport      ErrorKind = "TRANSPORT_FAILURE"
	KindQuotaOrAuth    ErrorKind = "QUOTA_OR_AUTH_FAILURE"
	KindMalformed      ErrorKind = "MALFORMED_RESPONSE"
	KindEmptyResult    ErrorKind = "EMPTY_RESULT"
	KindUnclassifiable ErrorKind = "UNKNOWN"
)

// KindOf classifies err against the taxonomy. Context cancellation and
// deadlines count as transport failures.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrQuotaOrAuthFailure):
		return KindQuotaOrAuth
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	case errors.Is(err, ErrEmptyResult):
		return KindEmptyResult
	case errors.Is(err, ErrTransportFailure),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransport
	default:
		return KindUnclassifiable
	}
}

// Wrap tags cause with a taxonomy sentinel and the backend/operation that hit it.
func Wrap(sentinel error, backend, op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s %s: %w", backend, op, sentinel)
	}
	return fmt.Errorf("%s %s: %w: %v", backend, op, sentinel, cause)
}

// ClassifyStatus maps an HTTP status from a backend onto the taxonomy.
func ClassifyStatus(status int) error {
	switch {
	case status == 401 || status == 403 || status == 429:
		return ErrQuotaOrAuthFailure
	default:
		return ErrTransportFailure
	}
}

// UserMessage is the banner text shown for a failed call.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindQuotaOrAuth:
		return "The generation service rejected the request (quota or credentials). Please try again later."
	case KindMalformed:
		return "The generation service returned an unreadable answer. Please try again."
	case KindEmptyResult:
		return "No further unique content could be produced from this material."
	case KindTransport:
		return "The generation service is unreachable right now. Please retry."
	default:
		return "Something went wrong while generating. Please retry."
	}
}
