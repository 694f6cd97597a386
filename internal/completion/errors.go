// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind categorizes transport failures for handling.
type ErrorKind int

const (
	ErrKindUnknown ErrorKind = iota
	ErrKindConnection
	ErrKindTimeout
	ErrKindStatus
	ErrKindCanceled
	ErrKindRead
)

// String returns a short name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindConnection:
		return "connection"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindStatus:
		return "status"
	case ErrKindCanceled:
		return "canceled"
	case ErrKindRead:
		return "read"
	default:
		return "unknown"
	}
}

// TransportError is a failure talking to the completion endpoint. It is fatal
// to the current turn; nothing retries it.
type TransportError struct {
	Kind ErrorKind

	// Status is the HTTP status code for ErrKindStatus.
	Status int

	// Message is the human-readable summary shown to the user.
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Sentinel errors for easy checking.
var (
	// ErrLineTooLong is carried by warning events for oversized stream lines.
	ErrLineTooLong = errors.New("stream line exceeds maximum size")

	// ErrUnexpectedContent is carried by warning events whose delta content is
	// neither a string nor null.
	ErrUnexpectedContent = errors.New("delta content is not a string")

	// ErrNotObject is carried by warning events for JSON payloads that are not
	// objects.
	ErrNotObject = errors.New("stream payload is not a JSON object")
)

// classifyDoError maps an http.Client.Do failure to a TransportError.
func classifyDoError(ctx context.Context, url string, err error) *TransportError {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return &TransportError{Kind: ErrKindCanceled, Message: "request canceled", Cause: err}
	case isTimeout(err):
		return &TransportError{Kind: ErrKindTimeout, Message: "request to " + url + " timed out", Cause: err}
	default:
		return &TransportError{Kind: ErrKindConnection, Message: "cannot reach " + url, Cause: err}
	}
}

// WrapReadError maps a failure while reading the response body to a
// TransportError. A nil err returns nil.
func WrapReadError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return &TransportError{Kind: ErrKindCanceled, Message: "request canceled", Cause: err}
	}
	if isTimeout(err) {
		return &TransportError{Kind: ErrKindTimeout, Message: "stream timed out", Cause: err}
	}
	return &TransportError{Kind: ErrKindRead, Message: "error during streaming", Cause: err}
}

func statusError(status int, statusText, body string) *TransportError {
	msg := fmt.Sprintf("endpoint returned %s", statusText)
	if detail := strings.TrimSpace(body); detail != "" {
		msg += ": " + detail
	}
	return &TransportError{Kind: ErrKindStatus, Status: status, Message: msg}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// =============================================================================
// HELPERS
// =============================================================================

// IsCanceled reports whether err is a canceled request.
func IsCanceled(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind == ErrKindCanceled
	}
	return errors.Is(err, context.Canceled)
}

// IsStatus reports whether err is a non-2xx response, returning the code.
func IsStatus(err error) (int, bool) {
	var te *TransportError
	if errors.As(err, &te) && te.Kind == ErrKindStatus {
		return te.Status, true
	}
	return 0, false
}
