// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package upstream defines the error shared by every client that talks to an
// external service on behalf of a request.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"unicode/utf8"
)

// Provider names reported in errors and outbound responses.
const (
	ProviderCompletion = "completion"
	ProviderSearch     = "search"
)

// Reason classifies why an upstream call failed.
type Reason string

const (
	// ReasonTransport means no response was received.
	ReasonTransport Reason = "transport"
	// ReasonStatus means the provider answered with a non-success status.
	ReasonStatus Reason = "status"
	// ReasonDecode means the response body did not match the expected schema.
	ReasonDecode Reason = "decode"
	// ReasonTimeout means the per-call deadline expired.
	ReasonTimeout Reason = "timeout"
)

// Error is returned by completion and search clients for any upstream failure.
type Error struct {
	Provider   string // ProviderCompletion or ProviderSearch
	Backend    string // concrete backend, e.g. "openai", "serper"
	Reason     Reason
	StatusCode int // set when Reason == ReasonStatus
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s provider unavailable (%s)", e.Provider, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport wraps err as a transport failure, or as a timeout when the
// underlying cause is an expired deadline.
func Transport(provider, backend string, err error) *Error {
	reason := ReasonTransport
	if IsTimeout(err) {
		reason = ReasonTimeout
	}
	return &Error{Provider: provider, Backend: backend, Reason: reason, Err: err}
}

// Status builds a non-success status error. body is the (possibly truncated)
// response body, kept for diagnostics.
func Status(provider, backend string, code int, body string) *Error {
	var err error
	if body != "" {
		err = errors.New(truncate(body, 512))
	}
	return &Error{Provider: provider, Backend: backend, Reason: ReasonStatus, StatusCode: code, Err: err}
}

// Decode wraps a schema mismatch.
func Decode(provider, backend string, err error) *Error {
	return &Error{Provider: provider, Backend: backend, Reason: ReasonDecode, Err: err}
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsTransport reports whether err looks like a failure to get any response.
func IsTransport(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) || IsTimeout(err) || errors.Is(err, context.Canceled)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
