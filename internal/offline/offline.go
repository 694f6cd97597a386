// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline keeps mimochat's traffic on the local machine.
//
// The completion endpoint can be pinned to a loopback address, and listen
// addresses that expose the unauthenticated chat to the network are flagged.
package offline

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNonLocalhost is returned for a remote endpoint in local-only mode.
	ErrNonLocalhost = errors.New("only localhost/127.0.0.1 endpoints are allowed in local-only mode")

	// ErrInvalidURLScheme is returned for anything but http and https.
	ErrInvalidURLScheme = errors.New("only http and https schemes are allowed")

	// ErrMissingHost is returned for a URL without a host.
	ErrMissingHost = errors.New("URL has no host")
)

// =============================================================================
// URL VALIDATION
// =============================================================================

// IsLocalhost reports whether host, with or without a port, names the
// loopback interface: "localhost", anything in 127.0.0.0/8, or ::1 in any
// spelling.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// ValidateEndpoint checks a completion endpoint URL. The scheme is always
// checked; the host must be loopback only when localOnly is set.
func ValidateEndpoint(rawURL string, localOnly bool) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURLScheme
	}
	if parsed.Hostname() == "" {
		return ErrMissingHost
	}
	if localOnly && !IsLocalhost(parsed.Hostname()) {
		return ErrNonLocalhost
	}
	return nil
}

// =============================================================================
// LISTEN ADDRESSES
// =============================================================================

// ExposesNetwork reports whether a listen address accepts connections from
// other machines. An empty host binds every interface.
func ExposesNetwork(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	return host == "" || !IsLocalhost(host)
}
