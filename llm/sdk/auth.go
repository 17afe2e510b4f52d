// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"net/http"
)

// AuthProvider provides authentication for HTTP requests.
type AuthProvider interface {
	// Apply adds authentication to an HTTP request.
	Apply(req *http.Request) error
}

// BearerAuth places the API key in the Authorization header as "Bearer <key>".
// This is the scheme used by OpenAI-compatible endpoints.
type BearerAuth struct {
	key string
}

// NewBearerAuth creates a bearer-token authenticator.
func NewBearerAuth(key string) *BearerAuth {
	return &BearerAuth{key: key}
}

// Apply adds the bearer token to the request.
func (a *BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.key)
	return nil
}

// HeaderAuth places the API key in a custom header, optionally alongside
// fixed extra headers. Anthropic-style endpoints use "x-api-key" plus an
// API version header.
type HeaderAuth struct {
	key    string
	name   string
	extras map[string]string
}

// NewHeaderAuth creates an authenticator that sets key under headerName.
func NewHeaderAuth(key, headerName string) *HeaderAuth {
	return &HeaderAuth{key: key, name: headerName}
}

// NewHeaderAuthWithExtras creates a HeaderAuth that also sets the given
// fixed headers on every request.
func NewHeaderAuthWithExtras(key, headerName string, extras map[string]string) *HeaderAuth {
	return &HeaderAuth{key: key, name: headerName, extras: extras}
}

// Apply adds the API key header and any extra headers to the request.
func (a *HeaderAuth) Apply(req *http.Request) error {
	req.Header.Set(a.name, a.key)
	for name, value := range a.extras {
		req.Header.Set(name, value)
	}
	return nil
}

// NoAuth is a no-op authentication provider for unauthenticated requests.
type NoAuth struct{}

// NewNoAuth creates a no-op authenticator.
func NewNoAuth() *NoAuth {
	return &NoAuth{}
}

// Apply does nothing.
func (a *NoAuth) Apply(req *http.Request) error {
	return nil
}

// Ensure implementations satisfy the interface.
var (
	_ AuthProvider = (*BearerAuth)(nil)
	_ AuthProvider = (*HeaderAuth)(nil)
	_ AuthProvider = (*NoAuth)(nil)
)
