// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/v1/chat", nil)
	require.NoError(t, err)
	return req
}

func TestBearerAuth(t *testing.T) {
	req := newRequest(t)

	require.NoError(t, NewBearerAuth("sk-test").Apply(req))

	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
}

func TestHeaderAuth(t *testing.T) {
	req := newRequest(t)

	require.NoError(t, NewHeaderAuth("sk-test", "x-api-key").Apply(req))

	assert.Equal(t, "sk-test", req.Header.Get("x-api-key"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestHeaderAuthWithExtras(t *testing.T) {
	req := newRequest(t)
	auth := NewHeaderAuthWithExtras("sk-test", "x-api-key", map[string]string{
		"anthropic-version": "2023-06-01",
	})

	require.NoError(t, auth.Apply(req))

	assert.Equal(t, "sk-test", req.Header.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", req.Header.Get("anthropic-version"))
}

func TestNoAuth(t *testing.T) {
	req := newRequest(t)

	require.NoError(t, NewNoAuth().Apply(req))

	assert.Empty(t, req.Header.Get("Authorization"))
}
