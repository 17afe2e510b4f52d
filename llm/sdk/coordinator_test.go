// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invalidModelError() *TransportError {
	return &TransportError{StatusCode: 404, Category: CategoryInvalidModel, Message: "model does not exist"}
}

func credentialError() *TransportError {
	return &TransportError{StatusCode: 401, Category: CategoryCredential, Message: "invalid api key"}
}

func TestCoordinate_SuccessPassesThrough(t *testing.T) {
	var attempts []Attempt
	result, err := Coordinate(context.Background(), Options{Model: "gpt-4o", APIKey: "sk-x"},
		func(ctx context.Context, attempt Attempt) (string, error) {
			attempts = append(attempts, attempt)
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	require.Len(t, attempts, 1)
	assert.Equal(t, Attempt{Model: "gpt-4o", APIKey: "sk-x"}, attempts[0])
}

func TestCoordinate_FallbackRetry(t *testing.T) {
	var attempts []Attempt
	result, err := Coordinate(context.Background(), Options{Model: "gpt-9000"},
		func(ctx context.Context, attempt Attempt) (string, error) {
			attempts = append(attempts, attempt)
			if !attempt.IsRetry {
				return "", invalidModelError()
			}
			return "fallback ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "fallback ok", result)
	require.Len(t, attempts, 2)
	assert.Equal(t, "gpt-9000", attempts[0].Model)
	assert.Equal(t, FallbackModel, attempts[1].Model)
	assert.True(t, attempts[1].IsRetry)
}

func TestCoordinate_FallbackModelOverride(t *testing.T) {
	var retried string
	_, _ = Coordinate(context.Background(), Options{Model: "gpt-9000", FallbackModel: "gpt-4.1-mini"},
		func(ctx context.Context, attempt Attempt) (string, error) {
			if attempt.IsRetry {
				retried = attempt.Model
				return "ok", nil
			}
			return "", invalidModelError()
		})

	assert.Equal(t, "gpt-4.1-mini", retried)
}

func TestCoordinate_RetriedAttemptNeverRetriedAgain(t *testing.T) {
	var count int
	_, err := Coordinate(context.Background(), Options{Model: "gpt-9000"},
		func(ctx context.Context, attempt Attempt) (string, error) {
			count++
			return "", invalidModelError()
		})

	require.Error(t, err)
	assert.Equal(t, 2, count)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "fallback retry", terr.RetryPath)
}

func TestCoordinate_DisableFallback(t *testing.T) {
	var count int
	_, err := Coordinate(context.Background(), Options{Model: "gpt-9000", DisableFallback: true},
		func(ctx context.Context, attempt Attempt) (string, error) {
			count++
			return "", invalidModelError()
		})

	require.Error(t, err)
	assert.Equal(t, 1, count)
}

func TestCoordinate_NonTransportErrorPropagates(t *testing.T) {
	var count int
	sentinel := fmt.Errorf("connection refused")
	_, err := Coordinate(context.Background(), Options{Model: "gpt-4o"},
		func(ctx context.Context, attempt Attempt) (string, error) {
			count++
			return "", sentinel
		})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, count)
}

func TestCoordinate_FatalErrorNotRetried(t *testing.T) {
	var count int
	_, err := Coordinate(context.Background(), Options{Model: "gpt-4o"},
		func(ctx context.Context, attempt Attempt) (string, error) {
			count++
			return "", &TransportError{StatusCode: 400, Category: CategoryFatal, Message: "bad request"}
		})

	require.Error(t, err)
	assert.Equal(t, 1, count)
}

func TestCoordinate_CredentialRefreshRetry(t *testing.T) {
	refreshServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"key": "sk-fresh"}`))
	}))
	defer refreshServer.Close()

	creds, err := NewCredentialStore(context.Background(), CredentialConfig{
		Key:        "sk-stale",
		RefreshURL: refreshServer.URL,
	})
	require.NoError(t, err)

	var attempts []Attempt
	result, err := Coordinate(context.Background(), Options{Model: "gpt-4o", Credentials: creds},
		func(ctx context.Context, attempt Attempt) (string, error) {
			attempts = append(attempts, attempt)
			if attempt.APIKey == "sk-stale" {
				return "", credentialError()
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	require.Len(t, attempts, 2)
	assert.Equal(t, "sk-stale", attempts[0].APIKey)
	assert.Equal(t, "sk-fresh", attempts[1].APIKey)
	assert.True(t, attempts[1].IsRetry)
}

func TestCoordinate_RateLimitAlsoTriggersRefresh(t *testing.T) {
	refreshServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"key": "sk-fresh"}`))
	}))
	defer refreshServer.Close()

	creds, err := NewCredentialStore(context.Background(), CredentialConfig{
		Key:        "sk-exhausted",
		RefreshURL: refreshServer.URL,
	})
	require.NoError(t, err)

	var count int
	result, err := Coordinate(context.Background(), Options{Model: "gpt-4o", Credentials: creds},
		func(ctx context.Context, attempt Attempt) (string, error) {
			count++
			if count == 1 {
				return "", &TransportError{StatusCode: 429, Category: CategoryRateLimited, Message: "rate limit"}
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, count)
}

func TestCoordinate_ExplicitKeySkipsRefresh(t *testing.T) {
	creds, err := NewCredentialStore(context.Background(), CredentialConfig{Key: "sk-shared"})
	require.NoError(t, err)

	var count int
	_, err = Coordinate(context.Background(), Options{Model: "gpt-4o", APIKey: "sk-explicit", Credentials: creds},
		func(ctx context.Context, attempt Attempt) (string, error) {
			count++
			assert.Equal(t, "sk-explicit", attempt.APIKey)
			return "", credentialError()
		})

	require.Error(t, err)
	assert.Equal(t, 1, count)
}

func TestCoordinate_RefreshFailureBecomesExhaustedRetryError(t *testing.T) {
	refreshServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer refreshServer.Close()

	creds, err := NewCredentialStore(context.Background(), CredentialConfig{
		Key:        "sk-stale",
		RefreshURL: refreshServer.URL,
	})
	require.NoError(t, err)

	var count int
	_, err = Coordinate(context.Background(), Options{Model: "gpt-4o", Credentials: creds},
		func(ctx context.Context, attempt Attempt) (string, error) {
			count++
			return "", credentialError()
		})

	assert.Equal(t, 1, count)
	var exhausted *ExhaustedRetryError
	require.ErrorAs(t, err, &exhausted)
	assert.Error(t, exhausted.RefreshErr)
	assert.ErrorContains(t, exhausted.RefreshErr, "502")
}

func TestCoordinate_DisableRefresh(t *testing.T) {
	creds, err := NewCredentialStore(context.Background(), CredentialConfig{Key: "sk-stale"})
	require.NoError(t, err)

	var count int
	_, err = Coordinate(context.Background(), Options{Model: "gpt-4o", Credentials: creds, DisableRefresh: true},
		func(ctx context.Context, attempt Attempt) (string, error) {
			count++
			return "", credentialError()
		})

	require.Error(t, err)
	assert.Equal(t, 1, count)
}
