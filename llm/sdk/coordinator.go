// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"context"
	"errors"

	"modelrelay/client/shared/logger"
)

// FallbackModel is the fixed, always-available model substituted
// automatically when the originally requested model is rejected as invalid.
const FallbackModel = "gpt-4o-mini"

// Attempt carries the per-attempt parameters handed to an AttemptFunc.
type Attempt struct {
	// Model is the model identifier for this attempt.
	Model string

	// APIKey is the key to authenticate with (may be empty).
	APIKey string

	// IsRetry is true when this attempt was issued by the coordinator
	// after a prior failure. A retried attempt is never retried again.
	IsRetry bool
}

// AttemptFunc performs one call attempt. Implementations must re-resolve
// any per-model state (strategy, request shape) from the Attempt they are
// given, since a fallback retry changes the model.
type AttemptFunc[T any] func(ctx context.Context, attempt Attempt) (T, error)

// Options configures Coordinate for one logical call.
type Options struct {
	// Model is the originally requested model identifier.
	Model string

	// FallbackModel overrides the fixed fallback (default: FallbackModel).
	FallbackModel string

	// APIKey is an explicit per-call credential override. When set, the
	// shared store is bypassed entirely and refresh does not apply.
	APIKey string

	// Credentials is the shared store consulted for the implicit key.
	Credentials *CredentialStore

	// DisableFallback turns off the invalid-model fallback retry.
	DisableFallback bool

	// DisableRefresh turns off credential refresh-and-retry.
	DisableRefresh bool

	// Logger receives retry decisions. Optional.
	Logger *logger.Logger

	// RequestID correlates log lines for this call. Optional.
	RequestID string
}

func (o *Options) key() string {
	if o.APIKey != "" {
		return o.APIKey
	}
	if o.Credentials != nil {
		return o.Credentials.Key()
	}
	return ""
}

func (o *Options) logf(level logger.LogLevel, msg string, fields map[string]interface{}) {
	if o.Logger != nil {
		o.Logger.Log(level, o.RequestID, msg, fields)
	}
}

// Coordinate wraps one logical call attempt with invalid-model fallback and
// credential-refresh arbitration.
//
// State machine: Attempting -> ClassifyingFailure -> {RetryingWithFallback |
// RefreshingCredential | Propagating}. At most one automatic retry is ever
// issued, and a retried attempt's failure propagates directly.
func Coordinate[T any](ctx context.Context, opts Options, fn AttemptFunc[T]) (T, error) {
	var zero T

	result, err := fn(ctx, Attempt{Model: opts.Model, APIKey: opts.key()})
	if err == nil {
		return result, nil
	}

	var terr *TransportError
	if !errors.As(err, &terr) {
		return zero, err
	}

	switch {
	case terr.Category == CategoryInvalidModel &&
		terr.StatusCode >= 400 && terr.StatusCode < 500 &&
		!opts.DisableFallback:

		fallback := opts.FallbackModel
		if fallback == "" {
			fallback = FallbackModel
		}
		opts.logf(logger.WARN, "model rejected, retrying with fallback", map[string]interface{}{
			"model":    opts.Model,
			"fallback": fallback,
		})
		promFallbackRetries.Inc()

		result, err = fn(ctx, Attempt{Model: fallback, APIKey: opts.key(), IsRetry: true})
		if err != nil {
			markRetryPath(err, "fallback retry")
		}
		return result, err

	case (terr.Category == CategoryCredential || terr.Category == CategoryRateLimited) &&
		!opts.DisableRefresh && opts.APIKey == "" && opts.Credentials != nil:

		opts.logf(logger.WARN, "credential rejected, refreshing", map[string]interface{}{
			"model":    opts.Model,
			"category": string(terr.Category),
		})

		newKey, refreshErr := opts.Credentials.Refresh(ctx)
		if refreshErr != nil {
			return zero, &ExhaustedRetryError{Cause: err, RefreshErr: refreshErr}
		}

		result, err = fn(ctx, Attempt{Model: opts.Model, APIKey: newKey, IsRetry: true})
		if err != nil {
			markRetryPath(err, "credential refresh retry")
		}
		return result, err
	}

	return zero, err
}

// markRetryPath annotates a classified failure with the retry path that was
// already consumed, so the caller can see what was attempted.
func markRetryPath(err error, path string) {
	var terr *TransportError
	if errors.As(err, &terr) {
		terr.RetryPath = path
	}
}
