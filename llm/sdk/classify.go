// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCategory classifies a transport or application failure.
type ErrorCategory string

const (
	// CategoryInvalidModel indicates the requested model was rejected.
	// Eligible for a one-shot retry against the fallback model.
	CategoryInvalidModel ErrorCategory = "invalid_model"

	// CategoryCredential indicates the API key was rejected or expired.
	// Eligible for credential refresh.
	CategoryCredential ErrorCategory = "credential_invalid"

	// CategoryRateLimited indicates quota or rate limiting.
	// Treated like a credential failure for refresh purposes, since a
	// refreshed key carries fresh quota.
	CategoryRateLimited ErrorCategory = "rate_limited"

	// CategoryTransient indicates a server-side failure (5xx).
	CategoryTransient ErrorCategory = "transient"

	// CategoryFatal indicates a non-recoverable client error.
	CategoryFatal ErrorCategory = "fatal"
)

// Pattern lists used by Classify. Matching is case-insensitive substring.
// Upstream error wording is not a stable contract; callers may extend these.
var (
	// InvalidModelPatterns match provider messages that reject the model id.
	InvalidModelPatterns = []string{
		"not a valid model",
		"does not exist",
		"unknown model",
		"no provider was found",
		"model_not_found",
		"invalid model",
	}

	// CredentialPatterns match authentication and key-validity vocabulary.
	CredentialPatterns = []string{
		"api key",
		"apikey",
		"unauthorized",
		"authentication",
		"invalid key",
		"expired",
		"forbidden",
	}

	// QuotaPatterns match rate-limit, quota, and billing vocabulary.
	QuotaPatterns = []string{
		"rate limit",
		"quota",
		"too many requests",
		"billing",
		"credit",
		"insufficient funds",
	}
)

// TransportError represents a classified HTTP-layer failure.
type TransportError struct {
	StatusCode int
	Category   ErrorCategory
	Message    string // raw provider message
	RetryPath  string // automatic retry attempted before this surfaced, if any
	Cause      error
}

func (e *TransportError) Error() string {
	if e.RetryPath != "" {
		return fmt.Sprintf("llm call failed (status %d, %s, after %s): %s",
			e.StatusCode, e.Category, e.RetryPath, e.Message)
	}
	return fmt.Sprintf("llm call failed (status %d, %s): %s", e.StatusCode, e.Category, e.Message)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ExhaustedRetryError is raised when the credential refresh issued in
// response to a credential failure itself fails. Both causes are retained.
type ExhaustedRetryError struct {
	Cause      error // the original call failure
	RefreshErr error // the refresh failure
}

func (e *ExhaustedRetryError) Error() string {
	return fmt.Sprintf("credential refresh failed: %v (original failure: %v)", e.RefreshErr, e.Cause)
}

// Unwrap returns the original call failure.
func (e *ExhaustedRetryError) Unwrap() error {
	return e.Cause
}

// errorBody is the common provider error envelope. Both OpenAI-compatible
// and Anthropic bodies nest the message under "error".
type errorBody struct {
	Message string `json:"message"`
	Error   *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// extractMessage pulls the human-readable message out of an error body,
// falling back to the raw text when the body is not structured.
func extractMessage(body []byte) string {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return parsed.Error.Message
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return string(body)
}

// matchesAny reports whether msg contains any of the patterns,
// case-insensitively.
func matchesAny(msg string, patterns []string) bool {
	lower := strings.ToLower(msg)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Classify derives an ErrorCategory from an HTTP status code and the raw
// error body. The classification is recomputed per failure, never stored.
func Classify(statusCode int, body []byte) *TransportError {
	msg := extractMessage(body)

	terr := &TransportError{
		StatusCode: statusCode,
		Message:    msg,
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		terr.Category = CategoryCredential
	case statusCode == http.StatusTooManyRequests:
		terr.Category = CategoryRateLimited
	case statusCode >= 400 && statusCode < 500:
		switch {
		case matchesAny(msg, InvalidModelPatterns):
			terr.Category = CategoryInvalidModel
		case matchesAny(msg, CredentialPatterns):
			terr.Category = CategoryCredential
		case matchesAny(msg, QuotaPatterns):
			terr.Category = CategoryRateLimited
		default:
			terr.Category = CategoryFatal
		}
	case statusCode >= 500:
		terr.Category = CategoryTransient
	default:
		terr.Category = CategoryFatal
	}

	return terr
}
