// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package sdk contains the transport-adjacent support layer for the ModelRelay
client: request authentication, failure classification, the resilience
coordinator, and the process-wide credential store.

# Failure classification

Classify turns an HTTP status code plus a raw error body into a
TransportError with one of five categories (invalid model, credential,
rate limited, transient, fatal). The substring pattern lists driving the
heuristic are exported vars so callers can extend them when upstream error
wording changes.

# Resilience coordinator

Coordinate wraps one logical call attempt:

	result, err := sdk.Coordinate(ctx, opts, func(ctx context.Context, a sdk.Attempt) (string, error) {
		return doCall(ctx, a.Model, a.APIKey)
	})

On an invalid-model classification it re-issues the call exactly once against
the fixed fallback model. On a credential or rate-limit classification it
refreshes the shared credential (serialized across concurrent callers) and
retries with the new key. All other failures propagate unchanged.

# Credential store

CredentialStore holds the process-wide API key. Refresh is mutually
exclusive: when many concurrent calls fail against an expired key, exactly
one refresh HTTP request goes out and every waiter proceeds with the single
resulting key. Refresh attempts are throttled to a minimum interval.
*/
package sdk
