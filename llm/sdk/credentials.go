// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"modelrelay/client/shared/logger"
)

const (
	// DefaultRefreshTimeout is the HTTP timeout for refresh requests.
	DefaultRefreshTimeout = 30 * time.Second

	// DefaultMinRefreshInterval throttles refresh attempts: no more than one
	// refresh HTTP request per interval, measured from the last attempt.
	DefaultMinRefreshInterval = 10 * time.Second
)

// HTTPDoer is the minimal HTTP client surface (enables testing).
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeyMetadata records what is known about one API key.
type KeyMetadata struct {
	Hash           string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	RemainingQuota int64
}

// CredentialStore holds the process-wide implicit API key and mediates
// refresh. One store is shared by every call that did not supply an explicit
// key; it lives for the whole process and a refreshed key simply overwrites
// the current one.
type CredentialStore struct {
	mu          sync.Mutex
	key         string
	refreshURL  string
	token       string
	minInterval time.Duration
	lastAttempt time.Time
	refreshDone chan struct{} // non-nil while a refresh is in flight
	refreshErr  error         // outcome of the most recent refresh
	meta        map[string]KeyMetadata
	client      HTTPDoer
	log         *logger.Logger
}

// CredentialConfig configures a CredentialStore.
type CredentialConfig struct {
	Key                string        // Optional: initial key; Source consulted when empty
	Source             KeySource     // Optional: where to seed the initial key from
	RefreshURL         string        // Optional: endpoint exchanging an expired key for a new one
	RefreshToken       string        // Optional: bearer token for the refresh endpoint
	MinRefreshInterval time.Duration // Optional: refresh throttle (default: 10s)
	HTTPClient         HTTPDoer      // Optional: custom HTTP client
}

// NewCredentialStore creates a credential store, seeding the key from
// cfg.Key or, when empty, from cfg.Source. A store with no key is valid:
// refresh can still mint one.
func NewCredentialStore(ctx context.Context, cfg CredentialConfig) (*CredentialStore, error) {
	key := cfg.Key
	if key == "" && cfg.Source != nil {
		seeded, err := cfg.Source.Key(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to seed credential: %w", err)
		}
		key = seeded
	}

	interval := cfg.MinRefreshInterval
	if interval <= 0 {
		interval = DefaultMinRefreshInterval
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultRefreshTimeout}
	}

	s := &CredentialStore{
		key:         key,
		refreshURL:  cfg.RefreshURL,
		token:       cfg.RefreshToken,
		minInterval: interval,
		meta:        make(map[string]KeyMetadata),
		client:      client,
		log:         logger.New("credentials"),
	}
	if key != "" {
		s.recordMetadataLocked(key, refreshResponse{})
	}
	return s, nil
}

// Key returns the current API key (empty when none is set).
func (s *CredentialStore) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// SetKey overwrites the current key and records its metadata.
func (s *CredentialStore) SetKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.recordMetadataLocked(key, refreshResponse{})
}

// Metadata returns the recorded metadata for a key.
func (s *CredentialStore) Metadata(key string) (KeyMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[hashKey(key)]
	return m, ok
}

// Refresh exchanges the current key for a new one via the refresh endpoint
// and returns the new key. Refreshes are mutually exclusive: a caller
// arriving while one is in flight waits for that refresh to complete and
// uses its result instead of issuing a second request. Attempts are
// throttled to one per MinRefreshInterval; an early caller waits out the
// remainder before issuing the HTTP call.
func (s *CredentialStore) Refresh(ctx context.Context) (string, error) {
	var done chan struct{}
	for {
		s.mu.Lock()
		if s.refreshDone != nil {
			inflight := s.refreshDone
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-inflight:
			}
			s.mu.Lock()
			key, err := s.key, s.refreshErr
			s.mu.Unlock()
			if err != nil {
				return "", err
			}
			return key, nil
		}

		wait := s.minInterval - time.Since(s.lastAttempt)
		if wait <= 0 {
			done = make(chan struct{})
			s.refreshDone = done
			s.lastAttempt = time.Now()
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}

	key, resp, err := s.doRefresh(ctx)

	s.mu.Lock()
	s.refreshErr = err
	if err == nil {
		s.key = key
		s.recordMetadataLocked(key, resp)
	}
	s.refreshDone = nil
	close(done)
	s.mu.Unlock()

	if err != nil {
		promCredentialRefreshes.WithLabelValues("failure").Inc()
		s.log.Error("", "credential refresh failed", map[string]interface{}{"error": err.Error()})
		return "", err
	}

	promCredentialRefreshes.WithLabelValues("success").Inc()
	s.log.Info("", "credential refreshed", map[string]interface{}{"key_hash": hashKey(key)})
	return key, nil
}

// refreshResponse is the wire shape returned by the refresh endpoint.
type refreshResponse struct {
	Key            string `json:"key"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	RemainingQuota int64  `json:"remaining_quota,omitempty"`
}

// doRefresh issues the refresh HTTP call. Exactly one of these runs at a
// time; callers coordinate through refreshDone.
func (s *CredentialStore) doRefresh(ctx context.Context) (string, refreshResponse, error) {
	if s.refreshURL == "" {
		return "", refreshResponse{}, fmt.Errorf("no credential refresh endpoint configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.refreshURL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", refreshResponse{}, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", refreshResponse{}, fmt.Errorf("refresh request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", refreshResponse{}, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", refreshResponse{}, fmt.Errorf("refresh endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", refreshResponse{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if parsed.Key == "" {
		return "", refreshResponse{}, fmt.Errorf("refresh response carried no key")
	}

	return parsed.Key, parsed, nil
}

// recordMetadataLocked stores metadata for a key. JWT-shaped keys contribute
// their iat/exp claims; an explicit expires_at from the refresh endpoint
// wins over the claim. Caller must hold s.mu.
func (s *CredentialStore) recordMetadataLocked(key string, resp refreshResponse) {
	m := KeyMetadata{
		Hash:           hashKey(key),
		IssuedAt:       time.Now().UTC(),
		RemainingQuota: resp.RemainingQuota,
	}

	if strings.Count(key, ".") == 2 {
		if claims := parseJWTClaims(key); claims != nil {
			if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
				m.IssuedAt = iat.Time
			}
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				m.ExpiresAt = exp.Time
			}
		}
	}

	if resp.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
			m.ExpiresAt = t
		}
	}

	s.meta[m.Hash] = m
}

// parseJWTClaims decodes claims without verifying the signature. The key is
// opaque to this client; claims are used for metadata only, never trust.
func parseJWTClaims(key string) jwt.MapClaims {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(key, claims); err != nil {
		return nil
	}
	return claims
}

// hashKey returns a short fingerprint safe for logs and metadata maps.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
