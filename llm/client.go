// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"modelrelay/client/llm/sdk"
	"modelrelay/client/shared/logger"
)

const (
	// DefaultEndpoint is the OpenAI-compatible chat completions endpoint.
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

	// DefaultToolEndpoint is the Anthropic-family messages endpoint used by
	// the tool-invocation strategy.
	DefaultToolEndpoint = "https://api.anthropic.com/v1/messages"

	// DefaultAPIVersion is the Anthropic API version header value.
	DefaultAPIVersion = "2023-06-01"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxTokens is the default max tokens for completions.
	DefaultMaxTokens = 4096

	// DefaultModel is used when neither the client nor the request names one.
	DefaultModel = "gpt-4o"
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config contains configuration for the client.
type Config struct {
	Endpoint     string                // Optional: OpenAI-compatible endpoint (default: DefaultEndpoint)
	ToolEndpoint string                // Optional: Anthropic-family endpoint (default: DefaultToolEndpoint)
	APIVersion   string                // Optional: Anthropic API version (default: DefaultAPIVersion)
	Model        string                // Optional: default model (default: DefaultModel)
	APIKey       string                // Optional: seeds the credential store when Credentials is nil
	Credentials  *sdk.CredentialStore  // Optional: shared credential store
	HTTPClient   HTTPClient            // Optional: custom HTTP client
	Timeout      time.Duration         // Optional: HTTP timeout (default: 120s)

	// DisableFallback turns off the automatic invalid-model fallback retry
	// for every call made through this client.
	DisableFallback bool

	// DisableRefresh turns off credential refresh-and-retry for every call.
	DisableRefresh bool
}

// Client orchestrates completion calls: it resolves the strategy, builds the
// outbound request, performs the transport call through the resilience
// coordinator, and chooses streaming vs. buffered consumption.
type Client struct {
	endpoint     string
	toolEndpoint string
	apiVersion   string
	model        string
	creds        *sdk.CredentialStore
	client       HTTPClient

	disableFallback bool
	disableRefresh  bool

	log *logger.Logger
}

// NewClient creates a client. A nil Credentials store is seeded from
// cfg.APIKey or, failing that, from the MODELRELAY_API_KEY environment
// variable; a client with no key at all is still usable with per-request
// explicit keys.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.ToolEndpoint == "" {
		cfg.ToolEndpoint = DefaultToolEndpoint
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	creds := cfg.Credentials
	if creds == nil {
		key := cfg.APIKey
		if key == "" {
			if envKey, err := (&sdk.EnvKeySource{}).Key(context.Background()); err == nil {
				key = envKey
			}
		}
		var err error
		creds, err = sdk.NewCredentialStore(context.Background(), sdk.CredentialConfig{Key: key})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize credentials: %w", err)
		}
	}

	return &Client{
		endpoint:        cfg.Endpoint,
		toolEndpoint:    cfg.ToolEndpoint,
		apiVersion:      cfg.APIVersion,
		model:           cfg.Model,
		creds:           creds,
		client:          cfg.HTTPClient,
		disableFallback: cfg.DisableFallback,
		disableRefresh:  cfg.DisableRefresh,
		log:             logger.New("client"),
	}, nil
}

// Credentials returns the shared credential store.
func (c *Client) Credentials() *sdk.CredentialStore {
	return c.creds
}

// Complete performs one buffered completion and returns the final string.
// When the resolved strategy forces streaming (Anthropic-family structured
// output), a stream is opened internally and consumed transparently.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	requestID := uuid.NewString()

	result, err := sdk.Coordinate(ctx, c.coordinatorOptions(req, requestID),
		func(ctx context.Context, attempt sdk.Attempt) (string, error) {
			return c.completeOnce(ctx, requestID, req, attempt)
		})
	if err != nil {
		promCallsTotal.WithLabelValues("buffered", "error").Inc()
		return "", err
	}

	if req.ValidateResult {
		if err := ValidateResult(req.Schema, result); err != nil {
			promCallsTotal.WithLabelValues("buffered", "error").Inc()
			return "", err
		}
	}

	promCallsTotal.WithLabelValues("buffered", "success").Inc()
	return result, nil
}

// CompleteStream performs one streaming completion. The returned Stream
// yields progressively-complete renderings; abandoning it early is fine,
// Close releases the underlying body without draining it.
func (c *Client) CompleteStream(ctx context.Context, req Request) (*Stream, error) {
	requestID := uuid.NewString()

	stream, err := sdk.Coordinate(ctx, c.coordinatorOptions(req, requestID),
		func(ctx context.Context, attempt sdk.Attempt) (*Stream, error) {
			strat := ResolveStrategy(attempt.Model, req.Schema)
			return c.openStream(ctx, requestID, req, strat, attempt)
		})
	if err != nil {
		promCallsTotal.WithLabelValues("streaming", "error").Inc()
		return nil, err
	}

	promCallsTotal.WithLabelValues("streaming", "success").Inc()
	return stream, nil
}

// coordinatorOptions maps a request onto the resilience coordinator.
func (c *Client) coordinatorOptions(req Request, requestID string) sdk.Options {
	return sdk.Options{
		Model:           c.modelFor(req),
		APIKey:          req.APIKey,
		Credentials:     c.creds,
		DisableFallback: c.disableFallback || req.SkipFallback,
		DisableRefresh:  c.disableRefresh || req.SkipRefresh,
		Logger:          c.log,
		RequestID:       requestID,
	}
}

func (c *Client) modelFor(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}

// completeOnce performs one buffered attempt. The strategy is re-resolved
// from the attempt's model, so a fallback retry reshapes the request.
func (c *Client) completeOnce(ctx context.Context, requestID string, req Request, attempt sdk.Attempt) (string, error) {
	strat := ResolveStrategy(attempt.Model, req.Schema)

	if strat.ForceStream {
		stream, err := c.openStream(ctx, requestID, req, strat, attempt)
		if err != nil {
			return "", err
		}
		defer func() {
			_ = stream.Close()
		}()
		for {
			if _, err := stream.Next(); err == io.EOF {
				break
			} else if err != nil {
				return "", err
			}
		}
		return stream.Final(), nil
	}

	resp, err := c.send(ctx, requestID, req, strat, attempt, false)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", sdk.Classify(resp.StatusCode, body)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if upstreamErr, ok := payload["error"].(map[string]any); ok {
		code, _ := upstreamErr["type"].(string)
		message, _ := upstreamErr["message"].(string)
		return "", &StructuredPayloadError{Code: code, Message: message}
	}

	return strat.ExtractResult(payload), nil
}

// openStream performs one streaming attempt and hands ownership of the
// response body to the returned Stream.
func (c *Client) openStream(ctx context.Context, requestID string, req Request, strat Strategy, attempt sdk.Attempt) (*Stream, error) {
	resp, err := c.send(ctx, requestID, req, strat, attempt, true)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, sdk.Classify(resp.StatusCode, body)
	}

	return &Stream{
		asm:  NewAssembler(NewFrameDecoder(resp.Body), strat),
		body: resp.Body,
	}, nil
}

// send builds and issues one HTTP attempt.
func (c *Client) send(ctx context.Context, requestID string, req Request, strat Strategy, attempt sdk.Attempt, streaming bool) (*http.Response, error) {
	var endpoint string
	var body map[string]any
	var auth sdk.AuthProvider

	if strat.Kind == StrategyToolInvocation {
		endpoint = c.toolEndpoint
		body = c.buildToolFamilyBody(req, strat, streaming)
		auth = sdk.NewHeaderAuthWithExtras(attempt.APIKey, "x-api-key", map[string]string{
			"anthropic-version": c.apiVersion,
		})
	} else {
		endpoint = c.endpoint
		body = c.buildChatBody(req, strat, streaming)
		auth = sdk.NewBearerAuth(attempt.APIKey)
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if err := auth.Apply(httpReq); err != nil {
		return nil, fmt.Errorf("failed to apply auth: %w", err)
	}

	c.log.Debug(requestID, "issuing llm call", map[string]interface{}{
		"model":     strat.Model,
		"strategy":  string(strat.Kind),
		"streaming": streaming,
		"retry":     attempt.IsRetry,
	})

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm API error: %w", err)
	}
	return resp, nil
}

// buildChatBody builds an OpenAI-compatible chat completions body.
func (c *Client) buildChatBody(req Request, strat Strategy, streaming bool) map[string]any {
	messages := make([]map[string]any, 0, len(req.Messages)+2)
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	if len(req.Messages) > 0 {
		for _, m := range req.Messages {
			messages = append(messages, map[string]any{"role": m.Role, "content": m.Content})
		}
	} else {
		messages = append(messages, map[string]any{"role": "user", "content": req.Prompt})
	}

	body := map[string]any{
		"model":      strat.Model,
		"messages":   messages,
		"max_tokens": c.maxTokensFor(req),
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if streaming {
		body["stream"] = true
	}

	strat.ShapeRequest(body)
	return body
}

// buildToolFamilyBody builds an Anthropic-family messages body. System
// content moves to the top-level system field; other turns pass through.
func (c *Client) buildToolFamilyBody(req Request, strat Strategy, streaming bool) map[string]any {
	system := req.System
	messages := make([]map[string]any, 0, len(req.Messages)+1)
	if len(req.Messages) > 0 {
		for _, m := range req.Messages {
			if m.Role == "system" {
				if system == "" {
					system = m.Content
				} else {
					system += "\n" + m.Content
				}
				continue
			}
			messages = append(messages, map[string]any{"role": m.Role, "content": m.Content})
		}
	} else {
		messages = append(messages, map[string]any{"role": "user", "content": req.Prompt})
	}

	body := map[string]any{
		"model":      strat.Model,
		"messages":   messages,
		"max_tokens": c.maxTokensFor(req),
	}
	if system != "" {
		body["system"] = system
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if streaming {
		body["stream"] = true
	}

	strat.ShapeRequest(body)
	return body
}

func (c *Client) maxTokensFor(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return DefaultMaxTokens
}

// Stream is a live completion in progress. It is owned by one consumer and
// is not safe for concurrent use.
type Stream struct {
	asm    *Assembler
	body   io.ReadCloser
	closed bool
}

// Next returns the next progressively-complete rendering. io.EOF marks
// natural completion (the body is closed automatically); any other error is
// terminal and also closes the body.
func (s *Stream) Next() (string, error) {
	value, err := s.asm.Next()
	if err != nil {
		_ = s.Close()
	}
	return value, err
}

// Final returns the authoritative final value after the stream has ended.
func (s *Stream) Final() string {
	return s.asm.Final()
}

// Close releases the underlying response body. A consumer that stops
// iterating early must call Close; the remaining body is never drained.
// Close is idempotent.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
