// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"modelrelay/client/llm/sdk"
)

// FileConfig is the YAML client configuration file.
//
// Secrets never live in the file itself: api_key_env and refresh_token_env
// name environment variables to read at load time.
type FileConfig struct {
	Endpoint        string `yaml:"endpoint,omitempty"`
	ToolEndpoint    string `yaml:"tool_endpoint,omitempty"`
	Model           string `yaml:"model,omitempty"`
	APIKeyEnv       string `yaml:"api_key_env,omitempty"`
	RefreshURL      string `yaml:"refresh_url,omitempty"`
	RefreshTokenEnv string `yaml:"refresh_token_env,omitempty"`
	TimeoutSeconds  int    `yaml:"timeout_seconds,omitempty"`
	DisableFallback bool   `yaml:"disable_fallback,omitempty"`
	DisableRefresh  bool   `yaml:"disable_refresh,omitempty"`
}

// LoadConfigFile reads and parses a YAML configuration file.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// NewClientFromFile builds a client from a YAML configuration file,
// resolving key material from the environment.
func NewClientFromFile(ctx context.Context, path string) (*Client, error) {
	fileCfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}

	credCfg := sdk.CredentialConfig{
		RefreshURL: fileCfg.RefreshURL,
	}
	if fileCfg.APIKeyEnv != "" {
		credCfg.Source = &sdk.EnvKeySource{Var: fileCfg.APIKeyEnv}
	}
	if fileCfg.RefreshTokenEnv != "" {
		credCfg.RefreshToken = os.Getenv(fileCfg.RefreshTokenEnv)
	}

	creds, err := sdk.NewCredentialStore(ctx, credCfg)
	if err != nil {
		return nil, err
	}

	cfg := Config{
		Endpoint:        fileCfg.Endpoint,
		ToolEndpoint:    fileCfg.ToolEndpoint,
		Model:           fileCfg.Model,
		Credentials:     creds,
		DisableFallback: fileCfg.DisableFallback,
		DisableRefresh:  fileCfg.DisableRefresh,
	}
	if fileCfg.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(fileCfg.TimeoutSeconds) * time.Second
	}

	return NewClient(cfg)
}
