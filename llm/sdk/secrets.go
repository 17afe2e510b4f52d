// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// DefaultKeyEnvVar is the environment variable consulted by EnvKeySource
// when no variable name is configured.
const DefaultKeyEnvVar = "MODELRELAY_API_KEY"

// KeySource supplies the initial API key for a CredentialStore.
type KeySource interface {
	// Key returns the API key, or an error when none is available.
	Key(ctx context.Context) (string, error)
}

// StaticKeySource returns a fixed key.
type StaticKeySource struct {
	APIKey string
}

// Key returns the configured key.
func (s *StaticKeySource) Key(ctx context.Context) (string, error) {
	if s.APIKey == "" {
		return "", fmt.Errorf("static key source has no key")
	}
	return s.APIKey, nil
}

// EnvKeySource reads the key from an environment variable.
type EnvKeySource struct {
	// Var is the environment variable name (default: MODELRELAY_API_KEY).
	Var string
}

// Key returns the key from the environment.
func (s *EnvKeySource) Key(ctx context.Context) (string, error) {
	name := s.Var
	if name == "" {
		name = DefaultKeyEnvVar
	}
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return value, nil
}

// secretsManagerAPI is the Secrets Manager surface used here (enables testing).
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerKeySource reads the key from AWS Secrets Manager. The secret
// may be a bare string key, or a JSON object whose Field member holds it.
type SecretsManagerKeySource struct {
	SecretARN string
	Field     string // JSON field holding the key (default: "api_key")
	client    secretsManagerAPI
}

// NewSecretsManagerKeySource creates a Secrets Manager key source using the
// default AWS credential chain.
func NewSecretsManagerKeySource(ctx context.Context, secretARN, region string) (*SecretsManagerKeySource, error) {
	if secretARN == "" {
		return nil, fmt.Errorf("secret ARN is required")
	}

	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SecretsManagerKeySource{
		SecretARN: secretARN,
		client:    secretsmanager.NewFromConfig(cfg),
	}, nil
}

// Key fetches and decodes the secret value.
func (s *SecretsManagerKeySource) Key(ctx context.Context) (string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.SecretARN),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", maskARN(s.SecretARN), err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskARN(s.SecretARN))
	}

	raw := *result.SecretString

	var fields map[string]string
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		// Not JSON: the whole secret is the key.
		return raw, nil
	}

	field := s.Field
	if field == "" {
		field = "api_key"
	}
	if value, ok := fields[field]; ok && value != "" {
		return value, nil
	}
	if value, ok := fields["value"]; ok && value != "" {
		return value, nil
	}

	return "", fmt.Errorf("secret %s has no %q field", maskARN(s.SecretARN), field)
}

// maskARN masks the secret ARN for logging (shows only last 8 characters).
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

var (
	_ KeySource = (*StaticKeySource)(nil)
	_ KeySource = (*EnvKeySource)(nil)
	_ KeySource = (*SecretsManagerKeySource)(nil)
)
