// Copyright 2025 Microsoft Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package credential selects and wraps the Azure credential used to
// authenticate against ARM. Tokens are acquired per request, never cached
// here, so azidentity's own caching and refresh behavior applies.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/Azure/connections-mcp/internal/arm"
)

// EnvToken holds a pre-issued ARM bearer token. When set it short-circuits
// interactive authentication entirely.
const EnvToken = "ARM_MCP_AUTH_TOKEN"

// envCodespaces marks GitHub Codespaces, where the ambient credential chain
// works and local az logins usually do not.
const envCodespaces = "CODESPACES"

// armScope is the OAuth scope for the ARM management plane.
const armScope = "https://management.azure.com/.default"

// Mode names an authentication strategy.
type Mode string

const (
	// ModeAuto picks env, default or cli based on the environment.
	ModeAuto Mode = "auto"

	// ModeBrowser opens an interactive browser login.
	ModeBrowser Mode = "browser"

	// ModeCLI reuses the token cache of a prior az login.
	ModeCLI Mode = "cli"

	// ModeEnv uses the pre-issued token in ARM_MCP_AUTH_TOKEN.
	ModeEnv Mode = "env"

	// ModeDefault walks the azidentity default credential chain.
	ModeDefault Mode = "default"
)

// ParseMode validates a mode flag value.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeAuto, ModeBrowser, ModeCLI, ModeEnv, ModeDefault:
		return Mode(value), nil
	}
	return "", fmt.Errorf("unknown auth mode %q (valid modes: auto, browser, cli, env, default)", value)
}

// resolveMode replaces ModeAuto with a concrete mode: env when a pre-issued
// token is present, default inside Codespaces, cli otherwise.
func resolveMode(mode Mode) Mode {
	if mode != ModeAuto {
		return mode
	}
	if os.Getenv(EnvToken) != "" {
		return ModeEnv
	}
	if os.Getenv(envCodespaces) == "true" {
		return ModeDefault
	}
	return ModeCLI
}

// StaticTokenProvider returns the same pre-issued bearer token on every call.
type StaticTokenProvider string

func (p StaticTokenProvider) Token(ctx context.Context) (string, error) {
	if p == "" {
		return "", errors.New("no bearer token configured")
	}
	return string(p), nil
}

// azureTokenProvider adapts an azcore.TokenCredential to the per-request
// token contract.
type azureTokenProvider struct {
	credential azcore.TokenCredential
}

func (p *azureTokenProvider) Token(ctx context.Context) (string, error) {
	token, err := p.credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{armScope},
	})
	if err != nil {
		return "", fmt.Errorf("requesting ARM access token: %w", err)
	}
	return token.Token, nil
}

// NewProvider builds the token provider for mode. tenantID is consulted by
// the interactive modes; "common" defers tenant selection to the login.
func NewProvider(mode Mode, tenantID string, logger *slog.Logger) (arm.TokenProvider, error) {
	resolved := resolveMode(mode)
	logger.Debug("selected authentication mode", "requested", string(mode), "resolved", string(resolved))

	switch resolved {
	case ModeEnv:
		token := os.Getenv(EnvToken)
		if token == "" {
			return nil, fmt.Errorf("auth mode %q requires %s to be set", ModeEnv, EnvToken)
		}
		return StaticTokenProvider(token), nil

	case ModeCLI:
		options := &azidentity.AzureCLICredentialOptions{}
		// az rejects the "common" pseudo-tenant, so only narrow explicitly.
		if tenantID != "" && tenantID != "common" {
			options.TenantID = tenantID
		}
		cred, err := azidentity.NewAzureCLICredential(options)
		if err != nil {
			return nil, fmt.Errorf("creating Azure CLI credential: %w", err)
		}
		return &azureTokenProvider{credential: cred}, nil

	case ModeBrowser:
		cred, err := azidentity.NewInteractiveBrowserCredential(&azidentity.InteractiveBrowserCredentialOptions{
			TenantID: tenantID,
		})
		if err != nil {
			return nil, fmt.Errorf("creating interactive browser credential: %w", err)
		}
		return &azureTokenProvider{credential: cred}, nil

	case ModeDefault:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("creating default Azure credential: %w", err)
		}
		return &azureTokenProvider{credential: cred}, nil
	}

	return nil, fmt.Errorf("unknown auth mode %q", mode)
}
