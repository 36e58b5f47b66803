package oauthprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Metadata is the subset of RFC 8414 authorization server metadata the
// provider needs to drive a PKCE flow and, when absent, dynamic client
// registration.
type Metadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	RegistrationEndpoint  string   `json:"registration_endpoint,omitempty"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

// metadataCacheTTL and cachedMetadata describe a metadata cache entry and
// its lifetime. Nothing in this package caches metadata: DiscoverMetadata
// fetches on every call.
const metadataCacheTTL = time.Hour

type cachedMetadata struct {
	metadata *Metadata
	at       time.Time
}

// DiscoverMetadata fetches {issuer}/.well-known/oauth-authorization-server,
// the well-known path both OAuth 2.0 (RFC 8414) and MCP authorization
// servers are expected to serve.
func DiscoverMetadata(ctx context.Context, httpClient *http.Client, issuer string) (*Metadata, error) {
	url := strings.TrimSuffix(issuer, "/") + "/.well-known/oauth-authorization-server"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discover metadata: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discover metadata: %s returned %d: %s", url, resp.StatusCode, string(body))
	}

	var md Metadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if md.Issuer == "" {
		md.Issuer = issuer
	}
	return &md, nil
}

// ClientCredentials is what dynamic client registration hands back and what
// gets persisted so the hub only registers once per authorization server.
type ClientCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// registerRequest is the RFC 7591 dynamic client registration payload. The
// hub always registers as a public, PKCE-only native client.
type registerRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientName              string   `json:"client_name"`
}

// RegisterClient performs RFC 7591 dynamic client registration against
// md.RegistrationEndpoint and returns the credentials the authorization
// server assigned.
func RegisterClient(ctx context.Context, httpClient *http.Client, md *Metadata, redirectURI string) (*ClientCredentials, error) {
	if md.RegistrationEndpoint == "" {
		return nil, fmt.Errorf("authorization server %s does not advertise a registration endpoint", md.Issuer)
	}

	body, err := json.Marshal(registerRequest{
		RedirectURIs:            []string{redirectURI},
		TokenEndpointAuthMethod: "none",
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		ClientName:              "mcphub",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, md.RegistrationEndpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("register client: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("register client: %s returned %d: %s", md.RegistrationEndpoint, resp.StatusCode, string(respBody))
	}

	var creds ClientCredentials
	if err := json.Unmarshal(respBody, &creds); err != nil {
		return nil, fmt.Errorf("decode registration response: %w", err)
	}
	if creds.ClientID == "" {
		return nil, fmt.Errorf("registration response missing client_id")
	}
	return &creds, nil
}
