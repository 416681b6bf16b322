// Package cerner is the HTTP client for the Oracle Health (Cerner)
// Millennium authorization server and FHIR R4 API.
package cerner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"oracle-fhir/internal/domain/auth"
)

const fhirMIME = "application/fhir+json"

// userAgent identifies sandbox traffic; the open endpoint rejects some
// anonymous default agents.
const userAgent = "oracle-fhir-integration/1.0"

type Client struct {
	ClientID     string
	RedirectURI  string
	Scopes       []string
	AuthorizeURL string
	TokenURL     string
	// FHIRBase is the secure tenant endpoint; requests carry a bearer token.
	FHIRBase string
	// OpenBase is the open sandbox endpoint; no authentication.
	OpenBase string
	HTTP     *http.Client
}

// StatusError carries a non-2xx upstream response through to the caller.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream error: status=%d body=%s", e.StatusCode, trunc(e.Body, 2048))
}

func defaultHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.ClientID,
		RedirectURL: c.RedirectURI,
		Scopes:      c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthorizeURL,
			TokenURL: c.TokenURL,
			// Public client: client_id goes in the form body, no secret.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL builds the authorization URL for a standalone launch. The aud
// parameter must name the FHIR endpoint the token will be used against.
func (c *Client) AuthCodeURL(state string, p auth.PKCE) string {
	return c.oauthConfig().AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", p.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", p.Method),
		oauth2.SetAuthURLParam("aud", c.FHIRBase),
	)
}

// Exchange redeems the authorization code with the stored PKCE verifier.
// Upstream rejections are returned as *StatusError with the token
// endpoint's status and body.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (auth.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, defaultHTTPClient(c.HTTP))

	tok, err := c.oauthConfig().Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return auth.Token{}, &StatusError{StatusCode: rerr.Response.StatusCode, Body: string(rerr.Body)}
		}
		return auth.Token{}, fmt.Errorf("token exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return auth.Token{}, errors.New("token endpoint returned no access token")
	}

	out := auth.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
		ExpiresAt:    tok.Expiry,
	}
	if v, ok := tok.Extra("scope").(string); ok {
		out.Scope = v
	}
	if v, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = v
	}
	// SMART token responses include the patient in context for
	// patient-scoped launches.
	switch v := tok.Extra("patient").(type) {
	case string:
		out.Patient = v
	case json.Number:
		out.Patient = v.String()
	case float64:
		out.Patient = fmt.Sprintf("%.0f", v)
	}
	return out, nil
}

// Resource issues an authenticated GET for one resource type against the
// secure endpoint and returns the response body unmodified.
func (c *Client) Resource(ctx context.Context, accessToken, resource string, query url.Values) ([]byte, error) {
	if accessToken == "" {
		return nil, errors.New("missing access token")
	}
	return c.get(ctx, c.FHIRBase, resource, query, accessToken)
}

// OpenResource issues an unauthenticated GET against the open sandbox.
func (c *Client) OpenResource(ctx context.Context, resource string, query url.Values) ([]byte, error) {
	return c.get(ctx, c.OpenBase, resource, query, "")
}

func (c *Client) get(ctx context.Context, base, resource string, query url.Values, accessToken string) ([]byte, error) {
	u := base + "/" + resource
	if enc := query.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", fhirMIME)
	req.Header.Set("User-Agent", userAgent)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := defaultHTTPClient(c.HTTP).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fhir request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// MetadataReport describes whether the R4 endpoint is reachable and what it
// reports about itself. A non-2xx answer is still a report, not an error.
type MetadataReport struct {
	URL         string `json:"url"`
	StatusCode  int    `json:"status_code"`
	Reachable   bool   `json:"reachable"`
	FHIRVersion string `json:"fhir_version,omitempty"`
	ServerName  string `json:"server_name,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Metadata probes the capability statement of the secure endpoint. The
// metadata route is the one secure-endpoint route that needs no token.
func (c *Client) Metadata(ctx context.Context) MetadataReport {
	u := c.FHIRBase + "/metadata"
	report := MetadataReport{URL: u}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	req.Header.Set("Accept", fhirMIME)

	resp, err := defaultHTTPClient(c.HTTP).Do(req)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	defer resp.Body.Close()

	report.Reachable = true
	report.StatusCode = resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		report.Error = trunc(string(body), 512)
		return report
	}

	var meta struct {
		FHIRVersion string `json:"fhirVersion"`
		Name        string `json:"name"`
	}
	if err := json.Unmarshal(body, &meta); err == nil {
		report.FHIRVersion = meta.FHIRVersion
		report.ServerName = meta.Name
	}
	return report
}

func trunc(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
