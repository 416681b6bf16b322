package cerner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oracle-fhir/internal/domain/auth"
)

func testClient(tokenURL, fhirBase, openBase string) *Client {
	return &Client{
		ClientID:     "client-123",
		RedirectURI:  "http://localhost:8080/callback",
		Scopes:       []string{"patient/Patient.read", "openid", "profile"},
		AuthorizeURL: "https://auth.example/authorize",
		TokenURL:     tokenURL,
		FHIRBase:     fhirBase,
		OpenBase:     openBase,
	}
}

func TestClient_AuthCodeURL(t *testing.T) {
	c := testClient("https://auth.example/token", "https://fhir.example/r4/t1", "")
	p := auth.PKCE{Verifier: "v", Challenge: "challenge-abc", Method: "S256"}

	raw := c.AuthCodeURL("state-xyz", p)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8080/callback", q.Get("redirect_uri"))
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.Equal(t, "challenge-abc", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "https://fhir.example/r4/t1", q.Get("aud"))
	assert.Contains(t, q.Get("scope"), "patient/Patient.read")
}

func TestClient_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "code-1", r.Form.Get("code"))
		assert.Equal(t, "verifier-1", r.Form.Get("code_verifier"))
		assert.Equal(t, "client-123", r.Form.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "tok-abc",
			"token_type": "Bearer",
			"expires_in": 570,
			"scope": "patient/Patient.read openid",
			"id_token": "header.payload.sig",
			"patient": "12724066"
		}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, "https://fhir.example/r4/t1", "")
	tok, err := c.Exchange(context.Background(), "code-1", "verifier-1")
	require.NoError(t, err)

	assert.Equal(t, "tok-abc", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, int64(570), tok.ExpiresIn)
	assert.False(t, tok.ExpiresAt.IsZero())
	assert.Equal(t, "patient/Patient.read openid", tok.Scope)
	assert.Equal(t, "header.payload.sig", tok.IDToken)
	assert.Equal(t, "12724066", tok.Patient)
}

func TestClient_Exchange_UpstreamRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, "", "")
	_, err := c.Exchange(context.Background(), "bad-code", "verifier")
	require.Error(t, err)

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Contains(t, serr.Body, "invalid_grant")
}

func TestClient_Exchange_NoAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, "", "")
	_, err := c.Exchange(context.Background(), "code", "verifier")
	assert.Error(t, err)
}

func TestClient_Resource(t *testing.T) {
	const bundle = `{"resourceType":"Bundle","total":1,"entry":[{"resource":{"resourceType":"Patient","id":"1"}}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Patient", r.URL.Path)
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		assert.Equal(t, fhirMIME, r.Header.Get("Accept"))
		w.Write([]byte(bundle))
	}))
	defer srv.Close()

	c := testClient("", srv.URL, "")
	body, err := c.Resource(context.Background(), "tok-abc", "Patient", nil)
	require.NoError(t, err)
	assert.Equal(t, bundle, string(body))
}

func TestClient_Resource_MissingToken(t *testing.T) {
	c := testClient("", "https://fhir.example", "")
	_, err := c.Resource(context.Background(), "", "Patient", nil)
	assert.Error(t, err)
}

func TestClient_Resource_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"resourceType":"OperationOutcome"}`))
	}))
	defer srv.Close()

	c := testClient("", srv.URL, "")
	_, err := c.Resource(context.Background(), "tok", "Patient", nil)

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusForbidden, serr.StatusCode)
	assert.Contains(t, serr.Body, "OperationOutcome")
}

func TestClient_OpenResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Patient", r.URL.Path)
		assert.Equal(t, "Smart", r.URL.Query().Get("family"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"resourceType":"Bundle","total":0}`))
	}))
	defer srv.Close()

	c := testClient("", "", srv.URL)
	body, err := c.OpenResource(context.Background(), "Patient", url.Values{"family": {"Smart"}})
	require.NoError(t, err)
	assert.Contains(t, string(body), "Bundle")
}

func TestClient_Metadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metadata", r.URL.Path)
		w.Write([]byte(`{"resourceType":"CapabilityStatement","fhirVersion":"4.0.1","name":"Millennium"}`))
	}))
	defer srv.Close()

	c := testClient("", srv.URL, "")
	report := c.Metadata(context.Background())
	assert.True(t, report.Reachable)
	assert.Equal(t, http.StatusOK, report.StatusCode)
	assert.Equal(t, "4.0.1", report.FHIRVersion)
	assert.Equal(t, "Millennium", report.ServerName)
}

func TestClient_Metadata_Unreachable(t *testing.T) {
	c := testClient("", "http://127.0.0.1:1", "")
	report := c.Metadata(context.Background())
	assert.False(t, report.Reachable)
	assert.NotEmpty(t, report.Error)
}
