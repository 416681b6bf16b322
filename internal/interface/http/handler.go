package httpiface

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"oracle-fhir/internal/config"
	"oracle-fhir/internal/domain/auth"
	"oracle-fhir/internal/infrastructure/cerner"
	"oracle-fhir/internal/pkg/httpx"
)

const serviceName = "oracle-health-fhir-integration"

// Handler serves the authorization flow and the authenticated resource
// fetch. The sandbox proxy lives in SandboxHandler.
type Handler struct {
	UC     *auth.UseCase
	Client *cerner.Client
	Cfg    *config.Config
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.GET("/login", h.Login)
	e.GET("/callback", h.Callback)
	e.GET("/patients", h.Patients)
	e.GET("/fhir/metadata", h.Metadata)
}

func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service":  serviceName,
		"auth_url": "/login",
		"endpoints": []string{
			"/login", "/callback", "/patients", "/fhir/metadata", "/health",
			"/sandbox/patients", "/sandbox/observations", "/sandbox/medications",
		},
	})
}

// Health always answers 200, configured or not.
func (h *Handler) Health(c echo.Context) error {
	_, hasToken := h.UC.AccessToken(c.Request().Context())
	resp := map[string]any{
		"status":           "healthy",
		"service":          serviceName,
		"auth_flow":        "oauth2_pkce",
		"configured":       h.Cfg.Validate() == nil,
		"has_active_token": hasToken,
		"endpoints": map[string]string{
			"authorize": h.Cfg.AuthorizeURL(),
			"token":     h.Cfg.TokenURL(),
			"fhir_base": h.Cfg.FHIRBaseURL(),
			"sandbox":   h.Cfg.OpenBaseURL(),
		},
	}
	if missing := h.Cfg.Missing(); len(missing) > 0 {
		resp["missing_config"] = missing
	}
	return c.JSON(http.StatusOK, resp)
}

// Login starts a standalone-launch authorization attempt and hands the
// authorization URL back to the caller instead of redirecting.
func (h *Handler) Login(c echo.Context) error {
	if err := h.Cfg.Validate(); err != nil {
		return httpx.JSONError(c, http.StatusInternalServerError, "not_configured",
			map[string]any{"missing": h.Cfg.Missing()})
	}

	authURL, state, err := h.UC.Begin(c.Request().Context())
	if err != nil {
		c.Logger().Errorf("failed to start authorization: %v", err)
		return httpx.JSONError(c, http.StatusInternalServerError, "authorization_init_failed", nil)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"auth_url":     authURL,
		"state":        state,
		"message":      "Visit the auth_url to authorize the application",
		"launch_type":  "standalone",
		"fhir_version": "R4",
		"scopes":       h.Cfg.ScopeList(),
	})
}

func (h *Handler) Callback(c echo.Context) error {
	if oauthErr := c.QueryParam("error"); oauthErr != "" {
		return h.callbackError(c, oauthErr)
	}

	code := c.QueryParam("code")
	if code == "" {
		return httpx.JSONError(c, http.StatusBadRequest, "missing_code",
			map[string]string{"hint": "no authorization code in callback query"})
	}
	if err := h.Cfg.Validate(); err != nil {
		return httpx.JSONError(c, http.StatusInternalServerError, "not_configured",
			map[string]any{"missing": h.Cfg.Missing()})
	}

	ctx := c.Request().Context()
	tok, err := h.UC.Complete(ctx, c.QueryParam("state"), code)
	if err != nil {
		if errors.Is(err, auth.ErrStateUnknown) {
			return httpx.JSONError(c, http.StatusBadRequest, "invalid_state",
				map[string]string{"hint": "state parameter missing or not issued by /login"})
		}
		c.Logger().Errorf("token exchange failed: %v", err)
		return upstreamError(c, "token_exchange_failed", err)
	}

	resp := map[string]any{
		"message":    "Authorization successful. Patient data can now be fetched.",
		"token_type": tok.TokenType,
		"expires_in": tok.ExpiresIn,
		"scope":      tok.Scope,
	}
	if tok.Patient != "" {
		resp["patient"] = tok.Patient
	}
	if tok.IDToken != "" {
		if claims, err := cerner.ParseIDTokenClaims(tok.IDToken); err == nil {
			resp["user"] = claims
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// callbackError maps authorization-server error redirects. A rejected
// standalone launch gets a pointed hint: the most common misconfiguration
// is an app registered for EHR launch only.
func (h *Handler) callbackError(c echo.Context, oauthErr string) error {
	desc := c.QueryParam("error_description")
	uri := c.QueryParam("error_uri")
	c.Logger().Errorf("oauth error on callback: %s (%s)", oauthErr, desc)

	if strings.Contains(uri, "launch:code-required") || oauthErr == "invalid_request" {
		return httpx.JSONError(c, http.StatusBadRequest, "launch_context_required", map[string]any{
			"error":             oauthErr,
			"error_description": desc,
			"error_uri":         uri,
			"hint":              "register the app for standalone launch, or drop the launch scope",
		})
	}
	return httpx.JSONError(c, http.StatusBadRequest, "authorization_failed", map[string]any{
		"error":             oauthErr,
		"error_description": desc,
		"error_uri":         uri,
	})
}

// Patients proxies GET {fhir_base}/Patient with the cached token and
// returns the upstream body unchanged.
func (h *Handler) Patients(c echo.Context) error {
	ctx := c.Request().Context()
	tok, ok := h.UC.AccessToken(ctx)
	if !ok {
		return httpx.JSONError(c, http.StatusUnauthorized, "not_authorized",
			map[string]string{"hint": "complete the authorization flow via /login first"})
	}

	body, err := h.Client.Resource(ctx, tok.AccessToken, "Patient", nil)
	if err != nil {
		var serr *cerner.StatusError
		if errors.As(err, &serr) && serr.StatusCode == http.StatusUnauthorized {
			// Upstream no longer accepts the token; drop it so the next
			// call reports not_authorized instead of replaying it.
			h.UC.Reset(ctx)
			return httpx.JSONError(c, http.StatusUnauthorized, "token_rejected",
				map[string]string{"hint": "access token expired or revoked, re-authorize via /login"})
		}
		c.Logger().Errorf("patient fetch failed: %v", err)
		return upstreamError(c, "fhir_request_failed", err)
	}
	return c.Blob(http.StatusOK, "application/fhir+json", body)
}

// Metadata reports whether the R4 capability statement is reachable.
func (h *Handler) Metadata(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Client.Metadata(c.Request().Context()))
}

// upstreamError surfaces an upstream failure: non-2xx responses keep their
// status and body, transport errors become a 502.
func upstreamError(c echo.Context, msg string, err error) error {
	var serr *cerner.StatusError
	if errors.As(err, &serr) {
		return httpx.JSONError(c, serr.StatusCode, msg, map[string]any{
			"upstream_status": serr.StatusCode,
			"upstream_body":   rawOrString(serr.Body),
		})
	}
	return httpx.JSONError(c, http.StatusBadGateway, msg, map[string]string{"error": err.Error()})
}

func rawOrString(body string) any {
	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err == nil {
		return decoded
	}
	return body
}
