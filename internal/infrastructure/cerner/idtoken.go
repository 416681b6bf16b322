package cerner

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// IDClaims is the subset of OpenID claims surfaced from the id_token.
type IDClaims struct {
	Subject  string `json:"sub,omitempty"`
	Name     string `json:"name,omitempty"`
	FHIRUser string `json:"fhirUser,omitempty"`
	Issuer   string `json:"iss,omitempty"`
}

// ParseIDTokenClaims decodes the id_token without verifying its signature.
// The token arrives over TLS straight from the token endpoint, so the
// claims are only used for display, never for authorization decisions.
func ParseIDTokenClaims(raw string) (IDClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return IDClaims{}, fmt.Errorf("decode id_token: %w", err)
	}

	out := IDClaims{}
	if v, ok := claims["sub"].(string); ok {
		out.Subject = v
	}
	if v, ok := claims["name"].(string); ok {
		out.Name = v
	}
	if v, ok := claims["fhirUser"].(string); ok {
		out.FHIRUser = v
	}
	if v, ok := claims["iss"].(string); ok {
		out.Issuer = v
	}
	return out, nil
}
