package auth

import "time"

// Token is the access token record returned by the SMART token endpoint.
// One token lives in the process at a time; it is overwritten on each
// successful exchange and lost on restart.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
	ExpiresAt    time.Time
	IDToken      string
	// Patient is the patient context returned for patient-scoped launches.
	Patient string
}

// Valid reports whether the token can still authenticate a request at now.
func (t Token) Valid(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(t.ExpiresAt)
}
