package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultScopes is the scope set requested for a standalone launch against
// the Oracle Health provider persona. The "launch" scope is deliberately
// absent: it is only valid for EHR-embedded launches.
const DefaultScopes = "patient/Patient.read patient/Observation.read patient/MedicationHistory.read openid profile"

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	ClientID    string `mapstructure:"ORACLE_CLIENT_ID"`
	TenantID    string `mapstructure:"TENANT_ID"`
	RedirectURI string `mapstructure:"REDIRECT_URI"`
	Scopes      string `mapstructure:"OAUTH_SCOPES"`
	HTTPTimeout int    `mapstructure:"HTTP_TIMEOUT"`
}

// Load reads configuration from the environment, with an optional .env file.
// A missing ORACLE_CLIENT_ID, TENANT_ID or REDIRECT_URI is not an error at
// load time: the health endpoint must stay up regardless, so flow-dependent
// handlers check Validate instead.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("OAUTH_SCOPES", DefaultScopes)
	v.SetDefault("HTTP_TIMEOUT", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("ORACLE_CLIENT_ID")
	v.BindEnv("TENANT_ID")
	v.BindEnv("REDIRECT_URI")
	v.BindEnv("OAUTH_SCOPES")
	v.BindEnv("HTTP_TIMEOUT")

	// Try reading .env, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Missing returns the names of required variables that are not set.
func (c *Config) Missing() []string {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "ORACLE_CLIENT_ID")
	}
	if c.TenantID == "" {
		missing = append(missing, "TENANT_ID")
	}
	if c.RedirectURI == "" {
		missing = append(missing, "REDIRECT_URI")
	}
	return missing
}

// Validate checks that the authorization flow can run.
func (c *Config) Validate() error {
	if missing := c.Missing(); len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ScopeList splits the configured scope string.
func (c *Config) ScopeList() []string {
	return strings.Fields(c.Scopes)
}

// Oracle Health Millennium endpoints, templated by tenant. The provider
// persona authorize URL matches the smart-v1 standalone launch profile.

func (c *Config) AuthorizeURL() string {
	return fmt.Sprintf("https://authorization.cerner.com/tenants/%s/protocols/oauth2/profiles/smart-v1/personas/provider/authorize", c.TenantID)
}

func (c *Config) TokenURL() string {
	return fmt.Sprintf("https://authorization.cerner.com/tenants/%s/protocols/oauth2/profiles/smart-v1/token", c.TenantID)
}

// FHIRBaseURL is the secure FHIR R4 endpoint; requests need a bearer token.
func (c *Config) FHIRBaseURL() string {
	return fmt.Sprintf("https://fhir-ehr-code.cerner.com/r4/%s", c.TenantID)
}

// OpenBaseURL is the open sandbox FHIR R4 endpoint; no authentication.
func (c *Config) OpenBaseURL() string {
	return fmt.Sprintf("https://fhir-open.cerner.com/r4/%s", c.TenantID)
}
