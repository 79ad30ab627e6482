// Package gwconfig loads the gateway's environment configuration (spec.md §6).
// It follows the viper-based loader shape used elsewhere in the retrieval
// pack's EHR config layer: bind every variable explicitly, set sane defaults
// for optional knobs, and fail fast on anything required but missing.
package gwconfig

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// BackendType selects which Upstream FHIR Client implementation (C7) is built.
type BackendType string

const (
	BackendHAPI BackendType = "HAPI"
	BackendGCP  BackendType = "GCP"
)

// RunMode toggles the token verifier's issuer-check strictness (§4.1).
type RunMode string

const (
	RunModeProd RunMode = "PROD"
	RunModeDev  RunMode = "DEV"
)

// Config holds every environment-sourced setting the gateway needs at startup.
type Config struct {
	ProxyTo             string        `mapstructure:"PROXY_TO"`
	ProxyPublicBase     string        `mapstructure:"PROXY_PUBLIC_BASE"`
	TokenIssuer         string        `mapstructure:"TOKEN_ISSUER"`
	WellKnownEndpoint   string        `mapstructure:"WELL_KNOWN_ENDPOINT"`
	BackendType         BackendType   `mapstructure:"BACKEND_TYPE"`
	AccessChecker       string        `mapstructure:"ACCESS_CHECKER"`
	AllowedQueriesFile  string        `mapstructure:"ALLOWED_QUERIES_FILE"`
	PatientPathsFile    string        `mapstructure:"PATIENT_PATHS_FILE"`
	RunMode             RunMode       `mapstructure:"RUN_MODE"`
	AccessTokenEndpoint string        `mapstructure:"ACCESS_TOKEN_ENDPOINT"`
	GCPServiceAccount   string        `mapstructure:"GCP_SERVICE_ACCOUNT_FILE"`
	HAPIUsername        string        `mapstructure:"HAPI_BASIC_AUTH_USER"`
	HAPIPassword        string        `mapstructure:"HAPI_BASIC_AUTH_PASSWORD"`
	UpstreamTimeout     time.Duration `mapstructure:"UPSTREAM_TIMEOUT_SECONDS"`
	Port                string        `mapstructure:"PORT"`
	AuditSink           string        `mapstructure:"AUDIT_SINK"`
	AuditDatabaseURL    string        `mapstructure:"AUDIT_DATABASE_URL"`
}

// Load reads the gateway's configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("WELL_KNOWN_ENDPOINT", ".well-known/openid-configuration")
	v.SetDefault("BACKEND_TYPE", string(BackendHAPI))
	v.SetDefault("RUN_MODE", string(RunModeProd))
	v.SetDefault("UPSTREAM_TIMEOUT_SECONDS", 30)
	v.SetDefault("PORT", "8080")
	v.SetDefault("AUDIT_SINK", "log")

	for _, key := range []string{
		"PROXY_TO", "PROXY_PUBLIC_BASE", "TOKEN_ISSUER", "WELL_KNOWN_ENDPOINT",
		"BACKEND_TYPE", "ACCESS_CHECKER", "ALLOWED_QUERIES_FILE", "PATIENT_PATHS_FILE",
		"RUN_MODE", "ACCESS_TOKEN_ENDPOINT", "GCP_SERVICE_ACCOUNT_FILE",
		"HAPI_BASIC_AUTH_USER", "HAPI_BASIC_AUTH_PASSWORD", "UPSTREAM_TIMEOUT_SECONDS",
		"PORT", "AUDIT_SINK", "AUDIT_DATABASE_URL",
	} {
		_ = v.BindEnv(key)
	}

	// Reading the optional .env file is a convenience for local development;
	// its absence is not an error.
	_ = v.ReadInConfig()

	seconds := v.GetInt("UPSTREAM_TIMEOUT_SECONDS")

	cfg := &Config{
		ProxyTo:             v.GetString("PROXY_TO"),
		ProxyPublicBase:     v.GetString("PROXY_PUBLIC_BASE"),
		TokenIssuer:         v.GetString("TOKEN_ISSUER"),
		WellKnownEndpoint:   v.GetString("WELL_KNOWN_ENDPOINT"),
		BackendType:         BackendType(v.GetString("BACKEND_TYPE")),
		AccessChecker:       v.GetString("ACCESS_CHECKER"),
		AllowedQueriesFile:  v.GetString("ALLOWED_QUERIES_FILE"),
		PatientPathsFile:    v.GetString("PATIENT_PATHS_FILE"),
		RunMode:             RunMode(v.GetString("RUN_MODE")),
		AccessTokenEndpoint: v.GetString("ACCESS_TOKEN_ENDPOINT"),
		GCPServiceAccount:   v.GetString("GCP_SERVICE_ACCOUNT_FILE"),
		HAPIUsername:        v.GetString("HAPI_BASIC_AUTH_USER"),
		HAPIPassword:        v.GetString("HAPI_BASIC_AUTH_PASSWORD"),
		UpstreamTimeout:     time.Duration(seconds) * time.Second,
		Port:                v.GetString("PORT"),
		AuditSink:           v.GetString("AUDIT_SINK"),
		AuditDatabaseURL:    v.GetString("AUDIT_DATABASE_URL"),
	}

	return cfg, nil
}

// IsDev reports whether the gateway is running with relaxed issuer checking (§4.1).
func (c *Config) IsDev() bool {
	return c.RunMode == RunModeDev
}

// Validate checks that the configuration is complete enough to start serving
// traffic. Startup failures here MUST abort the process per spec.md §7.
func (c *Config) Validate() error {
	if c.ProxyTo == "" {
		return fmt.Errorf("PROXY_TO is required")
	}
	if c.TokenIssuer == "" {
		return fmt.Errorf("TOKEN_ISSUER is required")
	}
	if c.ProxyPublicBase == "" {
		return fmt.Errorf("PROXY_PUBLIC_BASE is required")
	}
	if c.BackendType != BackendHAPI && c.BackendType != BackendGCP {
		return fmt.Errorf("BACKEND_TYPE must be %q or %q, got %q", BackendHAPI, BackendGCP, c.BackendType)
	}
	if c.RunMode != RunModeProd && c.RunMode != RunModeDev {
		return fmt.Errorf("RUN_MODE must be %q or %q, got %q", RunModeProd, RunModeDev, c.RunMode)
	}
	if c.AccessChecker == "" {
		return fmt.Errorf("ACCESS_CHECKER is required")
	}
	if c.AccessChecker == "permissive" && c.RunMode != RunModeDev {
		return fmt.Errorf("ACCESS_CHECKER=permissive is only permitted when RUN_MODE=DEV")
	}
	if c.AllowedQueriesFile == "" {
		return fmt.Errorf("ALLOWED_QUERIES_FILE is required")
	}
	if c.PatientPathsFile == "" {
		return fmt.Errorf("PATIENT_PATHS_FILE is required")
	}
	if c.BackendType == BackendGCP && c.GCPServiceAccount == "" {
		return fmt.Errorf("GCP_SERVICE_ACCOUNT_FILE is required when BACKEND_TYPE=GCP")
	}
	switch c.AuditSink {
	case "log":
	case "postgres":
		if c.AuditDatabaseURL == "" {
			return fmt.Errorf("AUDIT_DATABASE_URL is required when AUDIT_SINK=postgres")
		}
	case "mongo":
		if c.AuditDatabaseURL == "" {
			return fmt.Errorf("AUDIT_DATABASE_URL is required when AUDIT_SINK=mongo")
		}
	default:
		return fmt.Errorf("AUDIT_SINK must be one of log, postgres, mongo, got %q", c.AuditSink)
	}
	return nil
}
