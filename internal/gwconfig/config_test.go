package gwconfig

import (
	"os"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	env := map[string]string{
		"PROXY_TO":             "https://fhir.example.com/r4",
		"PROXY_PUBLIC_BASE":    "https://gateway.example.com/r4",
		"TOKEN_ISSUER":         "https://idp.example.com",
		"ACCESS_CHECKER":       "list",
		"ALLOWED_QUERIES_FILE": "/etc/gateway/allowed_queries.json",
		"PATIENT_PATHS_FILE":   "/etc/gateway/patient_paths.json",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BackendType != BackendHAPI {
		t.Errorf("expected default backend HAPI, got %s", cfg.BackendType)
	}
	if cfg.RunMode != RunModeProd {
		t.Errorf("expected default run mode PROD, got %s", cfg.RunMode)
	}
	if cfg.UpstreamTimeout.Seconds() != 30 {
		t.Errorf("expected default timeout 30s, got %s", cfg.UpstreamTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidateRequiresProxyTo(t *testing.T) {
	setRequiredEnv(t)
	os.Unsetenv("PROXY_TO")
	t.Setenv("PROXY_TO", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when PROXY_TO is empty")
	}
}

func TestValidateRejectsPermissiveOutsideDev(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACCESS_CHECKER", "permissive")
	t.Setenv("RUN_MODE", "PROD")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for permissive checker outside dev mode")
	}
}

func TestValidateAllowsPermissiveInDev(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACCESS_CHECKER", "permissive")
	t.Setenv("RUN_MODE", "DEV")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected permissive checker to be valid in dev mode, got %v", err)
	}
}

func TestValidateRequiresGCPServiceAccount(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BACKEND_TYPE", "GCP")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when GCP backend lacks service account file")
	}
}
