package aiola

import (
	"errors"
	"os"
	"testing"
	"time"
)

// clearAiolaEnv unsets AIOLA_* variables for the test; t.Setenv restores them.
func clearAiolaEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AIOLA_API_KEY", "AIOLA_ACCESS_TOKEN", "AIOLA_BASE_URL",
		"AIOLA_AUTH_BASE_URL", "AIOLA_WORKFLOW_ID", "AIOLA_TIMEOUT",
	} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearAiolaEnv(t)
	t.Setenv("AIOLA_API_KEY", "env-key")
	t.Setenv("AIOLA_WORKFLOW_ID", "env-flow")
	t.Setenv("AIOLA_TIMEOUT", "45s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv failed: %v", err)
	}
	if cfg.APIKey != "env-key" || cfg.WorkflowID != "env-flow" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("expected timeout 45s, got %v", cfg.Timeout)
	}
}

func TestLoadConfigFromEnv_InvalidTimeout(t *testing.T) {
	clearAiolaEnv(t)
	t.Setenv("AIOLA_TIMEOUT", "soon")

	_, err := LoadConfigFromEnv()
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
}

func TestConfigClientOptions(t *testing.T) {
	cfg := &Config{
		AccessToken: "a.b.c",
		BaseURL:     "https://apis.example.com",
		AuthBaseURL: "https://auth.example.com",
		WorkflowID:  "flow-env",
		Timeout:     10 * time.Second,
	}

	client, err := NewClient(cfg.ClientOptions()...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	opts := client.Options()
	if opts.AccessToken != "a.b.c" || opts.WorkflowID != "flow-env" {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.BaseURL != "https://apis.example.com" || opts.AuthBaseURL != "https://auth.example.com" {
		t.Errorf("unexpected URLs %+v", opts)
	}
	if opts.Timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", opts.Timeout)
	}
}

func TestNewClientFromEnv(t *testing.T) {
	clearAiolaEnv(t)
	t.Setenv("AIOLA_API_KEY", "env-key")
	t.Setenv("AIOLA_WORKFLOW_ID", "env-flow")

	client, err := NewClientFromEnv(WithWorkflowID("explicit-flow"))
	if err != nil {
		t.Fatalf("NewClientFromEnv failed: %v", err)
	}
	if client.Options().APIKey != "env-key" {
		t.Errorf("expected API key from env, got %q", client.Options().APIKey)
	}
	if client.Options().WorkflowID != "explicit-flow" {
		t.Errorf("expected explicit option to win, got %q", client.Options().WorkflowID)
	}
	if client.BaseURL() != DefaultBaseURL {
		t.Errorf("expected default base URL, got %q", client.BaseURL())
	}
}

func TestNewClientFromEnv_NoCredentials(t *testing.T) {
	clearAiolaEnv(t)

	_, err := NewClientFromEnv()
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("expected ValidationError, got %T (%v)", err, err)
	}
}
