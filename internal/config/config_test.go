package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-live")

	path := writeConfig(t, `{
		"server": {"port": 8080, "log_level": "${TEST_LOG_LEVEL:info}"},
		"providers": [{"id": "openai", "type": "openai", "api_key": "${TEST_API_KEY}"}],
		"chat": {"model": "gpt-4o", "max_auto_steps": 10}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers[0].APIKey != "sk-live" {
		t.Errorf("api_key = %q, want env value", cfg.Providers[0].APIKey)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("log_level = %q, want default", cfg.Server.LogLevel)
	}
	if cfg.Chat.MaxAutoSteps != 10 {
		t.Errorf("max_auto_steps = %d", cfg.Chat.MaxAutoSteps)
	}
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("TEST_LOG_LEVEL", "debug")
	path := writeConfig(t, `{"server": {"log_level": "${TEST_LOG_LEVEL:info}"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.Server.LogLevel)
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{"server":`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
