package config

import (
	"strings"
	"testing"
)

// mapBackend is an in-memory ConfigBackend for tests.
type mapBackend struct {
	data map[string]any
}

func (b *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (b *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (b *mapBackend) SetString(key, val string) error { b.data[key] = val; return nil }
func (b *mapBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b *mapBackend) Delete(key string) error          { delete(b.data, key); return nil }

// mockSecrets is a test double for the secret store.
type mockSecrets struct {
	value string
	err   error
}

func (m mockSecrets) Get(service, account string) (string, error) {
	return m.value, m.err
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(&mapBackend{data: map[string]any{}}, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4300 {
		t.Errorf("Server.Port = %d, want 4300", cfg.Server.Port)
	}
	if cfg.Server.APIToken != "" {
		t.Errorf("Server.APIToken = %q, want empty (auth disabled)", cfg.Server.APIToken)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.LLM.Endpoint != "http://localhost:11434" {
		t.Errorf("LLM.Endpoint = %q, want local Ollama", cfg.LLM.Endpoint)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := &mapBackend{data: map[string]any{
		"server.port":      5100,
		"storage.data_dir": "/tmp/omnicore-test",
		"log.level":        "debug",
		"llm.endpoint":     "http://gpu-box:11434",
		"llm.model":        "qwen2.5:7b",
	}}
	cfg, err := loadWith(b, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5100 {
		t.Errorf("Server.Port = %d, want 5100", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/omnicore-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.LLM.Endpoint != "http://gpu-box:11434" {
		t.Errorf("LLM.Endpoint = %q", cfg.LLM.Endpoint)
	}
	if cfg.LLM.Model != "qwen2.5:7b" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("OMNI_SERVER_PORT", "6200")
	t.Setenv("OMNI_LOG_LEVEL", "warn")

	b := &mapBackend{data: map[string]any{
		"server.port": 5100,
		"log.level":   "debug",
	}}
	cfg, err := loadWith(b, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6200 {
		t.Errorf("Server.Port = %d, want env override 6200", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want env override warn", cfg.Log.Level)
	}
}

func TestInvalidEnvIntFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("OMNI_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(&mapBackend{data: map[string]any{}}, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4300 {
		t.Errorf("Server.Port = %d, want default 4300 on bad env value", cfg.Server.Port)
	}
}

func TestTokenFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OMNI_API_TOKEN", "env-token")

	cfg, err := loadWith(&mapBackend{data: map[string]any{}}, mockSecrets{value: "secret-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.APIToken != "env-token" {
		t.Errorf("APIToken = %q, want env value to win over the secret store", cfg.Server.APIToken)
	}
}

func TestTokenFromSecretStore(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(&mapBackend{data: map[string]any{}}, mockSecrets{value: "secret-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.APIToken != "secret-token" {
		t.Errorf("APIToken = %q, want secret store value", cfg.Server.APIToken)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	for _, info := range ShowAll(defaults()) {
		if strings.Contains(info.Key, "token") {
			t.Errorf("secret key %q exposed by ShowAll", info.Key)
		}
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	if len(keys) == 0 {
		t.Fatal("no valid keys")
	}
	for _, k := range keys {
		if k == "server.api_token" {
			t.Error("secret key listed as settable")
		}
	}
}
