// Package config loads daemon configuration from the platform-native
// backend, environment variables, and the platform secret store. This is the
// process-level configuration (ports, paths, token); the assistant's own
// runtime settings live in the database and are managed over the API.
package config

import "strings"

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	LLM     LLMConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// LLMConfig seeds the inference endpoint for a fresh installation. Once the
// assistant has stored its own configuration, these values are ignored.
type LLMConfig struct {
	Endpoint string
	Model    string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4300,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			Endpoint: "http://localhost:11434",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.omnicore.assistant) and
// the API token falls back to macOS Keychain. On Linux the backend is a JSON
// file at $XDG_CONFIG_HOME/omnicore/config.json and the token falls back to a
// secrets file under $XDG_DATA_HOME/omnicore.
//
// Environment variables (OMNI_*) override backend values on all platforms.
// An empty API token disables HTTP authentication.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), secretReader{})
}

// secrets abstracts the platform secret store for testing.
type secrets interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, sec secrets) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.APIToken == "" {
		if token, err := sec.Get("omnicore", "api_token"); err == nil && token != "" {
			cfg.Server.APIToken = token
		}
	}

	return cfg, nil
}

// secretReader reads from the platform secret store.
type secretReader struct{}

func (secretReader) Get(service, account string) (string, error) {
	out, err := secretExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
