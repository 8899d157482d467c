package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/nmiculinic/rzne/pkg/config"
)

type cliConfig struct {
	APIBaseURL string `json:"api_base_url"`
	Username   string `json:"username,omitempty"`
}

// loadConfig layers the config file over built-in defaults and NOTES_* variables over the file.
func loadConfig() (cliConfig, error) {
	env := config.LoadCLIConfig()
	cfg := cliConfig{APIBaseURL: env.APIBaseURL}

	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cliConfig{}, err
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cliConfig{}, err
		}
	}

	if config.IsSet("NOTES_API") || cfg.APIBaseURL == "" {
		cfg.APIBaseURL = env.APIBaseURL
	}
	if env.Username != "" {
		cfg.Username = env.Username
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "notesctl", "config.json"), nil
}
