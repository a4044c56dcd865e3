package config

import (
	"fmt"
	"os"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type OllamaConfig struct {
	Host         string `toml:"host"`
	DefaultModel string `toml:"default_model"`
}

type UserConfig struct {
	Ollama              OllamaConfig `toml:"ollama"`
	DefaultSystemPrompt string       `toml:"default_system_prompt,omitempty"`
}

type Config struct {
	DataDirectory       string
	OllamaHost          string
	DefaultModel        string
	DefaultSystemPrompt string
}

func (c *Config) OllamaURL() string {
	return c.OllamaHost
}

func (c *Config) Model() string {
	return c.DefaultModel
}

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("OGUI_OLLAMA_HOST"); host != "" {
		c.OllamaHost = host
	}
	if model := os.Getenv("OGUI_OLLAMA_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if dataDir := os.Getenv("OGUI_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
}

func HasAllEnvVars() bool {
	return os.Getenv("OGUI_OLLAMA_HOST") != "" &&
		os.Getenv("OGUI_OLLAMA_MODEL") != "" &&
		os.Getenv("OGUI_DATA_DIR") != ""
}

func HasAnyEnvVar() bool {
	return os.Getenv("OGUI_OLLAMA_HOST") != "" ||
		os.Getenv("OGUI_OLLAMA_MODEL") != "" ||
		os.Getenv("OGUI_DATA_DIR") != ""
}

func GetMissingEnvVar() string {
	if os.Getenv("OGUI_OLLAMA_HOST") == "" {
		return "OGUI_OLLAMA_HOST"
	}
	if os.Getenv("OGUI_OLLAMA_MODEL") == "" {
		return "OGUI_OLLAMA_MODEL"
	}
	if os.Getenv("OGUI_DATA_DIR") == "" {
		return "OGUI_DATA_DIR"
	}
	return ""
}

func Load() (*Config, error) {
	cfg := &Config{
		DataDirectory: "~/.local/share/ogui",
		OllamaHost:    "http://localhost:11434",
		DefaultModel:  "llama3.1:latest",
	}

	settingsPath := GetSettingsFilePath()

	if !FileExists(settingsPath) && HasAllEnvVars() {
		cfg.applyEnvOverrides()
	} else {
		systemCfg, err := LoadSystemConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load system config: %w", err)
		}
		cfg.DataDirectory = systemCfg.DataDirectory

		dataDir := cfg.DataDir()
		userCfg, err := LoadUserConfig(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
		cfg.OllamaHost = userCfg.Ollama.Host
		cfg.DefaultModel = userCfg.Ollama.DefaultModel
		cfg.DefaultSystemPrompt = userCfg.DefaultSystemPrompt
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	return cfg, nil
}
