package config

import (
	"fmt"
	"sync"
)

// Store holds the live user settings and serializes access to them. Reads
// always see the most recently loaded values, so a model switch written to
// config.toml (by the settings UI or an external editor plus the watcher)
// takes effect on the next send.
type Store struct {
	mu      sync.RWMutex
	dataDir string
	user    *UserConfig
}

// NewStore loads the user config from dataDir and returns a live store.
func NewStore(dataDir string) (*Store, error) {
	user, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	return &Store{
		dataDir: dataDir,
		user:    user,
	}, nil
}

// Reload re-reads the user config from disk. On parse failure the previous
// values are kept.
func (s *Store) Reload() error {
	user, err := LoadUserConfig(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to reload user config: %w", err)
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return nil
}

// Model returns the currently selected model name.
func (s *Store) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Ollama.DefaultModel
}

// Host returns the Ollama server URL.
func (s *Store) Host() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Ollama.Host
}

// SystemPrompt returns the default system prompt for new conversations.
func (s *Store) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.DefaultSystemPrompt
}

// SetModel updates the selected model and persists the user config.
func (s *Store) SetModel(model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user.Ollama.DefaultModel = model
	if err := SaveUserConfig(s.user, s.dataDir); err != nil {
		return fmt.Errorf("failed to save user config: %w", err)
	}
	return nil
}

// UserConfigFile returns the path the store reads from, for watching.
func (s *Store) UserConfigFile() string {
	return UserConfigPath(s.dataDir)
}
