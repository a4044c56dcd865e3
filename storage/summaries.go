package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// SummaryStorage persists the rolling summary, one text blob per
// conversation. A conversation without a summary reads back as "".
type SummaryStorage struct {
	summariesDir string
}

// NewSummaryStorage creates a new summary storage
func NewSummaryStorage(dataDir string) (*SummaryStorage, error) {
	summariesDir := filepath.Join(dataDir, "summaries")

	if err := os.MkdirAll(summariesDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create summaries directory: %w", err)
	}

	return &SummaryStorage{
		summariesDir: summariesDir,
	}, nil
}

// Save overwrites the rolling summary for a conversation.
func (s *SummaryStorage) Save(conversationID, summary string) error {
	path := filepath.Join(s.summariesDir, conversationID+".txt")

	// 0600 - summaries condense chat history
	if err := os.WriteFile(path, []byte(summary), 0600); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}

	return nil
}

// Load returns the rolling summary for a conversation, or "" when none has
// been written yet.
func (s *SummaryStorage) Load(conversationID string) (string, error) {
	path := filepath.Join(s.summariesDir, conversationID+".txt")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read summary file: %w", err)
	}

	return string(data), nil
}

// Delete removes the summary for a conversation. Missing files are a no-op,
// so deleting a conversation can always delete its summary too.
func (s *SummaryStorage) Delete(conversationID string) error {
	path := filepath.Join(s.summariesDir, conversationID+".txt")

	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
