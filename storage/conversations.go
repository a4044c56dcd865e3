package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message roles. Summary markers are stored with RoleSystem.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents a chat message
type Message struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Images     [][]byte  `json:"images,omitempty"` // Base64-encoded in JSON
	RefPreview string    `json:"ref_preview,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh ID and timestamp.
func NewMessage(role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Conversation represents a persisted chat conversation
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Messages     []Message `json:"messages"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Pinned       bool      `json:"pinned,omitempty"`
}

// LastActiveAt is the timestamp of the last message, or the creation time
// for an empty conversation.
func (c *Conversation) LastActiveAt() time.Time {
	if len(c.Messages) == 0 {
		return c.CreatedAt
	}
	return c.Messages[len(c.Messages)-1].Timestamp
}

// MessageCount counts user and assistant messages; system markers are
// excluded.
func (c *Conversation) MessageCount() int {
	n := 0
	for _, msg := range c.Messages {
		if msg.Role == RoleUser || msg.Role == RoleAssistant {
			n++
		}
	}
	return n
}

// ConversationMetadata is a lightweight version of Conversation for listing
type ConversationMetadata struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	MessageCount int       `json:"message_count"`
	Pinned       bool      `json:"pinned,omitempty"`
}

// ConversationStorage handles conversation persistence
type ConversationStorage struct {
	conversationsDir string
}

// NewConversationStorage creates a new conversation storage
func NewConversationStorage(dataDir string) (*ConversationStorage, error) {
	conversationsDir := filepath.Join(dataDir, "conversations")

	// 0700 - user-only access
	if err := os.MkdirAll(conversationsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create conversations directory: %w", err)
	}

	return &ConversationStorage{
		conversationsDir: conversationsDir,
	}, nil
}

// Save saves a conversation to disk
func (s *ConversationStorage) Save(conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}

	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	filename := fmt.Sprintf("%s.json", conv.ID)
	path := filepath.Join(s.conversationsDir, filename)

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	// 0600 - conversation files contain sensitive chat history
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}

	return nil
}

// Load loads a conversation from disk. Fields absent in older documents
// unmarshal to their zero values, so a pre-pinning file still loads.
func (s *ConversationStorage) Load(id string) (*Conversation, error) {
	filename := fmt.Sprintf("%s.json", id)
	path := filepath.Join(s.conversationsDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}

	return &conv, nil
}

// List returns metadata for all conversations, pinned first, then by last
// activity (newest first).
func (s *ConversationStorage) List() ([]ConversationMetadata, error) {
	entries, err := os.ReadDir(s.conversationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversations directory: %w", err)
	}

	var conversations []ConversationMetadata

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(s.conversationsDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue // Skip corrupted files
		}

		var conv Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			continue // Skip corrupted files
		}

		conversations = append(conversations, ConversationMetadata{
			ID:           conv.ID,
			Title:        conv.Title,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			LastActiveAt: conv.LastActiveAt(),
			MessageCount: conv.MessageCount(),
			Pinned:       conv.Pinned,
		})
	}

	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].Pinned != conversations[j].Pinned {
			return conversations[i].Pinned
		}
		return conversations[i].LastActiveAt.After(conversations[j].LastActiveAt)
	})

	return conversations, nil
}

// Delete deletes a conversation from disk. Deleting a conversation that does
// not exist is a no-op.
func (s *ConversationStorage) Delete(id string) error {
	filename := fmt.Sprintf("%s.json", id)
	path := filepath.Join(s.conversationsDir, filename)

	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete conversation file: %w", err)
	}

	return nil
}

// SaveCurrentConversationID saves the ID of the active conversation
func (s *ConversationStorage) SaveCurrentConversationID(id string) error {
	path := filepath.Join(filepath.Dir(s.conversationsDir), "current_conversation.id")
	return os.WriteFile(path, []byte(id), 0600)
}

// LoadCurrentConversationID loads the ID of the last active conversation,
// or "" when none has been remembered yet.
func (s *ConversationStorage) LoadCurrentConversationID() (string, error) {
	path := filepath.Join(filepath.Dir(s.conversationsDir), "current_conversation.id")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// DeriveTitle derives a conversation title from the first user message
func DeriveTitle(firstMessage string) string {
	if firstMessage == "" {
		return fmt.Sprintf("Conversation %s", time.Now().Format("Jan 2, 3:04 PM"))
	}

	name := firstMessage
	if len(name) > 30 {
		name = name[:30] + "..."
	}

	name = strings.ReplaceAll(name, "\n", " ")
	name = strings.ReplaceAll(name, "\r", " ")
	name = strings.TrimSpace(name)

	if name == "" {
		return fmt.Sprintf("Conversation %s", time.Now().Format("Jan 2, 3:04 PM"))
	}

	return name
}

// SanitizeFilename removes or replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	for _, c := range []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", " ", "\n", "\r"} {
		name = strings.ReplaceAll(name, c, "-")
	}

	name = strings.Trim(name, "-.")

	if len(name) > 50 {
		name = name[:50]
	}

	if name == "" {
		name = "conversation"
	}

	return name
}

// GenerateExportPath generates a default export path for a conversation
func GenerateExportPath(title string) string {
	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		homeDir = os.Getenv("USERPROFILE") // Windows fallback
	}

	downloadsDir := filepath.Join(homeDir, "Downloads")
	sanitized := SanitizeFilename(title)
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("ogui-conversation-%s-%s.json", sanitized, timestamp)

	return filepath.Join(downloadsDir, filename)
}

// ExportToJSON exports a conversation to a JSON file at the specified path
func (s *ConversationStorage) ExportToJSON(id string, exportPath string) error {
	conv, err := s.Load(id)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// 0600 - exports contain chat history
	if err := os.WriteFile(exportPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
