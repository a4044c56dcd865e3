package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SavedPrompt is a reusable prompt template. Injecting one into a
// conversation sets that conversation's system-prompt override.
type SavedPrompt struct {
	ID         string
	Title      string
	Content    string
	Pinned     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastUsedAt time.Time
}

type PromptStorage struct {
	db *sql.DB
}

func NewPromptStorage(dataDir string) (*PromptStorage, error) {
	dbPath := filepath.Join(dataDir, "prompts.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &PromptStorage{db: db}

	if err := storage.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return storage, nil
}

func (ps *PromptStorage) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS prompts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		pinned INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		last_used_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_prompts_title ON prompts(title);
	`

	_, err := ps.db.Exec(schema)
	if err != nil {
		return err
	}

	// Migration: databases created before pinning lack the pinned column
	if err := ps.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// migrateSchema adds missing columns to existing databases
func (ps *PromptStorage) migrateSchema() error {
	hasPinned, err := ps.columnExists("prompts", "pinned")
	if err != nil {
		return fmt.Errorf("failed to check for pinned column: %w", err)
	}

	if !hasPinned {
		_, err := ps.db.Exec(`ALTER TABLE prompts ADD COLUMN pinned INTEGER NOT NULL DEFAULT 0`)
		if err != nil {
			return fmt.Errorf("failed to add pinned column: %w", err)
		}
	}

	hasLastUsed, err := ps.columnExists("prompts", "last_used_at")
	if err != nil {
		return fmt.Errorf("failed to check for last_used_at column: %w", err)
	}

	if !hasLastUsed {
		_, err := ps.db.Exec(`ALTER TABLE prompts ADD COLUMN last_used_at DATETIME`)
		if err != nil {
			return fmt.Errorf("failed to add last_used_at column: %w", err)
		}
	}

	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info
func (ps *PromptStorage) columnExists(tableName, columnName string) (bool, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", tableName)
	rows, err := ps.db.Query(query)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk)
		if err != nil {
			return false, err
		}

		if name == columnName {
			return true, nil
		}
	}

	return false, rows.Err()
}

// Save inserts or replaces a prompt. An empty ID gets a fresh UUID.
func (ps *PromptStorage) Save(prompt *SavedPrompt) error {
	if prompt.ID == "" {
		prompt.ID = uuid.New().String()
	}

	prompt.UpdatedAt = time.Now()
	if prompt.CreatedAt.IsZero() {
		prompt.CreatedAt = prompt.UpdatedAt
	}

	query := `
	INSERT OR REPLACE INTO prompts (id, title, content, pinned, created_at, updated_at, last_used_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := ps.db.Exec(query,
		prompt.ID,
		prompt.Title,
		prompt.Content,
		boolToInt(prompt.Pinned),
		prompt.CreatedAt,
		prompt.UpdatedAt,
		nullableTime(prompt.LastUsedAt),
	)

	return err
}

// Load fetches a prompt by ID. Returns (nil, nil) when not found.
func (ps *PromptStorage) Load(id string) (*SavedPrompt, error) {
	query := `
	SELECT id, title, content, pinned, created_at, updated_at, last_used_at
	FROM prompts
	WHERE id = ?
	`

	var prompt SavedPrompt
	var pinned int
	var lastUsed sql.NullTime
	err := ps.db.QueryRow(query, id).Scan(
		&prompt.ID,
		&prompt.Title,
		&prompt.Content,
		&pinned,
		&prompt.CreatedAt,
		&prompt.UpdatedAt,
		&lastUsed,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	prompt.Pinned = pinned != 0
	if lastUsed.Valid {
		prompt.LastUsedAt = lastUsed.Time
	}

	return &prompt, nil
}

// List returns all prompts, pinned first, then most recently updated.
func (ps *PromptStorage) List() ([]SavedPrompt, error) {
	query := `
	SELECT id, title, content, pinned, created_at, updated_at, last_used_at
	FROM prompts
	ORDER BY pinned DESC, updated_at DESC
	`

	rows, err := ps.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []SavedPrompt
	for rows.Next() {
		var prompt SavedPrompt
		var pinned int
		var lastUsed sql.NullTime
		err := rows.Scan(
			&prompt.ID,
			&prompt.Title,
			&prompt.Content,
			&pinned,
			&prompt.CreatedAt,
			&prompt.UpdatedAt,
			&lastUsed,
		)
		if err != nil {
			continue
		}
		prompt.Pinned = pinned != 0
		if lastUsed.Valid {
			prompt.LastUsedAt = lastUsed.Time
		}
		prompts = append(prompts, prompt)
	}

	return prompts, rows.Err()
}

func (ps *PromptStorage) Delete(id string) error {
	query := `DELETE FROM prompts WHERE id = ?`
	_, err := ps.db.Exec(query, id)
	return err
}

// Touch records that a prompt was injected into a conversation.
func (ps *PromptStorage) Touch(id string) error {
	query := `UPDATE prompts SET last_used_at = ? WHERE id = ?`
	_, err := ps.db.Exec(query, time.Now(), id)
	return err
}

// TogglePin flips the pinned flag of a prompt.
func (ps *PromptStorage) TogglePin(id string) error {
	query := `UPDATE prompts SET pinned = NOT pinned, updated_at = ? WHERE id = ?`
	result, err := ps.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to toggle pin: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("prompt %s not found in database", id)
	}

	return nil
}

func (ps *PromptStorage) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
