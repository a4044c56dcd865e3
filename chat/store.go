package chat

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"ogui/storage"
)

// EventType identifies a store mutation for subscribers.
type EventType int

const (
	EventLoaded EventType = iota
	EventConversationCreated
	EventConversationDeleted
	EventConversationRenamed
	EventConversationPinned
	EventSystemPromptChanged
	EventMessageAppended
	EventMessageUpdated
	EventMessageRemoved
	EventMessagesReplaced
	EventActiveChanged
)

// Event describes one observed mutation. Content carries the new message
// text for append/update events so listeners need not read back through the
// store.
type Event struct {
	Type           EventType
	ConversationID string
	MessageID      string
	Content        string
}

// Listener receives store events. Listeners are invoked in registration
// order while the store lock is held, so they observe mutations exactly in
// submission order; they must not call back into the store.
type Listener func(Event)

// Store owns the in-memory conversation list and is the single mutation
// authority. Every mutating operation writes the affected conversation
// through to disk before returning, so a crash right after a call leaves
// disk state consistent with the last completed mutation.
type Store struct {
	mu        sync.Mutex
	storage   *storage.ConversationStorage
	summaries *storage.SummaryStorage
	convs     map[string]*storage.Conversation
	activeID  string
	listeners []Listener
	log       zerolog.Logger
}

// NewStore creates a store over the given persistence collaborators.
func NewStore(convStorage *storage.ConversationStorage, sumStorage *storage.SummaryStorage, log zerolog.Logger) *Store {
	return &Store{
		storage:   convStorage,
		summaries: sumStorage,
		convs:     make(map[string]*storage.Conversation),
		log:       log.With().Str("component", "store").Logger(),
	}
}

// Subscribe registers a listener for all subsequent mutations.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) notifyLocked(ev Event) {
	for _, l := range s.listeners {
		l(ev)
	}
}

// LoadAll reads every persisted conversation into memory, replacing the
// current in-memory set. The last active conversation is restored when its
// record still exists.
func (s *Store) LoadAll() error {
	list, err := s.storage.List()
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	convs := make(map[string]*storage.Conversation, len(list))
	for _, meta := range list {
		conv, err := s.storage.Load(meta.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("conversation", meta.ID).Msg("skipping unreadable conversation")
			continue
		}
		convs[conv.ID] = conv
	}

	lastActive, err := s.storage.LoadCurrentConversationID()
	if err != nil {
		lastActive = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = convs
	if _, ok := convs[lastActive]; ok {
		s.activeID = lastActive
	} else {
		s.activeID = ""
	}
	s.notifyLocked(Event{Type: EventLoaded})
	return nil
}

// Create adds a new empty conversation and returns its ID.
func (s *Store) Create() (string, error) {
	conv := &storage.Conversation{}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistLocked(conv); err != nil {
		return "", err
	}
	s.convs[conv.ID] = conv
	s.notifyLocked(Event{Type: EventConversationCreated, ConversationID: conv.ID})
	return conv.ID, nil
}

// Delete removes a conversation and its persisted record and summary.
// Deleting an unknown ID is a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[id]; !ok {
		// Still clear any orphaned files for this id.
		_ = s.storage.Delete(id)
		_ = s.summaries.Delete(id)
		return nil
	}

	if err := s.storage.Delete(id); err != nil {
		s.log.Error().Err(err).Str("conversation", id).Msg("delete failed, retrying once")
		if err := s.storage.Delete(id); err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
	}
	if err := s.summaries.Delete(id); err != nil {
		s.log.Warn().Err(err).Str("conversation", id).Msg("summary delete failed")
	}

	delete(s.convs, id)
	if s.activeID == id {
		s.activeID = ""
	}
	s.notifyLocked(Event{Type: EventConversationDeleted, ConversationID: id})
	return nil
}

// Rename sets a conversation's title.
func (s *Store) Rename(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}

	conv.Title = title
	if err := s.persistLocked(conv); err != nil {
		return err
	}
	s.notifyLocked(Event{Type: EventConversationRenamed, ConversationID: id})
	return nil
}

// TogglePin flips a conversation's pinned flag.
func (s *Store) TogglePin(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}

	conv.Pinned = !conv.Pinned
	if err := s.persistLocked(conv); err != nil {
		return err
	}
	s.notifyLocked(Event{Type: EventConversationPinned, ConversationID: id})
	return nil
}

// SetSystemPrompt sets or clears ("") the per-conversation system prompt
// override.
func (s *Store) SetSystemPrompt(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}

	conv.SystemPrompt = text
	if err := s.persistLocked(conv); err != nil {
		return err
	}
	s.notifyLocked(Event{Type: EventSystemPromptChanged, ConversationID: id})
	return nil
}

// AppendMessage appends a message to a conversation. The first user message
// of an untitled conversation also derives the title.
func (s *Store) AppendMessage(id string, msg storage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}

	conv.Messages = append(conv.Messages, msg)
	if conv.Title == "" && msg.Role == storage.RoleUser {
		conv.Title = storage.DeriveTitle(msg.Content)
	}

	if err := s.persistLocked(conv); err != nil {
		return err
	}
	s.notifyLocked(Event{Type: EventMessageAppended, ConversationID: id, MessageID: msg.ID, Content: msg.Content})
	return nil
}

// ReplaceMessage overwrites the content of an existing message. Used by the
// streaming path to fill the assistant placeholder.
func (s *Store) ReplaceMessage(id, messageID, newContent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}

	idx := indexOfMessage(conv.Messages, messageID)
	if idx < 0 {
		return ErrNotFound
	}

	conv.Messages[idx].Content = newContent
	if err := s.persistLocked(conv); err != nil {
		return err
	}
	s.notifyLocked(Event{Type: EventMessageUpdated, ConversationID: id, MessageID: messageID, Content: newContent})
	return nil
}

// RemoveMessage deletes a single message. Used to drop an assistant
// placeholder that never received content.
func (s *Store) RemoveMessage(id, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}

	idx := indexOfMessage(conv.Messages, messageID)
	if idx < 0 {
		return ErrNotFound
	}

	conv.Messages = append(conv.Messages[:idx], conv.Messages[idx+1:]...)
	if err := s.persistLocked(conv); err != nil {
		return err
	}
	s.notifyLocked(Event{Type: EventMessageRemoved, ConversationID: id, MessageID: messageID})
	return nil
}

// ReplaceMessages swaps a conversation's entire message list. Used by the
// summarizer to install the summary marker plus the recent tail.
func (s *Store) ReplaceMessages(id string, newList []storage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}

	conv.Messages = append([]storage.Message(nil), newList...)
	if err := s.persistLocked(conv); err != nil {
		return err
	}
	s.notifyLocked(Event{Type: EventMessagesReplaced, ConversationID: id})
	return nil
}

// SetActive selects the active conversation. Selection is UI state: it is
// remembered in a side file, never inside a conversation document.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if _, ok := s.convs[id]; !ok {
			return ErrNotFound
		}
	}
	s.activeID = id
	if err := s.storage.SaveCurrentConversationID(id); err != nil {
		s.log.Warn().Err(err).Msg("failed to remember active conversation")
	}
	s.notifyLocked(Event{Type: EventActiveChanged, ConversationID: id})
	return nil
}

// ActiveID returns the selected conversation ID, or "".
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Conversation returns a snapshot copy of one conversation. Callers never
// receive a live reference into the store's message list.
func (s *Store) Conversation(id string) (*storage.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}

	return copyConversation(conv), nil
}

// RecentWindow returns a copy of the last n messages of a conversation.
func (s *Store) RecentWindow(id string, n int) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}

	msgs := conv.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]storage.Message(nil), msgs...), nil
}

// MessageCount counts a conversation's user and assistant messages.
func (s *Store) MessageCount(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return 0, ErrNotFound
	}
	return conv.MessageCount(), nil
}

// List returns metadata for every conversation, pinned first, then by last
// activity.
func (s *Store) List() []storage.ConversationMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]storage.ConversationMetadata, 0, len(s.convs))
	for _, conv := range s.convs {
		list = append(list, storage.ConversationMetadata{
			ID:           conv.ID,
			Title:        conv.Title,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			LastActiveAt: conv.LastActiveAt(),
			MessageCount: conv.MessageCount(),
			Pinned:       conv.Pinned,
		})
	}

	sortMetadata(list)
	return list
}

// Summary returns the rolling summary for a conversation ("" when absent).
func (s *Store) Summary(id string) (string, error) {
	return s.summaries.Load(id)
}

// SaveSummary overwrites the rolling summary for a conversation.
func (s *Store) SaveSummary(id, text string) error {
	if err := s.summaries.Save(id, text); err != nil {
		s.log.Error().Err(err).Str("conversation", id).Msg("summary write failed, retrying once")
		if err := s.summaries.Save(id, text); err != nil {
			return fmt.Errorf("failed to save summary: %w", err)
		}
	}
	return nil
}

// persistLocked writes a conversation through to disk. Write failures are
// retried once; a repeated failure is returned for the caller's policy to
// decide (the UI never sees it).
func (s *Store) persistLocked(conv *storage.Conversation) error {
	if err := s.storage.Save(conv); err != nil {
		s.log.Error().Err(err).Str("conversation", conv.ID).Msg("conversation write failed, retrying once")
		if err := s.storage.Save(conv); err != nil {
			return fmt.Errorf("failed to persist conversation: %w", err)
		}
	}
	return nil
}

func indexOfMessage(msgs []storage.Message, messageID string) int {
	for i := range msgs {
		if msgs[i].ID == messageID {
			return i
		}
	}
	return -1
}

func copyConversation(conv *storage.Conversation) *storage.Conversation {
	dup := *conv
	dup.Messages = append([]storage.Message(nil), conv.Messages...)
	return &dup
}

func sortMetadata(list []storage.ConversationMetadata) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Pinned != list[j].Pinned {
			return list[i].Pinned
		}
		return list[i].LastActiveAt.After(list[j].LastActiveAt)
	})
}
