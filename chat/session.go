package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ogui/storage"
)

// RecentWindowSize is how many trailing messages are kept verbatim in the
// prompt and preserved across a summarization trim.
const RecentWindowSize = 16

// GenerateTimeout bounds one backend call. Local inference is slow, so the
// timeout is generous; a timeout surfaces as a failure, never a retry.
const GenerateTimeout = 120 * time.Second

// State is the generation session's lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateStreaming
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	}
	return "unknown"
}

// SendOptions carries one user send.
type SendOptions struct {
	Text           string
	Images         [][]byte
	MentionExcerpt string // excerpt of a referenced earlier message
	WebSearch      bool   // fold web-search results into the prompt
}

// Observer is notified on every state transition. err is non-nil only when
// entering Idle after a failure. Observers are invoked in registration order
// while the session lock is held, so they see transitions exactly in order;
// they must not call back into the session.
type Observer func(state State, err error)

// Session orchestrates one generation at a time: it assembles the prompt,
// streams fragments into the active conversation's assistant placeholder,
// and finalizes or rolls back. A second Send while one is running is
// rejected with ErrBusy.
type Session struct {
	store      *Store
	backend    Generator
	settings   Settings
	searcher   Searcher // may be nil
	summarizer *Summarizer
	log        zerolog.Logger

	mu        sync.Mutex
	state     State
	lastErr   error
	cancel    context.CancelFunc
	observers []Observer

	wg sync.WaitGroup
}

// NewSession creates a session. searcher may be nil when web search is not
// configured.
func NewSession(store *Store, backend Generator, settings Settings, summarizer *Summarizer, searcher Searcher, log zerolog.Logger) *Session {
	return &Session{
		store:      store,
		backend:    backend,
		settings:   settings,
		searcher:   searcher,
		summarizer: summarizer,
		log:        log.With().Str("component", "session").Logger(),
	}
}

// Observe registers a state-transition observer. The callback runs under
// the session lock: it must not call Send, Stop, State, or Err.
func (s *Session) Observe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error of the most recent failed generation, or nil. It is
// cleared when the next send starts.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Send starts a generation for the active conversation. It appends the user
// message and an empty assistant placeholder synchronously, then streams in
// the background. Rejections (empty input, no selection, busy) are logged
// no-ops returned as sentinel errors.
func (s *Session) Send(opts SendOptions) error {
	if strings.TrimSpace(opts.Text) == "" && len(opts.Images) == 0 {
		s.log.Debug().Msg("send rejected: empty input")
		return ErrEmptySend
	}

	convID := s.store.ActiveID()
	if convID == "" {
		s.log.Debug().Msg("send rejected: no conversation selected")
		return ErrNoConversation
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.log.Debug().Str("state", s.state.String()).Msg("send rejected: busy")
		return ErrBusy
	}
	s.lastErr = nil
	ctx, cancel := context.WithTimeout(context.Background(), GenerateTimeout)
	s.cancel = cancel
	s.setStateLocked(StateBuilding, nil)
	s.mu.Unlock()

	// Snapshot before the user message lands: the new text belongs on the
	// prompt's USER line, not in the conversation window.
	recent, err := s.store.RecentWindow(convID, RecentWindowSize)
	if err != nil {
		s.resetToIdle(cancel)
		return ErrNoConversation
	}
	conv, err := s.store.Conversation(convID)
	if err != nil {
		s.resetToIdle(cancel)
		return ErrNoConversation
	}

	summary, err := s.store.Summary(convID)
	if err != nil {
		s.log.Warn().Err(err).Msg("summary unavailable, assembling prompt without it")
		summary = ""
	}

	// Read fresh so a model switch applies to this send.
	model := s.settings.Model()

	userMsg := storage.NewMessage(storage.RoleUser, opts.Text)
	userMsg.Images = opts.Images
	if opts.MentionExcerpt != "" {
		userMsg.RefPreview = previewExcerpt(opts.MentionExcerpt)
	}
	if err := s.store.AppendMessage(convID, userMsg); err != nil {
		s.log.Error().Err(err).Msg("user message not persisted")
	}

	placeholder := storage.NewMessage(storage.RoleAssistant, "")
	if err := s.store.AppendMessage(convID, placeholder); err != nil {
		s.log.Error().Err(err).Msg("placeholder not persisted")
	}

	in := PromptInputs{
		CoreInstructions:  CoreInstructions,
		SystemOverride:    conv.SystemPrompt,
		Summary:           summary,
		Recent:            recent,
		ReferencedExcerpt: opts.MentionExcerpt,
		UserText:          opts.Text,
	}

	s.wg.Add(1)
	go s.run(ctx, cancel, convID, placeholder.ID, in, model, opts)
	return nil
}

// Stop cancels the in-flight generation cooperatively. The context cancel
// tears down the backend connection, so the server stops generating.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil && s.state != StateIdle {
		s.cancel()
	}
}

// Wait blocks until the current generation, including any follow-up
// summarization, has fully finished. Used by shutdown and tests.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, convID, placeholderID string, in PromptInputs, model string, opts SendOptions) {
	defer s.wg.Done()
	defer cancel()

	if s.searcher != nil && opts.WebSearch {
		results, err := s.searcher.Search(ctx, opts.Text)
		if err != nil {
			s.log.Warn().Err(err).Msg("web search failed, continuing without results")
		} else {
			in.SearchResults = results
		}
	}

	prompt := BuildPrompt(in)

	s.setState(StateStreaming, nil)

	co := NewCoalescer(func(full string) {
		if err := s.store.ReplaceMessage(convID, placeholderID, full); err != nil {
			s.log.Error().Err(err).Msg("flush not applied")
		}
	})

	err := s.backend.GenerateStream(ctx, model, prompt, opts.Images, func(chunk string) error {
		co.Write(chunk)
		return nil
	})

	// Final forced flush: whatever arrived reaches the store even when the
	// stream ended early.
	co.Close()

	s.setState(StateFinalizing, nil)

	if err != nil {
		s.finishInterrupted(convID, placeholderID, co.Text(), err)
		return
	}

	s.log.Debug().Str("conversation", convID).Int("chars", len(co.Text())).Msg("generation complete")

	// Summarization happens inside Finalizing: the busy guard keeps a new
	// send from mutating the message list mid-trim. Detached from ctx so a
	// late Stop cannot abort a trim already underway.
	s.summarizer.CheckAndRun(context.Background(), convID)

	s.setState(StateIdle, nil)
}

// finishInterrupted applies the shared cleanup rule for cancellation and
// failure: an empty placeholder is removed outright, partial content is
// kept as already persisted by the final flush.
func (s *Session) finishInterrupted(convID, placeholderID, partial string, err error) {
	if partial == "" {
		if rmErr := s.store.RemoveMessage(convID, placeholderID); rmErr != nil && !errors.Is(rmErr, ErrNotFound) {
			s.log.Error().Err(rmErr).Msg("placeholder cleanup failed")
		}
	}

	if errors.Is(err, context.Canceled) {
		s.log.Debug().Str("conversation", convID).Int("partial_chars", len(partial)).Msg("generation cancelled")
		s.setState(StateIdle, nil)
		return
	}

	s.log.Warn().Err(err).Str("conversation", convID).Msg("generation failed")
	s.setState(StateIdle, err)
}

func (s *Session) resetToIdle(cancel context.CancelFunc) {
	cancel()
	s.setState(StateIdle, nil)
}

func (s *Session) setState(state State, err error) {
	s.mu.Lock()
	s.setStateLocked(state, err)
	s.mu.Unlock()
}

// setStateLocked transitions state and notifies observers. Observers run
// under the lock so transitions are observed strictly in order.
func (s *Session) setStateLocked(state State, err error) {
	s.state = state
	if err != nil {
		s.lastErr = err
	}
	if state == StateIdle {
		s.cancel = nil
	}
	for _, fn := range s.observers {
		fn(state, err)
	}
}

func previewExcerpt(excerpt string) string {
	excerpt = strings.ReplaceAll(excerpt, "\n", " ")
	if runes := []rune(excerpt); len(runes) > 100 {
		return string(runes[:100]) + "..."
	}
	return excerpt
}
