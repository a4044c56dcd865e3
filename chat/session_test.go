package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ogui/storage"
)

// scriptedGenerator plays back a fixed fragment sequence. When block is set
// it holds the stream open after the fragments until the context is
// cancelled, which is how a real connection behaves under Stop.
type scriptedGenerator struct {
	mu      sync.Mutex
	chunks  []string
	err     error // returned after the fragments when not blocking
	block   bool
	started chan struct{} // closed once the stream is running, may be nil

	models  []string // model argument of every stream call
	prompts []string

	generateResp string
	generateErr  error
	generated    []string // prompts given to non-streaming Generate
}

func (g *scriptedGenerator) GenerateStream(ctx context.Context, model, prompt string, images [][]byte, fn func(chunk string) error) error {
	g.mu.Lock()
	g.models = append(g.models, model)
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	for _, chunk := range g.chunks {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	if g.started != nil {
		close(g.started)
	}
	if g.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return g.err
}

func (g *scriptedGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	g.mu.Lock()
	g.generated = append(g.generated, prompt)
	g.mu.Unlock()
	if g.generateErr != nil {
		return "", g.generateErr
	}
	return g.generateResp, nil
}

func (g *scriptedGenerator) streamedModels() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.models...)
}

type fixedSettings struct {
	mu    sync.Mutex
	model string
}

func (s *fixedSettings) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *fixedSettings) setModel(m string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
}

func newTestSession(t *testing.T, gen *scriptedGenerator) (*Session, *Store, string) {
	t.Helper()
	store, _ := newTestStore(t)
	settings := &fixedSettings{model: "llama3.1:latest"}
	summarizer := NewSummarizer(store, gen, settings, zerolog.Nop())
	session := NewSession(store, gen, settings, summarizer, nil, zerolog.Nop())

	id, err := store.Create()
	require.NoError(t, err)
	require.NoError(t, store.SetActive(id))
	return session, store, id
}

func TestSession_SendRejectsEmptyInput(t *testing.T) {
	gen := &scriptedGenerator{}
	session, store, id := newTestSession(t, gen)

	assert.ErrorIs(t, session.Send(SendOptions{Text: "   "}), ErrEmptySend)

	conv, err := store.Conversation(id)
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
	assert.Equal(t, StateIdle, session.State())
}

func TestSession_SendRejectsWithoutConversation(t *testing.T) {
	gen := &scriptedGenerator{}
	session, store, _ := newTestSession(t, gen)
	require.NoError(t, store.SetActive(""))

	assert.ErrorIs(t, session.Send(SendOptions{Text: "hi"}), ErrNoConversation)
}

func TestSession_StreamFillsPlaceholder(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"Hi", " there"}}
	session, store, id := newTestSession(t, gen)

	require.NoError(t, session.Send(SendOptions{Text: "Hello"}))
	session.Wait()

	conv, err := store.Conversation(id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, storage.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
	assert.Equal(t, storage.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "Hi there", conv.Messages[1].Content)
	assert.Equal(t, StateIdle, session.State())
	assert.NoError(t, session.Err())
}

func TestSession_PromptContainsUserText(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"ok"}}
	session, _, _ := newTestSession(t, gen)

	require.NoError(t, session.Send(SendOptions{Text: "what is a mutex?"}))
	session.Wait()

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "USER: what is a mutex?")
	assert.Contains(t, gen.prompts[0], "[SYSTEM]\n"+CoreInstructions)
}

func TestSession_SecondSendIsRejectedWhileBusy(t *testing.T) {
	gen := &scriptedGenerator{block: true, started: make(chan struct{})}
	session, _, _ := newTestSession(t, gen)

	require.NoError(t, session.Send(SendOptions{Text: "first"}))
	<-gen.started

	assert.ErrorIs(t, session.Send(SendOptions{Text: "second"}), ErrBusy)

	session.Stop()
	session.Wait()
	assert.Equal(t, StateIdle, session.State())
}

func TestSession_CancelBeforeAnyFragmentRemovesPlaceholder(t *testing.T) {
	gen := &scriptedGenerator{block: true, started: make(chan struct{})}
	session, store, id := newTestSession(t, gen)

	require.NoError(t, session.Send(SendOptions{Text: "Hello"}))
	<-gen.started
	session.Stop()
	session.Wait()

	conv, err := store.Conversation(id)
	require.NoError(t, err)
	// The user message stays; the empty assistant placeholder is gone.
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, storage.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, StateIdle, session.State())
	assert.NoError(t, session.Err())
}

func TestSession_CancelAfterPartialKeepsPartial(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"Hel"}, block: true, started: make(chan struct{})}
	session, store, id := newTestSession(t, gen)

	require.NoError(t, session.Send(SendOptions{Text: "Hello"}))
	<-gen.started
	session.Stop()
	session.Wait()

	conv, err := store.Conversation(id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Hel", conv.Messages[1].Content)
	assert.NoError(t, session.Err())
}

func TestSession_BackendFailureSurfacesError(t *testing.T) {
	boom := errors.New("connection refused")
	gen := &scriptedGenerator{err: boom}
	session, store, id := newTestSession(t, gen)

	require.NoError(t, session.Send(SendOptions{Text: "Hello"}))
	session.Wait()

	conv, err := store.Conversation(id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1) // placeholder removed, user message kept
	assert.Equal(t, StateIdle, session.State())
	assert.ErrorIs(t, session.Err(), boom)

	// The next send clears the recorded failure.
	gen2 := &scriptedGenerator{chunks: []string{"ok"}}
	session.backend = gen2
	require.NoError(t, session.Send(SendOptions{Text: "again"}))
	session.Wait()
	assert.NoError(t, session.Err())
}

func TestSession_ModelIsReadFreshPerSend(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"ok"}}
	session, _, _ := newTestSession(t, gen)
	settings := session.settings.(*fixedSettings)

	require.NoError(t, session.Send(SendOptions{Text: "one"}))
	session.Wait()

	settings.setModel("qwen2.5:7b")
	require.NoError(t, session.Send(SendOptions{Text: "two"}))
	session.Wait()

	assert.Equal(t, []string{"llama3.1:latest", "qwen2.5:7b"}, gen.streamedModels())
}

func TestSession_ObserversSeeOrderedTransitions(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"ok"}}
	session, _, _ := newTestSession(t, gen)

	var mu sync.Mutex
	var states []State
	session.Observe(func(state State, err error) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	})

	require.NoError(t, session.Send(SendOptions{Text: "hi"}))
	session.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []State{StateBuilding, StateStreaming, StateFinalizing, StateIdle}, states)
}

func TestSession_MentionExcerptRecordedAndPrompted(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"ok"}}
	session, store, id := newTestSession(t, gen)

	require.NoError(t, session.Send(SendOptions{
		Text:           "expand on that",
		MentionExcerpt: "goroutines are cheap\nbut not free",
	}))
	session.Wait()

	conv, err := store.Conversation(id)
	require.NoError(t, err)
	assert.Equal(t, "goroutines are cheap but not free", conv.Messages[0].RefPreview)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "[REFERENCED]\ngoroutines are cheap\nbut not free")
}

func TestPreviewExcerpt_CountsCharactersNotBytes(t *testing.T) {
	// Under 100 characters but over 100 bytes: kept whole.
	short := strings.Repeat("語", 80)
	assert.Equal(t, short, previewExcerpt(short))

	long := strings.Repeat("語", 150)
	got := previewExcerpt(long)
	assert.Equal(t, 103, utf8.RuneCountInString(got)) // 100 chars plus ellipsis
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSession_StopWhenIdleIsNoOp(t *testing.T) {
	gen := &scriptedGenerator{}
	session, _, _ := newTestSession(t, gen)

	session.Stop()
	assert.Equal(t, StateIdle, session.State())
}
