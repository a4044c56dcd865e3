package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ogui/storage"
)

func fillConversation(t *testing.T, store *Store, id string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		role := storage.RoleUser
		if i%2 == 1 {
			role = storage.RoleAssistant
		}
		require.NoError(t, store.AppendMessage(id, storage.NewMessage(role, fmt.Sprintf("note %d", i+1))))
	}
}

func TestSummarizer_BelowThresholdDoesNothing(t *testing.T) {
	store, _ := newTestStore(t)
	id, err := store.Create()
	require.NoError(t, err)
	fillConversation(t, store, id, SummaryThreshold)

	gen := &scriptedGenerator{generateResp: "- bullet"}
	sm := NewSummarizer(store, gen, &fixedSettings{model: "m"}, zerolog.Nop())
	sm.CheckAndRun(context.Background(), id)

	assert.Empty(t, gen.generated)
	conv, err := store.Conversation(id)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, SummaryThreshold)

	sum, err := store.Summary(id)
	require.NoError(t, err)
	assert.Equal(t, "", sum)
}

func TestSummarizer_OverThresholdTrimsToMarkerPlusWindow(t *testing.T) {
	store, _ := newTestStore(t)
	id, err := store.Create()
	require.NoError(t, err)
	fillConversation(t, store, id, SummaryThreshold+1)

	before, err := store.Conversation(id)
	require.NoError(t, err)
	keptIDs := make([]string, 0, RecentWindowSize)
	for _, msg := range before.Messages[len(before.Messages)-RecentWindowSize:] {
		keptIDs = append(keptIDs, msg.ID)
	}

	gen := &scriptedGenerator{generateResp: "- the user is cataloguing notes"}
	sm := NewSummarizer(store, gen, &fixedSettings{model: "m"}, zerolog.Nop())
	sm.CheckAndRun(context.Background(), id)

	conv, err := store.Conversation(id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, RecentWindowSize+1)
	assert.Equal(t, storage.RoleSystem, conv.Messages[0].Role)
	assert.Equal(t, SummaryMarkerText, conv.Messages[0].Content)
	for i, msg := range conv.Messages[1:] {
		assert.Equal(t, keptIDs[i], msg.ID)
	}

	sum, err := store.Summary(id)
	require.NoError(t, err)
	assert.Equal(t, "- the user is cataloguing notes", sum)

	// Only the condensed prefix goes into the transcript.
	require.Len(t, gen.generated, 1)
	assert.Contains(t, gen.generated[0], "note 25")
	assert.NotContains(t, gen.generated[0], "note 26")
}

func TestSummarizer_BackendFailureLeavesEverythingAlone(t *testing.T) {
	store, _ := newTestStore(t)
	id, err := store.Create()
	require.NoError(t, err)
	fillConversation(t, store, id, SummaryThreshold+1)

	before, err := store.Conversation(id)
	require.NoError(t, err)

	gen := &scriptedGenerator{generateErr: errors.New("model not loaded")}
	sm := NewSummarizer(store, gen, &fixedSettings{model: "m"}, zerolog.Nop())
	sm.CheckAndRun(context.Background(), id)

	after, err := store.Conversation(id)
	require.NoError(t, err)
	require.Len(t, after.Messages, len(before.Messages))
	for i := range after.Messages {
		assert.Equal(t, before.Messages[i].ID, after.Messages[i].ID)
		assert.Equal(t, before.Messages[i].Content, after.Messages[i].Content)
	}

	sum, err := store.Summary(id)
	require.NoError(t, err)
	assert.Equal(t, "", sum)
}

func TestSummarizer_RunsAfterSuccessfulGeneration(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"done"}, generateResp: "- rolling summary"}
	session, store, id := newTestSession(t, gen)
	fillConversation(t, store, id, SummaryThreshold-1)

	// user message + assistant reply push the count past the threshold.
	require.NoError(t, session.Send(SendOptions{Text: "one more"}))
	session.Wait()

	conv, err := store.Conversation(id)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, RecentWindowSize+1)

	sum, err := store.Summary(id)
	require.NoError(t, err)
	assert.Equal(t, "- rolling summary", sum)
}

func TestBuildTranscript_TruncatesKeepingPrefix(t *testing.T) {
	long := strings.Repeat("y", TranscriptMaxChars)
	msgs := []storage.Message{
		{Role: storage.RoleUser, Content: "first"},
		{Role: storage.RoleAssistant, Content: long},
	}

	got := buildTranscript(msgs)
	assert.Len(t, got, TranscriptMaxChars)
	assert.True(t, strings.HasPrefix(got, "USER: first\nASSISTANT: "))
}

func TestBuildTranscript_TruncatesByCharactersNotBytes(t *testing.T) {
	long := strings.Repeat("語", TranscriptMaxChars)
	got := buildTranscript([]storage.Message{{Role: storage.RoleUser, Content: long}})

	assert.Equal(t, TranscriptMaxChars, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestBuildTranscript_RoleLines(t *testing.T) {
	got := buildTranscript([]storage.Message{
		{Role: storage.RoleUser, Content: "q"},
		{Role: storage.RoleAssistant, Content: "a"},
		{Role: storage.RoleSystem, Content: "s"},
	})
	assert.Equal(t, "USER: q\nASSISTANT: a\nSYSTEM: s", got)
}
