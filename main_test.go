package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ogui/chat"
	"ogui/config"
	"ogui/storage"
)

// blockingGenerator holds every stream open until its context is cancelled,
// like a server that keeps generating until the connection drops.
type blockingGenerator struct{}

func (blockingGenerator) GenerateStream(ctx context.Context, model, prompt string, images [][]byte, fn func(chunk string) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	return "", ctx.Err()
}

func TestRunLoop_StopCancelsWhileStreaming(t *testing.T) {
	dir := t.TempDir()
	convStorage, err := storage.NewConversationStorage(dir)
	require.NoError(t, err)
	sumStorage, err := storage.NewSummaryStorage(dir)
	require.NoError(t, err)
	promptStorage, err := storage.NewPromptStorage(dir)
	require.NoError(t, err)
	defer promptStorage.Close()

	settings, err := config.NewStore(dir)
	require.NoError(t, err)

	store := chat.NewStore(convStorage, sumStorage, zerolog.Nop())
	gen := blockingGenerator{}
	summarizer := chat.NewSummarizer(store, gen, settings, zerolog.Nop())
	session := chat.NewSession(store, gen, settings, summarizer, nil, zerolog.Nop())

	// /stop arrives while the reply is still streaming; without it the
	// generator would hold the loop open until the generation timeout.
	in := strings.NewReader("hello\n/stop\n/quit\n")
	var out bytes.Buffer
	runLoop(store, session, promptStorage, nil, settings, in, &out)
	session.Wait()

	assert.Equal(t, chat.StateIdle, session.State())
	assert.NoError(t, session.Err()) // cancellation is clean, not an error

	conv, err := store.Conversation(store.ActiveID())
	require.NoError(t, err)
	// The user message stays; the never-filled placeholder is removed.
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hello", conv.Messages[0].Content)
}
