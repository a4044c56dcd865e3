package chat

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"ogui/storage"
)

const (
	// SummaryThreshold is the stored-message count (all roles) a
	// conversation must exceed before summarization runs.
	SummaryThreshold = 40

	// TranscriptMaxChars caps the transcript handed to the model. The
	// prefix is kept; with an over-budget slice the oldest lines win
	// because they are the ones about to be dropped from the
	// conversation.
	TranscriptMaxChars = 16000
)

const summaryInstruction = "Summarize the conversation below in at most 12 bullet points. " +
	"Focus on goals, decisions, preferences, and open tasks.\n\n"

// SummaryMarkerText is the content of the system message left in place of
// the condensed history.
const SummaryMarkerText = "Earlier messages have been condensed into the rolling summary."

// Summarizer keeps long conversations bounded. After a successful
// generation it may replace everything but the recent window with a single
// marker message, folding the removed history into the rolling summary.
type Summarizer struct {
	store    *Store
	backend  Generator
	settings Settings
	log      zerolog.Logger
}

func NewSummarizer(store *Store, backend Generator, settings Settings, log zerolog.Logger) *Summarizer {
	return &Summarizer{
		store:    store,
		backend:  backend,
		settings: settings,
		log:      log.With().Str("component", "summarizer").Logger(),
	}
}

// CheckAndRun summarizes and trims the conversation if it has grown past
// the threshold. Entirely best-effort: any failure leaves the conversation
// and the stored summary exactly as they were, and nothing is surfaced.
func (sm *Summarizer) CheckAndRun(ctx context.Context, conversationID string) {
	conv, err := sm.store.Conversation(conversationID)
	if err != nil {
		return
	}

	total := len(conv.Messages)
	if total <= SummaryThreshold {
		return
	}
	if total <= RecentWindowSize {
		return
	}

	older := conv.Messages[:total-RecentWindowSize]
	recent := conv.Messages[total-RecentWindowSize:]

	transcript := buildTranscript(older)

	ctx, cancel := context.WithTimeout(ctx, GenerateTimeout)
	defer cancel()

	summary, err := sm.backend.Generate(ctx, sm.settings.Model(), summaryInstruction+transcript)
	if err != nil {
		sm.log.Debug().Err(err).Str("conversation", conversationID).Msg("summarization aborted")
		return
	}

	// The summary must be durable before history is trimmed away.
	if err := sm.store.SaveSummary(conversationID, summary); err != nil {
		sm.log.Error().Err(err).Str("conversation", conversationID).Msg("summary not saved, keeping history")
		return
	}

	marker := storage.NewMessage(storage.RoleSystem, SummaryMarkerText)
	trimmed := append([]storage.Message{marker}, recent...)
	if err := sm.store.ReplaceMessages(conversationID, trimmed); err != nil {
		sm.log.Error().Err(err).Str("conversation", conversationID).Msg("trim failed")
		return
	}

	sm.log.Debug().
		Str("conversation", conversationID).
		Int("condensed", len(older)).
		Int("kept", len(recent)).
		Msg("conversation summarized")
}

// buildTranscript renders messages as ROLE: content lines, truncated to the
// character budget by keeping the prefix.
func buildTranscript(msgs []storage.Message) string {
	var lines []string
	for _, msg := range msgs {
		lines = append(lines, strings.ToUpper(msg.Role)+": "+msg.Content)
	}

	transcript := strings.Join(lines, "\n")
	if runes := []rune(transcript); len(runes) > TranscriptMaxChars {
		transcript = string(runes[:TranscriptMaxChars])
	}
	return transcript
}
