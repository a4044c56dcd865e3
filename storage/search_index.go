package storage

import (
	"strings"
	"time"
)

// MessageMatch represents a search result within one conversation
type MessageMatch struct {
	MessageIndex int
	Role         string
	Content      string
	Preview      string
	Timestamp    time.Time
}

// SearchMessages searches messages in a single conversation
func SearchMessages(messages []Message, query string) []MessageMatch {
	if query == "" {
		return []MessageMatch{}
	}

	queryLower := strings.ToLower(query)
	var matches []MessageMatch

	for i, msg := range messages {
		if msg.Role == RoleSystem {
			continue
		}

		if strings.Contains(strings.ToLower(msg.Content), queryLower) {
			matches = append(matches, MessageMatch{
				MessageIndex: i,
				Role:         msg.Role,
				Content:      msg.Content,
				Preview:      previewOf(msg.Content),
				Timestamp:    msg.Timestamp,
			})
		}
	}

	return matches
}

// ConversationMessageMatch represents a search result across conversations
type ConversationMessageMatch struct {
	ConversationID    string
	ConversationTitle string
	MessageIndex      int
	Role              string
	Content           string
	Preview           string
	Timestamp         time.Time
}

type SearchIndex struct {
	storage *ConversationStorage
}

func NewSearchIndex(storage *ConversationStorage) *SearchIndex {
	return &SearchIndex{storage: storage}
}

func (si *SearchIndex) SearchAllConversations(query string) ([]ConversationMessageMatch, error) {
	if query == "" {
		return []ConversationMessageMatch{}, nil
	}

	list, err := si.storage.List()
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)
	var matches []ConversationMessageMatch

	for _, meta := range list {
		conv, err := si.storage.Load(meta.ID)
		if err != nil {
			continue
		}

		for i, msg := range conv.Messages {
			if msg.Role == RoleSystem {
				continue
			}

			if strings.Contains(strings.ToLower(msg.Content), queryLower) {
				matches = append(matches, ConversationMessageMatch{
					ConversationID:    conv.ID,
					ConversationTitle: conv.Title,
					MessageIndex:      i,
					Role:              msg.Role,
					Content:           msg.Content,
					Preview:           previewOf(msg.Content),
					Timestamp:         msg.Timestamp,
				})
			}
		}
	}

	return matches, nil
}

func previewOf(content string) string {
	if runes := []rune(content); len(runes) > 100 {
		return string(runes[:100]) + "..."
	}
	return content
}
