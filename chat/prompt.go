package chat

import (
	"strings"

	"ogui/storage"
)

// ReferencedExcerptMax caps the length of a referenced-message excerpt
// before it is included in the prompt.
const ReferencedExcerptMax = 500

// CoreInstructions is the base system text present in every prompt.
const CoreInstructions = "You are a helpful assistant. Answer clearly and concisely."

// PromptInputs collects everything that goes into one prompt.
type PromptInputs struct {
	CoreInstructions  string
	SystemOverride    string // per-conversation system prompt, may be empty
	Summary           string // rolling summary, may be empty
	Recent            []storage.Message
	SearchResults     string // retrieved web-search text, may be empty
	ReferencedExcerpt string // excerpt of a mentioned earlier message
	UserText          string
}

// BuildPrompt assembles the prompt string sent to the backend. Sections
// appear in a fixed order, separated by one blank line, and empty optional
// sections are omitted entirely. Pure function: no I/O, deterministic.
func BuildPrompt(in PromptInputs) string {
	var sections []string

	system := "[SYSTEM]\n"
	if override := strings.TrimSpace(in.SystemOverride); override != "" {
		system += override + "\n"
	}
	system += in.CoreInstructions
	sections = append(sections, system)

	if summary := strings.TrimSpace(in.Summary); summary != "" {
		sections = append(sections, "[SUMMARY]\n"+summary)
	}

	if len(in.Recent) > 0 {
		var lines []string
		for _, msg := range in.Recent {
			lines = append(lines, strings.ToUpper(msg.Role)+": "+msg.Content)
		}
		sections = append(sections, "[CONVERSATION]\n"+strings.Join(lines, "\n"))
	}

	if in.SearchResults != "" {
		sections = append(sections, "[SEARCH_RESULTS]\n"+in.SearchResults)
	}

	if in.ReferencedExcerpt != "" {
		excerpt := in.ReferencedExcerpt
		// The cap counts characters, not bytes: slicing bytes would split
		// multibyte runes.
		if runes := []rune(excerpt); len(runes) > ReferencedExcerptMax {
			excerpt = string(runes[:ReferencedExcerptMax])
		}
		sections = append(sections, "[REFERENCED]\n"+excerpt)
	}

	sections = append(sections, "USER: "+in.UserText)

	return strings.Join(sections, "\n\n")
}
