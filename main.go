package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"ogui/chat"
	"ogui/config"
	"ogui/logging"
	"ogui/ollama"
	"ogui/storage"
)

const Version = "v0.1.0"

func main() {
	if config.HasAnyEnvVar() && !config.HasAllEnvVars() {
		fmt.Fprintf(os.Stderr, "Missing environment variable: %s\n\n"+
			"When using environment variables, all 3 must be set:\n"+
			"  - OGUI_OLLAMA_HOST\n"+
			"  - OGUI_OLLAMA_MODEL\n"+
			"  - OGUI_DATA_DIR\n",
			config.GetMissingEnvVar())
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	dataDir := cfg.DataDir()
	log := logging.Setup(dataDir)

	settings, err := config.NewStore(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load settings: %v\n", err)
		os.Exit(1)
	}

	watcher, err := config.NewWatcher(settings, log)
	if err == nil {
		if err := watcher.Watch(); err != nil {
			log.Warn().Err(err).Msg("settings watcher not started")
		}
		defer watcher.Close()
	}

	convStorage, err := storage.NewConversationStorage(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open conversation storage: %v\n", err)
		os.Exit(1)
	}
	sumStorage, err := storage.NewSummaryStorage(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open summary storage: %v\n", err)
		os.Exit(1)
	}
	promptStorage, err := storage.NewPromptStorage(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open prompt storage: %v\n", err)
		os.Exit(1)
	}
	defer promptStorage.Close()

	backend, err := ollama.NewClient(settings.Host())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create Ollama client: %v\n", err)
		os.Exit(1)
	}
	if err := backend.Ping(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Ollama not reachable at %s: %v\n", settings.Host(), err)
	}

	store := chat.NewStore(convStorage, sumStorage, log)
	if err := store.LoadAll(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load conversations: %v\n", err)
		os.Exit(1)
	}

	summarizer := chat.NewSummarizer(store, backend, settings, log)
	session := chat.NewSession(store, backend, settings, summarizer, nil, log)

	runLoop(store, session, promptStorage, backend, settings, os.Stdin, os.Stdout)
	session.Wait()
}

// runLoop is a bare-bones stand-in for the GUI: one conversation on screen,
// streamed replies printed incrementally. Input is read on its own goroutine
// so /stop still works while a reply is streaming.
func runLoop(store *chat.Store, session *chat.Session, prompts *storage.PromptStorage, backend *ollama.Client, settings *config.Store, in io.Reader, out io.Writer) {
	// Listeners run under the store lock and must not call back into the
	// store, so the active conversation is tracked here.
	activeID := store.ActiveID()
	printed := 0
	store.Subscribe(func(ev chat.Event) {
		switch ev.Type {
		case chat.EventActiveChanged:
			activeID = ev.ConversationID
		case chat.EventMessageUpdated:
			if ev.ConversationID != activeID {
				return
			}
			if len(ev.Content) > printed {
				fmt.Fprint(out, ev.Content[printed:])
				printed = len(ev.Content)
			}
		}
	})

	done := make(chan struct{}, 1)
	session.Observe(func(state chat.State, err error) {
		if state != chat.StateIdle {
			return
		}
		if err != nil {
			fmt.Fprintf(out, "\nError: %v\n", err)
		}
		select {
		case done <- struct{}{}:
		default:
		}
	})

	if store.ActiveID() == "" {
		id, err := store.Create()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create conversation: %v\n", err)
			return
		}
		_ = store.SetActive(id)
	}

	fmt.Fprintf(out, "ogui %s — model %s — /help for commands\n", Version, settings.Model())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		line, ok := <-lines
		if !ok {
			return
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(line, store, session, prompts, backend, settings, out); quit {
				return
			}
			continue
		}

		printed = 0
		select {
		case <-done: // drop a stale completion token
		default:
		}
		if err := session.Send(chat.SendOptions{Text: line}); err != nil {
			fmt.Fprintf(out, "(%v)\n", err)
			continue
		}

		// Keep taking input while the reply streams so /stop can cancel.
		for streaming := true; streaming; {
			select {
			case <-done:
				streaming = false
			case line, ok := <-lines:
				if !ok {
					session.Stop()
					session.Wait()
					return
				}
				switch line {
				case "/stop":
					session.Stop()
				case "":
				default:
					fmt.Fprintln(out, "(still generating — /stop to cancel)")
				}
			}
		}
		fmt.Fprintln(out)
	}
}

func runCommand(line string, store *chat.Store, session *chat.Session, prompts *storage.PromptStorage, backend *ollama.Client, settings *config.Store, out io.Writer) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q":
		return true

	case "/help":
		fmt.Fprintln(out, "/new  /list  /switch <n>  /models  /model <name>  /prompts  /stop  /quit")

	case "/new":
		id, err := store.Create()
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return false
		}
		_ = store.SetActive(id)
		fmt.Fprintln(out, "Started a new conversation.")

	case "/list":
		for i, meta := range store.List() {
			marker := " "
			if meta.ID == store.ActiveID() {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %2d. %s (%d messages)\n", marker, i+1, meta.Title, meta.MessageCount)
		}

	case "/switch":
		if len(fields) < 2 {
			fmt.Fprintln(out, "Usage: /switch <n>")
			return false
		}
		list := store.List()
		var n int
		if _, err := fmt.Sscanf(fields[1], "%d", &n); err != nil || n < 1 || n > len(list) {
			fmt.Fprintln(out, "No such conversation.")
			return false
		}
		_ = store.SetActive(list[n-1].ID)

	case "/models":
		models, err := backend.ListModels(context.Background())
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return false
		}
		for _, m := range models {
			fmt.Fprintf(out, "  %s\n", m.Name)
		}

	case "/model":
		if len(fields) < 2 {
			fmt.Fprintf(out, "Current model: %s\n", settings.Model())
			return false
		}
		if err := settings.SetModel(fields[1]); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "Model set to %s (takes effect on next send).\n", fields[1])

	case "/prompts":
		list, err := prompts.List()
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return false
		}
		for _, p := range list {
			fmt.Fprintf(out, "  %s — %s\n", p.ID[:8], p.Title)
		}

	case "/stop":
		session.Stop()

	default:
		fmt.Fprintln(out, "Unknown command; /help for commands.")
	}
	return false
}
