package chat

import "errors"

var (
	// ErrEmptySend is returned when a send carries neither text nor images.
	ErrEmptySend = errors.New("nothing to send")

	// ErrNoConversation is returned when no conversation is selected.
	ErrNoConversation = errors.New("no conversation selected")

	// ErrBusy is returned for a send while a generation is already running.
	ErrBusy = errors.New("a generation is already in progress")

	// ErrNotFound is returned for operations on unknown conversation or
	// message IDs.
	ErrNotFound = errors.New("not found")
)
