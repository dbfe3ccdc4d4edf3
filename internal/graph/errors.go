package graph

import "errors"

var (
	// ErrSessionExists indicates a session already exists for the conversation.
	ErrSessionExists = errors.New("session already exists for conversation")

	// ErrSessionNotFound indicates no session exists for the conversation.
	ErrSessionNotFound = errors.New("session not found")

	// ErrVersionNotFound indicates the referenced version does not exist.
	ErrVersionNotFound = errors.New("version not found")

	// ErrDuplicateID indicates a caller-supplied version id is already in use.
	ErrDuplicateID = errors.New("version id already in use")
)
