// Package remote talks to the durable store that outlives the process.
// The in-memory version graph is authoritative while a conversation is
// live; this package persists it so history survives restarts.
package remote

import (
	"context"
	"errors"

	"github.com/easel-ai/easel/internal/graph"
)

var (
	// ErrNotFound indicates the referenced session or version does not
	// exist in the durable store.
	ErrNotFound = errors.New("not found in durable store")

	// ErrAlreadyExists indicates a session is already persisted for the
	// conversation.
	ErrAlreadyExists = errors.New("session already exists in durable store")
)

// DeleteResult reports the effect of a remote version deletion.
type DeleteResult struct {
	// DeletedImageURL is the removed version's image URL, empty if the
	// version had no image yet.
	DeletedImageURL string

	// NewSelectedID is the version selected after the deletion, empty
	// if the session has no versions left.
	NewSelectedID string
}

// Client is the consumer-side interface to the durable store.
// Implementations must be safe for concurrent use.
type Client interface {
	// CreateSession persists a new session including any versions it
	// already carries.
	CreateSession(ctx context.Context, sess *graph.Session) error

	// SessionByConversation loads the full session with its versions
	// ordered by version number. Returns ErrNotFound when absent.
	SessionByConversation(ctx context.Context, conversationID string) (*graph.Session, error)

	// AddVersion persists a version and makes it the remote selection.
	AddVersion(ctx context.Context, conversationID string, v *graph.Version) error

	// UpdateVersion merges the non-nil fields into the remote version.
	UpdateVersion(ctx context.Context, conversationID, versionID string, upd graph.VersionUpdate) error

	// SelectVersion toggles the remote selection to the given version.
	// Returns ErrNotFound when the version is absent remotely.
	SelectVersion(ctx context.Context, conversationID, versionID string) error

	// HasVersion reports whether the version exists remotely.
	HasVersion(ctx context.Context, conversationID, versionID string) (bool, error)

	// DeleteVersion removes a version remotely, records its image URL
	// in the deleted-set, and reselects the highest-numbered survivor.
	DeleteVersion(ctx context.Context, conversationID, versionID string) (*DeleteResult, error)

	// DeletedImageURLs returns the conversation's deleted image URLs in
	// deletion order.
	DeletedImageURLs(ctx context.Context, conversationID string) ([]string, error)

	// AppendEvolution appends a prompt to the session's evolution history.
	AppendEvolution(ctx context.Context, conversationID, prompt string) error

	// DeleteSession removes the session, its versions and its
	// deleted-set.
	DeleteSession(ctx context.Context, conversationID string) error
}
