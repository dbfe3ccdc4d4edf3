// Package graph holds the authoritative in-memory generation history:
// one session per conversation, each session an ordered list of artifact
// versions optionally branching from a parent version.
//
// The store is the single source of truth while a conversation is live;
// durable persistence happens asynchronously through the sync package.
package graph

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a version.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Version is one artifact result within a session. Immutable after
// creation except for the status/imageURL transition while pending and
// the selection flag.
type Version struct {
	ID             string
	Number         int // per-session monotonic, starts at 1, never reused
	Prompt         string
	NegativePrompt string
	Style          string
	Size           string
	ImageURL       string // empty while generation is pending
	ParentID       string // non-empty for branched versions
	Status         Status
	Selected       bool
	CreatedAt      time.Time
}

// Session is the per-conversation container of all iterative versions
// around one theme. At most one session exists per conversation.
type Session struct {
	ConversationID   string
	Theme            string
	BasePrompt       string
	EvolutionHistory []string // append-only user prompts
	SelectedID       string
	Versions         []*Version // insertion order
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Clone returns a deep copy so callers can never mutate store state.
func (s *Session) Clone() *Session {
	c := *s
	c.EvolutionHistory = slices.Clone(s.EvolutionHistory)
	c.Versions = make([]*Version, len(s.Versions))
	for i, v := range s.Versions {
		vc := *v
		c.Versions[i] = &vc
	}
	return &c
}

// Version returns the version with the given id, or nil.
func (s *Session) Version(id string) *Version {
	for _, v := range s.Versions {
		if v.ID == id {
			return v
		}
	}
	return nil
}

// SelectedVersion returns the currently selected version, or nil for an
// empty session.
func (s *Session) SelectedVersion() *Version {
	return s.Version(s.SelectedID)
}

// VersionFields carries the caller-supplied fields for a new version.
type VersionFields struct {
	// ID is optional; when empty the store assigns a random 128-bit id.
	ID             string
	Prompt         string
	NegativePrompt string
	Style          string
	Size           string
	ImageURL       string
	ParentID       string
	Status         Status    // defaults to StatusGenerating
	CreatedAt      time.Time // defaults to now
}

// VersionUpdate is a partial field merge for a pending version.
// Identity fields (id, number, prompt) are deliberately absent.
type VersionUpdate struct {
	ImageURL *string
	Status   *Status
}
