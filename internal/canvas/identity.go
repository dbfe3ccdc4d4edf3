// Package canvas derives canvas identities and display projections.
// Everything here is pure: no I/O, no clocks beyond the explicit
// timestamp fallback, no mutation of inputs.
package canvas

import (
	"fmt"
	"time"
)

// ShareType determines how a canvas is reused across a conversation.
type ShareType string

const (
	// ShareConversation canvases are reused for the whole conversation:
	// repeated results of the same artifact type land on one canvas.
	ShareConversation ShareType = "conversation"

	// ShareRequest canvases are fresh per request unless the caller
	// re-supplies the same request id for idempotent re-entry.
	ShareRequest ShareType = "request"
)

// Policy declares how canvases of one artifact type behave.
type Policy struct {
	ShareType         ShareType
	Persistent        bool
	AutoSave          bool
	VersionControl    bool
	ContinuitySupport bool
}

// policies is the per-artifact-type policy table. Unknown types fall
// back to defaultPolicy.
var policies = map[string]Policy{
	"image": {
		ShareType:         ShareConversation,
		Persistent:        true,
		AutoSave:          true,
		VersionControl:    true,
		ContinuitySupport: true,
	},
	"text": {
		ShareType:      ShareRequest,
		Persistent:     true,
		AutoSave:       true,
		VersionControl: false,
	},
	"code": {
		ShareType:      ShareRequest,
		Persistent:     true,
		AutoSave:       false,
		VersionControl: false,
	},
}

var defaultPolicy = Policy{
	ShareType:  ShareRequest,
	Persistent: false,
}

// PolicyFor returns the sharing policy for an artifact type.
func PolicyFor(artifactType string) Policy {
	if p, ok := policies[artifactType]; ok {
		return p
	}
	return defaultPolicy
}

// CanvasID derives the deterministic canvas identifier for an artifact
// within a conversation. Conversation-shared types always map to the
// same id; request-shared types get a fresh id per request. requestID
// is optional: when empty for a request-shared type, a timestamp
// component makes the id unique for this call.
func CanvasID(conversationID, artifactType, requestID string) string {
	p := PolicyFor(artifactType)
	if p.ShareType == ShareConversation {
		return fmt.Sprintf("%s-%s", conversationID, artifactType)
	}
	if requestID == "" {
		requestID = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s-%s", conversationID, artifactType, requestID)
}

// SameShareGroup reports whether two canvases belong to the same
// sharing group: identical artifact type, and either the same
// conversation (conversation-shared) or the same derived id
// (request-shared).
func SameShareGroup(aConversationID, aType, aID, bConversationID, bType, bID string) bool {
	if aType != bType {
		return false
	}
	if PolicyFor(aType).ShareType == ShareConversation {
		return aConversationID == bConversationID
	}
	return aID == bID
}
