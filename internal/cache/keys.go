package cache

// Conventional key prefixes for the local cache namespace. Keeping them
// in one place stops the prefixes drifting between writers and readers.

// CanvasKey returns the cache key for a canvas display record.
func CanvasKey(canvasID string) string {
	return "canvas:" + canvasID
}

// PreviewKey returns the cache key for a conversation's preview payload.
func PreviewKey(conversationID string) string {
	return "preview:" + conversationID
}

// ConversationTag returns the invalidation tag that groups every entry
// belonging to one conversation.
func ConversationTag(conversationID string) string {
	return "conversation:" + conversationID
}
