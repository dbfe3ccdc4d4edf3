package graph

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory version graph for all live conversations.
// Each returned session or version is cloned to prevent external
// mutation of internal state.
//
// Store is safe for concurrent use by multiple goroutines; all mutation
// happens under one store-wide lock. Version numbering is race-free
// because every write path runs fully inside that lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	deleted  map[string][]string // conversationID → deleted image URLs
	logger   *slog.Logger
}

// NewStore creates an empty version graph store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*Session),
		deleted:  make(map[string][]string),
		logger:   logger,
	}
}

// CreateSession creates the session for a conversation.
// Fails with ErrSessionExists if one is already present; callers doing
// remote-first creation must check the durable store before calling.
func (s *Store) CreateSession(conversationID, theme, basePrompt string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[conversationID]; ok {
		return nil, ErrSessionExists
	}

	now := time.Now()
	sess := &Session{
		ConversationID: conversationID,
		Theme:          theme,
		BasePrompt:     basePrompt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.sessions[conversationID] = sess

	s.logger.Debug("created session", "conversation_id", conversationID, "theme", theme)
	return sess.Clone(), nil
}

// Restore installs a session reconstructed from the durable store.
// It refuses to clobber an in-memory session that already has versions:
// that session was rebuilt concurrently (e.g. a result arriving during a
// cold load) and local state is authoritative while live.
func (s *Store) Restore(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[sess.ConversationID]; ok && len(existing.Versions) > 0 {
		return ErrSessionExists
	}

	s.sessions[sess.ConversationID] = sess.Clone()
	s.logger.Debug("restored session", "conversation_id", sess.ConversationID,
		"versions", len(sess.Versions))
	return nil
}

// Session returns a clone of the conversation's session.
func (s *Store) Session(conversationID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[conversationID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Has reports whether a session exists for the conversation.
func (s *Store) Has(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[conversationID]
	return ok
}

// Sessions returns clones of all live sessions.
func (s *Store) Sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out
}

// AddVersion appends a version to the conversation's session and selects
// it. If an existing version carries the same (imageURL, normalized
// prompt) pair, that version is selected and returned instead — the call
// is idempotent for duplicate generation results. reused reports whether
// dedup matched.
//
// The fingerprint deliberately ignores negative prompt and seed,
// matching the observed behavior of the producers this engine consumes.
func (s *Store) AddVersion(conversationID string, f VersionFields) (v *Version, reused bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[conversationID]
	if !ok {
		return nil, false, ErrSessionNotFound
	}

	// Duplicate suppression. Pending versions (no image yet) never match:
	// two in-flight generations may legitimately share a prompt.
	if f.ImageURL != "" {
		np := normalizePrompt(f.Prompt)
		for _, existing := range sess.Versions {
			if existing.ImageURL == f.ImageURL && normalizePrompt(existing.Prompt) == np {
				s.selectLocked(sess, existing.ID)
				sess.UpdatedAt = time.Now()
				s.logger.Debug("duplicate version suppressed",
					"conversation_id", conversationID, "version_id", existing.ID)
				ec := *existing
				return &ec, true, nil
			}
		}
	}

	id := f.ID
	if id == "" {
		id = uuid.NewString()
	} else if sess.Version(id) != nil {
		return nil, false, ErrDuplicateID
	}

	status := f.Status
	if status == "" {
		status = StatusGenerating
	}
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	nv := &Version{
		ID:             id,
		Number:         nextNumber(sess),
		Prompt:         f.Prompt,
		NegativePrompt: f.NegativePrompt,
		Style:          f.Style,
		Size:           f.Size,
		ImageURL:       f.ImageURL,
		ParentID:       f.ParentID,
		Status:         status,
		CreatedAt:      createdAt,
	}

	sess.Versions = append(sess.Versions, nv)
	s.selectLocked(sess, nv.ID)
	sess.UpdatedAt = time.Now()

	s.logger.Debug("added version", "conversation_id", conversationID,
		"version_id", nv.ID, "number", nv.Number)
	nc := *nv
	return &nc, false, nil
}

// UpdateVersion merges the non-nil fields of upd into the version.
// Only the pending-transition fields are mergeable; identity never changes.
func (s *Store) UpdateVersion(conversationID, versionID string, upd VersionUpdate) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[conversationID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	v := sess.Version(versionID)
	if v == nil {
		return nil, ErrVersionNotFound
	}

	if upd.ImageURL != nil {
		v.ImageURL = *upd.ImageURL
	}
	if upd.Status != nil {
		v.Status = *upd.Status
	}
	sess.UpdatedAt = time.Now()

	vc := *v
	return &vc, nil
}

// DeleteVersion removes a version, records its image URL in the
// conversation's deleted-set for downstream invalidation, and — if the
// removed version was selected — reselects the remaining version with
// the highest number. Returns the removed version.
func (s *Store) DeleteVersion(conversationID, versionID string) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[conversationID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	idx := slices.IndexFunc(sess.Versions, func(v *Version) bool { return v.ID == versionID })
	if idx < 0 {
		return nil, ErrVersionNotFound
	}

	removed := sess.Versions[idx]
	sess.Versions = slices.Delete(sess.Versions, idx, idx+1)

	if removed.ImageURL != "" && !slices.Contains(s.deleted[conversationID], removed.ImageURL) {
		s.deleted[conversationID] = append(s.deleted[conversationID], removed.ImageURL)
	}

	if removed.Selected {
		sess.SelectedID = ""
		if next := highestNumbered(sess); next != nil {
			s.selectLocked(sess, next.ID)
		}
	}
	sess.UpdatedAt = time.Now()

	s.logger.Debug("deleted version", "conversation_id", conversationID,
		"version_id", versionID, "new_selected", sess.SelectedID)
	rc := *removed
	return &rc, nil
}

// SelectVersion marks the given version as selected and deselects the rest.
func (s *Store) SelectVersion(conversationID, versionID string) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[conversationID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	v := sess.Version(versionID)
	if v == nil {
		return nil, ErrVersionNotFound
	}

	s.selectLocked(sess, versionID)
	sess.UpdatedAt = time.Now()

	vc := *v
	return &vc, nil
}

// SelectLatest selects the version with the highest number.
func (s *Store) SelectLatest(conversationID string) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[conversationID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	latest := highestNumbered(sess)
	if latest == nil {
		return nil, ErrVersionNotFound
	}

	s.selectLocked(sess, latest.ID)
	sess.UpdatedAt = time.Now()

	lc := *latest
	return &lc, nil
}

// CreateBranch creates a new pending version forked from parentID: the
// parent's style, size and negative prompt carry over, the prompt is
// replaced. The branch goes through the same dedup and numbering rules
// as any other version.
func (s *Store) CreateBranch(conversationID, parentID, newPrompt string) (*Version, error) {
	s.mu.RLock()
	sess, ok := s.sessions[conversationID]
	var parent *Version
	if ok {
		parent = sess.Version(parentID)
	}
	if parent != nil {
		p := *parent
		parent = &p
	}
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if parent == nil {
		return nil, ErrVersionNotFound
	}

	v, _, err := s.AddVersion(conversationID, VersionFields{
		Prompt:         newPrompt,
		NegativePrompt: parent.NegativePrompt,
		Style:          parent.Style,
		Size:           parent.Size,
		ParentID:       parent.ID,
		Status:         StatusGenerating,
	})
	return v, err
}

// ChildVersions returns the versions branched directly from parentID.
func (s *Store) ChildVersions(conversationID, parentID string) ([]*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[conversationID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	var children []*Version
	for _, v := range sess.Versions {
		if v.ParentID == parentID {
			vc := *v
			children = append(children, &vc)
		}
	}
	return children, nil
}

// AppendEvolution appends a user prompt to the session's append-only
// evolution history.
func (s *Store) AppendEvolution(conversationID, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[conversationID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.EvolutionHistory = append(sess.EvolutionHistory, prompt)
	sess.UpdatedAt = time.Now()
	return nil
}

// DeletedImageURLs returns the image URLs removed from the conversation,
// in deletion order. The set survives the versions themselves so caches
// and object storage can be cleaned up later.
func (s *Store) DeletedImageURLs(conversationID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.deleted[conversationID])
}

// Reset tears down the conversation's session and deleted-set.
// Returns true if a session existed.
func (s *Store) Reset(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[conversationID]
	delete(s.sessions, conversationID)
	delete(s.deleted, conversationID)

	if ok {
		s.logger.Debug("reset conversation", "conversation_id", conversationID)
	}
	return ok
}

// selectLocked toggles the selection flag across the session's versions;
// caller must hold s.mu.
func (s *Store) selectLocked(sess *Session, versionID string) {
	for _, v := range sess.Versions {
		v.Selected = v.ID == versionID
	}
	sess.SelectedID = versionID
}

// nextNumber returns max(existing)+1, starting at 1. Numbers are never
// reused even after deletions.
func nextNumber(sess *Session) int {
	max := 0
	for _, v := range sess.Versions {
		if v.Number > max {
			max = v.Number
		}
	}
	return max + 1
}

// highestNumbered returns the version with the highest number, or nil.
func highestNumbered(sess *Session) *Version {
	var best *Version
	for _, v := range sess.Versions {
		if best == nil || v.Number > best.Number {
			best = v
		}
	}
	return best
}

// normalizePrompt collapses case and whitespace so cosmetically different
// prompts still fingerprint identically.
func normalizePrompt(p string) string {
	return strings.Join(strings.Fields(strings.ToLower(p)), " ")
}
