package sync_test

import (
	"context"
	gosync "sync"

	"github.com/easel-ai/easel/internal/graph"
	"github.com/easel-ai/easel/internal/remote"
)

// mockClient is an in-memory remote.Client with call tracking and
// injectable failures.
type mockClient struct {
	mu       gosync.Mutex
	sessions map[string]*graph.Session
	deleted  map[string][]string
	calls    []string

	// failAll makes every call return failErr.
	failAll bool
	failErr error
}

func newMockClient() *mockClient {
	return &mockClient{
		sessions: make(map[string]*graph.Session),
		deleted:  make(map[string][]string),
	}
}

func (m *mockClient) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if m.failAll {
		return m.failErr
	}
	return nil
}

func (m *mockClient) callCount(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (m *mockClient) setFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = err != nil
	m.failErr = err
}

func (m *mockClient) session(conversationID string) *graph.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[conversationID]; ok {
		return s.Clone()
	}
	return nil
}

func (m *mockClient) CreateSession(_ context.Context, sess *graph.Session) error {
	if err := m.record("CreateSession"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.ConversationID]; ok {
		return remote.ErrAlreadyExists
	}
	m.sessions[sess.ConversationID] = sess.Clone()
	return nil
}

func (m *mockClient) SessionByConversation(_ context.Context, conversationID string) (*graph.Session, error) {
	if err := m.record("SessionByConversation"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[conversationID]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return sess.Clone(), nil
}

func (m *mockClient) AddVersion(_ context.Context, conversationID string, v *graph.Version) error {
	if err := m.record("AddVersion"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[conversationID]
	if !ok {
		return remote.ErrNotFound
	}
	vc := *v
	sess.Versions = append(sess.Versions, &vc)
	for _, existing := range sess.Versions {
		existing.Selected = existing.ID == v.ID
	}
	sess.SelectedID = v.ID
	return nil
}

func (m *mockClient) UpdateVersion(_ context.Context, conversationID, versionID string, upd graph.VersionUpdate) error {
	if err := m.record("UpdateVersion"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[conversationID]
	if !ok {
		return remote.ErrNotFound
	}
	v := sess.Version(versionID)
	if v == nil {
		return remote.ErrNotFound
	}
	if upd.ImageURL != nil {
		v.ImageURL = *upd.ImageURL
	}
	if upd.Status != nil {
		v.Status = *upd.Status
	}
	return nil
}

func (m *mockClient) SelectVersion(_ context.Context, conversationID, versionID string) error {
	if err := m.record("SelectVersion"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[conversationID]
	if !ok {
		return remote.ErrNotFound
	}
	if sess.Version(versionID) == nil {
		return remote.ErrNotFound
	}
	for _, v := range sess.Versions {
		v.Selected = v.ID == versionID
	}
	sess.SelectedID = versionID
	return nil
}

func (m *mockClient) HasVersion(_ context.Context, conversationID, versionID string) (bool, error) {
	if err := m.record("HasVersion"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[conversationID]
	if !ok {
		return false, nil
	}
	return sess.Version(versionID) != nil, nil
}

func (m *mockClient) DeleteVersion(_ context.Context, conversationID, versionID string) (*remote.DeleteResult, error) {
	if err := m.record("DeleteVersion"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[conversationID]
	if !ok {
		return nil, remote.ErrNotFound
	}
	for i, v := range sess.Versions {
		if v.ID != versionID {
			continue
		}
		result := &remote.DeleteResult{DeletedImageURL: v.ImageURL}
		sess.Versions = append(sess.Versions[:i], sess.Versions[i+1:]...)
		if v.ImageURL != "" {
			m.deleted[conversationID] = append(m.deleted[conversationID], v.ImageURL)
		}
		if v.Selected {
			sess.SelectedID = ""
			var best *graph.Version
			for _, rest := range sess.Versions {
				if best == nil || rest.Number > best.Number {
					best = rest
				}
			}
			if best != nil {
				sess.SelectedID = best.ID
			}
			for _, rest := range sess.Versions {
				rest.Selected = rest.ID == sess.SelectedID
			}
			result.NewSelectedID = sess.SelectedID
		}
		return result, nil
	}
	return nil, remote.ErrNotFound
}

func (m *mockClient) DeletedImageURLs(_ context.Context, conversationID string) ([]string, error) {
	if err := m.record("DeletedImageURLs"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted[conversationID]...), nil
}

func (m *mockClient) AppendEvolution(_ context.Context, conversationID, prompt string) error {
	if err := m.record("AppendEvolution"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[conversationID]
	if !ok {
		return remote.ErrNotFound
	}
	sess.EvolutionHistory = append(sess.EvolutionHistory, prompt)
	return nil
}

func (m *mockClient) DeleteSession(_ context.Context, conversationID string) error {
	if err := m.record("DeleteSession"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[conversationID]; !ok {
		return remote.ErrNotFound
	}
	delete(m.sessions, conversationID)
	delete(m.deleted, conversationID)
	return nil
}
