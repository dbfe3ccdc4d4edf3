package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easel-ai/easel/internal/log"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(log.NewNop())
}

// assertOneSelected verifies the exactly-one-selected invariant for a
// non-empty session.
func assertOneSelected(t *testing.T, sess *Session) {
	t.Helper()
	selected := 0
	for _, v := range sess.Versions {
		if v.Selected {
			selected++
			assert.Equal(t, sess.SelectedID, v.ID)
		}
	}
	if len(sess.Versions) > 0 {
		assert.Equal(t, 1, selected, "exactly one version must be selected")
	} else {
		assert.Zero(t, selected)
	}
}

func TestCreateSession(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.CreateSession("c1", "sunset", "a sunset over the ocean")
	require.NoError(t, err)
	assert.Equal(t, "c1", sess.ConversationID)
	assert.Equal(t, "sunset", sess.Theme)
	assert.Empty(t, sess.Versions)

	_, err = s.CreateSession("c1", "sunset", "a sunset over the ocean")
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestAddVersion_FirstResult(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "sunset", "a sunset")
	require.NoError(t, err)

	v, reused, err := s.AddVersion("c1", VersionFields{
		Prompt:   "a sunset",
		ImageURL: "https://img.example/1.png",
		Status:   StatusCompleted,
	})
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, 1, v.Number)
	assert.True(t, v.Selected)
	assert.NotEmpty(t, v.ID)

	sess, err := s.Session("c1")
	require.NoError(t, err)
	require.Len(t, sess.Versions, 1)
	assertOneSelected(t, sess)
}

func TestAddVersion_DuplicateSuppressed(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "sunset", "a sunset")
	require.NoError(t, err)

	first, _, err := s.AddVersion("c1", VersionFields{
		Prompt:   "A  Sunset",
		ImageURL: "https://img.example/1.png",
		Status:   StatusCompleted,
	})
	require.NoError(t, err)

	// Same image and cosmetically different prompt: no new version.
	again, reused, err := s.AddVersion("c1", VersionFields{
		Prompt:   "a sunset",
		ImageURL: "https://img.example/1.png",
		Status:   StatusCompleted,
	})
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, first.ID, again.ID)

	sess, err := s.Session("c1")
	require.NoError(t, err)
	assert.Len(t, sess.Versions, 1)
}

func TestAddVersion_PendingVersionsNeverDedup(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "sunset", "a sunset")
	require.NoError(t, err)

	a, _, err := s.AddVersion("c1", VersionFields{Prompt: "a sunset"})
	require.NoError(t, err)
	b, _, err := s.AddVersion("c1", VersionFields{Prompt: "a sunset"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID, "two in-flight generations with the same prompt stay distinct")
}

func TestAddVersion_NewImageSelectsNewVersion(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "sunset", "a sunset")
	require.NoError(t, err)

	v1, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "a sunset", ImageURL: "https://img.example/1.png", Status: StatusCompleted,
	})
	require.NoError(t, err)
	v2, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "a sunset", ImageURL: "https://img.example/2.png", Status: StatusCompleted,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, v2.Number)

	sess, err := s.Session("c1")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, sess.SelectedID)
	assert.False(t, sess.Version(v1.ID).Selected, "previous selection must be cleared")
	assertOneSelected(t, sess)
}

func TestAddVersion_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)

	_, _, err = s.AddVersion("c1", VersionFields{ID: "v-1", Prompt: "a"})
	require.NoError(t, err)
	_, _, err = s.AddVersion("c1", VersionFields{ID: "v-1", Prompt: "b"})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestUpdateVersion_PartialMerge(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)
	v, _, err := s.AddVersion("c1", VersionFields{Prompt: "a sunset"})
	require.NoError(t, err)
	assert.Equal(t, StatusGenerating, v.Status)

	url := "https://img.example/1.png"
	done := StatusCompleted
	got, err := s.UpdateVersion("c1", v.ID, VersionUpdate{ImageURL: &url, Status: &done})
	require.NoError(t, err)
	assert.Equal(t, url, got.ImageURL)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "a sunset", got.Prompt, "identity fields never change")

	// Nil fields leave the version untouched.
	got, err = s.UpdateVersion("c1", v.ID, VersionUpdate{})
	require.NoError(t, err)
	assert.Equal(t, url, got.ImageURL)

	_, err = s.UpdateVersion("c1", "missing", VersionUpdate{})
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestDeleteVersion_ReselectsHighestNumber(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)

	v1, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "one", ImageURL: "https://img.example/1.png", Status: StatusCompleted,
	})
	require.NoError(t, err)
	v2, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "two", ImageURL: "https://img.example/2.png", Status: StatusCompleted,
	})
	require.NoError(t, err)

	removed, err := s.DeleteVersion("c1", v2.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, removed.ID)

	sess, err := s.Session("c1")
	require.NoError(t, err)
	require.Len(t, sess.Versions, 1)
	assert.Equal(t, v1.ID, sess.SelectedID, "highest-numbered survivor becomes selected")
	assertOneSelected(t, sess)

	assert.Equal(t, []string{"https://img.example/2.png"}, s.DeletedImageURLs("c1"))
}

func TestDeleteVersion_UnselectedLeavesSelection(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)

	v1, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "one", ImageURL: "https://img.example/1.png", Status: StatusCompleted,
	})
	require.NoError(t, err)
	v2, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "two", ImageURL: "https://img.example/2.png", Status: StatusCompleted,
	})
	require.NoError(t, err)

	_, err = s.DeleteVersion("c1", v1.ID)
	require.NoError(t, err)

	sess, err := s.Session("c1")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, sess.SelectedID)
}

func TestDeleteVersion_LastVersionLeavesEmptySelection(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)
	v, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "one", ImageURL: "https://img.example/1.png", Status: StatusCompleted,
	})
	require.NoError(t, err)

	_, err = s.DeleteVersion("c1", v.ID)
	require.NoError(t, err)

	sess, err := s.Session("c1")
	require.NoError(t, err)
	assert.Empty(t, sess.Versions)
	assert.Empty(t, sess.SelectedID)
}

func TestNumbersNeverReused(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)

	_, _, err = s.AddVersion("c1", VersionFields{
		Prompt: "one", ImageURL: "https://img.example/1.png", Status: StatusCompleted,
	})
	require.NoError(t, err)
	v2, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "two", ImageURL: "https://img.example/2.png", Status: StatusCompleted,
	})
	require.NoError(t, err)

	_, err = s.DeleteVersion("c1", v2.ID)
	require.NoError(t, err)

	v3, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "three", ImageURL: "https://img.example/3.png", Status: StatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Number, "numbers are monotonic, deletion leaves a gap")
}

func TestSelectVersion(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)

	v1, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "one", ImageURL: "https://img.example/1.png", Status: StatusCompleted,
	})
	require.NoError(t, err)
	_, _, err = s.AddVersion("c1", VersionFields{
		Prompt: "two", ImageURL: "https://img.example/2.png", Status: StatusCompleted,
	})
	require.NoError(t, err)

	got, err := s.SelectVersion("c1", v1.ID)
	require.NoError(t, err)
	assert.True(t, got.Selected)

	sess, err := s.Session("c1")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, sess.SelectedID)
	assertOneSelected(t, sess)

	_, err = s.SelectVersion("c1", "missing")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestSelectLatest(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)

	v1, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "one", ImageURL: "https://img.example/1.png", Status: StatusCompleted,
	})
	require.NoError(t, err)
	v2, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "two", ImageURL: "https://img.example/2.png", Status: StatusCompleted,
	})
	require.NoError(t, err)

	_, err = s.SelectVersion("c1", v1.ID)
	require.NoError(t, err)

	latest, err := s.SelectLatest("c1")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, latest.ID)
}

func TestCreateBranch_InheritsParentParameters(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)

	parent, _, err := s.AddVersion("c1", VersionFields{
		Prompt:         "a castle",
		NegativePrompt: "blurry",
		Style:          "watercolor",
		Size:           "1024x1024",
		ImageURL:       "https://img.example/1.png",
		Status:         StatusCompleted,
	})
	require.NoError(t, err)

	branch, err := s.CreateBranch("c1", parent.ID, "a castle at night")
	require.NoError(t, err)
	assert.Equal(t, parent.ID, branch.ParentID)
	assert.Equal(t, "a castle at night", branch.Prompt)
	assert.Equal(t, "blurry", branch.NegativePrompt)
	assert.Equal(t, "watercolor", branch.Style)
	assert.Equal(t, "1024x1024", branch.Size)
	assert.Equal(t, StatusGenerating, branch.Status)
	assert.Equal(t, 2, branch.Number)
	assert.True(t, branch.Selected)

	children, err := s.ChildVersions("c1", parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, branch.ID, children[0].ID)

	_, err = s.CreateBranch("c1", "missing", "x")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestAppendEvolution(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)

	require.NoError(t, s.AppendEvolution("c1", "make it bigger"))
	require.NoError(t, s.AppendEvolution("c1", "add a moon"))

	sess, err := s.Session("c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"make it bigger", "add a moon"}, sess.EvolutionHistory)

	assert.ErrorIs(t, s.AppendEvolution("missing", "x"), ErrSessionNotFound)
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)
	v, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "one", ImageURL: "https://img.example/1.png", Status: StatusCompleted,
	})
	require.NoError(t, err)
	_, err = s.DeleteVersion("c1", v.ID)
	require.NoError(t, err)

	assert.True(t, s.Reset("c1"))
	assert.False(t, s.Reset("c1"))

	_, err = s.Session("c1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, s.DeletedImageURLs("c1"), "deleted-set is cleared with the session")
}

func TestRestore_RefusesLiveSessionWithVersions(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)
	_, _, err = s.AddVersion("c1", VersionFields{
		Prompt: "one", ImageURL: "https://img.example/1.png", Status: StatusCompleted,
	})
	require.NoError(t, err)

	err = s.Restore(&Session{ConversationID: "c1", Theme: "stale"})
	assert.ErrorIs(t, err, ErrSessionExists, "a live session with versions must not be clobbered")

	// An empty placeholder session may be replaced.
	_, err = s.CreateSession("c2", "t", "p")
	require.NoError(t, err)
	restored := &Session{ConversationID: "c2", Theme: "hydrated"}
	require.NoError(t, s.Restore(restored))

	sess, err := s.Session("c2")
	require.NoError(t, err)
	assert.Equal(t, "hydrated", sess.Theme)
}

func TestClone_Isolation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateSession("c1", "t", "p")
	require.NoError(t, err)
	v, _, err := s.AddVersion("c1", VersionFields{
		Prompt: "one", ImageURL: "https://img.example/1.png", Status: StatusCompleted,
	})
	require.NoError(t, err)

	sess, err := s.Session("c1")
	require.NoError(t, err)
	sess.Versions[0].Prompt = "mutated"
	sess.Theme = "mutated"

	fresh, err := s.Session("c1")
	require.NoError(t, err)
	assert.Equal(t, "one", fresh.Version(v.ID).Prompt)
	assert.Equal(t, "t", fresh.Theme)
}
