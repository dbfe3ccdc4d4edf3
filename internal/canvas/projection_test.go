package canvas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easel-ai/easel/internal/graph"
)

func sampleSession() *graph.Session {
	now := time.Now()
	return &graph.Session{
		ConversationID: "conv-1",
		Theme:          "sunset",
		BasePrompt:     "a sunset over the ocean",
		SelectedID:     "v2",
		UpdatedAt:      now,
		Versions: []*graph.Version{
			{
				ID: "v1", Number: 1, Prompt: "a sunset",
				ImageURL: "https://img.example/1.png",
				Status:   graph.StatusCompleted, CreatedAt: now,
			},
			{
				ID: "v2", Number: 2, Prompt: "a sunset, golden hour",
				NegativePrompt: "blurry", Style: "photo", Size: "1024x1024",
				ImageURL: "https://img.example/2.png",
				Status:   graph.StatusCompleted, Selected: true, CreatedAt: now,
			},
			{
				ID: "v3", Number: 3, Prompt: "a sunset with birds",
				ParentID: "v2",
				Status:   graph.StatusGenerating, CreatedAt: now,
			},
		},
	}
}

func TestProject_FlattensSelectedVersion(t *testing.T) {
	rec := Project(sampleSession())

	assert.Equal(t, "conv-1", rec.ConversationID)
	assert.Equal(t, "v2", rec.SelectedID)
	assert.Equal(t, 2, rec.SelectedNumber)
	assert.Equal(t, "a sunset, golden hour", rec.Prompt)
	assert.Equal(t, "blurry", rec.NegativePrompt)
	assert.Equal(t, "photo", rec.Style)
	assert.Equal(t, "1024x1024", rec.Size)
	assert.Equal(t, "https://img.example/2.png", rec.ImageURL)
	assert.Equal(t, graph.StatusCompleted, rec.Status)
}

func TestProject_AnnotatesHistory(t *testing.T) {
	rec := Project(sampleSession())

	require.Len(t, rec.Versions, 3)
	for i, v := range rec.Versions {
		assert.Equal(t, i+1, v.DisplayOrder)
		assert.Equal(t, v.ID == "v2", v.Selected)
	}
	assert.Equal(t, "v2", rec.Versions[2].ParentID)

	assert.Equal(t, 3, rec.TotalVersions)
	assert.Equal(t, 2, rec.CompletedVersions)
}

func TestProject_EmptySession(t *testing.T) {
	rec := Project(&graph.Session{ConversationID: "conv-1", Theme: "t"})

	assert.Empty(t, rec.SelectedID)
	assert.Empty(t, rec.Prompt)
	assert.Zero(t, rec.TotalVersions)
	assert.NotNil(t, rec.Versions)
	assert.Empty(t, rec.Versions)
}

func TestProject_DoesNotShareMemory(t *testing.T) {
	sess := sampleSession()
	rec := Project(sess)

	rec.Versions[0].Prompt = "mutated"
	assert.Equal(t, "a sunset", sess.Versions[0].Prompt)
}
