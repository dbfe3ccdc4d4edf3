package canvas

import (
	"time"

	"github.com/easel-ai/easel/internal/graph"
)

// DisplayVersion is one history entry in the projection, annotated for
// presentation.
type DisplayVersion struct {
	ID           string       `json:"id"`
	Number       int          `json:"versionNumber"`
	DisplayOrder int          `json:"displayOrder"`
	Prompt       string       `json:"prompt"`
	ImageURL     string       `json:"imageUrl,omitempty"`
	Status       graph.Status `json:"status"`
	Selected     bool         `json:"isSelected"`
	ParentID     string       `json:"parentVersionId,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// DisplayRecord is the presentation-layer view of a session: the
// selected version's fields flattened to the top level plus the full
// annotated history. It is always regenerated from the version graph,
// never mutated in place.
type DisplayRecord struct {
	ConversationID string    `json:"conversationId"`
	Theme          string    `json:"theme"`
	BasePrompt     string    `json:"basePrompt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	// Fields of the selected version, flattened.
	SelectedID     string       `json:"selectedVersionId,omitempty"`
	SelectedNumber int          `json:"selectedVersionNumber,omitempty"`
	Prompt         string       `json:"prompt,omitempty"`
	NegativePrompt string       `json:"negativePrompt,omitempty"`
	Style          string       `json:"style,omitempty"`
	Size           string       `json:"size,omitempty"`
	ImageURL       string       `json:"imageUrl,omitempty"`
	Status         graph.Status `json:"status,omitempty"`

	Versions          []DisplayVersion `json:"versions"`
	TotalVersions     int              `json:"totalVersions"`
	CompletedVersions int              `json:"completedVersions"`
}

// Project computes the display record for a session. Pure: the input is
// not modified and the output shares no memory with it.
func Project(sess *graph.Session) DisplayRecord {
	rec := DisplayRecord{
		ConversationID: sess.ConversationID,
		Theme:          sess.Theme,
		BasePrompt:     sess.BasePrompt,
		UpdatedAt:      sess.UpdatedAt,
		Versions:       make([]DisplayVersion, 0, len(sess.Versions)),
	}

	for i, v := range sess.Versions {
		selected := v.ID == sess.SelectedID
		rec.Versions = append(rec.Versions, DisplayVersion{
			ID:           v.ID,
			Number:       v.Number,
			DisplayOrder: i + 1,
			Prompt:       v.Prompt,
			ImageURL:     v.ImageURL,
			Status:       v.Status,
			Selected:     selected,
			ParentID:     v.ParentID,
			CreatedAt:    v.CreatedAt,
		})

		rec.TotalVersions++
		if v.Status == graph.StatusCompleted {
			rec.CompletedVersions++
		}

		if selected {
			rec.SelectedID = v.ID
			rec.SelectedNumber = v.Number
			rec.Prompt = v.Prompt
			rec.NegativePrompt = v.NegativePrompt
			rec.Style = v.Style
			rec.Size = v.Size
			rec.ImageURL = v.ImageURL
			rec.Status = v.Status
		}
	}

	return rec
}
