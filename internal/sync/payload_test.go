package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageURL_DirectURLs(t *testing.T) {
	res := GenerationResult{ImageURLs: []string{"", "https://img.example/1.png"}}
	assert.Equal(t, "https://img.example/1.png", res.ImageURL())
}

func TestImageURL_ObjectList(t *testing.T) {
	res := GenerationResult{Images: []ImageObject{{URL: ""}, {URL: "https://img.example/2.png"}}}
	assert.Equal(t, "https://img.example/2.png", res.ImageURL())
}

func TestImageURL_NestedOutput(t *testing.T) {
	res := GenerationResult{Output: &GenerationOutput{
		Images: []ImageObject{{URL: "https://img.example/3.png"}},
	}}
	assert.Equal(t, "https://img.example/3.png", res.ImageURL())
}

func TestImageURL_FirstShapeWins(t *testing.T) {
	res := GenerationResult{
		ImageURLs: []string{"https://img.example/direct.png"},
		Images:    []ImageObject{{URL: "https://img.example/object.png"}},
		Output: &GenerationOutput{
			Images: []ImageObject{{URL: "https://img.example/nested.png"}},
		},
	}
	assert.Equal(t, "https://img.example/direct.png", res.ImageURL())
}

func TestImageURL_NoReference(t *testing.T) {
	assert.Empty(t, GenerationResult{}.ImageURL())
	assert.Empty(t, GenerationResult{ImageURLs: []string{""}, Output: &GenerationOutput{}}.ImageURL())
}

func TestFingerprint_NormalizesPrompt(t *testing.T) {
	a := GenerationResult{Prompt: "A  Sunset ", Style: "photo", Size: "1024x1024"}
	b := GenerationResult{Prompt: "a sunset", Style: "photo", Size: "1024x1024"}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	c := GenerationResult{Prompt: "a sunset", Style: "anime", Size: "1024x1024"}
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestFingerprint_IgnoresNegativePrompt(t *testing.T) {
	a := GenerationResult{Prompt: "a sunset", NegativePrompt: "blurry"}
	b := GenerationResult{Prompt: "a sunset"}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}
