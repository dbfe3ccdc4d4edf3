package sync

import (
	"fmt"
	"strings"
)

// ImageObject is one entry of the object-list payload shape.
type ImageObject struct {
	URL string `json:"url"`
}

// GenerationOutput is the nested generation-result payload shape.
type GenerationOutput struct {
	Images []ImageObject `json:"images"`
}

// refShape tags which legacy payload shape an ImageReference came from.
type refShape int

const (
	shapeNone refShape = iota
	shapeDirectURLs
	shapeObjectList
	shapeNestedOutput
)

// ImageReference is the normalized image reference extracted from one
// of the producer's legacy payload shapes. Internal logic only ever
// sees the normalized URL.
type ImageReference struct {
	shape refShape
	urls  []string
}

// DirectURLs builds a reference from the bare URL-array shape.
func DirectURLs(urls []string) ImageReference {
	return ImageReference{shape: shapeDirectURLs, urls: urls}
}

// ObjectList builds a reference from the object-array shape.
func ObjectList(objects []ImageObject) ImageReference {
	urls := make([]string, 0, len(objects))
	for _, o := range objects {
		urls = append(urls, o.URL)
	}
	return ImageReference{shape: shapeObjectList, urls: urls}
}

// NestedOutput builds a reference from the nested generation-result shape.
func NestedOutput(out *GenerationOutput) ImageReference {
	if out == nil {
		return ImageReference{shape: shapeNestedOutput}
	}
	urls := make([]string, 0, len(out.Images))
	for _, img := range out.Images {
		urls = append(urls, img.URL)
	}
	return ImageReference{shape: shapeNestedOutput, urls: urls}
}

// URL returns the first non-empty URL, or "" when the payload carried
// no usable reference.
func (r ImageReference) URL() string {
	for _, u := range r.urls {
		if u != "" {
			return u
		}
	}
	return ""
}

// GenerationResult is the producer's payload as received. Exactly one
// of the image-reference fields is normally populated, but historical
// producers varied, so all three shapes are accepted and the first
// non-empty match wins in declaration order.
type GenerationResult struct {
	ConversationID string            `json:"conversationId"`
	ContentType    string            `json:"contentType"`
	RequestID      string            `json:"requestId,omitempty"`
	Prompt         string            `json:"prompt"`
	NegativePrompt string            `json:"negativePrompt,omitempty"`
	Style          string            `json:"style,omitempty"`
	Size           string            `json:"size,omitempty"`
	ImageURLs      []string          `json:"imageUrls,omitempty"`
	Images         []ImageObject     `json:"images,omitempty"`
	Output         *GenerationOutput `json:"output,omitempty"`
}

// ImageURL resolves the image reference across all accepted payload
// shapes. An empty result is not an error: the version is recorded as
// pending with an empty URL.
func (g GenerationResult) ImageURL() string {
	for _, ref := range []ImageReference{
		DirectURLs(g.ImageURLs),
		ObjectList(g.Images),
		NestedOutput(g.Output),
	} {
		if u := ref.URL(); u != "" {
			return u
		}
	}
	return ""
}

// Fingerprint identifies a generation for duplicate detection:
// normalized prompt plus style and size. Negative prompt and seed are
// deliberately excluded, matching the producers' observed behavior.
func (g GenerationResult) Fingerprint() string {
	prompt := strings.Join(strings.Fields(strings.ToLower(g.Prompt)), " ")
	return fmt.Sprintf("%s|%s|%s", prompt, g.Style, g.Size)
}
