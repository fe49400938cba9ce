package analysis

import (
	"encoding/json"
	"strings"
)

// Result is the structured answer produced by an identify request.
// Immutable after creation; downstream code keeps references, not copies.
type Result struct {
	ObjectName            string       `json:"objectName"`
	Description           string       `json:"description"`
	TranslatedDescription string       `json:"translatedDescription"`
	OtherObjects          []ObjectNote `json:"otherObjects,omitempty"`
	DetectedText          *TextPair    `json:"detectedText,omitempty"`
	IsCommercial          bool         `json:"isCommercial,omitempty"`
	ProductInfo           *ProductInfo `json:"productInfo,omitempty"`
	SearchQuery           string       `json:"searchQuery,omitempty"`
	Ambient               *Ambient     `json:"ambient,omitempty"`
}

// ObjectNote describes a secondary object seen near the main subject.
type ObjectNote struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TextPair is text detected in the frame plus its translation.
type TextPair struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
}

// ProductInfo identifies a commercial product.
type ProductInfo struct {
	Brand string `json:"brand,omitempty"`
	Model string `json:"model,omitempty"`
}

// Ambient holds scene readings the model inferred from the frame.
type Ambient struct {
	Lighting    string `json:"lighting"`
	Temperature string `json:"temperature"`
}

// Narration returns the text to speak for this result, preferring the
// localized description.
func (r *Result) Narration() string {
	if r.TranslatedDescription != "" {
		return r.TranslatedDescription
	}
	return r.Description
}

// Outcome is what an analyze call yields: either a structured result or
// plain text. Exactly one of the two is meaningful.
type Outcome struct {
	Structured *Result
	Text       string
}

// stripFence removes an optional markdown code fence around a model response.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop an optional language tag such as "json" on the fence line
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseStructured decodes a structured response. It returns false when the
// body is not valid JSON or the required fields are missing, in which case
// the caller degrades to plain text.
func parseStructured(raw string) (*Result, bool) {
	var r Result
	if err := json.Unmarshal([]byte(stripFence(raw)), &r); err != nil {
		return nil, false
	}
	if r.ObjectName == "" || r.Description == "" || r.TranslatedDescription == "" {
		return nil, false
	}
	return &r, true
}
