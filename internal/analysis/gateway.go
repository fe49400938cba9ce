package analysis

import (
	"context"
	"errors"
	"log"
	"strings"
)

// ErrNotConfigured is returned when no API credential is present. The UI
// shows a different message for this than for a service failure.
var ErrNotConfigured = errors.New("analysis: service not configured")

// ServiceError wraps a network or provider failure. No automatic retry;
// the caller decides what to do.
type ServiceError struct {
	Detail string
}

func (e *ServiceError) Error() string {
	return "analysis: service error: " + e.Detail
}

// Request is one multimodal analyze call.
type Request struct {
	Image    []byte
	MIMEType string
	Prompt   string

	// Structured marks the prompt as requesting the Result JSON schema.
	// Decided at prompt-construction time, never inferred from the response.
	Structured bool

	// PartialPrefix is prepended to the raw text when a structured response
	// cannot be decoded.
	PartialPrefix string

	// OnDelta, if set, receives streamed text chunks in arrival order.
	OnDelta func(delta string)
}

// Generator produces the raw model text for an image+prompt pair,
// invoking onDelta for each streamed chunk.
type Generator interface {
	Generate(ctx context.Context, image []byte, mimeType, prompt string, onDelta func(string)) (string, error)
}

// Gateway is a stateless wrapper around the external multimodal service.
type Gateway struct {
	gen Generator
}

// NewGateway builds a gateway over the given generator. A nil generator
// means the service is not configured; every Analyze fails with
// ErrNotConfigured.
func NewGateway(gen Generator) *Gateway {
	return &Gateway{gen: gen}
}

// Analyze sends the image and prompt in one request. Malformed structured
// responses degrade to plain text rather than failing the call.
func (g *Gateway) Analyze(ctx context.Context, req Request) (Outcome, error) {
	if g.gen == nil {
		return Outcome{}, ErrNotConfigured
	}
	mime := req.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}

	// Structured responses are parsed whole; streaming deltas of half a
	// JSON document are useless to a caller, so only plain requests stream.
	onDelta := req.OnDelta
	if req.Structured {
		onDelta = nil
	}

	raw, err := g.gen.Generate(ctx, req.Image, mime, req.Prompt, onDelta)
	if err != nil {
		return Outcome{}, &ServiceError{Detail: err.Error()}
	}
	raw = strings.TrimSpace(raw)

	if req.Structured {
		if r, ok := parseStructured(raw); ok {
			return Outcome{Structured: r}, nil
		}
		log.Printf("analysis: structured response did not decode, degrading to text (len=%d)", len(raw))
		return Outcome{Text: req.PartialPrefix + raw}, nil
	}
	return Outcome{Text: raw}, nil
}

// Configured reports whether a credential is present.
func (g *Gateway) Configured() bool { return g.gen != nil }

// FormatFromMIME maps a mime type to the short format name the provider
// expects for inline image data.
func FormatFromMIME(mime string) string {
	if i := strings.IndexByte(mime, '/'); i >= 0 {
		return mime[i+1:]
	}
	return "jpeg"
}
