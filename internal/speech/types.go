package speech

import (
	"context"
	"errors"
)

// ErrUnsupported is returned when no recognition engine is configured.
// Callers check RecognitionSupported before offering the feature.
var ErrUnsupported = errors.New("speech: recognition engine not available")

// Recognizer is one language-bound listen cycle. Finalized segments are
// accumulated internally; the space-joined transcript is delivered on
// Ended after Stop, not synchronously.
type Recognizer interface {
	Start() error
	SendAudio(pcm []byte) error
	// Stop requests the engine stop; finalization completes asynchronously.
	Stop()
	// Interim streams live transcript fragments for display.
	Interim() <-chan string
	// Ended delivers the final concatenated transcript exactly once.
	Ended() <-chan string
	Close() error
}

// RecognizerFactory builds a recognizer bound to a language tag. The
// binding is fixed at construction; a language change while idle means a
// new recognizer on the next listen cycle.
type RecognizerFactory func(languageTag string) (Recognizer, error)

// Synthesizer streams synthesized audio for the given text. Both channels
// close when the utterance ends or the context is cancelled.
type Synthesizer interface {
	Stream(ctx context.Context, text string, opts SpeakOptions) (<-chan []byte, <-chan error)
}

// SpeakOptions tune an utterance.
type SpeakOptions struct {
	Rate  float64
	Pitch float64
}

// AudioSink consumes synthesized audio and performs delivery to the
// device. Reset drops any queued audio immediately (used on cancel).
type AudioSink interface {
	WriteAudio(pcm []byte)
	Reset()
}

// Handlers receive controller events. All are optional.
type Handlers struct {
	OnInterim  func(text string)
	OnFinal    func(transcript string)
	OnSpeaking func(speaking bool)
}
