package speech

import (
	"context"
	"log"
	"strings"
	"sync"
)

// Controller owns the single active recognition session and the single
// active synthesis utterance for one assistant session. Starting a new
// utterance cancels any prior one.
type Controller struct {
	newRecognizer RecognizerFactory
	synth         Synthesizer
	sink          AudioSink
	handlers      Handlers

	mu          sync.Mutex
	lang        string
	rec         Recognizer
	listening   bool
	speaking    bool
	utterCancel context.CancelFunc
	utterSeq    uint64
	closed      bool
}

func NewController(factory RecognizerFactory, synth Synthesizer, sink AudioSink, lang string, h Handlers) *Controller {
	return &Controller{
		newRecognizer: factory,
		synth:         synth,
		sink:          sink,
		handlers:      h,
		lang:          lang,
	}
}

// RecognitionSupported reports whether a recognition engine is configured.
func (c *Controller) RecognitionSupported() bool { return c.newRecognizer != nil }

// StartListening begins a continuous, interim-enabled recognition session
// bound to the current language.
func (c *Controller) StartListening() error {
	if c.newRecognizer == nil {
		return ErrUnsupported
	}
	c.mu.Lock()
	if c.listening || c.closed {
		c.mu.Unlock()
		return nil
	}
	lang := c.lang
	c.mu.Unlock()

	rec, err := c.newRecognizer(lang)
	if err != nil {
		return err
	}
	if err := rec.Start(); err != nil {
		_ = rec.Close()
		return err
	}

	c.mu.Lock()
	c.rec = rec
	c.listening = true
	c.mu.Unlock()

	// One pump for the whole cycle. It must exit on Ended, not on the
	// interim channel closing: the engine keeps the interim path open and
	// may emit fragments after the session has already finished.
	go func() {
		interim := rec.Interim()
		for {
			select {
			case txt, ok := <-interim:
				if !ok {
					interim = nil
					continue
				}
				if c.handlers.OnInterim != nil && txt != "" {
					c.handlers.OnInterim(txt)
				}
			case final := <-rec.Ended():
				c.mu.Lock()
				if c.rec == rec {
					c.rec = nil
					c.listening = false
				}
				c.mu.Unlock()
				_ = rec.Close()
				if c.handlers.OnFinal != nil {
					c.handlers.OnFinal(strings.TrimSpace(final))
				}
				return
			}
		}
	}()
	return nil
}

// StopListening requests the engine stop. The final transcript still
// arrives asynchronously through the OnFinal handler.
func (c *Controller) StopListening() {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	if rec != nil {
		rec.Stop()
	}
}

// FeedAudio forwards device microphone audio to the active recognizer.
func (c *Controller) FeedAudio(pcm []byte) {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	if rec != nil {
		_ = rec.SendAudio(pcm)
	}
}

func (c *Controller) IsListening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

func (c *Controller) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Speak cancels any current utterance and starts a new one. Empty or
// whitespace text is skipped. It returns once streaming has started.
func (c *Controller) Speak(text string, opts SpeakOptions) {
	if c.synth == nil || strings.TrimSpace(text) == "" {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.utterCancel != nil {
		c.utterCancel()
		c.sink.Reset()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.utterCancel = cancel
	c.utterSeq++
	seq := c.utterSeq
	c.setSpeakingLocked(true)
	c.mu.Unlock()

	go c.stream(ctx, seq, text, opts)
}

func (c *Controller) stream(ctx context.Context, seq uint64, text string, opts SpeakOptions) {
	pcmCh, errCh := c.synth.Stream(ctx, text, opts)
	openPCM, openErr := true, true
	for openPCM || openErr {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				openPCM = false
				continue
			}
			if len(b) > 0 && ctx.Err() == nil {
				c.sink.WriteAudio(b)
			}
		case e, ok := <-errCh:
			if !ok {
				openErr = false
				continue
			}
			// Cancellation by the app is expected, not an error.
			if e != nil && ctx.Err() == nil {
				log.Printf("speech: synthesis error: %v", e)
			}
		}
	}

	c.mu.Lock()
	if c.utterSeq == seq {
		c.utterCancel = nil
		c.setSpeakingLocked(false)
	}
	c.mu.Unlock()
}

// CancelSpeaking immediately stops any utterance. Fire-and-forget.
func (c *Controller) CancelSpeaking() {
	c.mu.Lock()
	cancel := c.utterCancel
	c.utterCancel = nil
	if cancel != nil {
		c.sink.Reset()
		c.setSpeakingLocked(false)
	}
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SetLanguage switches the language binding for subsequent utterances and
// listen cycles. Any active utterance is cancelled first so no playback
// continues in a stale language; an active listen session is stopped.
func (c *Controller) SetLanguage(tag string) {
	c.CancelSpeaking()
	c.mu.Lock()
	rec := c.rec
	c.lang = tag
	c.mu.Unlock()
	if rec != nil {
		rec.Stop()
	}
}

// Close tears the controller down at session end.
func (c *Controller) Close() {
	c.CancelSpeaking()
	c.mu.Lock()
	c.closed = true
	rec := c.rec
	c.rec = nil
	c.listening = false
	c.mu.Unlock()
	if rec != nil {
		_ = rec.Close()
	}
}

// setSpeakingLocked updates the flag and fires the observer outside of any
// transition it could re-enter. Callers hold c.mu.
func (c *Controller) setSpeakingLocked(v bool) {
	if c.speaking == v {
		return
	}
	c.speaking = v
	if c.handlers.OnSpeaking != nil {
		go c.handlers.OnSpeaking(v)
	}
}
