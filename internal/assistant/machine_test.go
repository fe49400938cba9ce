package assistant

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Zigurattt/Visual-Assistant-AI/internal/analysis"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/auth"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/capture"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/i18n"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/speech"
)

type fakeCamera struct {
	mu         sync.Mutex
	acquireErr error
	captureErr error
	frame      []byte
	acquires   int
	releases   int
}

func (c *fakeCamera) Acquire(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquires++
	return c.acquireErr
}

func (c *fakeCamera) CaptureFrame() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.captureErr != nil {
		return nil, c.captureErr
	}
	out := make([]byte, len(c.frame))
	copy(out, c.frame)
	return out, nil
}

func (c *fakeCamera) Release() {
	c.mu.Lock()
	c.releases++
	c.mu.Unlock()
}

type fakeSpeech struct {
	mu        sync.Mutex
	spoken    []string
	cancels   int
	listening bool
	speaking  bool
	lang      string
	listens   int
}

func (s *fakeSpeech) RecognitionSupported() bool { return true }

func (s *fakeSpeech) StartListening() error {
	s.mu.Lock()
	s.listening = true
	s.listens++
	s.mu.Unlock()
	return nil
}

func (s *fakeSpeech) StopListening() {
	s.mu.Lock()
	s.listening = false
	s.mu.Unlock()
}

func (s *fakeSpeech) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

func (s *fakeSpeech) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

func (s *fakeSpeech) Speak(text string, opts speech.SpeakOptions) {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
}

func (s *fakeSpeech) CancelSpeaking() {
	s.mu.Lock()
	s.cancels++
	s.speaking = false
	s.mu.Unlock()
}

func (s *fakeSpeech) SetLanguage(tag string) {
	s.mu.Lock()
	s.lang = tag
	s.mu.Unlock()
}

func (s *fakeSpeech) Close() {}

func (s *fakeSpeech) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   []analysis.Request
	block   chan struct{}
	outcome analysis.Outcome
	err     error
}

func (g *fakeGateway) Analyze(ctx context.Context, req analysis.Request) (analysis.Outcome, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	block := g.block
	g.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return analysis.Outcome{}, ctx.Err()
		}
	}
	if g.err != nil {
		return analysis.Outcome{}, g.err
	}
	return g.outcome, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGateway) call(i int) analysis.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[i]
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) notify(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) sawPhase(p Phase) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.snaps {
		if s.Phase == p {
			return true
		}
	}
	return false
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mugOutcome() analysis.Outcome {
	return analysis.Outcome{Structured: &analysis.Result{
		ObjectName:            "Mug",
		Description:           "A ceramic mug.",
		TranslatedDescription: "A ceramic mug with a handle.",
	}}
}

func newTestMachine(cam *fakeCamera, sp *fakeSpeech, gw *fakeGateway, rec *recorder) *Machine {
	return New(Config{
		Camera:   cam,
		Speech:   sp,
		Gateway:  gw,
		Users:    auth.NewStatic("Ada Lovelace", "en-US"),
		Language: "en-US",
		Notify:   rec.notify,
	})
}

func TestScanIdentifyShowsResult(t *testing.T) {
	frame := []byte{0x1, 0x2}
	cam := &fakeCamera{frame: frame}
	sp := &fakeSpeech{}
	gw := &fakeGateway{outcome: mugOutcome()}
	rec := &recorder{}
	m := newTestMachine(cam, sp, gw, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, "ready to scan", func() bool { return rec.last().Phase == PhaseReadyToScan })

	m.ScanStart()
	m.ScanEnd()
	waitFor(t, "result", func() bool { return rec.last().Phase == PhaseShowingResult })

	snap := rec.last()
	if snap.CurrentItem == nil || snap.CurrentItem.Name != "Mug" {
		t.Fatalf("current item = %+v, want Mug", snap.CurrentItem)
	}
	if !snap.HasFrame {
		t.Fatal("expected captured frame to be held")
	}
	if got := gw.call(0); !bytes.Equal(got.Image, frame) || !got.Structured {
		t.Fatalf("analyze request = %+v, want structured call on captured frame", got)
	}
	spoken := sp.spokenTexts()
	if len(spoken) == 0 || spoken[len(spoken)-1] != "A ceramic mug with a handle." {
		t.Fatalf("spoken = %v, want narration last", spoken)
	}

	m.ScanNew()
	waitFor(t, "back to scan", func() bool { return rec.last().Phase == PhaseReadyToScan })
	snap = rec.last()
	if snap.HasFrame || snap.CurrentItem != nil || snap.ResponseText != "" {
		t.Fatalf("state not cleared after new scan: %+v", snap)
	}
	sp.mu.Lock()
	cancels := sp.cancels
	sp.mu.Unlock()
	if cancels == 0 {
		t.Fatal("expected speech cancelled on new scan")
	}
}

func TestGreetingSpokenOncePerSession(t *testing.T) {
	cam := &fakeCamera{frame: []byte{0x1}}
	sp := &fakeSpeech{}
	gw := &fakeGateway{outcome: mugOutcome()}
	rec := &recorder{}
	m := newTestMachine(cam, sp, gw, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, "ready to scan", func() bool { return rec.last().Phase == PhaseReadyToScan })

	greetings := 0
	for _, text := range sp.spokenTexts() {
		if strings.Contains(text, "Ada") {
			greetings++
		}
	}
	if greetings != 1 {
		t.Fatalf("greetings = %d, want 1", greetings)
	}

	// The camera stream re-reporting readiness must not re-greet.
	m.post(event{kind: evCameraReady})
	waitFor(t, "ready again", func() bool { return rec.last().Phase == PhaseReadyToScan })
	greetings = 0
	for _, text := range sp.spokenTexts() {
		if strings.Contains(text, "Ada") {
			greetings++
		}
	}
	if greetings != 1 {
		t.Fatalf("greetings after re-ready = %d, want 1", greetings)
	}
}

func TestSingleAnalysisInFlight(t *testing.T) {
	cam := &fakeCamera{frame: []byte{0x1}}
	sp := &fakeSpeech{}
	gw := &fakeGateway{outcome: mugOutcome(), block: make(chan struct{})}
	rec := &recorder{}
	m := newTestMachine(cam, sp, gw, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, "ready to scan", func() bool { return rec.last().Phase == PhaseReadyToScan })

	m.ScanStart()
	m.ScanEnd()
	waitFor(t, "analyzing", func() bool { return rec.last().Phase == PhaseAnalyzing })

	// Rapid repeat gestures while the first analysis is still running.
	for i := 0; i < 5; i++ {
		m.ScanStart()
		m.ScanEnd()
	}
	waitFor(t, "gesture events drained", func() bool { return rec.last().Phase == PhaseAnalyzing })
	if n := gw.callCount(); n != 1 {
		t.Fatalf("analyze calls = %d, want 1", n)
	}

	close(gw.block)
	waitFor(t, "result", func() bool { return rec.last().Phase == PhaseShowingResult })
}

func TestFollowUpReusesCapturedFrame(t *testing.T) {
	frame := []byte{0x1, 0x2}
	cam := &fakeCamera{frame: frame}
	sp := &fakeSpeech{}
	gw := &fakeGateway{outcome: mugOutcome()}
	rec := &recorder{}
	m := newTestMachine(cam, sp, gw, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, "ready to scan", func() bool { return rec.last().Phase == PhaseReadyToScan })
	m.ScanStart()
	m.ScanEnd()
	waitFor(t, "result", func() bool { return rec.last().Phase == PhaseShowingResult })

	gw.mu.Lock()
	gw.outcome = analysis.Outcome{Text: "It is made of ceramic."}
	gw.mu.Unlock()

	for i, question := range []string{"what is it made of", "is it dishwasher safe"} {
		m.Ask(question)
		waitFor(t, "follow-up answered", func() bool { return gw.callCount() == i+2 })
		waitFor(t, "result again", func() bool { return rec.last().Phase == PhaseShowingResult })

		req := gw.call(i + 1)
		if !bytes.Equal(req.Image, frame) {
			t.Fatalf("follow-up %d image = %v, want original frame", i, req.Image)
		}
		if req.Structured {
			t.Fatalf("follow-up %d requested structured output", i)
		}
		if !strings.Contains(req.Prompt, question) {
			t.Fatalf("follow-up %d prompt %q missing question", i, req.Prompt)
		}
	}

	// Answers never replace the identified item.
	snap := rec.last()
	if snap.CurrentItem == nil || snap.CurrentItem.Name != "Mug" {
		t.Fatalf("current item = %+v, want Mug preserved", snap.CurrentItem)
	}
	if snap.ResponseText != "It is made of ceramic." {
		t.Fatalf("response = %q", snap.ResponseText)
	}
}

func TestFollowUpGatedWhileSpeaking(t *testing.T) {
	cam := &fakeCamera{frame: []byte{0x1}}
	sp := &fakeSpeech{}
	gw := &fakeGateway{outcome: mugOutcome()}
	rec := &recorder{}
	m := newTestMachine(cam, sp, gw, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, "ready to scan", func() bool { return rec.last().Phase == PhaseReadyToScan })
	m.ScanStart()
	m.ScanEnd()
	waitFor(t, "result", func() bool { return rec.last().Phase == PhaseShowingResult })

	sp.mu.Lock()
	sp.speaking = true
	sp.mu.Unlock()

	m.Ask("what color is it")
	waitFor(t, "ask drained", func() bool { return rec.last().Phase == PhaseShowingResult })
	time.Sleep(20 * time.Millisecond)
	if n := gw.callCount(); n != 1 {
		t.Fatalf("analyze calls = %d, want question dropped while speaking", n)
	}
}

func TestFinalTranscriptTriggersFollowUp(t *testing.T) {
	cam := &fakeCamera{frame: []byte{0x1}}
	sp := &fakeSpeech{}
	gw := &fakeGateway{outcome: mugOutcome()}
	rec := &recorder{}
	m := newTestMachine(cam, sp, gw, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, "ready to scan", func() bool { return rec.last().Phase == PhaseReadyToScan })
	m.ScanStart()
	m.ScanEnd()
	waitFor(t, "result", func() bool { return rec.last().Phase == PhaseShowingResult })

	gw.mu.Lock()
	gw.outcome = analysis.Outcome{Text: "About ten centimeters tall."}
	gw.mu.Unlock()

	handlers := m.SpeechHandlers()
	handlers.OnInterim("how tall")
	waitFor(t, "interim shown", func() bool { return rec.last().Transcript == "how tall" })

	handlers.OnFinal("how tall is it")
	waitFor(t, "spoken follow-up answered", func() bool { return gw.callCount() == 2 })
	waitFor(t, "answer shown", func() bool {
		return rec.last().Phase == PhaseShowingResult && rec.last().ResponseText == "About ten centimeters tall."
	})
	if !strings.Contains(gw.call(1).Prompt, "how tall is it") {
		t.Fatalf("prompt %q missing transcript", gw.call(1).Prompt)
	}
}

func TestCameraAndAnalysisErrorsAreDistinct(t *testing.T) {
	en := i18n.For("en-US")

	// Permission denial during acquisition.
	cam := &fakeCamera{acquireErr: capture.ErrPermissionDenied}
	rec := &recorder{}
	m := newTestMachine(cam, &fakeSpeech{}, &fakeGateway{}, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()
	waitFor(t, "error state", func() bool { return rec.last().Phase == PhaseError })
	permissionMsg := rec.last().ErrorMessage
	if permissionMsg != en.CameraPermissionError {
		t.Fatalf("permission error = %q, want %q", permissionMsg, en.CameraPermissionError)
	}

	// Analysis service not configured.
	cam2 := &fakeCamera{frame: []byte{0x1}}
	rec2 := &recorder{}
	gw2 := &fakeGateway{err: analysis.ErrNotConfigured}
	m2 := newTestMachine(cam2, &fakeSpeech{}, gw2, rec2)
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	m2.Start(ctx2)
	defer m2.Stop()
	waitFor(t, "ready to scan", func() bool { return rec2.last().Phase == PhaseReadyToScan })
	m2.ScanStart()
	m2.ScanEnd()
	waitFor(t, "error state", func() bool { return rec2.last().Phase == PhaseError })
	configMsg := rec2.last().ErrorMessage
	if configMsg != en.AINotConfiguredError {
		t.Fatalf("config error = %q, want %q", configMsg, en.AINotConfiguredError)
	}

	if permissionMsg == configMsg {
		t.Fatal("error causes must produce distinct messages")
	}
}

func TestReloadRecoversFromError(t *testing.T) {
	cam := &fakeCamera{acquireErr: capture.ErrDeviceError}
	sp := &fakeSpeech{}
	rec := &recorder{}
	m := newTestMachine(cam, sp, &fakeGateway{outcome: mugOutcome()}, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, "error state", func() bool { return rec.last().Phase == PhaseError })

	cam.mu.Lock()
	cam.acquireErr = nil
	cam.mu.Unlock()

	m.Reload()
	waitFor(t, "ready after reload", func() bool { return rec.last().Phase == PhaseReadyToScan })
	if rec.last().ErrorMessage != "" {
		t.Fatalf("error message not cleared: %q", rec.last().ErrorMessage)
	}
	cam.mu.Lock()
	acquires := cam.acquires
	cam.mu.Unlock()
	if acquires != 2 {
		t.Fatalf("acquires = %d, want fresh acquisition on reload", acquires)
	}
}

func TestReloadDiscardsStaleAnalysisFailure(t *testing.T) {
	cam := &fakeCamera{frame: []byte{0x1}}
	sp := &fakeSpeech{}
	gw := &fakeGateway{block: make(chan struct{}), err: errors.New("upstream gone")}
	rec := &recorder{}
	m := newTestMachine(cam, sp, gw, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, "ready to scan", func() bool { return rec.last().Phase == PhaseReadyToScan })
	m.ScanStart()
	m.ScanEnd()
	waitFor(t, "analyzing", func() bool { return rec.last().Phase == PhaseAnalyzing })

	// Full reload while the call is still in flight.
	m.Reload()
	waitFor(t, "ready after reload", func() bool { return rec.last().Phase == PhaseReadyToScan })

	// Let the abandoned call fail; the new session must not see it.
	close(gw.block)
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if rec.sawPhase(PhaseError) {
			t.Fatalf("stale analysis failure reached the reloaded session: %q", rec.last().ErrorMessage)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if rec.last().Phase != PhaseReadyToScan {
		t.Fatalf("phase = %v, want ready-to-scan", rec.last().Phase)
	}
}

func TestLanguageChangeSwitchesStringsAndRecognizer(t *testing.T) {
	cam := &fakeCamera{frame: []byte{0x1}}
	sp := &fakeSpeech{}
	gw := &fakeGateway{outcome: mugOutcome()}
	rec := &recorder{}
	m := newTestMachine(cam, sp, gw, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, "ready to scan", func() bool { return rec.last().Phase == PhaseReadyToScan })

	m.SetLanguage("tr-TR")
	waitFor(t, "language applied", func() bool {
		sp.mu.Lock()
		defer sp.mu.Unlock()
		return sp.lang == "tr-TR"
	})

	m.ScanStart()
	m.ScanEnd()
	waitFor(t, "result", func() bool { return rec.last().Phase == PhaseShowingResult })
	prompt := gw.call(0).Prompt
	if !strings.Contains(prompt, "Turkish") {
		t.Fatalf("identify prompt %q not rebuilt for new language", prompt)
	}
}
