package assistant

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/Zigurattt/Visual-Assistant-AI/internal/analysis"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/auth"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/capture"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/geo"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/i18n"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/speech"
)

// Config wires one interaction session. Camera, Speech and Gateway are
// required; Users, Locator and Collection are optional.
type Config struct {
	Camera     Camera
	Speech     Speech
	Gateway    Gateway
	Users      auth.Provider
	Locator    Locator
	Collection Collection

	Language string
	Rate     float64
	Pitch    float64

	// Notify receives a snapshot after every transition. Called from the
	// run loop; keep it fast.
	Notify func(Snapshot)
}

// Machine runs the capture-analyze-present loop. All state lives on the
// run goroutine; callers post events and observe snapshots.
type Machine struct {
	cfg     Config
	strings i18n.Table
	lang    string
	rate    float64
	pitch   float64

	events chan event
	done   chan struct{}
	once   sync.Once
	ctx    context.Context

	phase        Phase
	frame        []byte
	current      *Item
	responseText string
	transcript   string
	errMsg       string
	inFlight     bool
	hasGreeted   bool
}

func New(cfg Config) *Machine {
	lang := cfg.Language
	if !i18n.Supported(lang) {
		lang = "en-US"
	}
	rate := cfg.Rate
	if rate <= 0 {
		rate = 1
	}
	return &Machine{
		cfg:     cfg,
		strings: i18n.For(lang),
		lang:    lang,
		rate:    rate,
		pitch:   cfg.Pitch,
		events:  make(chan event, 64),
		done:    make(chan struct{}),
		phase:   PhaseIdle,
	}
}

// Start launches the run loop and begins camera acquisition. Returns
// immediately.
func (m *Machine) Start(ctx context.Context) {
	m.ctx = ctx
	go m.run(ctx)
	m.post(event{kind: evMount})
}

// Stop ends the run loop and releases the camera.
func (m *Machine) Stop() {
	m.once.Do(func() { close(m.done) })
}

// ScanStart begins the hold-to-scan gesture.
func (m *Machine) ScanStart() { m.post(event{kind: evScanStart}) }

// ScanEnd releases the gesture and captures the frame under it.
func (m *Machine) ScanEnd() { m.post(event{kind: evScanEnd}) }

// Ask submits a typed follow-up question about the current item.
func (m *Machine) Ask(text string) { m.post(event{kind: evAsk, text: text}) }

// StartListening opens the microphone for a spoken follow-up.
func (m *Machine) StartListening() { m.post(event{kind: evListenStart}) }

// StopListening closes the microphone; the finalized transcript arrives
// asynchronously.
func (m *Machine) StopListening() { m.post(event{kind: evListenStop}) }

// ScanNew discards the current result and returns to the scan-ready state.
func (m *Machine) ScanNew() { m.post(event{kind: evScanNew}) }

// SetLanguage switches the interface language mid-session.
func (m *Machine) SetLanguage(tag string) { m.post(event{kind: evLanguage, text: tag}) }

// SetVoice adjusts speech rate and pitch for subsequent utterances.
func (m *Machine) SetVoice(rate, pitch float64) {
	m.post(event{kind: evVoice, rate: rate, pitch: pitch})
}

// ToggleSave saves the current item to the collection, or removes it if
// the same capture is already saved.
func (m *Machine) ToggleSave() { m.post(event{kind: evToggleSave}) }

// Reload tears the session down and starts over from camera acquisition.
// It is the only recovery from the error state.
func (m *Machine) Reload() { m.post(event{kind: evReload}) }

// SpeechHandlers returns the callbacks to hand the speech controller.
func (m *Machine) SpeechHandlers() speech.Handlers {
	return speech.Handlers{
		OnInterim:  func(text string) { m.post(event{kind: evInterim, text: text}) },
		OnFinal:    func(text string) { m.post(event{kind: evFinalTranscript, text: text}) },
		OnSpeaking: func(active bool) { m.post(event{kind: evSpeaking, flag: active}) },
	}
}

func (m *Machine) post(e event) {
	select {
	case m.events <- e:
	case <-m.done:
	}
}

func (m *Machine) run(ctx context.Context) {
	for {
		select {
		case e := <-m.events:
			m.handle(e)
		case <-ctx.Done():
			m.Stop()
			return
		case <-m.done:
			m.cfg.Speech.CancelSpeaking()
			m.cfg.Camera.Release()
			return
		}
	}
}

func (m *Machine) handle(e event) {
	switch e.kind {
	case evMount, evReload:
		m.mount()
	case evCameraReady:
		m.cameraReady()
	case evCameraFailed:
		m.cameraFailed(e.err)
	case evScanStart:
		if m.phase == PhaseReadyToScan || m.phase == PhaseShowingResult {
			m.phase = PhaseScanning
			m.publish()
		}
	case evScanEnd:
		m.scanEnd()
	case evAnalysisDelta:
		if m.phase == PhaseAnalyzing {
			m.responseText += e.text
			m.publish()
		}
	case evAnalysisDone:
		m.analysisDone(e.outcome, e.followUp)
	case evAnalysisFailed:
		m.inFlight = false
		// A failure from a call the session has already abandoned (reload,
		// teardown) must not touch the current state.
		if m.phase == PhaseAnalyzing {
			m.analysisFailed(e.err)
		}
	case evAsk:
		m.followUp(e.text)
	case evFinalTranscript:
		m.transcript = e.text
		m.publish()
		m.followUp(e.text)
	case evInterim:
		m.transcript = e.text
		m.publish()
	case evListenStart:
		m.listenStart()
	case evListenStop:
		m.cfg.Speech.StopListening()
		m.publish()
	case evScanNew:
		m.scanNew()
	case evLanguage:
		m.setLanguage(e.text)
	case evSpeaking:
		m.publish()
	case evVoice:
		if e.rate > 0 {
			m.rate = e.rate
		}
		m.pitch = e.pitch
	case evToggleSave:
		m.toggleSave()
	}
}

// mount resets all per-session state and kicks off camera acquisition. A
// reload goes through the same path after releasing the previous handle.
func (m *Machine) mount() {
	if m.phase != PhaseIdle {
		m.cfg.Speech.CancelSpeaking()
		m.cfg.Camera.Release()
	}
	m.frame = nil
	m.current = nil
	m.responseText = ""
	m.transcript = ""
	m.errMsg = ""
	m.hasGreeted = false

	m.phase = PhaseAwaitingPermission
	m.publish()
	go func() {
		if err := m.cfg.Camera.Acquire(m.ctx); err != nil {
			m.post(event{kind: evCameraFailed, err: err})
			return
		}
		m.post(event{kind: evCameraReady})
	}()
}

func (m *Machine) cameraReady() {
	if m.phase != PhaseAwaitingPermission && m.phase != PhaseCameraReady {
		return
	}
	m.phase = PhaseCameraReady
	m.publish()

	if !m.hasGreeted && m.cfg.Users != nil {
		if user, ok := m.cfg.Users.CurrentUser(); ok {
			m.hasGreeted = true
			greeting := m.strings.InitialGreeting(user.FirstName())
			m.responseText = greeting
			m.speak(greeting)
		}
	}
	m.phase = PhaseReadyToScan
	m.publish()
}

func (m *Machine) cameraFailed(err error) {
	switch {
	case errors.Is(err, capture.ErrUnsupported):
		m.fail(m.strings.CameraNotSupportedError)
	case errors.Is(err, capture.ErrPermissionDenied):
		m.fail(m.strings.CameraPermissionError)
	default:
		m.fail(m.strings.CameraDeviceError)
	}
}

func (m *Machine) scanEnd() {
	if m.phase != PhaseScanning {
		return
	}
	frame, err := m.cfg.Camera.CaptureFrame()
	if err != nil {
		log.Printf("capture failed: %v", err)
		m.fail(m.strings.CaptureFrameError)
		return
	}
	m.frame = frame
	m.current = nil
	m.responseText = ""
	m.transcript = ""
	m.phase = PhaseAnalyzing
	m.publish()

	prompt := m.strings.IdentifyPrompt(i18n.LanguageName(m.lang), m.lang)
	m.startAnalyze(prompt, true, false)
}

// followUp runs a question against the already captured frame. Gated so a
// question can only land while a result is showing and nothing else is in
// flight on the audio path.
func (m *Machine) followUp(text string) {
	text = strings.TrimSpace(text)
	if text == "" || m.phase != PhaseShowingResult || len(m.frame) == 0 || m.inFlight {
		return
	}
	if m.cfg.Speech.IsListening() || m.cfg.Speech.IsSpeaking() {
		return
	}
	m.transcript = ""
	m.responseText = ""
	m.phase = PhaseAnalyzing
	m.publish()
	m.startAnalyze(m.strings.QuestionPrompt(text), false, true)
}

// startAnalyze dispatches a model call off the run loop. The phase guard
// in scanEnd/followUp means at most one is ever in flight.
func (m *Machine) startAnalyze(prompt string, structured, followUp bool) {
	if m.inFlight {
		return
	}
	m.inFlight = true
	req := analysis.Request{
		Image:         m.frame,
		MIMEType:      "image/jpeg",
		Prompt:        prompt,
		Structured:    structured,
		PartialPrefix: m.strings.PartialUnderstandingPrefix,
	}
	if !structured {
		req.OnDelta = func(delta string) {
			m.post(event{kind: evAnalysisDelta, text: delta})
		}
	}
	go func() {
		out, err := m.cfg.Gateway.Analyze(m.ctx, req)
		if err != nil {
			m.post(event{kind: evAnalysisFailed, err: err})
			return
		}
		m.post(event{kind: evAnalysisDone, outcome: out, followUp: followUp})
	}()
}

func (m *Machine) analysisDone(out analysis.Outcome, followUp bool) {
	m.inFlight = false
	if m.phase != PhaseAnalyzing {
		return
	}
	if followUp || out.Structured == nil {
		m.responseText = out.Text
		m.speak(out.Text)
		m.phase = PhaseShowingResult
		m.publish()
		return
	}

	res := out.Structured
	narration := res.Narration()
	m.responseText = narration
	var loc *geo.Location
	if m.cfg.Locator != nil {
		if l, ok := m.cfg.Locator.Current(); ok {
			loc = &l
		}
	}
	search := res.SearchQuery
	if search == "" && res.IsCommercial {
		search = res.ObjectName
	}
	m.current = &Item{
		Name:        res.ObjectName,
		Result:      *res,
		Image:       m.frame,
		Location:    loc,
		SearchQuery: search,
		HowToQuery:  m.strings.HowToQuery(res.ObjectName),
	}
	m.speak(narration)
	m.phase = PhaseShowingResult
	m.publish()
}

func (m *Machine) analysisFailed(err error) {
	var svcErr *analysis.ServiceError
	switch {
	case errors.Is(err, analysis.ErrNotConfigured):
		m.fail(m.strings.AINotConfiguredError)
	case errors.As(err, &svcErr):
		m.fail(svcErr.Detail)
	default:
		m.fail(err.Error())
	}
}

func (m *Machine) listenStart() {
	if m.phase != PhaseShowingResult || m.cfg.Speech.IsSpeaking() {
		return
	}
	if !m.cfg.Speech.RecognitionSupported() {
		return
	}
	m.transcript = ""
	if err := m.cfg.Speech.StartListening(); err != nil {
		log.Printf("start listening: %v", err)
	}
	m.publish()
}

func (m *Machine) scanNew() {
	if m.phase != PhaseShowingResult {
		return
	}
	m.cfg.Speech.CancelSpeaking()
	m.frame = nil
	m.current = nil
	m.responseText = ""
	m.transcript = ""
	m.phase = PhaseReadyToScan
	m.publish()
}

func (m *Machine) setLanguage(tag string) {
	if !i18n.Supported(tag) || tag == m.lang {
		return
	}
	m.cfg.Speech.SetLanguage(tag)
	m.lang = tag
	m.strings = i18n.For(tag)
	m.publish()
}

func (m *Machine) toggleSave() {
	if m.current == nil || m.cfg.Collection == nil {
		return
	}
	res := m.current.Result
	m.cfg.Collection.Toggle(m.current.Name, m.current.Image, m.current.Location, &res)
	m.publish()
}

func (m *Machine) fail(msg string) {
	m.frame = nil
	m.errMsg = msg
	m.phase = PhaseError
	m.publish()
}

func (m *Machine) speak(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	m.cfg.Speech.Speak(text, speech.SpeakOptions{Rate: m.rate, Pitch: m.pitch})
}

func (m *Machine) publish() {
	if m.cfg.Notify == nil {
		return
	}
	snap := Snapshot{
		Phase:        m.phase,
		PhaseName:    m.phase.String(),
		ResponseText: m.responseText,
		Transcript:   m.transcript,
		Listening:    m.cfg.Speech.IsListening(),
		Speaking:     m.cfg.Speech.IsSpeaking(),
		HasFrame:     len(m.frame) > 0,
		ErrorMessage: m.errMsg,
	}
	switch {
	case snap.Listening:
		snap.StatusText = m.strings.ListeningStatus
	case m.phase == PhaseAnalyzing:
		snap.StatusText = m.strings.AnalyzingStatus
	}
	if m.current != nil {
		item := *m.current
		snap.CurrentItem = &item
		if m.cfg.Collection != nil {
			snap.Saved = m.cfg.Collection.Exists(m.current.Image)
		}
	}
	m.cfg.Notify(snap)
}
