package assistant

import (
	"context"

	"github.com/Zigurattt/Visual-Assistant-AI/internal/analysis"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/geo"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/speech"
)

// Phase is a named state of the interaction loop.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingPermission
	PhaseCameraReady
	PhaseReadyToScan
	PhaseScanning
	PhaseAnalyzing
	PhaseShowingResult
	PhaseError
)

var phaseNames = map[Phase]string{
	PhaseIdle:               "idle",
	PhaseAwaitingPermission: "awaiting-permission",
	PhaseCameraReady:        "camera-ready",
	PhaseReadyToScan:        "ready-to-scan",
	PhaseScanning:           "scanning",
	PhaseAnalyzing:          "analyzing",
	PhaseShowingResult:      "showing-result",
	PhaseError:              "error",
}

func (p Phase) String() string { return phaseNames[p] }

// Item is the currently identified object: the structured result bundled
// with the captured frame and the location read when the result arrived.
type Item struct {
	Name     string          `json:"name"`
	Result   analysis.Result `json:"result"`
	Image    []byte          `json:"-"`
	Location *geo.Location   `json:"location,omitempty"`

	// Ready-made queries for the device's shopping and how-to-video
	// shortcuts.
	SearchQuery string `json:"searchQuery,omitempty"`
	HowToQuery  string `json:"howToQuery,omitempty"`
}

// Snapshot is what the machine exposes for presentation after every
// transition.
type Snapshot struct {
	Phase        Phase  `json:"-"`
	PhaseName    string `json:"phase"`
	StatusText   string `json:"statusText,omitempty"`
	ResponseText string `json:"responseText"`
	Transcript   string `json:"transcript,omitempty"`
	Listening    bool   `json:"listening"`
	Speaking     bool   `json:"speaking"`
	HasFrame     bool   `json:"hasFrame"`
	Saved        bool   `json:"saved"`
	CurrentItem  *Item  `json:"currentItem,omitempty"`
	ErrorMessage string `json:"error,omitempty"`
}

// Camera is the capture controller surface the machine drives.
type Camera interface {
	Acquire(ctx context.Context) error
	CaptureFrame() ([]byte, error)
	Release()
}

// Speech is the speech I/O controller surface the machine drives.
type Speech interface {
	RecognitionSupported() bool
	StartListening() error
	StopListening()
	IsListening() bool
	IsSpeaking() bool
	Speak(text string, opts speech.SpeakOptions)
	CancelSpeaking()
	SetLanguage(tag string)
	Close()
}

// Gateway is the analyze call surface.
type Gateway interface {
	Analyze(ctx context.Context, req analysis.Request) (analysis.Outcome, error)
}

// Locator reports the device position, if known.
type Locator interface {
	Current() (geo.Location, bool)
}

// Collection is the saved-items surface, invoked only on explicit user
// action.
type Collection interface {
	Toggle(name string, image []byte, loc *geo.Location, result *analysis.Result) bool
	Exists(image []byte) bool
}

type eventKind int

const (
	evMount eventKind = iota
	evCameraReady
	evCameraFailed
	evScanStart
	evScanEnd
	evAnalysisDelta
	evAnalysisDone
	evAnalysisFailed
	evAsk
	evFinalTranscript
	evInterim
	evListenStart
	evListenStop
	evScanNew
	evLanguage
	evSpeaking
	evVoice
	evToggleSave
	evReload
)

type event struct {
	kind     eventKind
	err      error
	text     string
	outcome  analysis.Outcome
	followUp bool
	flag     bool
	rate     float64
	pitch    float64
}
