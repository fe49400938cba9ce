package speech

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// assemblyAIRecognizer is a streaming recognition session against the
// AssemblyAI realtime API. One instance covers exactly one listen cycle.
type assemblyAIRecognizer struct {
	apiKey string
	lang   string

	conn      *websocket.Conn
	interimCh chan string
	endedCh   chan string
	audioCh   chan []byte
	stopCh    chan struct{}

	mu        sync.Mutex
	connected bool
	segments  []string
	endedOnce sync.Once
}

// NewAssemblyAIFactory returns a RecognizerFactory, or nil when no API key
// is configured so the capability is reported as unsupported.
func NewAssemblyAIFactory(apiKey string) RecognizerFactory {
	if apiKey == "" {
		return nil
	}
	return func(languageTag string) (Recognizer, error) {
		return &assemblyAIRecognizer{
			apiKey:    apiKey,
			lang:      languageTag,
			interimCh: make(chan string, 100),
			endedCh:   make(chan string, 1),
			audioCh:   make(chan []byte, 1000),
			stopCh:    make(chan struct{}),
		}, nil
	}
}

type turnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
	Formatted  bool   `json:"turn_is_formatted"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (r *assemblyAIRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		return nil
	}

	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("encoding", "pcm_s16le")
	params.Set("format_turns", "true")
	params.Set("language", r.lang)

	wsURL := fmt.Sprintf("wss://streaming.assemblyai.com/v3/ws?%s", params.Encode())
	headers := map[string][]string{"Authorization": {r.apiKey}}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("speech: recognizer connect failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect recognizer: %w", err)
	}

	r.conn = conn
	r.connected = true
	go r.readMessages()
	go r.sendAudio()
	return nil
}

func (r *assemblyAIRecognizer) SendAudio(pcm []byte) error {
	r.mu.Lock()
	connected := r.connected
	r.mu.Unlock()
	if !connected {
		return fmt.Errorf("recognizer not connected")
	}
	select {
	case r.audioCh <- pcm:
	default:
		// drop rather than block the session loop
	}
	return nil
}

func (r *assemblyAIRecognizer) Interim() <-chan string { return r.interimCh }
func (r *assemblyAIRecognizer) Ended() <-chan string   { return r.endedCh }

// Stop asks the engine to finalize. The final transcript is delivered on
// Ended when the engine acknowledges termination.
func (r *assemblyAIRecognizer) Stop() {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn != nil {
		_ = conn.WriteJSON(map[string]string{"type": "Terminate"})
	}
}

func (r *assemblyAIRecognizer) Close() error {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		r.deliverFinal()
		return nil
	}
	r.connected = false
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	close(r.stopCh)
	if conn != nil {
		_ = conn.Close()
	}
	r.deliverFinal()
	return nil
}

func (r *assemblyAIRecognizer) readMessages() {
	for {
		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()
		if conn == nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			// Read failure ends the session through the same signal as a
			// normal completion.
			r.deliverFinal()
			return
		}
		r.processMessage(message)
	}
}

func (r *assemblyAIRecognizer) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		return
	}
	switch base.Type {
	case "Begin":
		// session metadata only
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		if msg.Transcript == "" {
			return
		}
		select {
		case r.interimCh <- msg.Transcript:
		default:
		}
		if msg.EndOfTurn {
			r.mu.Lock()
			r.segments = append(r.segments, strings.TrimSpace(msg.Transcript))
			r.mu.Unlock()
		}
	case "Termination":
		r.deliverFinal()
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			log.Printf("speech: recognition error: %s", msg.Error)
		}
		r.deliverFinal()
	}
}

// deliverFinal joins all finalized segments and emits them exactly once.
// interimCh stays open: the socket can still produce Turn messages after an
// engine error, and a send on a closed channel would take the process down.
// Late fragments just sit in the buffer of a channel nobody reads anymore.
func (r *assemblyAIRecognizer) deliverFinal() {
	r.endedOnce.Do(func() {
		r.mu.Lock()
		final := strings.TrimSpace(strings.Join(r.segments, " "))
		r.mu.Unlock()
		r.endedCh <- final
	})
}

func (r *assemblyAIRecognizer) sendAudio() {
	for {
		select {
		case <-r.stopCh:
			return
		case pcm := <-r.audioCh:
			r.mu.Lock()
			conn := r.conn
			r.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				log.Printf("speech: error sending audio: %v", err)
				return
			}
		}
	}
}
