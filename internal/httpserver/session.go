package httpserver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Zigurattt/Visual-Assistant-AI/internal/assistant"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/auth"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/capture"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/geo"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/i18n"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/speech"
)

// Binary frame tags. Client frames carry camera video and microphone
// audio; the single server binary frame carries synthesized speech.
const (
	frameVideo byte = 0x01 // 0x01 | uint16 width | uint16 height | JPEG
	frameMic   byte = 0x02 // 0x02 | 16 kHz mono s16le PCM
	frameTTS   byte = 0x01 // 0x01 | 48 kHz mono s16le PCM
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Token auth happens in the route middleware; origin is open.
		return true
	},
}

// clientMessage is every JSON message the device can send.
type clientMessage struct {
	Type      string  `json:"type"`
	Name      string  `json:"name,omitempty"`
	Language  string  `json:"language,omitempty"`
	Text      string  `json:"text,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Rate      float64 `json:"rate,omitempty"`
	Pitch     float64 `json:"pitch,omitempty"`
}

// serverMessage is every JSON message pushed to the device.
type serverMessage struct {
	Type  string              `json:"type"`
	State *assistant.Snapshot `json:"state,omitempty"`
	Error string              `json:"error,omitempty"`
}

// session is one connected device: the WebSocket plus the machine and
// controllers living for exactly as long as the connection.
type session struct {
	srv  *Server
	conn *websocket.Conn

	writeMu sync.Mutex

	camera   *capture.Controller
	location *geo.Cache

	mu       sync.Mutex
	handlers speech.Handlers

	cameraCh chan error
}

func (s *Server) handleSession(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return nil
	}
	sess := &session{
		srv:      s,
		conn:     conn,
		location: geo.NewCache(),
		cameraCh: make(chan error, 1),
	}
	sess.run(c.Request().Context())
	_ = conn.Close()
	return nil
}

func (s *session) run(ctx context.Context) {
	hello, err := s.awaitHello()
	if err != nil {
		log.Printf("session rejected: %v", err)
		s.sendJSON(serverMessage{Type: "error", Error: "expected hello"})
		return
	}

	lang := hello.Language
	if !i18n.Supported(lang) {
		lang = s.srv.cfg.DefaultLanguage
	}
	name := hello.Name
	if name == "" {
		name = s.srv.cfg.DefaultUserName
	}

	s.camera = capture.NewController(s)
	voice := speech.NewController(s.srv.recognizer, s.srv.synth, s, lang, speech.Handlers{
		OnInterim: func(text string) {
			if h := s.speechHandlers(); h.OnInterim != nil {
				h.OnInterim(text)
			}
		},
		OnFinal: func(text string) {
			if h := s.speechHandlers(); h.OnFinal != nil {
				h.OnFinal(text)
			}
		},
		OnSpeaking: func(active bool) {
			if h := s.speechHandlers(); h.OnSpeaking != nil {
				h.OnSpeaking(active)
			}
		},
	})
	defer voice.Close()

	machine := assistant.New(assistant.Config{
		Camera:     s.camera,
		Speech:     voice,
		Gateway:    s.srv.gateway,
		Users:      auth.NewStatic(name, lang),
		Locator:    s.location,
		Collection: s.srv.items,
		Language:   lang,
		Rate:       hello.Rate,
		Pitch:      hello.Pitch,
		Notify:     s.pushState,
	})
	s.setSpeechHandlers(machine.SpeechHandlers())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	machine.Start(runCtx)
	defer machine.Stop()

	log.Printf("session started: user=%q lang=%s", name, lang)
	s.readLoop(machine, voice)
}

// awaitHello reads until the device announces itself. Anything else first
// is a protocol error.
func (s *session) awaitHello() (clientMessage, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

	mt, data, err := s.conn.ReadMessage()
	if err != nil {
		return clientMessage{}, err
	}
	if mt != websocket.TextMessage {
		return clientMessage{}, errProtocol("binary frame before hello")
	}
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return clientMessage{}, err
	}
	if msg.Type != "hello" {
		return clientMessage{}, errProtocol("first message must be hello, got " + msg.Type)
	}
	return msg, nil
}

func (s *session) readLoop(machine *assistant.Machine, voice *speech.Controller) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ws read error: %v", err)
			}
			return
		}

		if mt == websocket.BinaryMessage {
			s.handleBinary(data, voice)
			continue
		}
		if mt != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("bad client message: %v", err)
			continue
		}

		switch msg.Type {
		case "camera-ready":
			s.signalCamera(nil)
		case "camera-error":
			s.signalCamera(cameraError(msg.Reason))
		case "scan-start":
			machine.ScanStart()
		case "scan-end":
			machine.ScanEnd()
		case "ask":
			machine.Ask(msg.Text)
		case "listen-start":
			machine.StartListening()
		case "listen-stop":
			machine.StopListening()
		case "scan-new":
			machine.ScanNew()
		case "save":
			machine.ToggleSave()
		case "language":
			machine.SetLanguage(msg.Language)
		case "voice":
			machine.SetVoice(msg.Rate, msg.Pitch)
		case "location":
			s.location.Update(msg.Latitude, msg.Longitude)
		case "location-error":
			s.location.Fail(msg.Reason)
		case "reload":
			machine.Reload()
		case "bye":
			return
		default:
			log.Printf("unknown client message type %q", msg.Type)
		}
	}
}

func (s *session) handleBinary(data []byte, voice *speech.Controller) {
	if len(data) < 1 {
		return
	}
	switch data[0] {
	case frameVideo:
		if len(data) < 5 {
			return
		}
		width := int(binary.BigEndian.Uint16(data[1:3]))
		height := int(binary.BigEndian.Uint16(data[3:5]))
		s.camera.OfferFrame(data[5:], width, height)
	case frameMic:
		voice.FeedAudio(data[1:])
	}
}

// signalCamera completes a pending RequestCamera; duplicates from the
// device are dropped.
func (s *session) signalCamera(err error) {
	select {
	case s.cameraCh <- err:
	default:
	}
}

func cameraError(reason string) error {
	switch reason {
	case "unsupported":
		return capture.ErrUnsupported
	case "permission-denied":
		return capture.ErrPermissionDenied
	default:
		return capture.ErrDeviceError
	}
}

// RequestCamera asks the device to open its camera and waits for the
// outcome report.
func (s *session) RequestCamera(ctx context.Context) error {
	s.sendJSON(serverMessage{Type: "camera-request"})
	select {
	case err := <-s.cameraCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopCamera tells the device to release its camera.
func (s *session) StopCamera() {
	s.sendJSON(serverMessage{Type: "camera-stop"})
}

// WriteAudio ships one chunk of synthesized speech to the device.
func (s *session) WriteAudio(pcm []byte) {
	buf := make([]byte, 0, len(pcm)+1)
	buf = append(buf, frameTTS)
	buf = append(buf, pcm...)
	s.writeMu.Lock()
	err := s.conn.WriteMessage(websocket.BinaryMessage, buf)
	s.writeMu.Unlock()
	if err != nil {
		log.Printf("ws audio write error: %v", err)
	}
}

// Reset tells the device to drop queued playback immediately.
func (s *session) Reset() {
	s.sendJSON(serverMessage{Type: "audio-reset"})
}

func (s *session) pushState(snap assistant.Snapshot) {
	s.sendJSON(serverMessage{Type: "state", State: &snap})
}

func (s *session) sendJSON(msg serverMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(msg); err != nil {
		log.Printf("ws write error: %v", err)
	}
}

func (s *session) setSpeechHandlers(h speech.Handlers) {
	s.mu.Lock()
	s.handlers = h
	s.mu.Unlock()
}

func (s *session) speechHandlers() speech.Handlers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers
}

type errProtocol string

func (e errProtocol) Error() string { return string(e) }
