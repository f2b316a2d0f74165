package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lifeline/internal/ports"
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey         string
	APIBaseURL     string
	Model          string
	Language       string
	SmartFormat    bool
	EndpointingMS  int
	NoSpeechWindow time.Duration
}

// Recognizer implements ports.Recognizer on Deepgram live streaming.
// Each Start opens one listening window: microphone audio is streamed
// over the websocket until Deepgram reports the end of an utterance,
// then exactly one RecognitionEvent is emitted and the window closes.
// Partial hypotheses are never surfaced.
type Recognizer struct {
	cfg       Config
	capture   ports.AudioCapture
	audioCfg  ports.AudioConfig
	chunkSize int
	events    chan ports.RecognitionEvent

	mu     sync.Mutex
	active *listenWindow
}

func NewRecognizer(cfg Config, capture ports.AudioCapture, audioCfg ports.AudioConfig, chunkSize int) *Recognizer {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.EndpointingMS <= 0 {
		cfg.EndpointingMS = 300
	}
	if cfg.NoSpeechWindow <= 0 {
		cfg.NoSpeechWindow = 8 * time.Second
	}
	if chunkSize < 256 {
		chunkSize = 4096
	}
	return &Recognizer{
		cfg:       cfg,
		capture:   capture,
		audioCfg:  audioCfg,
		chunkSize: chunkSize,
		events:    make(chan ports.RecognitionEvent, 16),
	}
}

// Events delivers one event per listening window. The channel is owned
// by the recognizer and stays open across windows.
func (r *Recognizer) Events() <-chan ports.RecognitionEvent {
	return r.events
}

// Start opens a listening window. It is a no-op while one is open.
func (r *Recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil
	}

	if strings.TrimSpace(r.cfg.APIKey) == "" {
		return errors.New("DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := buildListenURL(r.cfg, r.audioCfg)
	if err != nil {
		return err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to recognition stream: %w", err)
	}

	mic, err := r.capture.Start(ctx, r.audioCfg)
	if err != nil {
		_ = conn.Close()
		return err
	}

	w := &listenWindow{owner: r, conn: conn, mic: mic}
	w.watchdog = time.AfterFunc(r.cfg.NoSpeechWindow, func() {
		w.finish(ports.RecognitionEvent{Err: ports.ErrNoSpeech}, true)
	})
	r.active = w

	go w.writeLoop(r.chunkSize)
	go w.readLoop()
	return nil
}

// Stop closes the open window immediately. Any partially recognized
// speech is discarded; no event is emitted.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	w := r.active
	r.mu.Unlock()
	if w != nil {
		w.finish(ports.RecognitionEvent{}, false)
	}
}

func (r *Recognizer) emit(ev ports.RecognitionEvent) {
	select {
	case r.events <- ev:
	default:
	}
}

func (r *Recognizer) clearActive(w *listenWindow) {
	r.mu.Lock()
	if r.active == w {
		r.active = nil
	}
	r.mu.Unlock()
}

type listenWindow struct {
	owner *Recognizer
	conn  *websocket.Conn
	mic   ports.AudioSession

	watchdog *time.Timer

	mu     sync.Mutex
	finals []string

	finishOnce sync.Once
}

// finish tears the window down exactly once. When emit is false the
// window was stopped externally and whatever was heard is discarded.
func (w *listenWindow) finish(ev ports.RecognitionEvent, emit bool) {
	w.finishOnce.Do(func() {
		if w.watchdog != nil {
			w.watchdog.Stop()
		}
		_ = w.mic.Stop()
		_ = w.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		_ = w.conn.Close()
		w.owner.clearActive(w)
		if emit {
			w.owner.emit(ev)
		}
	})
}

func (w *listenWindow) writeLoop(chunkSize int) {
	buf := make([]byte, chunkSize)
	for {
		n, err := w.mic.Read(buf)
		if n > 0 {
			if sendErr := w.conn.WriteMessage(websocket.BinaryMessage, buf[:n]); sendErr != nil {
				// The read loop reports the stream error; just stop feeding.
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (w *listenWindow) readLoop() {
	for {
		_, payload, err := w.conn.ReadMessage()
		if err != nil {
			if isCloseError(err) {
				w.finish(ports.RecognitionEvent{}, false)
			} else {
				w.finish(ports.RecognitionEvent{Err: fmt.Errorf("recognition stream failed: %w", err)}, true)
			}
			return
		}

		var response listenResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "recognition service returned an unknown error"
			}
			w.finish(ports.RecognitionEvent{Err: errors.New(message)}, true)
			return
		}

		transcript := extractTranscript(response)
		if response.IsFinal && transcript != "" {
			w.mu.Lock()
			w.finals = append(w.finals, transcript)
			w.mu.Unlock()
		}

		if response.SpeechFinal {
			w.mu.Lock()
			utterance := strings.TrimSpace(strings.Join(w.finals, " "))
			w.mu.Unlock()
			if utterance == "" {
				w.finish(ports.RecognitionEvent{Err: ports.ErrNoSpeech}, true)
			} else {
				w.finish(ports.RecognitionEvent{Text: utterance}, true)
			}
			return
		}
	}
}

func isCloseError(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) || errors.Is(err, net.ErrClosed)
}

type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func extractTranscript(response listenResponse) string {
	if len(response.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(response.Channel.Alternatives[0].Transcript)
}

func buildListenURL(cfg Config, audioCfg ports.AudioConfig) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid recognition API base URL: %w", err)
	}

	sampleRate := audioCfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := audioCfg.Channels
	if channels <= 0 {
		channels = 1
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	query.Set("channels", fmt.Sprintf("%d", channels))
	query.Set("interim_results", "true")
	query.Set("endpointing", fmt.Sprintf("%d", cfg.EndpointingMS))
	query.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
