package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gvargas9/smartterapist/internal/store"
)

const (
	defaultSTTURL = "https://api.openai.com/v1/audio/transcriptions"
	defaultTTSURL = "https://api.openai.com/v1/audio/speech"

	defaultSTTModel = "whisper-1"
	defaultTTSModel = "tts-1"
	defaultVoice    = "alloy"

	// maxAudioBytes bounds uploads so a runaway request cannot hold the
	// buffer open indefinitely.
	maxAudioBytes = 25 << 20
)

// SynthesisOptions tune text-to-speech output. Zero values fall back to
// the service defaults.
type SynthesisOptions struct {
	Voice string
	Speed float64
	Pitch float64
}

// Adapter bridges to external speech services over plain HTTP. It is
// called by the transport layer on voice turns; the conversation core
// never touches it, so a speech outage only degrades voice input and
// playback. Endpoints are configurable to allow self-hosted
// OpenAI-compatible speech services.
type Adapter struct {
	httpClient *http.Client
	sttURL     string
	ttsURL     string
	apiKey     string
}

// New builds a voice adapter. Empty URLs fall back to the hosted
// endpoints; an empty apiKey leaves the adapter unconfigured, and both
// operations fail fast.
func New(sttURL, ttsURL, apiKey string, timeout time.Duration) *Adapter {
	if sttURL == "" {
		sttURL = defaultSTTURL
	}
	if ttsURL == "" {
		ttsURL = defaultTTSURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Adapter{
		httpClient: &http.Client{Timeout: timeout},
		sttURL:     sttURL,
		ttsURL:     ttsURL,
		apiKey:     apiKey,
	}
}

// Enabled reports whether the adapter has credentials to call out.
func (a *Adapter) Enabled() bool {
	return a.apiKey != ""
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// SpeechToText uploads audio and returns the transcript. languageTag is
// an optional BCP 47 hint such as "en" or "tr".
func (a *Adapter) SpeechToText(ctx context.Context, audio io.Reader, filename, languageTag string) (string, error) {
	const op = "voice.SpeechToText"

	if !a.Enabled() {
		return "", store.E(op, store.KindInvalid, errors.New("voice service not configured"))
	}
	if filename == "" {
		filename = "audio.webm"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", store.E(op, store.KindInternal, err)
	}
	if _, err := io.Copy(part, io.LimitReader(audio, maxAudioBytes)); err != nil {
		return "", store.E(op, store.KindInvalid, fmt.Errorf("failed to read audio: %w", err))
	}
	if err := form.WriteField("model", defaultSTTModel); err != nil {
		return "", store.E(op, store.KindInternal, err)
	}
	if languageTag != "" {
		if err := form.WriteField("language", languageTag); err != nil {
			return "", store.E(op, store.KindInternal, err)
		}
	}
	if err := form.Close(); err != nil {
		return "", store.E(op, store.KindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.sttURL, &body)
	if err != nil {
		return "", store.E(op, store.KindInternal, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", store.E(op, classifyTransport(ctx, err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", store.E(op, classifyStatus(resp.StatusCode),
			fmt.Errorf("speech service returned status %d", resp.StatusCode))
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", store.E(op, store.KindInternal, fmt.Errorf("failed to decode transcript: %w", err))
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return "", store.E(op, store.KindInvalid, errors.New("empty transcript"))
	}
	return text, nil
}

type speechRequest struct {
	Model string  `json:"model"`
	Input string  `json:"input"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`
}

// TextToSpeech renders text into audio bytes. The hosted endpoint
// ignores Pitch; self-hosted services may honor it.
func (a *Adapter) TextToSpeech(ctx context.Context, text string, opts SynthesisOptions) ([]byte, error) {
	const op = "voice.TextToSpeech"

	if !a.Enabled() {
		return nil, store.E(op, store.KindInvalid, errors.New("voice service not configured"))
	}
	if strings.TrimSpace(text) == "" {
		return nil, store.E(op, store.KindInvalid, errors.New("empty text"))
	}
	if opts.Voice == "" {
		opts.Voice = defaultVoice
	}

	payload, err := json.Marshal(speechRequest{
		Model: defaultTTSModel,
		Input: text,
		Voice: opts.Voice,
		Speed: opts.Speed,
		Pitch: opts.Pitch,
	})
	if err != nil {
		return nil, store.E(op, store.KindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.ttsURL, bytes.NewBuffer(payload))
	if err != nil {
		return nil, store.E(op, store.KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, store.E(op, classifyTransport(ctx, err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, store.E(op, classifyStatus(resp.StatusCode),
			fmt.Errorf("speech service returned status %d", resp.StatusCode))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, store.E(op, classifyTransport(ctx, err), err)
	}
	return audio, nil
}

func classifyTransport(ctx context.Context, err error) store.Kind {
	switch {
	case ctx.Err() == context.Canceled:
		return store.KindCancelled
	case ctx.Err() == context.DeadlineExceeded, errors.Is(err, context.DeadlineExceeded):
		return store.KindTransient
	default:
		return store.KindTransient
	}
}

func classifyStatus(status int) store.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return store.KindPermissionDenied
	case status == http.StatusTooManyRequests || status >= 500:
		return store.KindTransient
	case status >= 400 && status < 500:
		return store.KindInvalid
	default:
		return store.KindInternal
	}
}
