// Package coqui is the offline tier of the synthesis chain. It talks to a
// Coqui TTS server running next to Friday and returns the WAV it produces.
//
// Two server dialects are understood:
//
//   - [APIModeStandard] (default): the stock tts-server. Text goes in the
//     query string of GET /api/tts; GET /details describes the loaded model.
//   - [APIModeXTTS]: the XTTS v2 API server. Text goes in a JSON body to
//     POST /tts_to_audio/; GET /studio_speakers lists the cloned voices.
//
//	p, _ := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	wav, err := p.Synthesize(ctx, "Good morning.", voice)
package coqui

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/provider/tts"
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
)

// APIMode selects the server dialect.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the language code sent with each request. Default "en".
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithTimeout bounds each HTTP request. Default 30s.
func WithTimeout(d time.Duration) Option { return func(p *Provider) { p.httpClient.Timeout = d } }

// WithAPIMode selects the server dialect.
func WithAPIMode(mode APIMode) Option { return func(p *Provider) { p.apiMode = mode } }

// WithOutputSampleRate resamples mono replies to rate. Zero keeps the
// model's own rate.
func WithOutputSampleRate(rate int) Option { return func(p *Provider) { p.outputRate = rate } }

// Provider is safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int
}

// New returns a Provider for the server at serverURL, for example
// "http://localhost:5002".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: server URL is required")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiMode:    APIModeStandard,
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode != APIModeStandard && p.apiMode != APIModeXTTS {
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// ttsRequest is the XTTS synthesis body.
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// detailsResponse describes the model loaded by a standard server. Speakers
// is empty for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("coqui: nothing to say")
	}
	req, err := p.synthesisRequest(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav")

	wav, err := p.do(req)
	if err != nil {
		return nil, err
	}
	format, pcm, err := audio.ParseWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	if len(pcm) == 0 {
		return nil, tts.ErrEmptyAudio
	}
	if p.outputRate <= 0 || format.SampleRate == p.outputRate || format.Channels != 1 {
		return wav, nil
	}
	pcm = audio.ResampleMono16(pcm, format.SampleRate, p.outputRate)
	return audio.EncodeWAV(pcm, audio.Format{SampleRate: p.outputRate, Channels: 1}), nil
}

func (p *Provider) synthesisRequest(ctx context.Context, text string, voice tts.VoiceProfile) (*http.Request, error) {
	if p.apiMode == APIModeStandard {
		q := url.Values{"text": {text}}
		if voice.ID != "" {
			q.Set("speaker_id", voice.ID)
		}
		if p.language != "" {
			q.Set("language_id", p.language)
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+q.Encode(), nil)
	}

	// XTTS clones a reference speaker and cannot fall back to a default.
	if voice.ID == "" {
		return nil, errors.New("coqui: xtts mode needs a speaker in voice.ID")
	}
	body, err := json.Marshal(ttsRequest{Text: text, SpeakerWav: voice.ID, Language: p.language})
	if err != nil {
		return nil, fmt.Errorf("coqui: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do sends req and returns the body of a 200 reply.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read %s: %w", req.URL.Path, err)
	}
	return data, nil
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	data, err := p.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", endpoint, err)
	}
	return nil
}

// ListVoices returns the speakers the server offers, sorted by ID. A
// single-speaker standard model yields one profile named after the model.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if p.apiMode == APIModeXTTS {
		var speakers map[string]json.RawMessage
		if err := p.getJSON(ctx, studioSpeakersEndpoint, &speakers); err != nil {
			return nil, err
		}
		var out []tts.VoiceProfile
		for _, name := range slices.Sorted(maps.Keys(speakers)) {
			out = append(out, profile(name, "studio", ""))
		}
		return out, nil
	}

	var d detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &d); err != nil {
		return nil, err
	}
	if len(d.Speakers) == 0 {
		name := cmp.Or(d.ModelName, "default")
		return []tts.VoiceProfile{profile(name, "single-speaker", name)}, nil
	}
	out := make([]tts.VoiceProfile, 0, len(d.Speakers))
	for _, spk := range slices.Sorted(slices.Values(d.Speakers)) {
		out = append(out, profile(spk, "speaker", d.ModelName))
	}
	return out, nil
}

func profile(id, kind, model string) tts.VoiceProfile {
	meta := map[string]string{"type": kind}
	if model != "" {
		meta["model_name"] = model
	}
	return tts.VoiceProfile{ID: id, Name: id, Provider: "coqui", Metadata: meta}
}

