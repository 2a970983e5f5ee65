// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// WebSocket listen API. It implements the stt.Provider interface.
//
// Each Transcribe call opens one socket, streams the utterance as linear16
// PCM, asks Deepgram to flush with a CloseStream message and collects the
// final results until the server closes the connection.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkBytes is the size of each binary audio message (~250 ms at 16 kHz mono).
	chunkBytes = 8000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the listen endpoint. Used to point at a proxy or a
// test server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram listen API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, buf *audio.Buffer) (string, error) {
	if buf.Len() == 0 {
		return "", stt.ErrEmptyAudio
	}

	wsURL, err := p.buildURL(buf.Format)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	for off := 0; off < len(buf.Data); off += chunkBytes {
		end := min(off+chunkBytes, len(buf.Data))
		if err := conn.Write(ctx, websocket.MessageBinary, buf.Data[off:end]); err != nil {
			return "", fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return "", fmt.Errorf("deepgram: close stream: %w", err)
	}

	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Deepgram closes the socket right after its final results.
			if websocket.CloseStatus(err) != -1 || len(parts) > 0 {
				break
			}
			return "", fmt.Errorf("deepgram: read: %w", err)
		}
		text, final, done := parseDeepgramResponse(msg)
		if done {
			break
		}
		if final && text != "" {
			parts = append(parts, text)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return "", stt.ErrNoSpeech
	}
	return text, nil
}

// buildURL constructs the Deepgram endpoint URL for the given audio format.
func (p *Provider) buildURL(format audio.Format) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(format.SampleRate))
	q.Set("channels", strconv.Itoa(format.Channels))

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResponse extracts the transcript of a Results message.
// done is true for the Metadata message Deepgram sends after the last result.
func parseDeepgramResponse(data []byte) (text string, final, done bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false, false
	}
	switch resp.Type {
	case "Metadata":
		return "", false, true
	case "Results":
		if len(resp.Channel.Alternatives) == 0 {
			return "", resp.IsFinal, false
		}
		return strings.TrimSpace(resp.Channel.Alternatives[0].Transcript), resp.IsFinal, false
	default:
		return "", false, false
	}
}
