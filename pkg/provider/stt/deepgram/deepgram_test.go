package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/provider/stt"
)

var mono16k = audio.Format{SampleRate: 16000, Channels: 1}

func assertEqual(t *testing.T, name, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", name, got, want)
	}
}

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.buildURL(mono16k)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_CustomModel(t *testing.T) {
	t.Parallel()

	p, _ := New("key", WithModel("base"), WithLanguage("de-DE"))
	rawURL, err := p.buildURL(audio.Format{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	q, _ := url.Parse(rawURL)

	assertEqual(t, "model", "base", q.Query().Get("model"))
	assertEqual(t, "language", "de-DE", q.Query().Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Query().Get("sample_rate"))
	assertEqual(t, "channels", "2", q.Query().Get("channels"))
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("New(\"\") = nil error, want error")
	}
}

func TestParseDeepgramResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		msg       string
		wantText  string
		wantFinal bool
		wantDone  bool
	}{
		{
			name:      "final result",
			msg:       `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" hey friday ","confidence":0.9}]}}`,
			wantText:  "hey friday",
			wantFinal: true,
		},
		{
			name:     "interim result",
			msg:      `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hey"}]}}`,
			wantText: "hey",
		},
		{name: "metadata", msg: `{"type":"Metadata"}`, wantDone: true},
		{name: "no alternatives", msg: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`, wantFinal: true},
		{name: "invalid json", msg: `{not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			text, final, done := parseDeepgramResponse([]byte(tt.msg))
			if text != tt.wantText || final != tt.wantFinal || done != tt.wantDone {
				t.Errorf("got (%q, %v, %v), want (%q, %v, %v)", text, final, done, tt.wantText, tt.wantFinal, tt.wantDone)
			}
		})
	}
}

// newListenServer fakes the Deepgram listen socket: it counts audio bytes until
// CloseStream arrives, then replies with the given messages and closes.
func newListenServer(t *testing.T, replies ...string) (*httptest.Server, *atomic.Int64, *atomic.Value) {
	t.Helper()
	var received atomic.Int64
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				received.Add(int64(len(msg)))
				continue
			}
			if strings.Contains(string(msg), "CloseStream") {
				break
			}
		}
		for _, r := range replies {
			if err := conn.Write(ctx, websocket.MessageText, []byte(r)); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return srv, &received, &auth
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTranscribe_CollectsFinalResults(t *testing.T) {
	t.Parallel()

	srv, received, auth := newListenServer(t,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"what"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"what time"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"is it"}]}}`,
		`{"type":"Metadata"}`,
	)
	p, _ := New("secret", WithEndpoint(wsURL(srv)))

	buf := audio.NewBuffer(mono16k)
	buf.Append(audio.Frame{Data: make([]byte, 20000), Format: mono16k})

	text, err := p.Transcribe(context.Background(), buf)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "what time is it" {
		t.Errorf("text = %q, want %q", text, "what time is it")
	}
	if got := received.Load(); got != 20000 {
		t.Errorf("server received %d bytes, want 20000", got)
	}
	if got, _ := auth.Load().(string); got != "Token secret" {
		t.Errorf("Authorization = %q, want %q", got, "Token secret")
	}
}

func TestTranscribe_NoResultsIsNoSpeech(t *testing.T) {
	t.Parallel()

	srv, _, _ := newListenServer(t, `{"type":"Metadata"}`)
	p, _ := New("secret", WithEndpoint(wsURL(srv)))

	buf := audio.NewBuffer(mono16k)
	buf.Append(audio.Frame{Data: make([]byte, 2048), Format: mono16k})

	if _, err := p.Transcribe(context.Background(), buf); !errors.Is(err, stt.ErrNoSpeech) {
		t.Errorf("error = %v, want ErrNoSpeech", err)
	}
}
