package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/friday/internal/app"
	"github.com/MrWong99/friday/internal/config"
	"github.com/MrWong99/friday/internal/orchestrator"
	"github.com/MrWong99/friday/internal/synth"
	"github.com/MrWong99/friday/pkg/audio"
	capturemock "github.com/MrWong99/friday/pkg/audio/capture/mock"
	"github.com/MrWong99/friday/pkg/provider/llm"
	llmmock "github.com/MrWong99/friday/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/friday/pkg/provider/stt/mock"
	"github.com/MrWong99/friday/pkg/provider/tts"
	ttsmock "github.com/MrWong99/friday/pkg/provider/tts/mock"
)

// fakePCM records every clip rendered by the mixer backend.
type fakePCM struct {
	mu    sync.Mutex
	plays [][]byte
}

func (f *fakePCM) Play(_ context.Context, pcm []byte, _ audio.Format) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, pcm)
	return nil
}

func (f *fakePCM) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plays)
}

// testConfig returns a defaulted config with wake detection and the startup
// probe off and only the in-process mixer backend.
func testConfig() *config.Config {
	off := false
	cfg := &config.Config{
		Wake:      config.WakeConfig{Enabled: &off},
		Synthesis: config.SynthesisConfig{Probe: &off},
		Playback:  config.PlaybackConfig{Backends: []string{"mixer"}},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func speechWAV() []byte {
	return audio.EncodeWAV(make([]byte, 4000), audio.Format{SampleRate: 22050, Channels: 1})
}

// testProviders returns mock providers for every slot.
func testProviders() *app.Providers {
	return &app.Providers{
		STT: &sttmock.Provider{Text: "what time is it"},
		LLM: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "It is noon."}},
		TTS: map[synth.Mode]tts.Provider{
			synth.PrimaryCloud: &ttsmock.Provider{Audio: speechWAV()},
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) (*app.App, *fakePCM) {
	t.Helper()
	pcm := &fakePCM{}
	opts = append([]app.Option{
		app.WithDevice(&capturemock.Device{}),
		app.WithPCMPlayer(pcm),
	}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	return a, pcm
}

// runApp starts Run in the background and returns a stop function that
// cancels it and shuts the app down.
func runApp(t *testing.T, a *app.App) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() returned unexpected error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Run() did not return within 5s after context cancellation")
		}
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := a.Shutdown(sctx); err != nil {
			t.Errorf("Shutdown() error: %v", err)
		}
	}
}

// awaitIdle waits for the orchestrator to return to idle after a cycle.
func awaitIdle(t *testing.T, events <-chan orchestrator.Event) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == orchestrator.EventStateChanged && ev.From.Busy() && !ev.To.Busy() {
				return
			}
		case <-timeout:
			t.Fatal("cycle did not settle within 5s")
		}
	}
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig(), testProviders())

	if a.Orchestrator() == nil {
		t.Fatal("Orchestrator() returned nil")
	}
	if got := a.Synth().Mode(); got != synth.PrimaryCloud {
		t.Errorf("synthesis mode = %s, want %s", got, synth.PrimaryCloud)
	}
	st := a.Orchestrator().Status()
	if st.Started {
		t.Error("pipeline should not be started before Run")
	}
	if len(st.Phrases) == 0 {
		t.Error("phrase set should be populated from config defaults")
	}
}

func TestNew_WithoutProviders(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig(), nil)

	st := a.Orchestrator().Status()
	if st.WakeEnabled {
		t.Error("wake must stay off without an STT provider")
	}
	if st.Sensitivity != "" {
		t.Errorf("sensitivity = %q, want empty without a listener", st.Sensitivity)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Playback.Backends = []string{"speaker"}

	_, err := app.New(context.Background(), cfg, testProviders(),
		app.WithDevice(&capturemock.Device{}), app.WithPCMPlayer(&fakePCM{}))
	if err == nil {
		t.Fatal("expected error for unknown playback backend")
	}
}

func TestApp_TypedTurn(t *testing.T) {
	t.Parallel()
	providers := testProviders()
	a, pcm := newTestApp(t, testConfig(), providers)
	stop := runApp(t, a)
	defer stop()

	orch := a.Orchestrator()
	// Wait for Start so SubmitText sees the pipeline.
	deadline := time.Now().Add(2 * time.Second)
	for !orch.Status().Started && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if !orch.SubmitText("what time is it") {
		t.Fatal("SubmitText rejected on an idle pipeline")
	}
	awaitIdle(t, orch.Events())

	hist := orch.History()
	if len(hist) != 2 || hist[1].Text != "It is noon." {
		t.Fatalf("history = %+v, want user turn and reply", hist)
	}
	if pcm.count() != 1 {
		t.Errorf("mixer plays = %d, want 1", pcm.count())
	}
	calls := providers.LLM.(*llmmock.Provider).Calls()
	if len(calls) != 1 || calls[0].Req.Messages[0].Content != "what time is it" {
		t.Errorf("llm calls = %+v", calls)
	}
}

func TestApp_ServesHealthAndStatus(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig(), testProviders(), app.WithListenAddr("127.0.0.1:0"))
	stop := runApp(t, a)
	defer stop()

	var addr string
	deadline := time.Now().Add(2 * time.Second)
	for addr == "" && time.Now().Before(deadline) {
		addr = a.Addr()
		time.Sleep(5 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("HTTP server did not start")
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get("http://" + addr + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}

	resp, err := http.Get("http://" + addr + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	var st struct {
		Started bool   `json:"started"`
		State   string `json:"state"`
		Mode    string `json:"synthesis_mode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode /status: %v", err)
	}
	if !st.Started || st.State != "idle" || st.Mode != synth.PrimaryCloud.String() {
		t.Errorf("status = %+v", st)
	}
}

func TestApp_ApplyConfigDiff(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig(), testProviders())

	old := testConfig()
	next := testConfig()
	next.Wake.Phrases = []string{"computer"}
	next.Wake.Patterns = nil
	next.Wake.Sensitivity = "low"
	next.Wake.Refractory = 3 * time.Second

	a.ApplyConfigDiff(config.Diff(old, next))

	st := a.Orchestrator().Status()
	if !slices.Equal(st.Phrases, []string{"computer"}) {
		t.Errorf("phrases = %v, want [computer]", st.Phrases)
	}
	if st.Sensitivity != "low" {
		t.Errorf("sensitivity = %q, want low", st.Sensitivity)
	}
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig(), testProviders())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}
