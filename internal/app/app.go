// Package app wires all Friday subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run starts the pipeline and the observability server and blocks
// until the context ends, and Shutdown tears everything down in order.
//
// For testing, inject the capture device and PCM output via functional
// options (WithDevice, WithPCMPlayer, ...). When an option is not provided,
// New uses the PortAudio microphone and speaker.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/friday/internal/config"
	"github.com/MrWong99/friday/internal/health"
	"github.com/MrWong99/friday/internal/observe"
	"github.com/MrWong99/friday/internal/orchestrator"
	"github.com/MrWong99/friday/internal/playback"
	"github.com/MrWong99/friday/internal/recorder"
	"github.com/MrWong99/friday/internal/responder"
	"github.com/MrWong99/friday/internal/synth"
	"github.com/MrWong99/friday/internal/wake"
	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/audio/capture"
	"github.com/MrWong99/friday/pkg/audio/portaudio"
	"github.com/MrWong99/friday/pkg/provider/llm"
	"github.com/MrWong99/friday/pkg/provider/stt"
	"github.com/MrWong99/friday/pkg/provider/tts"
)

var (
	// errNoLLM is returned by the responder stand-in when no LLM is configured.
	errNoLLM = errors.New("app: no LLM provider configured")

	// errNoSTT is returned by the transcriber stand-in when no STT is configured.
	errNoSTT = errors.New("app: no STT provider configured")
)

const serverShutdownTimeout = 5 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	// STT is usually a resilience.STTFallback over the configured chain.
	STT stt.Provider

	// LLM is usually a resilience.LLMFallback over the configured chain.
	LLM llm.Provider

	// TTS maps each synthesis mode to its provider. Missing modes are skipped.
	TTS map[synth.Mode]tts.Provider

	// Speaker is the operating-system speech engine for [synth.SystemNative].
	Speaker tts.Speaker
}

// App owns all subsystem lifetimes and orchestrates the Friday voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	device     capture.Device
	pcm        playback.PCMPlayer
	execOpts   []playback.ExecOption
	listenAddr string

	gate      *capture.Gate
	phrases   *wake.PhraseSet
	listener  *wake.Listener
	recorder  *recorder.Recorder
	chain     *synth.Chain
	player    *playback.Engine
	responder orchestrator.Responder
	orch      *orchestrator.Orchestrator
	health    *health.Handler

	mu sync.Mutex
	ln net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDevice injects the capture device instead of the PortAudio microphone.
func WithDevice(d capture.Device) Option {
	return func(a *App) { a.device = d }
}

// WithPCMPlayer injects the PCM output used by the mixer playback backend.
func WithPCMPlayer(p playback.PCMPlayer) Option {
	return func(a *App) { a.pcm = p }
}

// WithPlaybackOptions passes extra options to the command-line playback
// backends.
func WithPlaybackOptions(opts ...playback.ExecOption) Option {
	return func(a *App) { a.execOpts = append(a.execOpts, opts...) }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithListenAddr overrides server.listen_addr.
func WithListenAddr(addr string) Option {
	return func(a *App) { a.listenAddr = addr }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:        cfg,
		providers:  providers,
		listenAddr: cfg.Server.ListenAddr,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Audio devices ─────────────────────────────────────────────────
	a.initAudio()

	// ── 2. Wake phrases + listener ───────────────────────────────────────
	if err := a.initWake(); err != nil {
		return nil, fmt.Errorf("app: init wake: %w", err)
	}

	// ── 3. Recorder ──────────────────────────────────────────────────────
	a.recorder = recorder.New(recorderConfig(cfg))

	// ── 4. Synthesis chain + playback ────────────────────────────────────
	if err := a.initOutput(); err != nil {
		return nil, fmt.Errorf("app: init output: %w", err)
	}

	// ── 5. Responder ─────────────────────────────────────────────────────
	a.initResponder()

	// ── 6. Orchestrator + health ─────────────────────────────────────────
	a.initOrchestrator()

	slog.InfoContext(ctx, "app initialised",
		"wake", a.listener != nil,
		"synthesis_mode", a.chain.Mode().String(),
		"playback", a.player.Backends(),
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initAudio sets up the exclusive capture gate and the PCM output.
func (a *App) initAudio() {
	var host *portaudio.Host
	if a.device == nil || a.pcm == nil {
		host = &portaudio.Host{}
	}
	if a.device == nil {
		a.device = portaudio.NewMicrophone(host, a.cfg.Audio.Device)
	}
	if a.pcm == nil {
		a.pcm = portaudio.NewSpeaker(host)
	}
	a.gate = capture.NewGate(a.device)
}

// initWake builds the phrase set and, when an STT provider exists, the
// background listener.
func (a *App) initWake() error {
	phrases, err := wake.NewPhraseSet(a.cfg.Wake.Phrases, a.cfg.Wake.Patterns,
		wake.WithPhonetic(a.cfg.Wake.PhoneticEnabled()))
	if err != nil {
		if a.cfg.Wake.IsEnabled() {
			return err
		}
		slog.Warn("wake phrases unusable; wake detection disabled", "err", err)
		return nil
	}
	a.phrases = phrases

	if a.providers.STT == nil {
		slog.Warn("no STT provider; wake detection disabled")
		return nil
	}
	a.listener = wake.New(a.gate, a.providers.STT, phrases, wakeConfig(a.cfg),
		wake.WithErrorHandler(a.onWakeError),
		wake.WithMetrics(a.metrics),
	)
	return nil
}

// onWakeError forwards listener errors to the orchestrator once it exists.
func (a *App) onWakeError(err error) {
	if a.orch != nil {
		a.orch.HandleWakeError(err)
	}
}

// initOutput builds the synthesis chain and the playback engine.
func (a *App) initOutput() error {
	chainOpts := []synth.Option{
		synth.WithMinAudioBytes(a.cfg.Synthesis.MinAudioBytes),
		synth.WithMetrics(a.metrics),
	}
	if a.providers.Speaker != nil {
		chainOpts = append(chainOpts, synth.WithSpeaker(a.providers.Speaker))
	}
	a.chain = synth.New(a.providers.TTS, voiceProfile(a.cfg.Synthesis.Voice), chainOpts...)

	execOpts := append([]playback.ExecOption{playback.WithTimeout(a.cfg.Playback.Timeout)}, a.execOpts...)
	backends, err := playback.Named(a.cfg.Playback.Backends, a.pcm, execOpts...)
	if err != nil {
		return err
	}
	a.player = playback.New(backends,
		playback.WithCleanupDelay(a.cfg.Playback.CleanupDelay),
		playback.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.player.Close)
	return nil
}

// initResponder wraps the LLM in the persona responder.
func (a *App) initResponder() {
	if a.providers.LLM == nil {
		a.responder = unavailableResponder{}
		return
	}
	c := a.cfg.Conversation
	opts := []responder.Option{
		responder.WithName(c.Name),
		responder.WithTemperature(c.Temperature),
		responder.WithMaxTokens(c.MaxTokens),
	}
	if c.Persona != "" {
		opts = append(opts, responder.WithPersona(c.Persona))
	}
	if c.ContextTurns != nil {
		opts = append(opts, responder.WithContextTurns(*c.ContextTurns))
	}
	a.responder = responder.New(a.providers.LLM, opts...)
}

// initOrchestrator assembles the pipeline and its health endpoints.
func (a *App) initOrchestrator() {
	var transcriber stt.Provider = unavailableTranscriber{}
	if a.providers.STT != nil {
		transcriber = a.providers.STT
	}

	deps := orchestrator.Deps{
		Device:      a.gate,
		Phrases:     a.phrases,
		Recorder:    a.recorder,
		Transcriber: transcriber,
		Responder:   a.responder,
		Synth:       a.chain,
		Player:      a.player,
	}
	// A typed nil would defeat the orchestrator's nil check.
	if a.listener != nil {
		deps.Listener = a.listener
	}

	c := a.cfg.Conversation
	a.orch = orchestrator.New(deps, orchestrator.Config{
		Format:            audioFormat(a.cfg),
		FrameSize:         a.cfg.Audio.FrameSize,
		HistoryLimit:      c.HistoryLimit,
		MinUtteranceBytes: c.MinUtteranceBytes,
		CycleTimeout:      c.CycleTimeout,
		WakeEnabled:       a.cfg.Wake.IsEnabled() && a.listener != nil,
		JoinTimeout:       a.cfg.Wake.JoinTimeout,
	}, orchestrator.WithMetrics(a.metrics))

	a.health = health.New([]health.Checker{
		{Name: "pipeline", Check: func(context.Context) error {
			if !a.orch.Status().Started {
				return errors.New("pipeline not started")
			}
			return nil
		}},
		{Name: "synthesis", Check: func(context.Context) error {
			if a.chain.Exhausted() {
				return synth.ErrAllProvidersExhausted
			}
			return nil
		}},
	}, health.WithStatus(func() any { return a.orch.Status() }))
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Orchestrator returns the voice pipeline.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Synth returns the synthesis chain.
func (a *App) Synth() *synth.Chain { return a.chain }

// Handler returns the HTTP handler serving health, status and metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	return observe.Middleware(a.metrics)(mux)
}

// Addr returns the address the HTTP server is bound to, or "" when it is
// not running.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return ""
	}
	return a.ln.Addr().String()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run probes the starting voice, calibrates the wake listener, starts the
// pipeline and serves HTTP until ctx is cancelled. It returns nil on a clean
// cancellation.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Synthesis.ProbeEnabled() {
		if err := a.chain.Probe(ctx); err != nil {
			slog.Warn("synthesis probe failed; replies may be text only", "err", err)
		}
	}

	if a.listener != nil && a.cfg.Wake.IsEnabled() {
		if err := a.listener.Initialize(ctx); err != nil {
			slog.Warn("wake calibration failed; using sensitivity ceiling", "err", err)
		}
	}

	if err := a.orch.Start(ctx); err != nil {
		return fmt.Errorf("app: start pipeline: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.listenAddr != "" {
		g.Go(func() error { return a.serve(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	slog.Info("app running", "state", a.orch.State().String(), "http", a.listenAddr)
	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}

// serve runs the observability HTTP server until ctx ends.
func (a *App) serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.listenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.listenAddr, err)
	}
	a.mu.Lock()
	a.ln = ln
	a.mu.Unlock()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}

// ─── Live reload ─────────────────────────────────────────────────────────────

// ApplyConfigDiff applies the hot-reloadable part of a config change. Log
// level changes are the caller's responsibility.
func (a *App) ApplyConfigDiff(d config.ConfigDiff) {
	if d.PhrasesChanged {
		if err := a.orch.SetWakePhrases(d.Phrases, d.Patterns); err != nil {
			slog.Warn("config reload: wake phrases not applied", "err", err)
		} else {
			slog.Info("config reload: wake phrases updated", "phrases", d.Phrases)
		}
	}
	if d.SensitivityChanged {
		if err := a.orch.SetSensitivity(d.Sensitivity); err != nil {
			slog.Warn("config reload: sensitivity not applied", "err", err)
		} else {
			slog.Info("config reload: sensitivity updated", "sensitivity", d.Sensitivity)
		}
	}
	if d.RefractoryChanged && a.listener != nil {
		a.listener.SetRefractory(d.Refractory)
		slog.Info("config reload: refractory updated", "refractory", d.Refractory)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the pipeline and tears down all subsystems in init order.
// It respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.orch.Shutdown(ctx); err != nil {
			slog.Warn("pipeline shutdown incomplete", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type unavailableResponder struct{}

func (unavailableResponder) Respond(context.Context, string, []orchestrator.Turn) (string, error) {
	return "", errNoLLM
}

type unavailableTranscriber struct{}

func (unavailableTranscriber) Transcribe(context.Context, *audio.Buffer) (string, error) {
	return "", errNoSTT
}

func audioFormat(cfg *config.Config) audio.Format {
	return audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels}
}

func recorderConfig(cfg *config.Config) recorder.Config {
	rc := recorder.Config{
		MaxDuration:     cfg.Recorder.MaxDuration,
		SilenceFrames:   cfg.Recorder.SilenceFrames,
		EnergyThreshold: cfg.Recorder.EnergyThreshold,
		ReadTimeout:     cfg.Audio.ReadTimeout,
	}
	if cfg.Recorder.MinFrames != nil {
		rc.MinFrames = *cfg.Recorder.MinFrames
	}
	return rc
}

func wakeConfig(cfg *config.Config) wake.Config {
	s, _ := wake.ParseSensitivity(cfg.Wake.Sensitivity)
	return wake.Config{
		Format:        audioFormat(cfg),
		FrameSize:     cfg.Audio.FrameSize,
		Sensitivity:   s,
		Calibration:   cfg.Wake.Calibration,
		PollTimeout:   cfg.Wake.PollTimeout,
		PauseDuration: cfg.Wake.PauseDuration,
		PhraseTimeout: cfg.Wake.PhraseTimeout,
		Refractory:    cfg.Wake.Refractory,
		ErrorBackoff:  cfg.Wake.ErrorBackoff,
	}
}

// voiceProfile converts a config.VoiceConfig to tts.VoiceProfile.
func voiceProfile(vc config.VoiceConfig) tts.VoiceProfile {
	return tts.VoiceProfile{
		ID:          vc.ID,
		Name:        vc.Name,
		PitchShift:  vc.PitchShift,
		SpeedFactor: vc.SpeedFactor,
	}
}
