// Package orchestrator drives the conversation cycle: wake phrase or manual
// trigger, endpointed recording, transcription, reply, synthesis and
// playback.
//
// The pipeline is a single state machine. Transitions are compare-and-swap
// operations, so concurrent triggers start at most one cycle. Presentation
// layers observe the pipeline through [Orchestrator.Events].
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/friday/internal/observe"
	"github.com/MrWong99/friday/internal/recorder"
	"github.com/MrWong99/friday/internal/synth"
	"github.com/MrWong99/friday/internal/wake"
	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/audio/capture"
	"github.com/MrWong99/friday/pkg/provider/stt"
)

var (
	// ErrWakeUnavailable is returned by wake operations when no listener or
	// phrase set is configured.
	ErrWakeUnavailable = errors.New("orchestrator: wake detection unavailable")

	// ErrBusy is returned when an operation needs the microphone while a
	// conversation cycle is running.
	ErrBusy = errors.New("orchestrator: pipeline busy")

	// ErrPlaybackFailed is returned by [Orchestrator.TestSpeakers] when no
	// playback backend rendered the tone.
	ErrPlaybackFailed = errors.New("orchestrator: playback failed")
)

// WakeListener is the background wake-phrase detector. [wake.Listener]
// implements it.
type WakeListener interface {
	Start(ctx context.Context, onTrigger func(wake.Trigger)) error
	Stop(timeout time.Duration) error
	Pause(ctx context.Context) error
	Resume()
	SetSensitivity(s wake.Sensitivity) error
	Sensitivity() wake.Sensitivity
	Threshold() float64
}

// Synthesizer turns reply text into a clip. [synth.Chain] implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
	Mode() synth.Mode
	Exhausted() bool
}

// Player renders a clip and reports whether any backend succeeded.
// [playback.Engine] implements it.
type Player interface {
	Play(ctx context.Context, clip audio.Clip) bool
}

// Responder produces the assistant's reply to text given the conversation
// so far.
type Responder interface {
	Respond(ctx context.Context, text string, history []Turn) (string, error)
}

// Deps are the collaborators of an [Orchestrator]. Listener and Phrases may
// be nil when wake detection is not configured.
type Deps struct {
	Device      capture.Device
	Listener    WakeListener
	Phrases     *wake.PhraseSet
	Recorder    *recorder.Recorder
	Transcriber stt.Provider
	Responder   Responder
	Synth       Synthesizer
	Player      Player
}

// Config tunes the orchestrator.
type Config struct {
	// Format and FrameSize are used to open the microphone for recording.
	Format    audio.Format
	FrameSize int

	// HistoryLimit is the number of turns kept. Default: 20.
	HistoryLimit int

	// MinUtteranceBytes is the smallest recording worth transcribing.
	// Default: 1000.
	MinUtteranceBytes int

	// CycleTimeout bounds one full cycle. Default: 2m.
	CycleTimeout time.Duration

	// WakeEnabled starts the wake listener on [Orchestrator.Start].
	WakeEnabled bool

	// JoinTimeout bounds the wait for listener goroutines on stop. Default: 2s.
	JoinTimeout time.Duration

	// EventBuffer is the capacity of the event queue. Default: 64.
	EventBuffer int

	// MicTestDuration is the capture length of [Orchestrator.TestMicrophone].
	// Default: 1s.
	MicTestDuration time.Duration
}

const (
	defaultHistoryLimit      = 20
	defaultMinUtteranceBytes = 1000
	defaultCycleTimeout      = 2 * time.Minute
	defaultJoinTimeout       = 2 * time.Second
	defaultEventBuffer       = 64
	defaultMicTestDuration   = time.Second

	recorderOwner = "recorder"

	toneFrequency = 440
	toneDuration  = 500 * time.Millisecond
)

var toneFormat = audio.Format{SampleRate: 22050, Channels: 1}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.MinUtteranceBytes <= 0 {
		c.MinUtteranceBytes = defaultMinUtteranceBytes
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = defaultCycleTimeout
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = defaultJoinTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	if c.MicTestDuration <= 0 {
		c.MicTestDuration = defaultMicTestDuration
	}
	return c
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator owns the pipeline state machine. All exported methods are safe
// for concurrent use.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	metrics *observe.Metrics
	history *History

	state   atomic.Int32
	started atomic.Bool

	// wakeMu serialises listener start, stop, pause and resume decisions.
	wakeMu sync.Mutex
	wakeOn bool

	ctxMu   sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	cycles  sync.WaitGroup

	// recMu pairs entering Recording with arming recStop, so a stop request
	// made at any point after the transition reaches the cycle.
	recMu   sync.Mutex
	recStop chan struct{}

	evMu     sync.RWMutex
	events   chan Event
	evClosed bool
}

// New returns an idle orchestrator. Call [Orchestrator.Start] before
// triggering cycles.
func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	cfg = cfg.withDefaults()
	o := &Orchestrator{
		deps:    deps,
		cfg:     cfg,
		history: NewHistory(cfg.HistoryLimit),
		events:  make(chan Event, cfg.EventBuffer),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	o.baseCtx, o.cancel = context.WithCancel(context.Background())
	return o
}

// Start enables the pipeline and, when configured, wake detection. Cycles
// run under ctx; cancelling it aborts them.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.ctxMu.Lock()
	if o.started.Load() {
		o.ctxMu.Unlock()
		return errors.New("orchestrator: already started")
	}
	o.cancel()
	o.baseCtx, o.cancel = context.WithCancel(ctx)
	o.started.Store(true)
	o.ctxMu.Unlock()

	if o.cfg.WakeEnabled {
		if err := o.EnableWake(ctx); err != nil {
			if errors.Is(err, ErrWakeUnavailable) {
				o.notify(SeverityWarning, "Wake phrase detection is not available; use manual recording.")
				return nil
			}
			return err
		}
	}
	slog.Info("orchestrator: started", "state", o.State().String(), "wake", o.WakeEnabled())
	return nil
}

// Shutdown stops the listener, aborts the running cycle and waits for it to
// finish or for ctx to end. The event channel is closed afterwards.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.StopRecording()
	o.ctxMu.Lock()
	o.cancel()
	o.ctxMu.Unlock()

	var errs []error
	o.wakeMu.Lock()
	if o.wakeOn && o.deps.Listener != nil {
		o.wakeOn = false
		if err := o.deps.Listener.Stop(o.cfg.JoinTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	o.wakeMu.Unlock()

	done := make(chan struct{})
	go func() {
		o.cycles.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("orchestrator: waiting for cycle: %w", ctx.Err()))
	}

	o.evMu.Lock()
	if !o.evClosed {
		o.evClosed = true
		close(o.events)
	}
	o.evMu.Unlock()

	slog.Info("orchestrator: stopped")
	return errors.Join(errs...)
}

// Events returns the event queue. It has a single consumer; events are
// dropped when the consumer falls behind by more than the buffer size.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// State returns the current pipeline state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// WakeEnabled reports whether wake detection is on.
func (o *Orchestrator) WakeEnabled() bool {
	o.wakeMu.Lock()
	defer o.wakeMu.Unlock()
	return o.wakeOn
}

// EnableWake starts the wake listener. When a cycle is running the listener
// starts paused and resumes when the cycle ends.
func (o *Orchestrator) EnableWake(ctx context.Context) error {
	if o.deps.Listener == nil {
		return ErrWakeUnavailable
	}
	o.wakeMu.Lock()
	defer o.wakeMu.Unlock()
	if o.wakeOn {
		return nil
	}
	if err := o.deps.Listener.Start(o.base(), o.onWake); err != nil && !errors.Is(err, wake.ErrAlreadyRunning) {
		return fmt.Errorf("orchestrator: start wake listener: %w", err)
	}
	o.wakeOn = true
	if !o.transition(Idle, Listening) && o.State().Busy() {
		if err := o.deps.Listener.Pause(ctx); err != nil {
			return fmt.Errorf("orchestrator: pause wake listener: %w", err)
		}
	}
	return nil
}

// DisableWake stops the wake listener. A running cycle finishes and settles
// in Idle.
func (o *Orchestrator) DisableWake() error {
	o.wakeMu.Lock()
	defer o.wakeMu.Unlock()
	if !o.wakeOn {
		return nil
	}
	o.wakeOn = false
	err := o.deps.Listener.Stop(o.cfg.JoinTimeout)
	// A cycle may have paused it; the next Start must poll.
	o.deps.Listener.Resume()
	o.transition(Listening, Idle)
	if err != nil {
		return fmt.Errorf("orchestrator: stop wake listener: %w", err)
	}
	return nil
}

// HandleWakeError receives listener failures and surfaces them to the user.
// A lost microphone turns wake detection off.
func (o *Orchestrator) HandleWakeError(err error) {
	if errors.Is(err, capture.ErrDeviceUnavailable) {
		o.notify(SeverityError, "Microphone unavailable; wake phrase detection disabled.")
		go func() { _ = o.DisableWake() }()
		return
	}
	o.notify(SeverityWarning, "Wake phrase detection error: "+err.Error())
}

func (o *Orchestrator) onWake(t wake.Trigger) {
	slog.Info("orchestrator: wake phrase", "phrase", t.Match.Phrase, "heard", t.Match.Heard, "tier", t.Match.Tier)
	o.Trigger()
}

// Trigger starts a recording cycle if the pipeline is listening for a wake
// phrase. It reports whether a cycle was started.
func (o *Orchestrator) Trigger() bool {
	if !o.started.Load() {
		return false
	}
	return o.startRecording(Listening)
}

// RecordNow starts a recording cycle from Idle or Listening. It reports
// whether a cycle was started.
func (o *Orchestrator) RecordNow() bool {
	if !o.started.Load() {
		return false
	}
	return o.startRecording(Listening, Idle)
}

// startRecording enters Recording from the first matching state and
// launches the cycle with a fresh stop channel.
func (o *Orchestrator) startRecording(from ...State) bool {
	o.recMu.Lock()
	defer o.recMu.Unlock()
	for _, s := range from {
		if o.transition(s, Recording) {
			o.recStop = make(chan struct{})
			o.launch("", o.recStop)
			return true
		}
	}
	return false
}

// SubmitText runs a cycle for typed input, skipping recording and
// transcription. It reports whether a cycle was started.
func (o *Orchestrator) SubmitText(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || !o.started.Load() {
		return false
	}
	if !o.transition(Listening, AwaitingReply) && !o.transition(Idle, AwaitingReply) {
		return false
	}
	o.launch(text, nil)
	return true
}

// StopRecording ends the current recording early. The captured audio is
// still transcribed. A request made after the cycle entered Recording but
// before the microphone opened ends the recording as soon as it starts.
func (o *Orchestrator) StopRecording() {
	o.recMu.Lock()
	defer o.recMu.Unlock()
	if o.recStop != nil {
		close(o.recStop)
		o.recStop = nil
	}
}

// History returns the conversation turns, oldest first.
func (o *Orchestrator) History() []Turn {
	return o.history.Turns()
}

// ClearHistory forgets the conversation.
func (o *Orchestrator) ClearHistory() {
	o.history.Clear()
	o.notify(SeverityInfo, "Conversation history cleared.")
}

// Summary describes the conversation so far.
func (o *Orchestrator) Summary() string {
	return o.history.Summary()
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Started        bool     `json:"started"`
	State          State    `json:"state"`
	WakeEnabled    bool     `json:"wake_enabled"`
	Sensitivity    string   `json:"sensitivity,omitempty"`
	Threshold      float64  `json:"threshold,omitempty"`
	Phrases        []string `json:"phrases,omitempty"`
	SynthMode      string   `json:"synthesis_mode,omitempty"`
	SynthExhausted bool     `json:"synthesis_exhausted"`
	HistoryLen     int      `json:"history_len"`
}

// Status returns the current pipeline status.
func (o *Orchestrator) Status() Status {
	s := Status{
		Started:     o.started.Load(),
		State:       o.State(),
		WakeEnabled: o.WakeEnabled(),
		HistoryLen:  o.history.Len(),
	}
	if l := o.deps.Listener; l != nil {
		s.Sensitivity = string(l.Sensitivity())
		s.Threshold = l.Threshold()
	}
	if o.deps.Phrases != nil {
		s.Phrases = o.deps.Phrases.Phrases()
	}
	if o.deps.Synth != nil {
		s.SynthMode = o.deps.Synth.Mode().String()
		s.SynthExhausted = o.deps.Synth.Exhausted()
	}
	return s
}

// SetSensitivity changes the wake listener's sensitivity level by name.
func (o *Orchestrator) SetSensitivity(level string) error {
	if o.deps.Listener == nil {
		return ErrWakeUnavailable
	}
	s, err := wake.ParseSensitivity(level)
	if err != nil {
		return err
	}
	return o.deps.Listener.SetSensitivity(s)
}

// SetWakePhrases replaces the wake phrases and patterns atomically.
func (o *Orchestrator) SetWakePhrases(phrases, patterns []string) error {
	if o.deps.Phrases == nil {
		return ErrWakeUnavailable
	}
	return o.deps.Phrases.Replace(phrases, patterns)
}

// MicReport is the result of [Orchestrator.TestMicrophone].
type MicReport struct {
	Frames   int           `json:"frames"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Peak     int           `json:"peak"`
	RMS      float64       `json:"rms"`

	// OK is set when enough audio arrived to be worth transcribing.
	OK bool `json:"ok"`
}

// TestMicrophone captures a short sample and reports its level. It fails
// with [ErrBusy] while a cycle is running.
func (o *Orchestrator) TestMicrophone(ctx context.Context) (MicReport, error) {
	if !o.transition(Listening, Recording) && !o.transition(Idle, Recording) {
		return MicReport{}, ErrBusy
	}
	defer o.settle()

	if err := o.pauseWake(ctx); err != nil {
		return MicReport{}, err
	}
	stream, err := o.openMic(ctx)
	if err != nil {
		return MicReport{}, err
	}
	defer stream.Close()

	var (
		rep     MicReport
		sumSq   float64
		samples int
	)
	deadline := time.Now().Add(o.cfg.MicTestDuration + time.Second)
	for rep.Duration < o.cfg.MicTestDuration && time.Now().Before(deadline) {
		f, err := stream.ReadFrame(ctx, time.Second)
		if errors.Is(err, capture.ErrTimeout) {
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("orchestrator: microphone test: %w", err)
		}
		rep.Frames++
		rep.Bytes += len(f.Data)
		rep.Duration += f.Duration()
		rep.Peak = max(rep.Peak, f.Peak())
		rms := f.RMS()
		n := len(f.Data) / 2
		sumSq += rms * rms * float64(n)
		samples += n
	}
	if samples > 0 {
		rep.RMS = math.Sqrt(sumSq / float64(samples))
	}
	rep.OK = rep.Bytes > o.cfg.MinUtteranceBytes
	slog.Info("orchestrator: microphone test", "frames", rep.Frames, "bytes", rep.Bytes, "peak", rep.Peak, "rms", rep.RMS)
	return rep, nil
}

// TestSpeakers plays a short 440 Hz tone through the player.
func (o *Orchestrator) TestSpeakers(ctx context.Context) error {
	if o.deps.Player == nil {
		return ErrPlaybackFailed
	}
	pcm := audio.Tone(toneFormat, toneFrequency, toneDuration, 1)
	if !o.deps.Player.Play(ctx, audio.NewClip(audio.EncodeWAV(pcm, toneFormat), audio.FormatWAV)) {
		return ErrPlaybackFailed
	}
	return nil
}

// transition moves the pipeline from one state to another if the pipeline
// is in from and the edge is allowed.
func (o *Orchestrator) transition(from, to State) bool {
	if !CanTransition(from, to) || !o.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	o.metrics.RecordTransition(context.Background(), from.String(), to.String())
	slog.Debug("orchestrator: transition", "from", from.String(), "state", to.String())
	o.emit(Event{Kind: EventStateChanged, From: from, To: to})
	return true
}

// advance moves a running cycle to its next state. The cycle owns the
// busy states, so a failed swap means the edge itself is invalid.
func (o *Orchestrator) advance(to State) {
	from := o.State()
	if !o.transition(from, to) {
		slog.Error("orchestrator: invalid transition", "from", from.String(), "to", to.String())
	}
}

// settle ends a cycle in Listening, or in Idle when wake detection is off.
func (o *Orchestrator) settle() {
	o.wakeMu.Lock()
	defer o.wakeMu.Unlock()
	target := Idle
	if o.wakeOn {
		target = Listening
	}
	o.advance(target)
	if o.wakeOn {
		o.deps.Listener.Resume()
	}
}

func (o *Orchestrator) pauseWake(ctx context.Context) error {
	o.wakeMu.Lock()
	defer o.wakeMu.Unlock()
	if !o.wakeOn {
		return nil
	}
	if err := o.deps.Listener.Pause(ctx); err != nil {
		return fmt.Errorf("orchestrator: pause wake listener: %w", err)
	}
	return nil
}

// owned is implemented by devices that track who holds them, such as
// [capture.Gate].
type owned interface {
	OpenAs(ctx context.Context, owner string, format audio.Format, frameSize int) (capture.Stream, error)
}

func (o *Orchestrator) openMic(ctx context.Context) (capture.Stream, error) {
	if o.deps.Device == nil {
		return nil, capture.ErrDeviceUnavailable
	}
	if d, ok := o.deps.Device.(owned); ok {
		return d.OpenAs(ctx, recorderOwner, o.cfg.Format, o.cfg.FrameSize)
	}
	return o.deps.Device.Open(ctx, o.cfg.Format, o.cfg.FrameSize)
}

func (o *Orchestrator) launch(text string, stop <-chan struct{}) {
	base := o.base()
	o.cycles.Add(1)
	go func() {
		defer o.cycles.Done()
		o.cycle(base, text, stop)
	}()
}

// base returns the context cycles and the listener run under.
func (o *Orchestrator) base() context.Context {
	o.ctxMu.Lock()
	defer o.ctxMu.Unlock()
	return o.baseCtx
}

// cycle runs one conversation turn. An empty text starts with a recording
// that ends early once stop is closed.
func (o *Orchestrator) cycle(base context.Context, text string, stop <-chan struct{}) {
	ctx, cancel := context.WithTimeout(base, o.cfg.CycleTimeout)
	defer cancel()
	ctx = observe.WithCorrelationID(ctx, observe.NewCorrelationID())
	ctx, span := observe.StartSpan(ctx, "orchestrator.cycle",
		trace.WithAttributes(attribute.Bool("typed", text != "")))
	defer span.End()

	o.metrics.ActiveCycles.Add(ctx, 1)
	defer o.metrics.ActiveCycles.Add(context.Background(), -1)
	defer o.settle()

	log := observe.Logger(ctx)
	if err := o.pauseWake(ctx); err != nil {
		log.Warn("orchestrator: cycle aborted", "err", err)
		return
	}

	if text == "" {
		var ok bool
		if text, ok = o.listen(ctx, log, stop); !ok {
			return
		}
		o.advance(AwaitingReply)
	}

	prior := o.History()
	o.emit(Event{Kind: EventTurnAdded, Turn: o.history.Add(RoleUser, text)})

	start := time.Now()
	reply, err := o.deps.Responder.Respond(ctx, text, prior)
	o.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		log.Error("orchestrator: responder failed", "err", err)
		if ctx.Err() == nil {
			o.notify(SeverityError, "I could not come up with a reply: "+err.Error())
		}
		return
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		log.Warn("orchestrator: empty reply")
		return
	}
	o.emit(Event{Kind: EventTurnAdded, Turn: o.history.Add(RoleAssistant, reply)})

	o.advance(Synthesizing)
	clip, err := o.deps.Synth.Synthesize(ctx, reply)
	switch {
	case errors.Is(err, synth.ErrEmptyText):
		return
	case errors.Is(err, synth.ErrAllProvidersExhausted):
		log.Error("orchestrator: synthesis failed", "err", err)
		o.notify(SeverityWarning, "Speech output unavailable; reply shown as text only.")
		return
	case err != nil:
		log.Warn("orchestrator: synthesis aborted", "err", err)
		return
	}

	o.advance(Speaking)
	if !o.deps.Player.Play(ctx, clip) {
		log.Warn("orchestrator: playback failed", "bytes", clip.Len())
	}
}

// listen records and transcribes one utterance. It reports false when the
// cycle should end without a reply.
func (o *Orchestrator) listen(ctx context.Context, log *slog.Logger, stop <-chan struct{}) (string, bool) {
	stream, err := o.openMic(ctx)
	if err != nil {
		log.Error("orchestrator: open microphone", "err", err)
		switch {
		case errors.Is(err, capture.ErrDeviceUnavailable):
			if !o.WakeEnabled() {
				o.notify(SeverityError, "Microphone unavailable; recording is not possible.")
				break
			}
			o.notify(SeverityError, "Microphone unavailable; wake phrase detection disabled.")
			if err := o.DisableWake(); err != nil {
				log.Warn("orchestrator: disable wake", "err", err)
			}
		case ctx.Err() == nil:
			o.notify(SeverityWarning, "Microphone busy; try again.")
		}
		return "", false
	}
	res, err := o.deps.Recorder.RecordUntil(ctx, stream, stop)
	_ = stream.Close()
	if err != nil {
		if !errors.Is(err, recorder.ErrNoAudioCaptured) {
			log.Warn("orchestrator: recording failed", "err", err)
		}
		return "", false
	}
	o.metrics.RecordingDuration.Record(ctx, res.Buffer.Duration().Seconds(),
		metric.WithAttributes(attribute.String("reason", string(res.Reason))))
	if res.Buffer.Len() < o.cfg.MinUtteranceBytes {
		log.Debug("orchestrator: utterance too short", "bytes", res.Buffer.Len())
		return "", false
	}

	o.advance(Transcribing)
	start := time.Now()
	text, err := o.deps.Transcriber.Transcribe(ctx, res.Buffer)
	o.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	switch {
	case stt.IsNoSpeech(err):
		return "", false
	case err != nil:
		log.Error("orchestrator: transcription failed", "err", err)
		if ctx.Err() == nil {
			o.notify(SeverityError, "I could not understand that: "+err.Error())
		}
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	log.Info("orchestrator: heard", "text", text, "reason", res.Reason, "audio", res.Buffer.Duration())
	return text, true
}

func (o *Orchestrator) notify(sev Severity, msg string) {
	o.emit(Event{Kind: EventSystemMessage, Message: msg, Severity: sev})
}

func (o *Orchestrator) emit(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	o.evMu.RLock()
	defer o.evMu.RUnlock()
	if o.evClosed {
		return
	}
	select {
	case o.events <- e:
	default:
		slog.Warn("orchestrator: event queue full, dropping event", "kind", e.Kind.String())
	}
}
