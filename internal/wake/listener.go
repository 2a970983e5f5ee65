// Package wake listens for a spoken wake phrase in the background.
//
// A [Listener] samples the microphone in short polls. Once a frame rises above
// the calibrated energy threshold it captures a short phrase, hands it to a
// recognition worker and goes back to polling. Workers transcribe the phrase
// and match it against a [PhraseSet]; a match fires the trigger callback at
// most once per refractory window.
//
// The listener only holds the microphone while polling. [Listener.Pause]
// returns once the device is released so a recorder can take it over.
package wake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/friday/internal/observe"
	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/audio/capture"
	"github.com/MrWong99/friday/pkg/provider/stt"
)

var (
	// ErrAlreadyRunning is returned by Start while the listener is active.
	ErrAlreadyRunning = errors.New("wake: listener already running")

	// ErrJoinTimeout is returned by Stop when goroutines outlived the timeout.
	ErrJoinTimeout = errors.New("wake: stop timed out waiting for workers")
)

// Sensitivity selects the ceiling of the calibrated energy threshold.
// Higher sensitivity means a lower ceiling, so quieter speech gets through.
type Sensitivity string

const (
	SensitivityHigh   Sensitivity = "high"
	SensitivityMedium Sensitivity = "medium"
	SensitivityLow    Sensitivity = "low"
)

// Ceiling returns the highest threshold the sensitivity allows.
func (s Sensitivity) Ceiling() float64 {
	switch s {
	case SensitivityHigh:
		return 200
	case SensitivityLow:
		return 500
	default:
		return 300
	}
}

// Valid reports whether s is one of the known levels.
func (s Sensitivity) Valid() bool {
	switch s {
	case SensitivityHigh, SensitivityMedium, SensitivityLow:
		return true
	}
	return false
}

// ParseSensitivity validates a sensitivity name.
func ParseSensitivity(name string) (Sensitivity, error) {
	s := Sensitivity(name)
	if !s.Valid() {
		return "", fmt.Errorf("wake: unknown sensitivity %q (want high, medium or low)", name)
	}
	return s, nil
}

const (
	minThreshold     = 50
	noiseMultiplier  = 1.5
	deviceOwner      = "wake"
	pausedPollPeriod = 100 * time.Millisecond
)

// Config holds the listener timing and audio parameters.
type Config struct {
	Format    audio.Format
	FrameSize int

	Sensitivity Sensitivity

	// Calibration is how much ambient audio Initialize samples. Default: 1s.
	Calibration time.Duration

	// PollTimeout bounds the wait for speech onset in one poll. Default: 0.5s.
	PollTimeout time.Duration

	// PauseDuration of quiet ends a phrase. Default: 0.8s.
	PauseDuration time.Duration

	// PhraseTimeout caps a captured phrase. Default: 3s.
	PhraseTimeout time.Duration

	// Refractory suppresses repeated triggers. Default: 1s.
	Refractory time.Duration

	// ErrorBackoff pauses polling after a recognition error. Default: 0.5s.
	ErrorBackoff time.Duration
}

// DefaultConfig returns the stock listener parameters.
func DefaultConfig() Config {
	return Config{
		Format:        audio.Format{SampleRate: 16000, Channels: 1},
		FrameSize:     1024,
		Sensitivity:   SensitivityMedium,
		Calibration:   time.Second,
		PollTimeout:   500 * time.Millisecond,
		PauseDuration: 800 * time.Millisecond,
		PhraseTimeout: 3 * time.Second,
		Refractory:    time.Second,
		ErrorBackoff:  500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Format.Validate() != nil {
		c.Format = d.Format
	}
	if c.FrameSize <= 0 {
		c.FrameSize = d.FrameSize
	}
	if !c.Sensitivity.Valid() {
		c.Sensitivity = d.Sensitivity
	}
	if c.Calibration <= 0 {
		c.Calibration = d.Calibration
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.PauseDuration <= 0 {
		c.PauseDuration = d.PauseDuration
	}
	if c.PhraseTimeout <= 0 {
		c.PhraseTimeout = d.PhraseTimeout
	}
	if c.Refractory < 0 {
		c.Refractory = 0
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = d.ErrorBackoff
	}
	return c
}

// Trigger describes a detected wake phrase.
type Trigger struct {
	Match Match

	// Transcript is the full recognised text.
	Transcript string

	At time.Time
}

// Option is a functional option for [New].
type Option func(*Listener)

// WithErrorHandler registers fn to receive recognition and device errors.
// fn is called from worker goroutines and must not block.
func WithErrorHandler(fn func(error)) Option {
	return func(l *Listener) {
		l.onError = fn
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Listener) {
		l.metrics = m
	}
}

// owned is implemented by devices that track who holds them, such as
// [capture.Gate].
type owned interface {
	OpenAs(ctx context.Context, owner string, format audio.Format, frameSize int) (capture.Stream, error)
}

// run is the state of one Start/Stop lifetime.
type run struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Listener is the background wake-phrase detector. All exported methods are
// safe for concurrent use.
type Listener struct {
	device  capture.Device
	stt     stt.Provider
	phrases *PhraseSet
	cfg     Config
	onError func(error)
	metrics *observe.Metrics

	threshold   atomic.Uint64 // math.Float64bits of the energy threshold
	sensitivity atomic.Value  // Sensitivity
	noiseFloor  atomic.Uint64
	calibrated  atomic.Bool
	refractory  atomic.Int64 // time.Duration

	paused     atomic.Bool
	resumed    chan struct{}
	deviceSlot chan struct{} // held while a stream is open

	mu        sync.Mutex
	current   *run
	quietTill time.Time // refractory or error backoff end
	lastFire  time.Time
}

// New returns a listener reading from device and transcribing with
// transcriber. The listener is idle until [Listener.Start].
func New(device capture.Device, transcriber stt.Provider, phrases *PhraseSet, cfg Config, opts ...Option) *Listener {
	cfg = cfg.withDefaults()
	l := &Listener{
		device:     device,
		stt:        transcriber,
		phrases:    phrases,
		cfg:        cfg,
		resumed:    make(chan struct{}, 1),
		deviceSlot: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	l.sensitivity.Store(cfg.Sensitivity)
	l.refractory.Store(int64(cfg.Refractory))
	l.setThreshold(cfg.Sensitivity.Ceiling())
	return l
}

// Initialize samples ambient noise for the calibration period and derives the
// energy threshold from it. Each call recalibrates.
func (l *Listener) Initialize(ctx context.Context) error {
	if !l.acquire(ctx) {
		return ctx.Err()
	}
	defer l.release()

	stream, err := l.open(ctx)
	if err != nil {
		return fmt.Errorf("wake: calibrate: %w", err)
	}
	defer stream.Close()

	var (
		sampled time.Duration
		sum     float64
		frames  int
	)
	deadline := time.Now().Add(l.cfg.Calibration + l.cfg.PollTimeout)
	for sampled < l.cfg.Calibration && time.Now().Before(deadline) {
		f, err := stream.ReadFrame(ctx, l.cfg.PollTimeout)
		if errors.Is(err, capture.ErrTimeout) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wake: calibrate: %w", err)
		}
		sum += f.RMS()
		frames++
		sampled += f.Duration()
	}

	noise := 0.0
	if frames > 0 {
		noise = sum / float64(frames)
	}
	l.noiseFloor.Store(floatBits(noise))
	l.calibrated.Store(true)
	l.applyThreshold()

	slog.Info("wake: calibrated",
		"noise_floor", noise,
		"threshold", l.Threshold(),
		"sensitivity", string(l.Sensitivity()),
		"frames", frames,
	)
	return nil
}

// Start begins listening in the background. onTrigger is called from a
// worker goroutine for every accepted wake phrase and must not block.
func (l *Listener) Start(ctx context.Context, onTrigger func(Trigger)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel}
	l.current = r
	r.wg.Add(1)
	go l.loop(runCtx, r, onTrigger)

	slog.Info("wake: listening", "phrases", l.phrases.Phrases(), "threshold", l.Threshold())
	return nil
}

// Running reports whether the listener has been started and not stopped.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current != nil
}

// Stop cancels the loop and waits up to timeout for the loop and any
// recognition workers to finish. Workers still running after that are
// abandoned; their results are discarded. Stopping an idle listener is a
// no-op.
func (l *Listener) Stop(timeout time.Duration) error {
	l.mu.Lock()
	r := l.current
	l.current = nil
	l.mu.Unlock()
	if r == nil {
		return nil
	}

	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		slog.Info("wake: stopped")
		return nil
	case <-t.C:
		slog.Warn("wake: abandoning goroutines after stop timeout", "timeout", timeout)
		return ErrJoinTimeout
	}
}

// Pause stops polling and returns once the microphone is released, or when
// ctx ends. While paused, captured phrases still in recognition can fire.
func (l *Listener) Pause(ctx context.Context) error {
	l.paused.Store(true)
	if !l.acquire(ctx) {
		return ctx.Err()
	}
	l.release()
	return nil
}

// Resume restarts polling after [Listener.Pause].
func (l *Listener) Resume() {
	if l.paused.Swap(false) {
		select {
		case l.resumed <- struct{}{}:
		default:
		}
	}
}

// Paused reports whether polling is paused.
func (l *Listener) Paused() bool {
	return l.paused.Load()
}

// SetSensitivity changes the threshold ceiling and reapplies the calibration.
func (l *Listener) SetSensitivity(s Sensitivity) error {
	if !s.Valid() {
		return fmt.Errorf("wake: unknown sensitivity %q", s)
	}
	l.sensitivity.Store(s)
	l.applyThreshold()
	slog.Info("wake: sensitivity changed", "sensitivity", string(s), "threshold", l.Threshold())
	return nil
}

// Sensitivity returns the current sensitivity level.
func (l *Listener) Sensitivity() Sensitivity {
	return l.sensitivity.Load().(Sensitivity)
}

// SetRefractory changes the minimum interval between two triggers.
func (l *Listener) SetRefractory(d time.Duration) {
	l.refractory.Store(int64(max(d, 0)))
}

// Threshold returns the current energy threshold in RMS sample units.
func (l *Listener) Threshold() float64 {
	return floatFromBits(l.threshold.Load())
}

// Phrases returns the phrase set the listener matches against.
func (l *Listener) Phrases() *PhraseSet {
	return l.phrases
}

func (l *Listener) applyThreshold() {
	ceiling := l.Sensitivity().Ceiling()
	if !l.calibrated.Load() {
		l.setThreshold(ceiling)
		return
	}
	noise := floatFromBits(l.noiseFloor.Load())
	l.setThreshold(min(max(noise*noiseMultiplier, minThreshold), ceiling))
}

func (l *Listener) setThreshold(v float64) {
	l.threshold.Store(floatBits(v))
}

func (l *Listener) loop(ctx context.Context, r *run, onTrigger func(Trigger)) {
	defer r.wg.Done()

	for ctx.Err() == nil {
		if l.paused.Load() {
			l.waitResume(ctx)
			continue
		}
		if d := l.quietFor(); d > 0 {
			sleep(ctx, d)
			continue
		}
		if !l.acquire(ctx) {
			return
		}
		if l.paused.Load() {
			l.release()
			continue
		}

		stream, err := l.open(ctx)
		if err != nil {
			l.release()
			if ctx.Err() != nil {
				return
			}
			slog.Warn("wake: cannot open microphone", "err", err)
			l.report(err)
			l.backoff()
			continue
		}
		l.session(ctx, r, stream, onTrigger)
		stream.Close()
		l.release()
	}
}

// session polls an open stream until the listener is paused, cooling down,
// cancelled or the device fails.
func (l *Listener) session(ctx context.Context, r *run, stream capture.Stream, onTrigger func(Trigger)) {
	for ctx.Err() == nil && !l.paused.Load() && l.quietFor() <= 0 {
		buf, err := l.capturePhrase(ctx, stream)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("wake: capture failed", "err", err)
				l.report(err)
				l.backoff()
			}
			return
		}
		if buf == nil {
			continue
		}

		r.wg.Add(1)
		go l.recognise(ctx, r, buf, onTrigger)
	}
}

// capturePhrase waits up to PollTimeout of audio for speech onset and then
// captures until PauseDuration of quiet or PhraseTimeout. It returns a nil
// buffer when nothing was heard.
func (l *Listener) capturePhrase(ctx context.Context, stream capture.Stream) (*audio.Buffer, error) {
	threshold := l.Threshold()
	var (
		buf    *audio.Buffer
		waited time.Duration
		quiet  time.Duration
	)
	for {
		// A pause abandons a half-captured phrase so the recorder gets the
		// microphone without waiting for it.
		if ctx.Err() != nil || l.paused.Load() {
			return nil, nil
		}
		f, err := stream.ReadFrame(ctx, l.cfg.PollTimeout)
		if errors.Is(err, capture.ErrTimeout) {
			return buf, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, err
		}

		loud := f.RMS() > threshold
		if buf == nil {
			if !loud {
				waited += f.Duration()
				if waited >= l.cfg.PollTimeout {
					return nil, nil
				}
				continue
			}
			buf = audio.NewBuffer(f.Format)
		}

		buf.Append(f)
		if loud {
			quiet = 0
		} else {
			quiet += f.Duration()
		}
		if quiet >= l.cfg.PauseDuration || buf.Duration() >= l.cfg.PhraseTimeout {
			return buf, nil
		}
	}
}

func (l *Listener) recognise(ctx context.Context, r *run, buf *audio.Buffer, onTrigger func(Trigger)) {
	defer r.wg.Done()

	start := time.Now()
	text, err := l.stt.Transcribe(ctx, buf)
	l.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if stt.IsNoSpeech(err) {
			return
		}
		slog.Warn("wake: recognition failed", "err", err)
		l.report(err)
		l.backoff()
		return
	}

	m, ok := l.phrases.Match(text)
	if !ok {
		slog.Debug("wake: no wake phrase", "heard", text)
		return
	}
	if !l.fire() {
		slog.Debug("wake: trigger suppressed by refractory window", "phrase", m.Phrase)
		return
	}

	slog.Info("wake: phrase detected", "phrase", m.Phrase, "heard", m.Heard, "tier", string(m.Tier))
	l.metrics.RecordWakeDetection(ctx, string(m.Tier))
	if onTrigger != nil {
		onTrigger(Trigger{Match: m, Transcript: text, At: time.Now()})
	}
}

// fire claims the refractory window. Only the first caller per window wins.
func (l *Listener) fire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	ref := time.Duration(l.refractory.Load())
	if !l.lastFire.IsZero() && now.Sub(l.lastFire) < ref {
		return false
	}
	l.lastFire = now
	if until := now.Add(ref); until.After(l.quietTill) {
		l.quietTill = until
	}
	return true
}

func (l *Listener) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until := time.Now().Add(l.cfg.ErrorBackoff); until.After(l.quietTill) {
		l.quietTill = until
	}
}

// quietFor returns how long polling must stay suspended.
func (l *Listener) quietFor() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Until(l.quietTill)
}

func (l *Listener) report(err error) {
	if l.onError != nil {
		l.onError(err)
	}
}

func (l *Listener) open(ctx context.Context) (capture.Stream, error) {
	if o, ok := l.device.(owned); ok {
		return o.OpenAs(ctx, deviceOwner, l.cfg.Format, l.cfg.FrameSize)
	}
	return l.device.Open(ctx, l.cfg.Format, l.cfg.FrameSize)
}

func (l *Listener) acquire(ctx context.Context) bool {
	select {
	case l.deviceSlot <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Listener) release() {
	<-l.deviceSlot
}

func (l *Listener) waitResume(ctx context.Context) {
	t := time.NewTimer(pausedPollPeriod)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-l.resumed:
	case <-t.C:
	}
}

func floatBits(f float64) uint64      { return math.Float64bits(f) }
func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
