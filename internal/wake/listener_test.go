package wake_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/friday/internal/wake"
	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/audio/capture"
	capturemock "github.com/MrWong99/friday/pkg/audio/capture/mock"
	"github.com/MrWong99/friday/pkg/provider/stt"
	sttmock "github.com/MrWong99/friday/pkg/provider/stt/mock"
)

const frameSize = 1024 // 64ms at 16 kHz

// testConfig returns timings short enough for unit tests. One frame is 64ms
// of audio, so a phrase ends after two quiet frames.
func testConfig() wake.Config {
	return wake.Config{
		Format:        audio.Format{SampleRate: 16000, Channels: 1},
		FrameSize:     frameSize,
		Sensitivity:   wake.SensitivityMedium,
		Calibration:   time.Second,
		PollTimeout:   200 * time.Millisecond,
		PauseDuration: 128 * time.Millisecond,
		PhraseTimeout: time.Second,
		Refractory:    time.Minute,
		ErrorBackoff:  20 * time.Millisecond,
	}
}

// burstDevice serves loudFrames loud frames followed by quietFrames quiet
// ones, repeating forever. Each step is slightly delayed so loops do not
// spin.
func burstDevice(loudFrames, quietFrames int) *capturemock.Device {
	loud := capturemock.Frame(frameSize, 2000)
	quiet := capturemock.Frame(frameSize, 0)
	period := loudFrames + quietFrames
	return &capturemock.Device{
		Generate: func(n int) capturemock.Step {
			if n%period < loudFrames {
				return capturemock.Step{Data: loud, Delay: time.Millisecond}
			}
			return capturemock.Step{Data: quiet, Delay: time.Millisecond}
		},
	}
}

// quietDevice serves silence forever.
func quietDevice() *capturemock.Device {
	quiet := capturemock.Frame(frameSize, 0)
	return &capturemock.Device{
		Generate: func(int) capturemock.Step {
			return capturemock.Step{Data: quiet, Delay: time.Millisecond}
		},
	}
}

func newListener(t *testing.T, dev capture.Device, tr stt.Provider, opts ...wake.Option) *wake.Listener {
	t.Helper()
	phrases, err := wake.NewPhraseSet(wake.DefaultPhrases, wake.DefaultPatterns)
	if err != nil {
		t.Fatalf("NewPhraseSet: %v", err)
	}
	l := wake.New(dev, tr, phrases, testConfig(), opts...)
	t.Cleanup(func() { _ = l.Stop(2 * time.Second) })
	return l
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", d, msg)
}

func TestSensitivity_Ceiling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		s    wake.Sensitivity
		want float64
	}{
		{wake.SensitivityHigh, 200},
		{wake.SensitivityMedium, 300},
		{wake.SensitivityLow, 500},
	}
	for _, tt := range tests {
		if got := tt.s.Ceiling(); got != tt.want {
			t.Errorf("%s.Ceiling() = %v, want %v", tt.s, got, tt.want)
		}
	}
	if _, err := wake.ParseSensitivity("loud"); err == nil {
		t.Error("ParseSensitivity(loud) should fail")
	}
}

func TestListener_Calibration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		ambient     int
		sensitivity wake.Sensitivity
		want        float64
	}{
		{name: "quiet room floors at minimum", ambient: 10, sensitivity: wake.SensitivityMedium, want: 50},
		{name: "scaled noise floor", ambient: 100, sensitivity: wake.SensitivityMedium, want: 150},
		{name: "medium ceiling", ambient: 400, sensitivity: wake.SensitivityMedium, want: 300},
		{name: "high ceiling", ambient: 400, sensitivity: wake.SensitivityHigh, want: 200},
		{name: "low ceiling", ambient: 400, sensitivity: wake.SensitivityLow, want: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dev := &capturemock.Device{Script: capturemock.Repeat(capturemock.Frame(frameSize, tt.ambient), 40)}
			l := newListener(t, dev, &sttmock.Provider{})
			if err := l.SetSensitivity(tt.sensitivity); err != nil {
				t.Fatalf("SetSensitivity: %v", err)
			}
			if err := l.Initialize(context.Background()); err != nil {
				t.Fatalf("Initialize: %v", err)
			}
			if got := l.Threshold(); got != tt.want {
				t.Errorf("Threshold() = %v, want %v", got, tt.want)
			}
			// One second of 64ms frames.
			if got := dev.Reads; got != 16 {
				t.Errorf("calibration read %d frames, want 16", got)
			}
			if dev.OpenStreams() != 0 {
				t.Error("calibration left the device open")
			}
		})
	}
}

func TestListener_SensitivityReappliesCalibration(t *testing.T) {
	t.Parallel()

	dev := &capturemock.Device{Script: capturemock.Repeat(capturemock.Frame(frameSize, 180), 16)}
	l := newListener(t, dev, &sttmock.Provider{})
	if err := l.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := l.Threshold(); got != 270 {
		t.Fatalf("Threshold() = %v, want 270", got)
	}
	if err := l.SetSensitivity(wake.SensitivityHigh); err != nil {
		t.Fatalf("SetSensitivity: %v", err)
	}
	if got := l.Threshold(); got != 200 {
		t.Errorf("Threshold() after high = %v, want 200", got)
	}
	if err := l.SetSensitivity("extreme"); err == nil {
		t.Error("SetSensitivity(extreme) should fail")
	}
}

func TestListener_TriggersOnWakePhrase(t *testing.T) {
	t.Parallel()

	dev := burstDevice(4, 40)
	tr := &sttmock.Provider{Results: []sttmock.Result{{Text: "hey friday"}}, Err: stt.ErrNoSpeech}
	l := newListener(t, dev, tr)

	triggers := make(chan wake.Trigger, 4)
	if err := l.Start(context.Background(), func(tg wake.Trigger) { triggers <- tg }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !l.Running() {
		t.Error("Running() = false after Start")
	}

	select {
	case tg := <-triggers:
		if tg.Match.Phrase != "hey friday" {
			t.Errorf("Phrase = %q, want %q", tg.Match.Phrase, "hey friday")
		}
		if tg.Transcript != "hey friday" {
			t.Errorf("Transcript = %q", tg.Transcript)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no trigger")
	}

	call := tr.Recorded()[0]
	// Four loud frames plus two quiet ones end the phrase.
	if call.Frames != 6 {
		t.Errorf("captured %d frames, want 6", call.Frames)
	}

	if err := l.Start(context.Background(), nil); !errors.Is(err, wake.ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
	if err := l.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if l.Running() {
		t.Error("Running() = true after Stop")
	}
	eventually(t, time.Second, func() bool { return dev.OpenStreams() == 0 }, "device released after Stop")
}

func TestListener_RefractoryFiresOnce(t *testing.T) {
	t.Parallel()

	dev := burstDevice(2, 3)
	tr := &sttmock.Provider{Text: "friday", Delay: 100 * time.Millisecond}
	l := newListener(t, dev, tr)

	var fired atomic.Int32
	if err := l.Start(context.Background(), func(wake.Trigger) { fired.Add(1) }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	eventually(t, 2*time.Second, func() bool { return tr.CallCount() >= 2 }, "several phrases in recognition")
	eventually(t, 2*time.Second, func() bool { return fired.Load() >= 1 }, "first trigger")
	time.Sleep(250 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("trigger fired %d times within the refractory window, want 1", got)
	}
}

func TestListener_RecognitionErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("service down")
	dev := burstDevice(2, 20)
	tr := &sttmock.Provider{Results: []sttmock.Result{{Err: stt.ErrNoSpeech}, {Err: boom}}, Text: "friday"}

	var (
		mu   sync.Mutex
		errs []error
	)
	l := newListener(t, dev, tr, wake.WithErrorHandler(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}))

	triggers := make(chan wake.Trigger, 1)
	if err := l.Start(context.Background(), func(tg wake.Trigger) {
		select {
		case triggers <- tg:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-triggers:
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not recover after recognition errors")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Errorf("error handler got %v, want exactly the service error", errs)
	}
}

func TestListener_PauseReleasesMicrophone(t *testing.T) {
	t.Parallel()

	gate := capture.NewGate(quietDevice())
	l := newListener(t, gate, &sttmock.Provider{Err: stt.ErrNoSpeech})
	if err := l.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	eventually(t, time.Second, func() bool { return gate.Owner() == "wake" }, "listener holds the microphone")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !l.Paused() {
		t.Error("Paused() = false")
	}
	if gate.Held() {
		t.Fatalf("microphone still held by %q after Pause", gate.Owner())
	}

	s, err := gate.OpenAs(ctx, "recorder", audio.Format{SampleRate: 16000, Channels: 1}, frameSize)
	if err != nil {
		t.Fatalf("recorder could not open the microphone: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := gate.Owner(); got != "recorder" {
		t.Errorf("Owner() = %q while paused, want recorder", got)
	}
	_ = s.Close()

	l.Resume()
	eventually(t, time.Second, func() bool { return gate.Owner() == "wake" }, "listener reacquires after Resume")
}

// blockingTranscriber ignores cancellation until release is closed.
type blockingTranscriber struct {
	calls   atomic.Int32
	release chan struct{}
}

func (b *blockingTranscriber) Transcribe(context.Context, *audio.Buffer) (string, error) {
	b.calls.Add(1)
	<-b.release
	return "friday", nil
}

func TestListener_StopAbandonsStragglers(t *testing.T) {
	t.Parallel()

	tr := &blockingTranscriber{release: make(chan struct{})}
	l := newListener(t, burstDevice(2, 40), tr)

	var fired atomic.Int32
	if err := l.Start(context.Background(), func(wake.Trigger) { fired.Add(1) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	eventually(t, 2*time.Second, func() bool { return tr.calls.Load() >= 1 }, "worker started")

	start := time.Now()
	err := l.Stop(50 * time.Millisecond)
	if !errors.Is(err, wake.ErrJoinTimeout) {
		t.Fatalf("Stop = %v, want ErrJoinTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %v, want bounded by its timeout", elapsed)
	}

	close(tr.release)
	time.Sleep(50 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("abandoned worker fired %d triggers, want 0", got)
	}
}

func TestListener_StopIdle(t *testing.T) {
	t.Parallel()

	l := newListener(t, quietDevice(), &sttmock.Provider{})
	if err := l.Stop(time.Second); err != nil {
		t.Errorf("Stop on idle listener = %v", err)
	}
}
