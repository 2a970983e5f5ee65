package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/friday/internal/orchestrator"
)

// fakePipeline records every console command it receives.
type fakePipeline struct {
	mu       sync.Mutex
	events   chan orchestrator.Event
	busy     bool
	submits  []string
	calls    []string
	wakeErr  error
	sensErr  error
	mic      orchestrator.MicReport
	micErr   error
	status   orchestrator.Status
	speakErr error
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{events: make(chan orchestrator.Event, 8)}
}

func (f *fakePipeline) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakePipeline) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePipeline) Events() <-chan orchestrator.Event { return f.events }
func (f *fakePipeline) Status() orchestrator.Status       { return f.status }
func (f *fakePipeline) Summary() string                   { return "Recent topics: weather" }

func (f *fakePipeline) SubmitText(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return false
	}
	f.submits = append(f.submits, text)
	return true
}

func (f *fakePipeline) RecordNow() bool {
	f.record("record")
	return !f.busy
}

func (f *fakePipeline) StopRecording() { f.record("stop") }
func (f *fakePipeline) ClearHistory()  { f.record("clear") }

func (f *fakePipeline) EnableWake(context.Context) error {
	f.record("wake-on")
	return f.wakeErr
}

func (f *fakePipeline) DisableWake() error {
	f.record("wake-off")
	return f.wakeErr
}

func (f *fakePipeline) SetSensitivity(level string) error {
	f.record("sensitivity:" + level)
	return f.sensErr
}

func (f *fakePipeline) TestMicrophone(context.Context) (orchestrator.MicReport, error) {
	f.record("mic")
	return f.mic, f.micErr
}

func (f *fakePipeline) TestSpeakers(context.Context) error {
	f.record("speakers")
	return f.speakErr
}

func TestConsole_Commands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		line     string
		setup    func(*fakePipeline)
		wantCall string
		wantOut  string
		wantQuit bool
		noOutput bool
	}{
		{name: "record", line: "/record", wantCall: "record", noOutput: true},
		{name: "record busy", line: "/record", setup: func(f *fakePipeline) { f.busy = true }, wantCall: "record", wantOut: "busy"},
		{name: "stop", line: "/stop", wantCall: "stop", noOutput: true},
		{name: "clear", line: "/clear", wantCall: "clear", wantOut: "conversation cleared"},
		{name: "wake on", line: "/wake on", wantCall: "wake-on", wantOut: "wake detection on"},
		{name: "wake off upper", line: "/WAKE OFF", wantCall: "wake-off", wantOut: "wake detection off"},
		{name: "wake bad arg", line: "/wake maybe", wantOut: "usage: /wake on|off"},
		{name: "wake error", line: "/wake on", setup: func(f *fakePipeline) { f.wakeErr = errors.New("no transcriber") }, wantCall: "wake-on", wantOut: "no transcriber"},
		{name: "sensitivity", line: "/sensitivity low", wantCall: "sensitivity:low", wantOut: "sensitivity set to low"},
		{name: "sensitivity error", line: "/sensitivity loud", setup: func(f *fakePipeline) { f.sensErr = errors.New("unknown sensitivity") }, wantCall: "sensitivity:loud", wantOut: "unknown sensitivity"},
		{name: "summary", line: "/summary", wantOut: "Recent topics: weather"},
		{name: "speakers", line: "/speakers", wantCall: "speakers", wantOut: "test tone played"},
		{name: "speakers error", line: "/speakers", setup: func(f *fakePipeline) { f.speakErr = errors.New("no backend") }, wantCall: "speakers", wantOut: "speaker test failed: no backend"},
		{name: "mic ok", line: "/mic", setup: func(f *fakePipeline) {
			f.mic = orchestrator.MicReport{Frames: 50, Duration: 2 * time.Second, Peak: 1200, RMS: 300, OK: true}
		}, wantCall: "mic", wantOut: "50 frames, 2s, peak 1200, rms 300 (ok)"},
		{name: "mic quiet", line: "/mic", wantCall: "mic", wantOut: "too little audio"},
		{name: "mic error", line: "/mic", setup: func(f *fakePipeline) { f.micErr = orchestrator.ErrBusy }, wantCall: "mic", wantOut: "microphone test failed"},
		{name: "help", line: "/help", wantOut: "/sensitivity LVL"},
		{name: "unknown", line: "/dance", wantOut: "unknown command /dance"},
		{name: "quit", line: "/quit", wantQuit: true, noOutput: true},
		{name: "exit", line: " /exit ", wantQuit: true, noOutput: true},
		{name: "blank", line: "   ", noOutput: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFakePipeline()
			if tc.setup != nil {
				tc.setup(f)
			}
			var out bytes.Buffer
			c := newConsole(f, "Friday", &out)

			quit := c.handle(context.Background(), tc.line)
			if quit != tc.wantQuit {
				t.Errorf("handle(%q) quit = %v, want %v", tc.line, quit, tc.wantQuit)
			}
			calls := f.Calls()
			if tc.wantCall != "" && (len(calls) != 1 || calls[0] != tc.wantCall) {
				t.Errorf("calls = %v, want [%s]", calls, tc.wantCall)
			}
			if tc.wantCall == "" && len(calls) != 0 {
				t.Errorf("calls = %v, want none", calls)
			}
			if tc.noOutput && out.Len() != 0 {
				t.Errorf("output = %q, want none", out.String())
			}
			if tc.wantOut != "" && !strings.Contains(out.String(), tc.wantOut) {
				t.Errorf("output = %q, want it to contain %q", out.String(), tc.wantOut)
			}
		})
	}
}

func TestConsole_TypedText(t *testing.T) {
	t.Parallel()
	f := newFakePipeline()
	var out bytes.Buffer
	c := newConsole(f, "Friday", &out)

	c.handle(context.Background(), "  what's the weather  ")
	if len(f.submits) != 1 || f.submits[0] != "what's the weather" {
		t.Fatalf("submits = %q", f.submits)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}

	f.busy = true
	c.handle(context.Background(), "again")
	if !strings.Contains(out.String(), "busy") {
		t.Errorf("output = %q, want busy notice", out.String())
	}
}

func TestConsole_PrintEvent(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 1, 2, 9, 30, 5, 0, time.UTC)

	tests := []struct {
		name string
		ev   orchestrator.Event
		want string
	}{
		{
			name: "user turn",
			ev:   orchestrator.Event{Kind: orchestrator.EventTurnAdded, Turn: orchestrator.Turn{Role: orchestrator.RoleUser, Text: "hello", Timestamp: ts}},
			want: "09:30:05 You: hello\n",
		},
		{
			name: "assistant turn",
			ev:   orchestrator.Event{Kind: orchestrator.EventTurnAdded, Turn: orchestrator.Turn{Role: orchestrator.RoleAssistant, Text: "hi there", Timestamp: ts}},
			want: "09:30:05 Friday: hi there\n",
		},
		{
			name: "info",
			ev:   orchestrator.Event{Kind: orchestrator.EventSystemMessage, Severity: orchestrator.SeverityInfo, Message: "listening"},
			want: "* listening\n",
		},
		{
			name: "warning",
			ev:   orchestrator.Event{Kind: orchestrator.EventSystemMessage, Severity: orchestrator.SeverityWarning, Message: "no speech"},
			want: "! no speech\n",
		},
		{
			name: "error",
			ev:   orchestrator.Event{Kind: orchestrator.EventSystemMessage, Severity: orchestrator.SeverityError, Message: "mic gone"},
			want: "!! mic gone\n",
		},
		{
			name: "state",
			ev:   orchestrator.Event{Kind: orchestrator.EventStateChanged, From: orchestrator.Idle, To: orchestrator.Recording},
			want: "[recording]\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			newConsole(newFakePipeline(), "Friday", &out).printEvent(tc.ev)
			if got := out.String(); got != tc.want {
				t.Errorf("printEvent() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestConsole_Status(t *testing.T) {
	t.Parallel()
	f := newFakePipeline()
	f.status = orchestrator.Status{
		State:          orchestrator.Listening,
		WakeEnabled:    true,
		Sensitivity:    "medium",
		Threshold:      0.7,
		Phrases:        []string{"hey friday", "friday"},
		SynthMode:      "primary_cloud",
		SynthExhausted: true,
		HistoryLen:     4,
	}
	var out bytes.Buffer
	newConsole(f, "", &out).handle(context.Background(), "/status")

	got := out.String()
	for _, want := range []string{
		"state listening, wake on (medium, threshold 0.70)",
		"wake phrases: hey friday, friday",
		"voice: primary_cloud (all voices failed",
		"history: 4 turns",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("status output %q missing %q", got, want)
		}
	}
}

func TestConsole_RunQuits(t *testing.T) {
	t.Parallel()
	f := newFakePipeline()
	f.events <- orchestrator.Event{Kind: orchestrator.EventSystemMessage, Message: "ready"}
	var out syncBuffer
	c := newConsole(f, "Friday", &out)

	done := make(chan bool, 1)
	go func() { done <- c.Run(context.Background(), strings.NewReader("hello\n/quit\nignored\n")) }()

	select {
	case quit := <-done:
		if !quit {
			t.Error("Run() = false, want true after /quit")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after /quit")
	}
	if len(f.submits) != 1 || f.submits[0] != "hello" {
		t.Errorf("submits = %q, want [hello]", f.submits)
	}
}

func TestConsole_RunStopsOnEOFAndCancel(t *testing.T) {
	t.Parallel()

	t.Run("eof", func(t *testing.T) {
		t.Parallel()
		c := newConsole(newFakePipeline(), "Friday", &syncBuffer{})
		if c.Run(context.Background(), strings.NewReader("")) {
			t.Error("Run() = true on EOF, want false")
		}
	})

	t.Run("cancel", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		c := newConsole(newFakePipeline(), "Friday", &syncBuffer{})
		blocked := &blockingReader{release: make(chan struct{})}
		defer close(blocked.release)

		done := make(chan bool, 1)
		go func() { done <- c.Run(ctx, blocked) }()
		cancel()
		select {
		case quit := <-done:
			if quit {
				t.Error("Run() = true on cancel, want false")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run() did not return after cancel")
		}
	})
}

// syncBuffer is a bytes.Buffer safe for the console's concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// blockingReader blocks every Read until release is closed.
type blockingReader struct {
	release chan struct{}
}

func (r *blockingReader) Read([]byte) (int, error) {
	<-r.release
	return 0, errors.New("closed")
}
