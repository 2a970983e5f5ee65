// Package native speaks text through the operating system's own speech
// engine: say on macOS, System.Speech via PowerShell on Windows and
// espeak-ng, espeak or festival on Linux. It implements tts.Speaker and is
// the last tier of the synthesis chain.
package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/MrWong99/friday/pkg/provider/tts"
)

var _ tts.Speaker = (*Speaker)(nil)

// ErrNoEngine is returned by New when no supported speech command is found.
var ErrNoEngine = errors.New("native: no system speech engine found")

// defaultRate is the words-per-minute rate of say and espeak.
const defaultRate = 175

const powershellScript = `Add-Type -AssemblyName System.Speech; ` +
	`$s = New-Object System.Speech.Synthesis.SpeechSynthesizer; ` +
	`$s.Speak([Console]::In.ReadToEnd())`

// Runner executes name with args, feeding stdin to the process.
type Runner func(ctx context.Context, stdin, name string, args ...string) error

// Option configures a Speaker.
type Option func(*Speaker)

// WithCommand forces a specific engine ("say", "espeak-ng", "espeak",
// "festival" or "powershell") instead of probing the platform default.
func WithCommand(name string) Option {
	return func(s *Speaker) { s.command = name }
}

// WithRunner replaces process execution. Intended for tests.
func WithRunner(r Runner) Option {
	return func(s *Speaker) { s.run = r }
}

// WithLookPath replaces exec.LookPath during engine detection.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(s *Speaker) { s.lookPath = fn }
}

// WithGOOS overrides the detected operating system.
func WithGOOS(goos string) Option {
	return func(s *Speaker) { s.goos = goos }
}

// Speaker implements tts.Speaker using a system speech command.
type Speaker struct {
	command  string
	goos     string
	run      Runner
	lookPath func(string) (string, error)
}

// New detects the platform speech engine. It returns ErrNoEngine when none of
// the candidate commands is installed.
func New(opts ...Option) (*Speaker, error) {
	s := &Speaker{
		goos:     runtime.GOOS,
		run:      runCommand,
		lookPath: exec.LookPath,
	}
	for _, o := range opts {
		o(s)
	}
	candidates := candidatesFor(s.goos)
	if s.command != "" {
		candidates = []string{s.command}
	}
	for _, c := range candidates {
		if _, err := s.lookPath(c); err == nil {
			s.command = c
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w (tried %s)", ErrNoEngine, strings.Join(candidates, ", "))
}

// Engine returns the command the speaker uses.
func (s *Speaker) Engine() string { return s.command }

// Speak renders text through the system engine and blocks until the command
// exits or ctx is cancelled. voice.ID selects a system voice where the
// engine supports one; SpeedFactor scales the speaking rate.
func (s *Speaker) Speak(ctx context.Context, text string, voice tts.VoiceProfile) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("native: text must not be empty")
	}
	name, args, stdin := s.command, []string(nil), ""
	rate := defaultRate
	if voice.SpeedFactor > 0 {
		rate = int(float64(defaultRate) * voice.SpeedFactor)
	}
	switch s.command {
	case "say":
		if voice.ID != "" {
			args = append(args, "-v", voice.ID)
		}
		if rate != defaultRate {
			args = append(args, "-r", strconv.Itoa(rate))
		}
		args = append(args, text)
	case "espeak-ng", "espeak":
		if voice.ID != "" {
			args = append(args, "-v", voice.ID)
		}
		args = append(args, "-s", strconv.Itoa(rate), text)
	case "festival":
		args = []string{"--tts"}
		stdin = text
	case "powershell", "pwsh":
		args = []string{"-NoProfile", "-NonInteractive", "-Command", powershellScript}
		stdin = text
	default:
		return fmt.Errorf("native: unsupported engine %q", s.command)
	}
	if err := s.run(ctx, stdin, name, args...); err != nil {
		return fmt.Errorf("native: %s: %w", name, err)
	}
	return nil
}

func candidatesFor(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"say"}
	case "windows":
		return []string{"powershell", "pwsh"}
	default:
		return []string{"espeak-ng", "espeak", "festival"}
	}
}

func runCommand(ctx context.Context, stdin, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
