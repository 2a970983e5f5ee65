package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/MrWong99/friday/pkg/audio"
)

// Backend names accepted by [Named].
const (
	BackendMixer   = "mixer"
	BackendCommand = "command"
	BackendOpener  = "opener"
)

// PCMPlayer renders raw PCM. [portaudio.Speaker] implements it.
type PCMPlayer interface {
	Play(ctx context.Context, pcm []byte, format audio.Format) error
}

// Mixer plays WAV clips from memory through a PCM output stream and returns
// when the clip has finished.
type Mixer struct {
	out PCMPlayer
}

// NewMixer returns a mixer backend writing to out.
func NewMixer(out PCMPlayer) *Mixer {
	return &Mixer{out: out}
}

func (m *Mixer) Name() string { return BackendMixer }

// Play implements [Backend]. Only WAV clips are supported.
func (m *Mixer) Play(ctx context.Context, _ string, clip audio.Clip) error {
	if clip.Format != audio.FormatWAV {
		return fmt.Errorf("%w: mixer renders wav, got %s", ErrUnsupportedFormat, clip.Format)
	}
	format, pcm, err := audio.ParseWAV(clip.Data)
	if err != nil {
		return fmt.Errorf("playback: mixer: %w", err)
	}
	return m.out.Play(ctx, pcm, format)
}

// Runner runs a command to completion.
type Runner func(ctx context.Context, name string, args ...string) error

// Starter launches a command without waiting for it.
type Starter func(name string, args ...string) error

// ExecOption configures the command and opener backends.
type ExecOption func(*execConfig)

type execConfig struct {
	goos     string
	lookPath func(string) (string, error)
	run      Runner
	start    Starter
	timeout  time.Duration
}

// WithGOOS overrides the detected operating system.
func WithGOOS(goos string) ExecOption {
	return func(c *execConfig) { c.goos = goos }
}

// WithLookPath replaces exec.LookPath when detecting players.
func WithLookPath(fn func(string) (string, error)) ExecOption {
	return func(c *execConfig) { c.lookPath = fn }
}

// WithRunner replaces process execution for the command backend.
func WithRunner(r Runner) ExecOption {
	return func(c *execConfig) { c.run = r }
}

// WithStarter replaces process launching for the opener backend.
func WithStarter(s Starter) ExecOption {
	return func(c *execConfig) { c.start = s }
}

// WithTimeout bounds a single command-line playback. Default: 60s.
func WithTimeout(d time.Duration) ExecOption {
	return func(c *execConfig) { c.timeout = d }
}

func newExecConfig(opts []ExecOption) execConfig {
	c := execConfig{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		run:      runCommand,
		start:    startCommand,
		timeout:  time.Minute,
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// player is a command-line audio player and the formats it understands.
type player struct {
	name    string
	formats []string // empty means any
	args    func(path string) []string
}

func (p player) supports(format string) bool {
	if len(p.formats) == 0 {
		return true
	}
	for _, f := range p.formats {
		if f == format {
			return true
		}
	}
	return false
}

func playersFor(goos string) []player {
	switch goos {
	case "darwin":
		return []player{
			{name: "afplay", args: func(p string) []string { return []string{p} }},
		}
	case "windows":
		return []player{
			{name: "powershell", formats: []string{audio.FormatWAV}, args: func(p string) []string {
				return []string{"-NoProfile", "-Command",
					fmt.Sprintf("(New-Object Media.SoundPlayer '%s').PlaySync()", strings.ReplaceAll(p, "'", "''"))}
			}},
		}
	default:
		return []player{
			{name: "aplay", formats: []string{audio.FormatWAV}, args: func(p string) []string { return []string{"-q", p} }},
			{name: "paplay", formats: []string{audio.FormatWAV, audio.FormatAIFF}, args: func(p string) []string { return []string{p} }},
			{name: "ffplay", args: func(p string) []string {
				return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", p}
			}},
		}
	}
}

// Command plays the file with the first installed OS player that supports
// its format, waiting for the player to exit.
type Command struct {
	cfg     execConfig
	players []player
}

// NewCommand detects the installed players for the platform. It never fails;
// a platform without players yields a backend whose Play always errors.
func NewCommand(opts ...ExecOption) *Command {
	cfg := newExecConfig(opts)
	c := &Command{cfg: cfg}
	for _, p := range playersFor(cfg.goos) {
		if _, err := cfg.lookPath(p.name); err == nil {
			c.players = append(c.players, p)
		}
	}
	return c
}

func (c *Command) Name() string { return BackendCommand }

// Players returns the detected player commands in order.
func (c *Command) Players() []string {
	names := make([]string, len(c.players))
	for i, p := range c.players {
		names[i] = p.name
	}
	return names
}

// Play implements [Backend].
func (c *Command) Play(ctx context.Context, path string, clip audio.Clip) error {
	var errs []error
	for _, p := range c.players {
		if !p.supports(clip.Format) {
			continue
		}
		runCtx, cancel := context.WithTimeout(ctx, c.cfg.timeout)
		err := c.cfg.run(runCtx, p.name, p.args(path)...)
		cancel()
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return fmt.Errorf("%w: no command-line player for %s on %s", ErrUnsupportedFormat, clip.Format, c.cfg.goos)
	}
	return fmt.Errorf("playback: command: %w", errors.Join(errs...))
}

// Opener hands the file to the desktop's default application and returns
// as soon as it has been launched.
type Opener struct {
	cfg execConfig
}

// NewOpener returns the default-handler backend for the platform.
func NewOpener(opts ...ExecOption) *Opener {
	return &Opener{cfg: newExecConfig(opts)}
}

func (o *Opener) Name() string { return BackendOpener }

// Play implements [Backend].
func (o *Opener) Play(_ context.Context, path string, _ audio.Clip) error {
	name, args := openCommand(o.cfg.goos, path)
	if err := o.cfg.start(name, args...); err != nil {
		return fmt.Errorf("playback: opener: %s: %w", name, err)
	}
	return nil
}

func openCommand(goos, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{path}
	case "windows":
		return "cmd", []string{"/c", "start", "", path}
	default:
		return "xdg-open", []string{path}
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
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

func startCommand(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Named builds the backends listed in names, in order. mixer may be nil when
// no PCM output is available, in which case the mixer backend is skipped.
func Named(names []string, mixer PCMPlayer, opts ...ExecOption) ([]Backend, error) {
	var out []Backend
	for _, n := range names {
		switch n {
		case BackendMixer:
			if mixer != nil {
				out = append(out, NewMixer(mixer))
			}
		case BackendCommand:
			out = append(out, NewCommand(opts...))
		case BackendOpener:
			out = append(out, NewOpener(opts...))
		default:
			return nil, fmt.Errorf("playback: unknown backend %q", n)
		}
	}
	return out, nil
}
