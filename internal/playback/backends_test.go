package playback_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/friday/internal/playback"
	"github.com/MrWong99/friday/pkg/audio"
)

type fakePCM struct {
	pcm    []byte
	format audio.Format
	err    error
}

func (f *fakePCM) Play(_ context.Context, pcm []byte, format audio.Format) error {
	f.pcm, f.format = pcm, format
	return f.err
}

func TestMixer(t *testing.T) {
	t.Parallel()

	format := audio.Format{SampleRate: 22050, Channels: 1}
	pcm := make([]byte, 4410)
	out := &fakePCM{}
	m := playback.NewMixer(out)

	if err := m.Play(context.Background(), "", audio.NewClip(audio.EncodeWAV(pcm, format), "")); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if out.format != format || len(out.pcm) != len(pcm) {
		t.Errorf("rendered %d bytes at %v, want %d at %v", len(out.pcm), out.format, len(pcm), format)
	}

	err := m.Play(context.Background(), "", audio.NewClip([]byte("ID3 not a wav"), audio.FormatMP3))
	if !errors.Is(err, playback.ErrUnsupportedFormat) {
		t.Errorf("mp3 err = %v, want ErrUnsupportedFormat", err)
	}
	if err := m.Play(context.Background(), "", audio.Clip{Data: []byte("RIFF"), Format: audio.FormatWAV}); err == nil {
		t.Error("truncated wav should fail")
	}
}

// installed returns a LookPath that finds only the named commands.
func installed(names ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		if slices.Contains(names, name) {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
}

type runCall struct {
	name string
	args []string
}

func TestCommand_PlayerSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		goos      string
		installed []string
		fail      []string
		format    string
		wantCalls []string
		wantErr   error
	}{
		{name: "darwin afplay", goos: "darwin", installed: []string{"afplay"}, format: audio.FormatMP3, wantCalls: []string{"afplay"}},
		{name: "linux aplay for wav", goos: "linux", installed: []string{"aplay", "paplay", "ffplay"}, format: audio.FormatWAV, wantCalls: []string{"aplay"}},
		{name: "linux mp3 skips wav-only players", goos: "linux", installed: []string{"aplay", "paplay", "ffplay"}, format: audio.FormatMP3, wantCalls: []string{"ffplay"}},
		{name: "linux falls through", goos: "linux", installed: []string{"aplay", "paplay"}, fail: []string{"aplay"}, format: audio.FormatWAV, wantCalls: []string{"aplay", "paplay"}},
		{name: "linux no player for mp3", goos: "linux", installed: []string{"aplay"}, format: audio.FormatMP3, wantErr: playback.ErrUnsupportedFormat},
		{name: "windows wav", goos: "windows", installed: []string{"powershell"}, format: audio.FormatWAV, wantCalls: []string{"powershell"}},
		{name: "nothing installed", goos: "linux", format: audio.FormatWAV, wantErr: playback.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls []string
			run := func(ctx context.Context, name string, _ ...string) error {
				if _, ok := ctx.Deadline(); !ok {
					t.Error("command run without a deadline")
				}
				calls = append(calls, name)
				if slices.Contains(tt.fail, name) {
					return errors.New("exit status 1")
				}
				return nil
			}
			c := playback.NewCommand(playback.WithGOOS(tt.goos), playback.WithLookPath(installed(tt.installed...)), playback.WithRunner(run))

			err := c.Play(context.Background(), "/tmp/clip", audio.Clip{Data: []byte{1}, Format: tt.format})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Play: %v", err)
			}
			if !slices.Equal(calls, tt.wantCalls) {
				t.Errorf("ran %v, want %v", calls, tt.wantCalls)
			}
		})
	}
}

func TestCommand_Arguments(t *testing.T) {
	t.Parallel()

	var got runCall
	run := func(_ context.Context, name string, args ...string) error {
		got = runCall{name: name, args: args}
		return nil
	}

	c := playback.NewCommand(playback.WithGOOS("windows"), playback.WithLookPath(installed("powershell")), playback.WithRunner(run))
	if err := c.Play(context.Background(), `C:\Temp\o'neil.wav`, audio.Clip{Data: []byte{1}, Format: audio.FormatWAV}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	want := []string{"-NoProfile", "-Command", `(New-Object Media.SoundPlayer 'C:\Temp\o''neil.wav').PlaySync()`}
	if !slices.Equal(got.args, want) {
		t.Errorf("args = %q, want %q", got.args, want)
	}

	c = playback.NewCommand(playback.WithGOOS("linux"), playback.WithLookPath(installed("ffplay")), playback.WithRunner(run))
	if err := c.Play(context.Background(), "/tmp/x.mp3", audio.Clip{Data: []byte{1}, Format: audio.FormatMP3}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	want = []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "/tmp/x.mp3"}
	if got.name != "ffplay" || !slices.Equal(got.args, want) {
		t.Errorf("ran %s %q, want ffplay %q", got.name, got.args, want)
	}
	if players := c.Players(); !slices.Equal(players, []string{"ffplay"}) {
		t.Errorf("Players() = %v", players)
	}
}

func TestOpener(t *testing.T) {
	t.Parallel()

	tests := []struct {
		goos     string
		wantName string
		wantArgs []string
	}{
		{goos: "darwin", wantName: "open", wantArgs: []string{"/tmp/a.wav"}},
		{goos: "linux", wantName: "xdg-open", wantArgs: []string{"/tmp/a.wav"}},
		{goos: "windows", wantName: "cmd", wantArgs: []string{"/c", "start", "", "/tmp/a.wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			t.Parallel()
			var got runCall
			o := playback.NewOpener(playback.WithGOOS(tt.goos), playback.WithStarter(func(name string, args ...string) error {
				got = runCall{name: name, args: args}
				return nil
			}))
			if err := o.Play(context.Background(), "/tmp/a.wav", audio.Clip{}); err != nil {
				t.Fatalf("Play: %v", err)
			}
			if got.name != tt.wantName || !slices.Equal(got.args, tt.wantArgs) {
				t.Errorf("started %s %q, want %s %q", got.name, got.args, tt.wantName, tt.wantArgs)
			}
		})
	}

	o := playback.NewOpener(playback.WithStarter(func(string, ...string) error { return errors.New("no handler") }))
	if err := o.Play(context.Background(), "/tmp/a.wav", audio.Clip{}); err == nil {
		t.Error("opener should report a launch failure")
	}
}

func TestNamed(t *testing.T) {
	t.Parallel()

	backends, err := playback.Named([]string{"mixer", "command", "opener"}, &fakePCM{})
	if err != nil {
		t.Fatalf("Named: %v", err)
	}
	var names []string
	for _, b := range backends {
		names = append(names, b.Name())
	}
	if !slices.Equal(names, []string{"mixer", "command", "opener"}) {
		t.Errorf("names = %v", names)
	}

	backends, err = playback.Named([]string{"mixer", "opener"}, nil)
	if err != nil {
		t.Fatalf("Named: %v", err)
	}
	if len(backends) != 1 || backends[0].Name() != "opener" {
		t.Errorf("nil mixer should be skipped, got %d backends", len(backends))
	}

	if _, err := playback.Named([]string{"gramophone"}, nil); err == nil {
		t.Error("unknown backend should fail")
	}
}
