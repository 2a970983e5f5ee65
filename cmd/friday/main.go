// Command friday is the main entry point for the Friday voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/MrWong99/friday/internal/app"
	"github.com/MrWong99/friday/internal/config"
	"github.com/MrWong99/friday/internal/observe"
	"github.com/MrWong99/friday/pkg/audio/portaudio"
	"github.com/MrWong99/friday/pkg/provider/tts"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listVoices := flag.Bool("list-voices", false, "list the voices of every configured synthesis provider and exit")
	listDevices := flag.Bool("list-devices", false, "list the audio devices and exit")
	testMic := flag.Bool("test-mic", false, "record a short microphone sample, report its level and exit")
	testSpeakers := flag.Bool("test-speakers", false, "play a test tone and exit")
	noConsole := flag.Bool("no-console", false, "do not read commands from stdin")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("friday", version)
		return 0
	}
	if *listDevices {
		return printDevices(os.Stdout)
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "friday: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "friday: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("friday starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "friday",
		ServiceVersion: version,
		RuntimeMetrics: true,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	if *listVoices {
		return printVoices(ctx, os.Stdout, providers)
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	switch {
	case *testMic:
		return runMicTest(ctx, application)
	case *testSpeakers:
		if err := application.Orchestrator().TestSpeakers(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "friday: speaker test failed: %v\n", err)
			return 1
		}
		fmt.Println("test tone played")
		return 0
	}

	// ── Live config reload ────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		d := config.Diff(old, next)
		if !d.Any() {
			slog.Debug("config reload: no live-applicable changes")
			return
		}
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("config reload: log level updated", "log_level", d.NewLogLevel)
		}
		application.ApplyConfigDiff(d)
	})
	if err != nil {
		slog.Warn("config watcher not started; live reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(os.Stdout, cfg, providers)

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	if !*noConsole {
		con := newConsole(application.Orchestrator(), cfg.Conversation.Name, os.Stdout)
		go func() {
			if con.Run(runCtx, os.Stdin) {
				cancelRun()
			}
		}()
	}

	slog.Info("friday ready, press Ctrl+C to shut down")

	if err := application.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("application error", "err", err)
		return 1
	}

	slog.Info("shutting down")
	return 0
}

// runMicTest records a sample and prints the level report.
func runMicTest(ctx context.Context, application *app.App) int {
	fmt.Println("speak now...")
	rep, err := application.Orchestrator().TestMicrophone(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "friday: microphone test failed: %v\n", err)
		return 1
	}
	fmt.Printf("frames=%d bytes=%d duration=%s peak=%d rms=%.1f\n",
		rep.Frames, rep.Bytes, rep.Duration.Round(time.Millisecond), rep.Peak, rep.RMS)
	if !rep.OK {
		fmt.Println("too little audio captured, check the input device and its volume")
		return 1
	}
	fmt.Println("microphone ok")
	return 0
}

// printVoices lists the voices of every synthesis provider that can
// enumerate them.
func printVoices(ctx context.Context, w io.Writer, ps *app.Providers) int {
	modes := slices.Sorted(maps.Keys(ps.TTS))
	if len(modes) == 0 {
		fmt.Fprintln(w, "no synthesis providers configured")
		return 1
	}

	status := 0
	for _, m := range modes {
		lister, ok := ps.TTS[m].(tts.VoiceLister)
		if !ok {
			fmt.Fprintf(w, "%s: voice listing not supported\n", m)
			continue
		}
		lctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		voices, err := lister.ListVoices(lctx)
		cancel()
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", m, err)
			status = 1
			continue
		}
		fmt.Fprintf(w, "%s (%d voices):\n", m, len(voices))
		for _, v := range voices {
			fmt.Fprintf(w, "  %-28s %s\n", v.ID, v.Name)
		}
	}
	return status
}

// printDevices lists the PortAudio devices.
func printDevices(w io.Writer) int {
	var host portaudio.Host
	if err := host.Acquire(); err != nil {
		fmt.Fprintf(os.Stderr, "friday: %v\n", err)
		return 1
	}
	defer host.Release()

	devs, err := portaudio.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "friday: %v\n", err)
		return 1
	}
	for _, d := range devs {
		fmt.Fprintf(w, "%-40s in=%d out=%d rate=%.0f\n",
			d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, ps *app.Providers) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         Friday - startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printChain(w, "STT", cfg.Providers.STT)
	printChain(w, "LLM", cfg.Providers.LLM)
	printRow(w, "TTS primary", providerLabel(cfg.Providers.TTS.PrimaryCloud))
	printRow(w, "TTS secondary", providerLabel(cfg.Providers.TTS.SecondaryCloud))
	printRow(w, "TTS local", providerLabel(cfg.Providers.TTS.Local))
	native := providerLabel(cfg.Providers.TTS.Native)
	if ps.Speaker == nil && cfg.Providers.TTS.Native.Configured() {
		native = "(unavailable)"
	}
	printRow(w, "Native speech", native)

	wake := "(disabled)"
	if cfg.Wake.IsEnabled() && ps.STT != nil {
		wake = cfg.Wake.Sensitivity
	}
	printRow(w, "Wake", wake)
	printRow(w, "Wake phrases", fmt.Sprint(len(cfg.Wake.Phrases)))
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printChain(w io.Writer, kind string, entries []config.ProviderEntry) {
	if len(entries) == 0 {
		printRow(w, kind, "(not configured)")
		return
	}
	printRow(w, kind, providerLabel(entries[0]))
	for _, e := range entries[1:] {
		printRow(w, "  fallback", providerLabel(e))
	}
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-14s  : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
