package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/friday/internal/app"
	"github.com/MrWong99/friday/internal/config"
	"github.com/MrWong99/friday/internal/observe"
	"github.com/MrWong99/friday/internal/resilience"
	"github.com/MrWong99/friday/internal/synth"
	"github.com/MrWong99/friday/pkg/provider/llm"
	"github.com/MrWong99/friday/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/friday/pkg/provider/llm/openai"
	"github.com/MrWong99/friday/pkg/provider/stt"
	"github.com/MrWong99/friday/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/friday/pkg/provider/stt/openai"
	"github.com/MrWong99/friday/pkg/provider/stt/whisper"
	"github.com/MrWong99/friday/pkg/provider/tts"
	"github.com/MrWong99/friday/pkg/provider/tts/coqui"
	"github.com/MrWong99/friday/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/friday/pkg/provider/tts/native"
	oatts "github.com/MrWong99/friday/pkg/provider/tts/openai"
)

// providerFallback returns the circuit-breaker policy for the STT and LLM
// fallback chains. Call outcomes and breaker state changes feed the provider
// metrics.
func providerFallback(kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				observe.DefaultMetrics().RecordCircuitTransition(context.Background(),
					name, kind, from.String(), to.String())
			},
		},
		Report: func(name string, err error) {
			m := observe.DefaultMetrics()
			if err != nil {
				m.RecordProviderRequest(context.Background(), name, kind, "error")
				m.RecordProviderError(context.Background(), name, kind)
				return
			}
			m.RecordProviderRequest(context.Background(), name, kind, "ok")
		},
	}
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptionString("organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other any-llm-go backend shares one factory. openai stays on the
	// native SDK above.
	for _, name := range anyllm.Backends() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(name, entry.Model, anyllm.Options(name, entry.APIKey, entry.BaseURL)...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		return oastt.New(entry.APIKey, opts...)
	})

	registerNativeWhisper(reg)

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.OptionString("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oatts.WithModel(entry.Model))
		}
		return oatts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.OptionString("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Native speech ─────────────────────────────────────────────────────────

	reg.RegisterSpeaker("native", func(entry config.ProviderEntry) (tts.Speaker, error) {
		var opts []native.Option
		if cmd := entry.OptionString("command"); cmd != "" {
			opts = append(opts, native.WithCommand(cmd))
		}
		return native.New(opts...)
	})

	for _, kind := range []string{"stt", "llm", "tts", "native"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// Provider constructors that fail are logged and skipped so that the rest of
// the chain still works.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{TTS: make(map[synth.Mode]tts.Provider)}

	// ── STT chain ─────────────────────────────────────────────────────────────
	var sttChain *resilience.STTFallback
	for _, entry := range cfg.Providers.STT {
		p, err := reg.CreateSTT(entry)
		if !created("stt", entry, err) {
			continue
		}
		if sttChain == nil {
			sttChain = resilience.NewSTTFallback(p, entry.Name, providerFallback("stt"))
		} else {
			sttChain.AddFallback(entry.Name, p)
		}
	}
	if sttChain != nil {
		ps.STT = sttChain
	}

	// ── LLM chain ─────────────────────────────────────────────────────────────
	var llmChain *resilience.LLMFallback
	for _, entry := range cfg.Providers.LLM {
		p, err := reg.CreateLLM(entry)
		if !created("llm", entry, err) {
			continue
		}
		if llmChain == nil {
			llmChain = resilience.NewLLMFallback(p, entry.Name, providerFallback("llm"))
		} else {
			llmChain.AddFallback(entry.Name, p)
		}
	}
	if llmChain != nil {
		ps.LLM = llmChain
	}

	// ── Synthesis modes ───────────────────────────────────────────────────────
	modes := []struct {
		mode  synth.Mode
		entry config.ProviderEntry
	}{
		{synth.PrimaryCloud, cfg.Providers.TTS.PrimaryCloud},
		{synth.SecondaryCloud, cfg.Providers.TTS.SecondaryCloud},
		{synth.LocalEngine, cfg.Providers.TTS.Local},
	}
	for _, m := range modes {
		if !m.entry.Configured() {
			continue
		}
		p, err := reg.CreateTTS(m.entry)
		if created("tts", m.entry, err) {
			ps.TTS[m.mode] = p
		}
	}

	if entry := cfg.Providers.TTS.Native; entry.Configured() {
		s, err := reg.CreateSpeaker(entry)
		if created("native", entry, err) {
			ps.Speaker = s
		}
	}

	if ps.STT == nil && ps.LLM == nil && len(ps.TTS) == 0 && ps.Speaker == nil &&
		(len(cfg.Providers.STT) > 0 || len(cfg.Providers.LLM) > 0) {
		return nil, errors.New("no configured provider could be created")
	}
	return ps, nil
}

// created logs the outcome of a factory call and reports whether it produced
// a provider.
func created(kind string, entry config.ProviderEntry, err error) bool {
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("provider not available in this build; skipping", "kind", kind, "provider", entry.Name)
		return false
	case err != nil:
		slog.Error("provider could not be created; skipping", "kind", kind, "provider", entry.Name, "err", err)
		return false
	}
	slog.Info("provider created", "kind", kind, "provider", entry.Name, "model", entry.Model)
	return true
}

// providerLabel renders an entry for the startup summary.
func providerLabel(entry config.ProviderEntry) string {
	switch {
	case !entry.Configured():
		return "(not configured)"
	case entry.Model != "":
		return fmt.Sprintf("%s / %s", entry.Name, entry.Model)
	default:
		return entry.Name
	}
}
