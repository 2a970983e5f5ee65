package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/friday/internal/playback"
	"github.com/MrWong99/friday/internal/recorder"
	"github.com/MrWong99/friday/internal/wake"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":    {"whisper", "whisper-native", "deepgram", "openai"},
	"llm":    {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":    {"elevenlabs", "openai", "coqui"},
	"native": {"native"},
}

// Defaults not owned by a component package.
const (
	DefaultSampleRate        = 16000
	DefaultChannels          = 1
	DefaultFrameSize         = 1024
	DefaultReadTimeout       = time.Second
	DefaultJoinTimeout       = 2 * time.Second
	DefaultMinAudioBytes     = 1000
	DefaultCleanupDelay      = 2 * time.Second
	DefaultPlaybackTimeout   = time.Minute
	DefaultHistoryLimit      = 20
	DefaultContextTurns      = 5
	DefaultAssistantName     = "FRIDAY"
	DefaultMinUtteranceBytes = 1000
	DefaultCycleTimeout      = 2 * time.Minute
)

// DefaultBackends is the playback backend order used when none is configured.
var DefaultBackends = []string{playback.BackendMixer, playback.BackendCommand, playback.BackendOpener}

// envRef matches ${NAME}. Bare $NAME is left alone so that regular
// expressions in wake patterns keep their anchors.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references, decodes a YAML config from r,
// fills in defaults and validates the result. Unknown fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	data = ExpandEnv(data)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces ${VAR} references in data with the value of the
// environment variable VAR. Unset variables expand to the empty string.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// ApplyDefaults fills every unset field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	a := &cfg.Audio
	setDefault(&a.SampleRate, DefaultSampleRate)
	setDefault(&a.Channels, DefaultChannels)
	setDefault(&a.FrameSize, DefaultFrameSize)
	setDefault(&a.ReadTimeout, DefaultReadTimeout)

	rd := recorder.DefaultConfig()
	rec := &cfg.Recorder
	setDefault(&rec.MaxDuration, rd.MaxDuration)
	setDefault(&rec.SilenceFrames, rd.SilenceFrames)
	setDefault(&rec.EnergyThreshold, rd.EnergyThreshold)
	if rec.MinFrames == nil {
		rec.MinFrames = &rd.MinFrames
	}

	wd := wake.DefaultConfig()
	w := &cfg.Wake
	if w.Phrases == nil {
		w.Phrases = slices.Clone(wake.DefaultPhrases)
	}
	if w.Patterns == nil {
		w.Patterns = slices.Clone(wake.DefaultPatterns)
	}
	setDefault(&w.Sensitivity, string(wd.Sensitivity))
	setDefault(&w.Calibration, wd.Calibration)
	setDefault(&w.PollTimeout, wd.PollTimeout)
	setDefault(&w.PhraseTimeout, wd.PhraseTimeout)
	setDefault(&w.PauseDuration, wd.PauseDuration)
	setDefault(&w.Refractory, wd.Refractory)
	setDefault(&w.ErrorBackoff, wd.ErrorBackoff)
	setDefault(&w.JoinTimeout, DefaultJoinTimeout)

	setDefault(&cfg.Synthesis.MinAudioBytes, DefaultMinAudioBytes)

	p := &cfg.Playback
	if len(p.Backends) == 0 {
		p.Backends = slices.Clone(DefaultBackends)
	}
	setDefault(&p.CleanupDelay, DefaultCleanupDelay)
	setDefault(&p.Timeout, DefaultPlaybackTimeout)

	c := &cfg.Conversation
	setDefault(&c.HistoryLimit, DefaultHistoryLimit)
	if c.ContextTurns == nil {
		n := DefaultContextTurns
		c.ContextTurns = &n
	}
	setDefault(&c.Name, DefaultAssistantName)
	setDefault(&c.MinUtteranceBytes, DefaultMinUtteranceBytes)
	setDefault(&c.CycleTimeout, DefaultCycleTimeout)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 0 && cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}

	// Recorder
	if cfg.Recorder.MinFrames != nil && *cfg.Recorder.MinFrames < 0 {
		errs = append(errs, fmt.Errorf("recorder.min_frames %d must not be negative", *cfg.Recorder.MinFrames))
	}
	if cfg.Recorder.EnergyThreshold < 0 || cfg.Recorder.EnergyThreshold > 32767 {
		errs = append(errs, fmt.Errorf("recorder.energy_threshold %d is out of range [0, 32767]", cfg.Recorder.EnergyThreshold))
	}

	// Wake
	if cfg.Wake.Sensitivity != "" {
		if _, err := wake.ParseSensitivity(cfg.Wake.Sensitivity); err != nil {
			errs = append(errs, fmt.Errorf("wake.sensitivity %q is invalid; valid values: high, medium, low", cfg.Wake.Sensitivity))
		}
	}
	for i, p := range cfg.Wake.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("wake.patterns[%d]: %w", i, err))
		}
	}
	if cfg.Wake.IsEnabled() && cfg.Wake.Phrases != nil && len(cfg.Wake.Phrases) == 0 && len(cfg.Wake.Patterns) == 0 {
		errs = append(errs, errors.New("wake: at least one phrase or pattern is required when wake detection is enabled"))
	}

	// Synthesis voice
	v := cfg.Synthesis.Voice
	if v.SpeedFactor != 0 && (v.SpeedFactor < 0.5 || v.SpeedFactor > 2.0) {
		errs = append(errs, fmt.Errorf("synthesis.voice.speed_factor %.2f is out of range [0.5, 2.0]", v.SpeedFactor))
	}
	if v.PitchShift < -10 || v.PitchShift > 10 {
		errs = append(errs, fmt.Errorf("synthesis.voice.pitch_shift %.2f is out of range [-10, 10]", v.PitchShift))
	}

	// Playback
	for i, b := range cfg.Playback.Backends {
		if !slices.Contains(DefaultBackends, b) {
			errs = append(errs, fmt.Errorf("playback.backends[%d] %q is invalid; valid values: mixer, command, opener", i, b))
		}
	}

	// Conversation
	if cfg.Conversation.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("conversation.history_limit %d must not be negative", cfg.Conversation.HistoryLimit))
	}
	if t := cfg.Conversation.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("conversation.temperature %.2f is out of range [0, 2]", t))
	}

	// Providers
	for i, e := range cfg.Providers.STT {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt[%d].name is required", i))
		}
		validateProviderName("stt", e.Name)
	}
	for i, e := range cfg.Providers.LLM {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm[%d].name is required", i))
		}
		validateProviderName("llm", e.Name)
	}
	tts := cfg.Providers.TTS
	validateProviderName("tts", tts.PrimaryCloud.Name)
	validateProviderName("tts", tts.SecondaryCloud.Name)
	validateProviderName("tts", tts.Local.Name)
	validateProviderName("native", tts.Native.Name)

	if len(cfg.Providers.LLM) == 0 {
		slog.Warn("no LLM provider configured; replies will fail")
	}
	if len(cfg.Providers.STT) == 0 {
		slog.Warn("no STT provider configured; only typed input will work")
	}
	if !tts.PrimaryCloud.Configured() && !tts.SecondaryCloud.Configured() && !tts.Local.Configured() && !tts.Native.Configured() {
		slog.Warn("no TTS provider configured; replies will be text only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
