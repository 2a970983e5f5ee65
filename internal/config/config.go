// Package config provides the configuration schema, loader, live-reload
// watcher and provider registry for the Friday voice assistant.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Audio        AudioConfig        `yaml:"audio"`
	Recorder     RecorderConfig     `yaml:"recorder"`
	Wake         WakeConfig         `yaml:"wake"`
	Synthesis    SynthesisConfig    `yaml:"synthesis"`
	Playback     PlaybackConfig     `yaml:"playback"`
	Conversation ConversationConfig `yaml:"conversation"`
	Providers    ProvidersConfig    `yaml:"providers"`
}

// ServerConfig holds the observability listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz, /status and
	// /metrics (e.g., "127.0.0.1:9090"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Changes are applied live.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects the capture device and format.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// FrameSize is the number of samples per channel in one captured frame.
	FrameSize int `yaml:"frame_size"`

	// Device is the input device name. Empty selects the system default.
	Device string `yaml:"device"`

	// ReadTimeout bounds a single frame read.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// RecorderConfig holds the endpointing parameters of a voice command.
type RecorderConfig struct {
	MaxDuration time.Duration `yaml:"max_duration"`

	// MinFrames is the shortest utterance, in frames, before silence can end
	// a recording. nil selects the default; zero is allowed.
	MinFrames *int `yaml:"min_frames"`

	SilenceFrames   int `yaml:"silence_frames"`
	EnergyThreshold int `yaml:"energy_threshold"`
}

// WakeConfig configures wake-phrase detection.
type WakeConfig struct {
	// Enabled starts wake detection at startup. nil means true.
	Enabled *bool `yaml:"enabled"`

	Phrases  []string `yaml:"phrases"`
	Patterns []string `yaml:"patterns"`

	// Phonetic enables the sound-alike matching tier. Off unless set.
	Phonetic *bool `yaml:"phonetic"`

	// Sensitivity is one of high, medium or low.
	Sensitivity string `yaml:"sensitivity"`

	Calibration   time.Duration `yaml:"calibration"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	PhraseTimeout time.Duration `yaml:"phrase_timeout"`
	PauseDuration time.Duration `yaml:"pause_duration"`
	Refractory    time.Duration `yaml:"refractory"`
	ErrorBackoff  time.Duration `yaml:"error_backoff"`
	JoinTimeout   time.Duration `yaml:"join_timeout"`
}

// IsEnabled reports whether wake detection starts enabled.
func (w WakeConfig) IsEnabled() bool { return w.Enabled == nil || *w.Enabled }

// PhoneticEnabled reports whether the phonetic tier is on.
func (w WakeConfig) PhoneticEnabled() bool { return w.Phonetic != nil && *w.Phonetic }

// SynthesisConfig configures the text-to-speech fallback chain.
type SynthesisConfig struct {
	// MinAudioBytes is the smallest provider response accepted as speech.
	MinAudioBytes int `yaml:"min_audio_bytes"`

	// Probe checks the starting voice at startup. nil means true.
	Probe *bool `yaml:"probe"`

	Voice VoiceConfig `yaml:"voice"`
}

// ProbeEnabled reports whether the startup probe runs.
func (s SynthesisConfig) ProbeEnabled() bool { return s.Probe == nil || *s.Probe }

// VoiceConfig specifies the default voice.
type VoiceConfig struct {
	// ID is the provider-specific voice identifier.
	ID string `yaml:"id"`

	Name string `yaml:"name"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`

	// PitchShift adjusts pitch in the range [-10, +10]. 0 means default.
	PitchShift float64 `yaml:"pitch_shift"`
}

// PlaybackConfig configures clip playback.
type PlaybackConfig struct {
	// Backends are tried in order: mixer, command, opener.
	Backends []string `yaml:"backends"`

	// CleanupDelay is how long a temporary clip file outlives its playback.
	CleanupDelay time.Duration `yaml:"cleanup_delay"`

	// Timeout bounds one command-line playback.
	Timeout time.Duration `yaml:"timeout"`
}

// ConversationConfig configures history and the responder.
type ConversationConfig struct {
	HistoryLimit int `yaml:"history_limit"`

	// ContextTurns is the number of recent turns quoted to the model. nil
	// selects the default; zero disables the excerpt.
	ContextTurns *int `yaml:"context_turns"`

	// Name is the assistant's name.
	Name string `yaml:"name"`

	// Persona replaces the built-in persona prompt. A %s verb receives Name.
	Persona string `yaml:"persona"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	MinUtteranceBytes int           `yaml:"min_utterance_bytes"`
	CycleTimeout      time.Duration `yaml:"cycle_timeout"`
}

// ProvidersConfig declares the provider chains. Each entry selects a named
// provider registered in the [Registry].
type ProvidersConfig struct {
	// STT lists speech-to-text providers; the first is primary and the rest
	// are fallbacks.
	STT []ProviderEntry `yaml:"stt"`

	// LLM lists responder backends in fallback order.
	LLM []ProviderEntry `yaml:"llm"`

	TTS TTSProviders `yaml:"tts"`
}

// TTSProviders assigns a provider to each synthesis mode. An entry with an
// empty name leaves the mode unconfigured.
type TTSProviders struct {
	PrimaryCloud   ProviderEntry `yaml:"primary_cloud"`
	SecondaryCloud ProviderEntry `yaml:"secondary_cloud"`
	Local          ProviderEntry `yaml:"local"`

	// Native selects the operating-system speech engine.
	Native ProviderEntry `yaml:"native"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// ${VAR} references are expanded from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// Configured reports whether the entry names a provider.
func (e ProviderEntry) Configured() bool { return e.Name != "" }

// OptionString returns the option value for key as a string, or "".
func (e ProviderEntry) OptionString(key string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return ""
}
