//go:build whispercpp

package main

import (
	"github.com/MrWong99/friday/internal/config"
	"github.com/MrWong99/friday/pkg/provider/stt"
	"github.com/MrWong99/friday/pkg/provider/stt/whisper"
)

// registerNativeWhisper registers the in-process whisper.cpp transcriber.
func registerNativeWhisper(reg *config.Registry) {
	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptionString("model_path")
		}
		var opts []whisper.NativeOption
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})
}
