//go:build !whispercpp

package main

import "github.com/MrWong99/friday/internal/config"

// registerNativeWhisper is a no-op without the whispercpp build tag; a
// whisper-native entry is then reported as not available in this build.
func registerNativeWhisper(*config.Registry) {}
