// Package config provides configuration helpers for go-earpiece commands.
package config

import (
	"os"
)

// Defaults for the bridge endpoint.
const (
	DefaultBridgeURL = "ws://localhost:8000/ws"
	DefaultWebPort   = "9090"
)

// BridgeURL returns the bridge websocket URL from the BRIDGE_URL env var.
// Falls back to the provided default if not set.
func BridgeURL(defaultURL string) string {
	if url := os.Getenv("BRIDGE_URL"); url != "" {
		return url
	}
	if defaultURL != "" {
		return defaultURL
	}
	return DefaultBridgeURL
}

// WebPort returns the dashboard port from the WEB_PORT env var or default.
func WebPort() string {
	if port := os.Getenv("WEB_PORT"); port != "" {
		return port
	}
	return DefaultWebPort
}

// LogLevel returns the log level from the LOG_LEVEL env var or "info".
func LogLevel() string {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		return level
	}
	return "info"
}

// AudioBackend returns the audio backend from the AUDIO_BACKEND env var.
// Empty means automatic selection.
func AudioBackend() string {
	return os.Getenv("AUDIO_BACKEND")
}
