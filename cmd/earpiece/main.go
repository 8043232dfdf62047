// Earpiece - voice bridge client for a remote conversational agent.
// Streams microphone audio up, plays synthesized speech back, and
// surfaces whispered stage directions on a local dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/earshot-ai/go-earpiece/internal/config"
	"github.com/earshot-ai/go-earpiece/internal/log"
	"github.com/earshot-ai/go-earpiece/pkg/audioio"
	"github.com/earshot-ai/go-earpiece/pkg/bridge"
	"github.com/earshot-ai/go-earpiece/pkg/web"
)

type options struct {
	bridge  bridge.Config
	webUI   bool
	webPort string
}

func main() {
	opts := parseFlags()

	session, err := bridge.New(opts.bridge, bridge.WithLogger(log.L()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var server *web.Server
	if opts.webUI {
		server = web.NewServer(opts.webPort, session, log.L())
		server.StartAsync()
	}

	if err := session.Start(ctx); err != nil {
		log.Error("session start failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("shutting down")

	if err := session.Stop(); err != nil {
		log.Error("session stop failed", "error", err)
	}
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("dashboard shutdown failed", "error", err)
		}
	}
}

// parseFlags parses command line flags and environment into options.
func parseFlags() options {
	_ = godotenv.Load()

	cfg := bridge.DefaultConfig()

	url := flag.String("url", "", "Bridge websocket URL (overrides BRIDGE_URL env var)")
	backend := flag.String("backend", "", "Audio backend: auto, portaudio, mock (overrides AUDIO_BACKEND)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	webUI := flag.Bool("web", true, "Enable the local dashboard")
	webPort := flag.String("web-port", "", "Dashboard port (overrides WEB_PORT)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	level := config.LogLevel()
	if *logLevel != "" {
		level = *logLevel
	}
	if *debug {
		level = "debug"
	}
	log.Init(level)

	cfg.URL = config.BridgeURL(cfg.URL)
	if *url != "" {
		cfg.URL = *url
	}

	ab := config.AudioBackend()
	if *backend != "" {
		ab = *backend
	}
	if ab != "" {
		cfg.Capture.Backend = audioio.Backend(ab)
		cfg.Playback.Backend = audioio.Backend(ab)
	}

	port := config.WebPort()
	if *webPort != "" {
		port = *webPort
	}

	return options{
		bridge:  cfg,
		webUI:   *webUI,
		webPort: port,
	}
}
