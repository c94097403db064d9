package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/maciej-or/hikvision-next/internal/api"
	"github.com/maciej-or/hikvision-next/internal/bridge"
	"github.com/maciej-or/hikvision-next/internal/config"
	"github.com/maciej-or/hikvision-next/internal/device"
)

const serviceName = "hikvisiond"

func defaultConfigPath() string {
	if p := os.Getenv("HIKVISIOND_CONFIG"); p != "" {
		return p
	}
	return "/etc/hikvisiond/config.yaml"
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the config file")
	flag.Parse()

	// Humans get the console writer, collectors get JSON.
	var out io.Writer = os.Stdout
	if fi, err := os.Stdout.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	log := zerolog.New(out).With().Timestamp().Logger()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("could not load config")
	}
	if level, perr := zerolog.ParseLevel(cfg.LogLevel); perr == nil {
		log = log.Level(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. NATS (optional; without it events only reach the local stream)
	var pub *bridge.Publisher
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(serviceName))
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("could not connect to NATS")
		}
		defer nc.Close()
		pub = bridge.NewPublisher(nc, cfg.NATS.Subject, cfg.NATS.MaxRetries)
		log.Info().Str("subject", cfg.NATS.Subject).Msg("publishing events to NATS")
	}

	// 3. Bridge + devices
	notifier := bridge.NewNotifier()
	dedup := bridge.NewDedup(cfg.Dedup.Size, cfg.Dedup.Window.Std())

	mgr := device.NewManager(cfg.ExternalURL, log)
	mgr.Apply(ctx, cfg.Devices)

	eventsPoller := device.NewEventsPoller(mgr, device.PollerConfig{Interval: cfg.Poll.Events.Std()}, log)
	eventsPoller.Start()
	infrequentPoller := device.NewInfrequentPoller(mgr, device.PollerConfig{Interval: cfg.Poll.Infrequent.Std()}, log)
	infrequentPoller.Start()

	// Config reloads add and remove devices without a restart.
	config.Watch(ctx, *configPath, log, func(next *config.Config) {
		mgr.Apply(ctx, next.Devices)
	})

	// 4. HTTP surface
	server := api.NewServer(mgr, notifier, pub, dedup, cfg.Dedup.Window.Std(), log)
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("hikvisiond listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	eventsPoller.Stop()
	infrequentPoller.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}
