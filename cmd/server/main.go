package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/exp/slog"

	"github.com/atharv3903/routeplay/internal/api"
	"github.com/atharv3903/routeplay/internal/cache"
	"github.com/atharv3903/routeplay/internal/config"
	"github.com/atharv3903/routeplay/internal/logging"
	"github.com/atharv3903/routeplay/internal/playback"
	"github.com/atharv3903/routeplay/internal/publish"
	"github.com/atharv3903/routeplay/internal/upstream"
)

func main() {
	cfg, err := config.Load("server", os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(2)
	}

	log := logging.New(os.Stderr, cfg.Log.Level)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("config", "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, release, err := cfg.Dataset.Open(ctx)
	if err != nil {
		log.Error("open dataset", "source", cfg.Dataset.Kind(), "err", err)
		os.Exit(1)
	}
	data, err := src.Load(ctx)
	release()
	if err != nil {
		log.Error("load dataset", "source", cfg.Dataset.Kind(), "err", err)
		os.Exit(1)
	}
	log.Info("dataset loaded", "source", cfg.Dataset.Kind(), "vertices", data.Size())

	up := upstream.New(cfg.Upstream.BaseURL)
	up.HTTP.Timeout = cfg.Upstream.Timeout
	up.IncidentField = cfg.Upstream.IncidentField
	up.Aliases = cfg.Upstream.Aliases
	up.Log = log

	var pub publish.Publisher = publish.Nop{}
	if cfg.MQTT.Broker != "" {
		m, err := publish.Dial(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic, log)
		if err != nil {
			log.Error("mqtt", "err", err)
			os.Exit(1)
		}
		pub = m
	}
	defer pub.Close()

	srv := api.New(data.Coords, up,
		api.WithCache(cache.NewRouteCacheWithCap(cfg.Cache.Capacity)),
		api.WithReserved(cfg.ReservedSet()),
		api.WithPublisher(pub),
		api.WithLogger(log),
		api.WithPlayback(
			playback.WithStep(cfg.Playback.Step),
			playback.WithFrameInterval(cfg.Playback.Frame),
			playback.WithPauseDuration(cfg.Playback.Pause),
		),
	)

	hs := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hs.Shutdown(shutdown)
	}()

	log.Info("ROUTEPLAY listening", "addr", cfg.Server.Addr, "upstream", cfg.Upstream.BaseURL)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("serve", "err", err)
		os.Exit(1)
	}
}
