package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"loungeskip/internal/auth"
	"loungeskip/internal/config"
	"loungeskip/internal/fleet"
	"loungeskip/internal/listener"
	"loungeskip/internal/lounge"
	"loungeskip/internal/models"
	"loungeskip/internal/segments"
	"loungeskip/internal/server"
	"loungeskip/internal/store"
	"loungeskip/internal/youtube"
)

func main() {
	cfgPath := envOr("CONFIG_PATH", "./data/config.json")
	dbPath := envOr("DB_PATH", "./data/loungeskip.db")
	listenAddr := envOr("LISTEN_ADDR", ":7938")
	corsOrigin := os.Getenv("CORS_ORIGIN")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatal(err)
	}
	db, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	var meta *youtube.Client
	if cfg.APIKey != "" {
		meta = youtube.New(cfg.APIKey)
	}
	cache := segments.NewCache(segments.NewClient(cfg.SkipCategories), meta, cfg.ChannelWhitelist, cfg.SkipCountTracking)

	sessionOpts := lounge.Options{
		JoinName: cfg.JoinName,
		MuteAds:  cfg.MuteAds,
		SkipAds:  cfg.SkipAds,
		AutoPlay: cfg.AutoPlay,
	}

	var fl *fleet.Fleet
	sink := func(st models.DeviceStatus) { fl.Publish(st) }

	var runners []fleet.Runner
	for _, device := range cfg.Devices {
		session := lounge.New(device.ScreenID, cache, sessionOpts)
		runners = append(runners, listener.New(device, session, cache,
			listener.WithRecorder(db), listener.WithStatusSink(sink)))
	}
	fl = fleet.New(runners)

	authSvc := auth.NewService(cfg.PasswordHash)
	if authSvc.Enabled() {
		log.Println("dashboard password auth enabled")
	} else {
		log.Println("no dashboard password configured — auth disabled")
	}

	opts := []server.Option{
		server.WithFleet(fl),
		server.WithStore(db),
		server.WithAuth(authSvc),
		server.WithPairFunc(pairScreen(cache, sessionOpts)),
	}
	if corsOrigin != "" {
		opts = append(opts, server.WithCORSOrigin(corsOrigin))
	}
	if meta != nil {
		opts = append(opts, server.WithChannelSearcher(meta))
	}
	srv := server.NewServer(cfg, cfgPath, opts...)

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("LoungeSkip dashboard listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	fleetErr := make(chan error, 1)
	go func() {
		fleetErr <- fl.Run(ctx)
	}()

	var fatal error
	select {
	case <-ctx.Done():
	case fatal = <-fleetErr:
	}

	log.Println("Shutting down...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	// Wait for every listener to finish tearing down; exiting early could
	// abandon an outbound command mid-flight.
	if fatal == nil {
		select {
		case fatal = <-fleetErr:
		case <-shutdownCtx.Done():
			log.Println("timed out waiting for device listeners")
		}
	}

	if fatal != nil && !errors.Is(fatal, context.Canceled) {
		log.Printf("fatal: %v", fatal)
		os.Exit(1)
	}
}

// pairScreen runs a one-off pairing exchange for the dashboard.
func pairScreen(segs lounge.SegmentSource, opts lounge.Options) server.PairFunc {
	return func(ctx context.Context, code string) (string, string, error) {
		session := lounge.New("", segs, opts)
		defer session.Close()
		if err := session.Pair(ctx, code); err != nil {
			return "", "", err
		}
		return session.ScreenID(), session.ScreenName(), nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
