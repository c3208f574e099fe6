// SPDX-License-Identifier: MIT

// Command daemon indexes Reolink camera recordings and serves them over
// HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/reovod/reovod/internal/api"
	"github.com/reovod/reovod/internal/cache"
	"github.com/reovod/reovod/internal/config"
	"github.com/reovod/reovod/internal/log"
	"github.com/reovod/reovod/internal/reolink"
	"github.com/reovod/reovod/internal/store"
	"github.com/reovod/reovod/internal/version"
	"github.com/reovod/reovod/internal/vod"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	log.Configure(log.Config{
		Level:   "info",
		Service: "reovod",
		Version: version.Version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path resolution: --config wins, otherwise pick up
	// ${REOVOD_DATA}/config.yaml when it exists.
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := strings.TrimSpace(os.Getenv("REOVOD_DATA"))
		if dataDir == "" {
			dataDir = "/var/lib/reovod"
		}
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectivePath = autoPath
		}
	}

	loader := config.NewLoader(effectivePath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str(log.FieldPath, effectivePath).
			Msg("failed to load configuration")
	}
	log.Reconfigure(log.Config{
		Level:   cfg.LogLevel,
		Service: "reovod",
		Version: version.Version,
	})

	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("listen", cfg.Listen).
		Int("cameras", len(cfg.Cameras)).
		Msg("starting reovod")
	logger.Info().Msg(cfg.String())

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "store.open_failed").
			Str(log.FieldPath, cfg.DataDir).
			Msg("failed to open recording store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	responses := buildResponseCache(cfg, logger)

	specs := make([]vod.CameraSpec, 0, len(cfg.Cameras))
	clients := make([]*reolink.Client, 0, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		client := reolink.New(reolink.Config{
			Name:      cam.Name,
			BaseURL:   cam.BaseURL,
			Username:  cam.Username,
			Password:  cam.Password,
			Timeout:   cam.Timeout,
			RateLimit: cam.RateLimit,
			RateBurst: cam.RateBurst,
		}, log.WithComponent("reolink").With().Str(log.FieldCamera, cam.Name).Logger())
		clients = append(clients, client)
		channels := cam.Channels
		if len(channels) == 0 {
			channels = discoverChannels(ctx, client, cam.Name, logger)
		}
		specs = append(specs, vod.CameraSpec{
			Name:     cam.Name,
			Device:   client,
			Channels: channels,
			Stream:   vod.StreamType(cam.Stream),
			Backfill: cfg.BackfillMonths,
		})
	}
	defer func() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, c := range clients {
			if err := c.Close(logoutCtx); err != nil {
				logger.Debug().Err(err).Msg("camera logout failed")
			}
		}
	}()

	svc := vod.New(specs, vod.Options{
		Store:           st,
		RefreshInterval: cfg.RefreshInterval,
	})
	if err := svc.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("cache restore failed, starting cold")
	}

	srv := api.New(svc, responses, api.Options{
		RateRPM:        cfg.APIRateRPM,
		RefreshRPM:     cfg.RefreshRPM,
		SnapshotTTL:    cfg.SnapshotTTL,
		TrustedProxies: cfg.TrustedProxies,
		Version:        version.Version,
	})

	watcher := config.NewWatcher(configWatchPath(effectivePath, cfg.DataDir), logger, func() {
		logger.Warn().
			Str(log.FieldEvent, "config.changed").
			Msg("config file changed, restart to apply")
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(ctx, func() { srv.SetReady(true) })
	})
	g.Go(func() error {
		return srv.Serve(ctx, cfg.Listen)
	})
	g.Go(func() error {
		st.RunGC(ctx, time.Hour)
		return nil
	})
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	if err := g.Wait(); err != nil && !isShutdown(err) {
		logger.Fatal().Err(err).Msg("daemon failed")
	}
	logger.Info().Msg("server exiting")
}

// discoverChannels asks the device which channels exist. NVRs report every
// port; offline channels are still indexed so footage from a camera that
// dropped out stays reachable.
func discoverChannels(ctx context.Context, client *reolink.Client, camera string, logger zerolog.Logger) []int {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	statuses, err := client.ChannelStatuses(queryCtx)
	if err != nil {
		logger.Warn().
			Err(err).
			Str(log.FieldCamera, camera).
			Msg("channel discovery failed, assuming channel 0")
		return []int{0}
	}
	channels := make([]int, 0, len(statuses))
	for _, st := range statuses {
		channels = append(channels, st.Channel)
	}
	if len(channels) == 0 {
		return []int{0}
	}
	logger.Info().
		Str(log.FieldCamera, camera).
		Ints("channels", channels).
		Msg("discovered channels")
	return channels
}

func configWatchPath(explicit, dataDir string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(dataDir, "config.yaml")
}

// buildResponseCache prefers Redis when configured and falls back to the
// in-process cache when Redis is unreachable.
func buildResponseCache(cfg config.AppConfig, logger zerolog.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory(time.Minute)
	}
	redisCache, err := cache.NewRedis(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "cache.redis_unavailable").
			Msg("redis unavailable, using in-memory cache")
		return cache.NewMemory(time.Minute)
	}
	return redisCache
}

func isShutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
