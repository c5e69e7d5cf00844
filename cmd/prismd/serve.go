package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/prismwall/prismd/internal/config"
	"github.com/prismwall/prismd/internal/db"
	"github.com/prismwall/prismd/internal/grpcapi"
	"github.com/prismwall/prismd/internal/httpapi"
	"github.com/prismwall/prismd/internal/lane"
	"github.com/prismwall/prismd/internal/logging"
	"github.com/prismwall/prismd/internal/prism/notify"
	"github.com/prismwall/prismd/internal/prism/schedule"
	"github.com/prismwall/prismd/internal/prism/service"
	sqlitestore "github.com/prismwall/prismd/internal/prism/store/sqlite"
	"github.com/prismwall/prismd/internal/prism/types"
	"github.com/prismwall/prismd/internal/prism/wallpaper"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the broker daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, logFile := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer logFile.Close()
	ctx = logging.WithContext(ctx, logger)

	l := lane.New(cfg.LaneQueueSize)
	defer l.Close()

	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if cfg.Env == "dev" && len(cfg.PreapprovedCallers) > 0 {
		if err := db.SeedDev(ctx, sqlDB, db.SeedDevOptions{PreapprovedCallers: cfg.PreapprovedCallers}); err != nil {
			return fmt.Errorf("seed dev: %w", err)
		}
	}

	writer := db.NewWorker(sqlDB, l)
	grants := service.NewGrantFeed(sqlitestore.NewGrantStore(sqlDB, writer), logging.WithComponent(logger, "grants"))
	settings := sqlitestore.NewSettingsStore(sqlDB, writer)

	platform := newPlatform(cfg.Platform)
	adapter := wallpaper.NewAdapter(platform, cfg.CacheDir, l, logging.WithComponent(logger, "wallpaper"))
	resolver := wallpaper.NewResolver()

	sink, dbusSink := newSink(ctx, cfg, logger)
	if dbusSink != nil {
		defer dbusSink.Close()
	}

	flow := service.NewApprovalFlow(
		service.ApprovalConfig{NotificationsEnabled: cfg.Notifications.Enabled},
		grants, settings, sink, l, logging.WithComponent(logger, "approval"),
	)
	broker := service.NewBroker(
		service.BrokerConfig{SelfIdentity: cfg.SelfIdentity},
		grants, adapter, flow, l, logging.WithComponent(logger, "broker"),
	)
	receiver := service.NewApprovalReceiver(flow, logging.WithComponent(logger, "approval"))
	changes := service.NewChangeNotifier(resolver)
	syncer := service.NewStateSyncer(broker, changes, grants, cfg.SelfIdentity, logging.WithComponent(logger, "state"))

	sched := schedule.New(logging.WithComponent(logger, "schedule"))
	defer sched.Close()

	triggers := cfg.Platform.Triggers
	if len(triggers) == 0 {
		triggers = parentDirs(platform.WatchPaths())
	}
	job := service.NewWallpaperJob(sched, schedule.ContentTrigger{Paths: triggers}, resolver, l, logging.WithComponent(logger, "job"))
	if err := job.Schedule(); err != nil {
		return fmt.Errorf("schedule wallpaper job: %w", err)
	}

	broadcast := wallpaper.NewChangeBroadcastReceiver(platform.WatchPaths(), resolver, logging.WithComponent(logger, "broadcast"))
	if err := broadcast.Register(); err != nil {
		logger.Warn().Err(err).Msg("wallpaper change broadcast unavailable")
	} else {
		defer func() { _ = broadcast.Unregister() }()
	}

	identifier, err := httpapi.NewProcIdentifier(cfg.SelfIdentity, cfg.Env == "dev")
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}

	httpSrv := httpapi.NewServer(httpapi.Dependencies{
		Logger:    logging.WithComponent(logger, "http"),
		Identity:  identifier,
		Broker:    broker,
		Grants:    service.NewGrantService(grants, l, logging.WithComponent(logger, "grants")),
		GrantFeed: grants,
		Approvals: receiver,
		Flow:      flow,
		Changes:   changes,
		State:     syncer,
	})
	grpcSrv := grpcapi.NewServer(logging.WithComponent(logger, "grpc"))

	listeners, err := listen(cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, ln := range listeners.http {
		logger.Info().Str("addr", ln.Addr().String()).Msg("http listening")
		g.Go(func() error { return httpSrv.Serve(ln) })
	}
	if listeners.grpc != nil {
		logger.Info().Str("addr", listeners.grpc.Addr().String()).Msg("grpc health listening")
		g.Go(func() error { return grpcSrv.Serve(listeners.grpc) })
	}

	g.Go(func() error { return syncer.Run(gctx) })

	if dbusSink != nil {
		g.Go(func() error {
			err := dbusSink.Listen(gctx, func(m types.ApprovalMessage) {
				receiver.Dispatch(gctx, m)
			})
			if err != nil {
				logger.Warn().Err(err).Msg("notification actions unavailable; use `prismd approve`")
			}
			return nil
		})
	}

	grpcSrv.SetServing(true)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		grpcSrv.Shutdown(sctx)
		err := httpSrv.Shutdown(sctx)
		receiver.Wait()
		broker.Wait()
		return err
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type listenerSet struct {
	http []net.Listener
	grpc net.Listener
}

func listen(cfg config.Config) (listenerSet, error) {
	var ls listenerSet
	fail := func(err error) (listenerSet, error) {
		for _, l := range ls.http {
			_ = l.Close()
		}
		return listenerSet{}, err
	}

	if cfg.SocketPath != "" {
		ln, err := httpapi.ListenUnix(cfg.SocketPath)
		if err != nil {
			return fail(fmt.Errorf("listen %s: %w", cfg.SocketPath, err))
		}
		ls.http = append(ls.http, ln)
	}
	if cfg.HTTPAddr != "" {
		ln, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return fail(fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err))
		}
		ls.http = append(ls.http, ln)
	}
	if cfg.GRPCAddr != "" {
		ln, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fail(fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err))
		}
		ls.grpc = ln
	}
	return ls, nil
}

func newPlatform(cfg config.PlatformConfig) wallpaper.Platform {
	if cfg.Kind == "gnome" {
		return wallpaper.NewGnomePlatform(cfg.DefaultPath)
	}
	return &wallpaper.FilePlatform{
		LockPath:    cfg.LockPath,
		HomePath:    cfg.HomePath,
		DefaultPath: cfg.DefaultPath,
	}
}

// newSink prefers the desktop notification server and falls back to the log.
func newSink(ctx context.Context, cfg config.Config, logger zerolog.Logger) (notify.Sink, *notify.DBusSink) {
	log := logging.WithComponent(logger, "notify")

	s, err := notify.ConnectDBusSink(ctx, cfg.SelfIdentity, log)
	if err != nil {
		log.Warn().Err(err).Msg("desktop notifications unavailable; prompts go to the log")
		return notify.LogSink{Logger: log}, nil
	}
	return s, s
}

func parentDirs(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	var out []string
	for _, p := range paths {
		d := filepath.Dir(p)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
