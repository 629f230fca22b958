package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/broadcast"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/config"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/conn"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/dispatch"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/engine"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/httpapi"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/hub"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/identity"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/logging"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/session"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/storage"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/tcp"
)

// Each flag mirrors one environment variable; a flag on the command line
// wins over the environment.
var settings = []struct{ flag, env, usage string }{
	{"service-name", "SERVICE_NAME", "service name reported to clients"},
	{"http-addr", "HTTP_ADDR", "HTTP and websocket listen address"},
	{"tcp-addr", "TCP_ADDR", "binary transport listen address"},
	{"database-url", "DATABASE_URL", "postgres DSN; empty keeps players in memory"},
	{"tick-interval", "TICK_INTERVAL", "fixed simulation step"},
	{"max-catchup-ticks", "MAX_CATCHUP_TICKS", "ticks run at most per scheduler wakeup"},
	{"max-history-ticks", "MAX_HISTORY_TICKS", "snapshots kept per seat"},
	{"action-workers", "ACTION_WORKERS", "seats stepped in parallel per game"},
	{"shutdown-grace", "SHUTDOWN_GRACE", "time allowed for in-flight ticks on shutdown"},
	{"max-frame-bytes", "MAX_FRAME_BYTES", "largest accepted binary frame"},
	{"log-level", "LOG_LEVEL", "debug, info, warn or error"},
	{"log-format", "LOG_FORMAT", "json or console"},
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flags := make([]cli.Flag, 0, len(settings))
	for _, s := range settings {
		flags = append(flags, &cli.StringFlag{Name: s.flag, Usage: s.usage, Sources: cli.EnvVars(s.env)})
	}

	cmd := &cli.Command{
		Name:   "yipee-server",
		Usage:  "real-time session server for towers games",
		Flags:  flags,
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.FromEnv(func(env string) (string, bool) {
		for _, s := range settings {
			if s.env == env {
				v := cmd.String(s.flag)
				return v, v != ""
			}
		}
		return "", false
	})
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ident := identity.New(cfg.ServiceName)
	log = log.With(zap.String("server_id", ident.ServerID()))

	players, err := openPlayers(cfg, log)
	if err != nil {
		return err
	}

	b := broadcast.New(context.Background(), log.Named("broadcast"))
	h := hub.NewHub(ident.ServerID(), engine.NewTowers, hub.Config{
		TickInterval:    cfg.TickInterval,
		MaxCatchUpTicks: cfg.MaxCatchUpTicks,
		Session: session.Config{
			MaxHistoryTicks: cfg.MaxHistoryTicks,
			Workers:         cfg.ActionWorkers,
			Grace:           cfg.ShutdownGrace,
		},
	}, log.Named("hub"), hub.WithTickListener(b.Listener()))
	d := dispatch.New(h, b, conn.NewResolver(), players, ident, log.Named("dispatch"))

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(h, d, log, nil),
		ReadHeaderTimeout: 5 * time.Second,
	}
	tcpSrv := tcp.NewServer(d, cfg.MaxFrameBytes, log)

	shutdown := func() error {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+time.Second)
		defer cancel()
		// No responses leave the process once shutdown starts.
		d.Close()
		var err error
		err = multierr.Append(err, h.Dispose(sctx))
		b.Shutdown()
		err = multierr.Append(err, tcpSrv.Close())
		err = multierr.Append(err, httpSrv.Shutdown(sctx))
		err = multierr.Append(err, players.Close())
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Run(gctx) })
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := tcpSrv.ListenAndServe(cfg.TCPAddr); !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		return shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}

func openPlayers(cfg config.Config, log *zap.Logger) (storage.Storage[storage.Player], error) {
	if cfg.DatabaseURL == "" {
		log.Info("no DATABASE_URL, keeping players in memory")
		return storage.NewMemoryPlayers(), nil
	}
	store, err := storage.OpenPostgres(cfg.DatabaseURL, log.Named("storage"))
	if err != nil {
		return nil, err
	}
	return store, nil
}
