package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jandubois/healthmon/internal/config"
	"github.com/jandubois/healthmon/internal/db"
	"github.com/jandubois/healthmon/internal/metrics"
	"github.com/jandubois/healthmon/internal/monitor"
	"github.com/jandubois/healthmon/internal/notify"
	"github.com/jandubois/healthmon/internal/publish"
	"github.com/jandubois/healthmon/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor and the health API",
	Long: `Serve runs one health check cycle before listening, then refreshes every
target on the configured interval and serves the latest snapshot over HTTP.

Committed snapshots are also written to SQLite, published to Redis and
turned into notifications when those are configured.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().String("auth-token", "", "Token for /health/check (or AUTH_TOKEN env)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		cancel()
	}()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if token, _ := cmd.Flags().GetString("auth-token"); token != "" {
		cfg.Server.AuthToken = token
	} else if cfg.Server.AuthToken == "" {
		cfg.Server.AuthToken = os.Getenv("AUTH_TOKEN")
	}

	var observers []monitor.Observer

	if cfg.Database != "" {
		database, err := db.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer database.Close()
		observers = append(observers, db.NewSnapshotWriter(database))
	}

	if cfg.Redis.Addr != "" {
		client, err := publish.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer client.Close()
		observers = append(observers, publish.NewRedisPublisher(client, cfg.Redis.Key, cfg.Redis.Channel))
	}

	dispatcher := notify.NewDispatcher(notifyChannels(cfg)...)
	dispatcher.LinkBase = cfg.Notify.LinkBase
	if dispatcher.Len() > 0 {
		observers = append(observers, dispatcher)
		defer dispatcher.Wait()
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)
	observers = append(observers, m)

	mon, err := buildMonitor(cfg, monitor.Options{
		Observers:    observers,
		OnCycleError: m.CycleFailed,
	})
	if err != nil {
		return err
	}

	slog.Info("starting health monitor",
		"targets", mon.Registry().Len(),
		"interval", cfg.Monitor.Interval,
		"observers", len(observers),
	)
	if err := mon.Start(ctx); err != nil {
		return err
	}

	server := web.NewServer(mon, &cfg.Server, m.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mon.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return server.Run(gctx)
	})
	return g.Wait()
}

func notifyChannels(cfg *config.Config) []notify.Channel {
	var channels []notify.Channel
	for _, n := range cfg.Notify.Ntfy {
		channels = append(channels, notify.NewNtfyChannel(n.ServerURL, n.Topic, n.Token))
	}
	for _, p := range cfg.Notify.Pushover {
		channels = append(channels, notify.NewPushoverChannel(p.APIToken, p.UserKey))
	}
	return channels
}
