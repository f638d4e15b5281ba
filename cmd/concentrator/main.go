// Command concentrator is the CLI entrypoint: it wires config → logger →
// listener → dispatcher → workers → Sentinel watcher and drives shutdown
// on OS signal.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bubulemaster/redis-concentrator/internal/applog"
	"github.com/bubulemaster/redis-concentrator/internal/config"
	"github.com/bubulemaster/redis-concentrator/internal/dispatcher"
	"github.com/bubulemaster/redis-concentrator/internal/netstream"
	"github.com/bubulemaster/redis-concentrator/internal/sentinelwatch"
	"github.com/bubulemaster/redis-concentrator/internal/worker"
)

func main() {
	root := &cobra.Command{
		Use:           "concentrator <config-file>",
		Short:         "Transparent TCP concentrator in front of a sentinel-managed kv store",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  false,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger, err := applog.New(false)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer logger.Sync()

	applog.PrintBanner(cfg.Log.Logo)

	watcher := sentinelwatch.New(cfg.Sentinels.Address, cfg.GroupName, logger)

	discoverCtx, cancelDiscover := context.WithTimeout(context.Background(), cfg.SentinelTimeout())
	defer cancelDiscover()
	primary, err := watcher.DiscoverPrimary(discoverCtx)
	if err != nil {
		return fmt.Errorf("initial primary discovery failed: %w", err)
	}
	logger.Info("discovered initial primary", zap.String("primary", primary))

	listener, err := net.Listen("tcp", cfg.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s failed: %w", cfg.Bind, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
		listener.Close()
	}()

	d := dispatcher.New(primary, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.Run(gctx)
		return nil
	})

	for i := 0; i < cfg.Workers.Pool.Min; i++ {
		id := i
		g.Go(func() error {
			worker.Run(gctx, id, d.Events, logger)
			return nil
		})
	}

	g.Go(func() error {
		return watcher.Run(gctx, d.Events)
	})

	g.Go(func() error {
		return acceptLoop(gctx, listener, d)
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return fmt.Errorf("fatal: %w", err)
	}
	return nil
}

// acceptLoop's only job, per spec §5, is to block in Accept and post a
// NewClient event: opening the upstream connection is the dispatcher's
// job (Dispatcher.onNewClient), not the acceptor's, so this loop never
// blocks on anything but the listener and the event channel.
func acceptLoop(ctx context.Context, listener net.Listener, d *dispatcher.Dispatcher) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		pc := &dispatcher.PendingClient{
			Client:     netstream.New(conn),
			RemoteAddr: conn.RemoteAddr(),
		}

		select {
		case d.Events <- dispatcher.NewClientEvent(pc):
		case <-ctx.Done():
			pc.Client.Close()
			return nil
		}
	}
}
