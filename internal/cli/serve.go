// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/rigrun-router/internal/oracle"
	"github.com/jeranaias/rigrun-router/internal/server"
)

// shutdownTimeout bounds the wait for in-flight requests.
const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the routing HTTP API",
		Long: `Serve exposes the router under /api/v1/routing, the job pipeline on
/api/v1/jobs and Prometheus metrics on /metrics. Ended sessions are swept
from memory periodically, and the routing table file is reloaded when it
changes if oracle.watch is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = a.cfg.Server.Listen
			}
			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), ln)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

// serve runs the API on ln until ctx is done.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	rt, err := a.Router(ctx)
	if err != nil {
		ln.Close()
		return err
	}
	store, err := a.Store(ctx)
	if err != nil {
		ln.Close()
		return err
	}

	src, err := oracle.NewSource(a.cfg.Oracle.Path, a.logger)
	if err != nil {
		ln.Close()
		return err
	}
	pipeline, err := a.Pipeline(ctx, src)
	if err != nil {
		ln.Close()
		return err
	}

	srv := server.New(rt, store, server.Config{
		Listen:    ln.Addr().String(),
		RateLimit: a.cfg.Server.RateLimit,
		Burst:     a.cfg.Server.Burst,
		Offline:   a.cfg.Cloud.Offline,
	},
		server.WithLogger(a.logger),
		server.WithMetrics(a.Metrics(), prometheus.DefaultGatherer),
		server.WithJobs(pipeline),
	)

	g, gctx := errgroup.WithContext(ctx)

	sessCfg := rt.Sessions().Config()
	stopSweeper := rt.Sessions().StartSweeper(gctx, sessCfg.SweepInterval, sessCfg.MaxAge)
	defer stopSweeper()

	if a.cfg.Oracle.Watch {
		g.Go(func() error {
			if err := src.Watch(gctx); err != nil {
				// Jobs keep using the table already loaded.
				a.logger.Warn("routing table watch stopped", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if !a.opts.jsonOut {
		a.println(a.styles.Status("ok"), "serving on", "http://"+ln.Addr().String()+server.APIPrefix)
	}
	return g.Wait()
}
