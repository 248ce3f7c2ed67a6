package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/behavior-twin/internal/pipeline"
	"github.com/danielpatrickdp/behavior-twin/internal/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the twin over gRPC and save it periodically",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return serve(ctx, a)
	},
}

// #region serve
func serve(ctx context.Context, a *app) error {
	lis, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Server.Addr, err)
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary(a.logger)))
	rpc.RegisterTwinServiceServer(srv, rpc.NewServer(a.pipeline, a.logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("grpc listening", "addr", lis.Addr().String())
		return srv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		srv.GracefulStop()
		return nil
	})
	g.Go(func() error {
		saveLoop(gctx, a.pipeline, a.cfg.Storage.SaveInterval, a.logger)
		return nil
	})
	err = g.Wait()

	// final save uses a fresh context since ctx is already cancelled
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, serr := a.pipeline.Save(saveCtx); serr != nil {
		a.logger.Error("final save failed", "error", serr)
	}
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// saveLoop commits the twin every interval until ctx is done. Failed saves
// are logged and retried on the next tick.
func saveLoop(ctx context.Context, p *pipeline.Pipeline, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			version, err := p.Save(ctx)
			if err != nil {
				logger.Warn("periodic save failed", "error", err)
				continue
			}
			logger.Debug("twin saved", "version", version)
		}
	}
}

func logUnary(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("rpc", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		return resp, err
	}
}
// #endregion serve
