package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/app"
	"github.com/lyallcooper/reclaim/internal/webfs"
)

var serveOpts struct {
	port int
	bind string
	dust string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server and scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVarP(&serveOpts.port, "port", "p", 0, "port to listen on (default RECLAIM_PORT or 3001)")
	serveCmd.Flags().StringVar(&serveOpts.bind, "bind", "", "address to bind to (default RECLAIM_BIND)")
	serveCmd.Flags().StringVar(&serveOpts.dust, "dust", "", "path to the dust binary")
}

func runServe(ctx context.Context) error {
	server, err := app.CreateServer(app.ServerConfig{
		Port:        serveOpts.port,
		DustBinary:  serveOpts.dust,
		Version:     version,
		Commit:      commit,
		Static:      webfs.Static(),
		BindAddress: serveOpts.bind,
	})
	if err != nil {
		return err
	}
	defer server.Cleanup()
	logger := server.Logger

	cleanupCancel, cleanupDone := server.StartCleanupLoop()
	defer func() {
		cleanupCancel()
		<-cleanupDone
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.HTTP.Addr))
		errCh <- server.HTTP.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.HTTP.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

