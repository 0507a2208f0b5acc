// Package main is the entry point for the shtlink command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emadnahed/shtlink/internal/config"
	"github.com/emadnahed/shtlink/internal/container"
	"github.com/emadnahed/shtlink/internal/metrics"
	"github.com/emadnahed/shtlink/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// app holds the state shared by every subcommand.
type app struct {
	cfg      *config.Config
	injector *do.Injector
	logger   *zap.Logger
	metrics  *http.Server
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "shtlink",
		Short:         "Allocate and resolve short codes for long values",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	root.AddCommand(
		newEncodeCmd(a),
		newDecodeCmd(a),
		newAssignCmd(a),
		newDeleteCmd(a),
		newRenameCmd(a),
		newListCmd(a),
		newRoundTripCmd(a),
		newMigrateCmd(a),
		newHealthCmd(a),
	)
	return root
}

func (a *app) init(ctx context.Context, logOutput io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a.cfg = cfg
	a.injector = container.New(ctx, cfg, logOutput)
	a.logger = do.MustInvoke[*zap.Logger](a.injector)

	if cfg.Metrics.Addr != "" {
		a.startMetrics(cfg.Metrics.Addr)
	}
	return nil
}

func (a *app) engine() (*services.AllocationEngine, error) {
	return do.Invoke[*services.AllocationEngine](a.injector)
}

func (a *app) startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	a.metrics = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("metrics listener starting", zap.String("addr", addr))
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics listener failed", zap.Error(err))
		}
	}()
}

func (a *app) close() {
	if a.injector == nil {
		return
	}

	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Error("metrics shutdown error", zap.Error(err))
		}
	}

	if err := a.injector.Shutdown(); err != nil {
		a.logger.Error("service shutdown error", zap.Error(err))
	}
	_ = a.logger.Sync()
}
