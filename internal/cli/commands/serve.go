package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/admin/internal/web/server"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API",
		Long: `Bootstrap the entity registry from the configuration and serve the admin
API until interrupted. In-flight requests are given server.shutdown_timeout
to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, flags, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.host and server.port)")
	return cmd
}

func runServe(ctx context.Context, flags *globalFlags, addr string) error {
	app, err := loadApp(ctx, flags)
	if err != nil {
		return err
	}
	defer app.shutdown()

	cfg := app.Config
	if app.Auth == nil {
		app.Logger.Warn("auth.secret is empty; the admin API accepts unauthenticated requests")
	}
	if !cfg.Admin.Enabled {
		app.Logger.Info("admin disabled; serving health check only")
	}
	if addr == "" {
		addr = cfg.Address()
	}

	srvCfg := server.DefaultConfig(app.Handler())
	srvCfg.Address = addr
	srvCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	srvCfg.Logger = app.Logger
	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}

	app.Logger.Info("serving admin",
		zap.String("address", addr),
		zap.String("base_path", cfg.Admin.BasePath))
	return srv.Run(ctx)
}
