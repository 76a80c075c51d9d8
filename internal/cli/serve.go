package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"incmgr/internal/config"
	"incmgr/internal/database"
	"incmgr/internal/routes"
	"incmgr/internal/server"
	"incmgr/internal/ui"
	"incmgr/internal/websocket"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the web server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address, overrides config")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.SeedAdmin(db); err != nil {
		return err
	}

	renderer, err := ui.NewRenderer()
	if err != nil {
		return err
	}
	if cfg.CRMBaseURL == "" {
		log.Printf("crm_base_url not set; CRM links are disabled")
	}

	app := &server.App{DB: db, Hub: websocket.NewHub(), Config: cfg}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           routes.New(app, renderer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("incmgr listening on %s", cfg.Listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
