package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/osdl/internal/cli"
	httpadapter "github.com/aretw0/osdl/pkg/adapters/http"
	"github.com/microcosm-cc/bluemonday"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP preview server",
	Long: `Serves pages and preview sessions over a JSON API, with live patches
streamed over Server-Sent Events and Prometheus metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Addr, _ = cmd.Flags().GetString("addr")
		}
		watch, _ := cmd.Flags().GetBool("watch")

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		opts := []httpadapter.Option{
			httpadapter.WithLogger(app.Logger),
			httpadapter.WithMetrics(app.Registry),
			httpadapter.WithRateLimit(cfg.RateLimit),
			httpadapter.WithCORSOrigins(cfg.CORSOrigins...),
		}
		if cfg.JWTSecret != "" {
			opts = append(opts, httpadapter.WithJWTSecret(cfg.JWTSecret))
		}
		if cfg.Sanitize {
			opts = append(opts, httpadapter.WithSanitizer(bluemonday.UGCPolicy()))
		}

		srv := &http.Server{
			Addr:              cfg.Addr,
			Handler:           httpadapter.NewHandler(app.Sessions, app.Loader, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		if watch {
			go func() {
				if err := app.WatchPages(ctx); err != nil {
					app.Logger.Warn("Hot reload disabled", "err", err)
				}
			}()
		}

		serverErrors := make(chan error, 1)
		go func() {
			app.Logger.Info("Starting OSDL Server", "addr", srv.Addr, "pages", cfg.PagesDir)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-ctx.Done():
			app.Logger.Info("Start shutdown", "signal", ctx.Signal())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				app.Logger.Error("Graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			app.Logger.Info("OSDL Server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload live sessions when page files change")
}
