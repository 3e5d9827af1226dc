package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/fleetguard/api"
	"github.com/jmcleod/fleetguard/audit"
	"github.com/jmcleod/fleetguard/guard"
	"github.com/jmcleod/fleetguard/identity"
	"github.com/jmcleod/fleetguard/internal/config"
	"github.com/jmcleod/fleetguard/session"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the guard HTTP host",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		repo, closeRepo, err := openRepository(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer closeRepo()

		provider, err := identity.NewLocal(repo, identity.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create identity provider: %w", err)
		}

		sink, stored := buildSink(cfg.Audit, repo, logger)
		g, err := guard.New(cfg.Guard, provider, sink,
			guard.WithLogger(logger),
			guard.WithActivityStore(session.NewRepositoryStore(repo)),
			guard.WithClientAgent(audit.DefaultClientAgent(Version)),
			guard.WithSinkTimeout(cfg.Audit.WriteTimeout),
		)
		if err != nil {
			return err
		}
		defer g.Close()
		g.Start(ctx)

		trusted, err := api.ParseTrustedProxies(cfg.Server.TrustedProxies)
		if err != nil {
			return err
		}
		opts := []api.Option{api.WithLogger(logger), api.WithTrustedProxies(trusted)}
		if stored != nil {
			opts = append(opts, api.WithAuditReader(stored))
		}
		a := api.New(g, guard.NewAuthFlow(g, provider), opts...)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           r,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       cfg.Server.IdleTimeout,
		}

		done := make(chan error, 1)
		go func() {
			var err error
			if cfg.Server.TLSCert != "" {
				err = server.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cmd.OutOrStdout())
		logger.Info("listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver, "tls", cfg.Server.TLSCert != "")

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	f := serverCmd.Flags()
	f.String("addr", config.DefaultAddr, "Address to listen on")
	f.String("tls-cert", "", "Path to TLS certificate file")
	f.String("tls-key", "", "Path to TLS key file")
	f.StringSlice("trusted-proxies", nil, "CIDRs whose X-Forwarded-For headers are trusted")
	_ = v.BindPFlag("server.addr", f.Lookup("addr"))
	_ = v.BindPFlag("server.tls_cert", f.Lookup("tls-cert"))
	_ = v.BindPFlag("server.tls_key", f.Lookup("tls-key"))
	_ = v.BindPFlag("server.trusted_proxies", f.Lookup("trusted-proxies"))
}
