package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"safarapi-auth/internal/factory"
	"safarapi-auth/internal/handler"
	"safarapi-auth/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()
	defer util.Sync()

	cfg := f.Config()

	authHandler := handler.NewAuthHandler(f.AuthService(), f.AccountRepository(), util.Get())
	router := handler.NewRouter(cfg, authHandler, f.TokenIssuer(), util.Get())

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP server
	group.Go(func() error {
		if cfg.Server.EnableTLS {
			util.Info("Starting HTTPS server",
				util.String("environment", cfg.Environment),
				util.String("addr", server.Addr),
			)
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}

		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Expiry sweep for stale OTP rows
	group.Go(func() error {
		err := f.AuthService().StartExpirySweep(groupCtx, cfg.Auth.SweepInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Shutdown on signal or first failure
	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		util.Info("Shutting down server")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		util.Error("Server exited with error", util.ErrorField(err))
		return
	}

	util.Info("Server exited cleanly")
}
