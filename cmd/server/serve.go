package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/questionflow/internal/api"
	"github.com/soaringjerry/questionflow/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides QUESTIONFLOW_ADDR)")
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	if err := seedIfEmpty(ctx, store, cfg); err != nil {
		return err
	}
	questions, err := api.LoadQuestionGraph(ctx, store, cfg.Questionnaire())
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Options{
		Store:         store,
		Questions:     questions,
		Authenticator: middleware.NewAuthenticator(cfg.JWTSecret),
		TokenTTL:      cfg.TokenTTL,
		CORSOrigins:   cfg.CORSOrigins,
		Locales:       cfg.Locales,
		DefaultLocale: cfg.DefaultLocale,
		Logger:        log.Default(),
		Commit:        cfg.Commit,
		BuildTime:     cfg.BuildTime,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("questionflow server listening on %s (%d questions)", cfg.Addr, questions.Len())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
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
