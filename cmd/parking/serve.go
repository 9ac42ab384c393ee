package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/effectivemobile/parking/internal/auth"
	"github.com/effectivemobile/parking/internal/evidence"
	"github.com/effectivemobile/parking/internal/handlers"
	"github.com/effectivemobile/parking/internal/metrics"
	"github.com/effectivemobile/parking/internal/store"
	"github.com/effectivemobile/parking/internal/sweeper"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the expiry sweeper",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log
	cfg := a.cfg
	log.Infof("starting parking service on %s", cfg.Server.Address)

	// run simple migration on startup
	if a.db != nil {
		if err := store.EnsureMigrations(a.db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	var images evidence.Store = evidence.NewDirStore(cfg.Evidence.Dir)
	if cfg.Evidence.Bucket != "" {
		s3Store, err := evidence.NewS3Store(ctx, evidence.S3Config{
			Bucket:       cfg.Evidence.Bucket,
			Region:       cfg.Evidence.Region,
			Endpoint:     cfg.Evidence.Endpoint,
			AccessKey:    cfg.Evidence.AccessKeyID,
			SecretKey:    cfg.Evidence.SecretAccessKey,
			UsePathStyle: cfg.Evidence.UsePathStyle,
		})
		if err != nil {
			return err
		}
		images = s3Store
	}

	issuer := auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.Issuer)
	faces := auth.NewFaceAuthenticator(a.svc, auth.EuclideanMatcher{Threshold: cfg.Auth.FaceThreshold}, issuer, cfg.Auth.TokenTTL)
	h := handlers.NewHandler(a.svc, faces, images, log)

	r := chi.NewRouter()
	// middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(log))

	h.Register(r, auth.Middleware(issuer, log))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(a.registry))

	sw := sweeper.New(a.svc, log, cfg.Sweeper.Timeout)
	if err := sw.Schedule(cfg.Sweeper.Schedule); err != nil {
		return err
	}
	sw.Start()
	defer sw.Stop()

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func loggingMiddleware(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := middleware.GetReqID(r.Context())
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"req_id": rid,
				"method": r.Method,
				"path":   r.URL.Path,
				"status": ww.Status(),
				"dur_ms": time.Since(start).Milliseconds(),
			}).Info("handled request")
		})
	}
}
