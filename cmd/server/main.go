package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"quicknotes/internal/config"
	"quicknotes/internal/handler"
	"quicknotes/internal/middleware"
	"quicknotes/internal/repository"
	"quicknotes/internal/service"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	flag.Set("logtostderr", "true")
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.Load()
	if err != nil {
		glog.Exitf("Failed to load configuration: %v", err)
	}
	if flag.Lookup("v").Value.String() == "0" && cfg.Logging.Verbosity > 0 {
		flag.Set("v", strconv.Itoa(cfg.Logging.Verbosity))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		glog.Exitf("Failed to open %s storage: %v", cfg.Database.Driver, err)
	}
	defer stores.Close()

	services := handler.Services{
		Auth:  service.NewAuthService(stores.Users, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration),
		Users: service.NewUserService(stores.Users),
		Notes: service.NewNoteService(stores.Notes),
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		go sweepLimiter(ctx, limiter)
	}

	r := handler.NewRouter(cfg, services, limiter)
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		glog.Infof("Starting quicknotes store server on %s (env: %s, storage: %s)", addr, cfg.Server.Env, cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		glog.Errorf("Server failed: %v", err)
		glog.Flush()
		os.Exit(1)
	}

	glog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("Server forced to shutdown: %v", err)
		return
	}

	glog.Info("Server stopped gracefully")
}

// sweepLimiter forgets idle rate-limit buckets so the table does not grow
// with every address ever seen.
func sweepLimiter(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := limiter.Sweep(now); n > 0 {
				glog.V(1).Infof("Swept %d idle rate-limit buckets", n)
			}
		}
	}
}
