package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"onephoto/core"
)

func main() {
	cfg, err := core.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	logCloser, err := core.SetupLogging(cfg, "web.log")
	if err != nil {
		logrus.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, dbCloser, err := core.OpenUserRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("failed to open credential store: %v", err)
	}
	defer dbCloser.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logrus.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	// Session values live in redis; the cookie carries a signed id only.
	store := core.NewRedisStore(redisClient, cfg.SessionMaxAge, cfg.StoreTimeout, []byte(cfg.SessionKey))

	authService, err := core.NewRepositoryAuthService(users, cfg.BcryptCost, cfg.StoreTimeout)
	if err != nil {
		logrus.Fatalf("failed to build auth service: %v", err)
	}

	if err := core.BootstrapAccount(ctx, users, cfg); err != nil {
		logrus.Fatalf("bootstrap account failed: %v", err)
	}

	router := core.NewRouter(cfg, store, authService, users)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.Infof("starting web server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("shutdown: %v", err)
	}
}
