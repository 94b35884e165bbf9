package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"handyhub-admin-console/src/clients"
	"handyhub-admin-console/src/internal/config"
	"handyhub-admin-console/src/internal/dependency"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

type Server struct {
	cfg *config.Configuration
}

func New(cfg *config.Configuration) *Server {
	return &Server{cfg: cfg}
}

// Start connects the backing stores, serves the API and blocks until SIGINT
// or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

func (s *Server) Run(ctx context.Context) error {
	cfg := s.cfg

	mongodb, err := clients.NewMongoDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer mongodb.Close(context.Background())

	redisClient, err := clients.NewRedisClient(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	rabbitMQ, err := clients.NewRabbitMQ(&cfg.Queue)
	if err != nil {
		log.WithError(err).Warn("RabbitMQ unavailable, session events will not be published")
		rabbitMQ = nil
	} else {
		defer rabbitMQ.Close()
		if err := rabbitMQ.SetupExchange(); err != nil {
			log.WithError(err).Warn("Failed to declare session events exchange")
		}
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	deps := dependency.NewDependencyManager(router, mongodb, redisClient, rabbitMQ, cfg)
	SetupRoutes(deps)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  seconds(cfg.Server.ReadTimeout, 15),
		WriteTimeout: seconds(cfg.Server.WriteTimeout, 15),
		IdleTimeout:  seconds(cfg.Server.IdleTimeout, 60),
	}

	errs := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), seconds(cfg.App.Timeout, 10))
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}
