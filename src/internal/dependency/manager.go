package dependency

import (
	"handyhub-admin-console/src/clients"
	"handyhub-admin-console/src/internal/cache"
	"handyhub-admin-console/src/internal/config"
	"handyhub-admin-console/src/internal/console"
	"handyhub-admin-console/src/internal/middleware"
	"handyhub-admin-console/src/internal/session"

	"github.com/gin-gonic/gin"
)

type Manager struct {
	Router         *gin.Engine
	Config         *config.Configuration
	Mongodb        *clients.MongoDB
	Redis          *clients.RedisClient
	RabbitMQ       *clients.RabbitMQ
	CacheService   cache.Service
	SessionRepo    session.Repository
	ConsoleService console.Service
	ConsoleHandler console.Handler
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencyManager wires the backend. rabbitMQ may be nil, in which case
// session events are not published.
func NewDependencyManager(router *gin.Engine,
	mongodb *clients.MongoDB,
	redisClient *clients.RedisClient,
	rabbitMQ *clients.RabbitMQ,
	cfg *config.Configuration) *Manager {
	cacheService := cache.NewCacheService(redisClient.Client, cfg)
	sessionRepo := session.NewSessionRepository(mongodb, cfg.Database.SessionCollection)

	var events console.EventPublisher
	if rabbitMQ != nil {
		events = rabbitMQ.Publisher()
	}

	consoleService := console.NewService(sessionRepo, cacheService, events, cfg.Guard.SignInPath)
	consoleHandler := console.NewHandler(consoleService)
	authMiddleware := middleware.NewAuthMiddleware(cfg.Security.JwtKey, cfg.Security.CsrfHeader, cacheService, sessionRepo)

	return &Manager{
		Router:         router,
		Config:         cfg,
		Mongodb:        mongodb,
		Redis:          redisClient,
		RabbitMQ:       rabbitMQ,
		CacheService:   cacheService,
		SessionRepo:    sessionRepo,
		ConsoleService: consoleService,
		ConsoleHandler: consoleHandler,
		AuthMiddleware: authMiddleware,
	}
}
