package server

import (
	"net/http"
	"time"

	"handyhub-admin-console/src/clients"
	"handyhub-admin-console/src/internal/dependency"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func SetupRoutes(deps *dependency.Manager) {
	router := deps.Router
	router.Use(corsMiddleware(deps.Config.Security.CsrfHeader))

	setupHealthEndpoint(deps)
	setupPublicRoutes(router, deps)
	setupConsoleRoutes(router, deps)
}

func setupHealthEndpoint(deps *dependency.Manager) {
	router := deps.Router
	mongodb := deps.Mongodb
	redisClient := deps.Redis
	cfg := deps.Config

	router.GET("/health", func(c *gin.Context) {
		log.Debug("Health check endpoint requested")

		mongoStatus := "ok"
		if !isMongoConnected(mongodb, c) {
			mongoStatus = "error"
		}

		redisStatus := "ok"
		if !isRedisConnected(redisClient, c) {
			redisStatus = "error"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   cfg.App.Name,
			"version":   cfg.App.Version,
			"mongodb":   mongoStatus,
			"redis":     redisStatus,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

func setupPublicRoutes(router *gin.Engine, deps *dependency.Manager) {
	// API status endpoint
	router.GET("/api/v1/status", func(c *gin.Context) {
		log.Debug("API status requested")
		c.JSON(http.StatusOK, gin.H{
			"api_version": "v1",
			"status":      "operational",
			"service":     deps.Config.App.Name,
		})
	})
}

func setupConsoleRoutes(router *gin.Engine, deps *dependency.Manager) {
	auth := deps.AuthMiddleware
	handler := deps.ConsoleHandler

	// Apply route name FIRST, then auth middlewares
	console := router.Group("/api/v1/console")
	{
		console.POST("/heartbeat",
			setRouteName("consoleHeartbeat"),
			auth.RequireAuth(),
			auth.RequireAdminRights(),
			auth.RequireCSRF(),
			handler.Heartbeat)

		console.POST("/logout-inactivity",
			setRouteName("consoleLogoutInactivity"),
			auth.RequireAuth(),
			auth.RequireAdminRights(),
			auth.RequireCSRF(),
			handler.LogoutInactivity)

		console.POST("/logout",
			setRouteName("consoleLogout"),
			auth.RequireAuth(),
			auth.RequireAdminRights(),
			auth.RequireCSRF(),
			handler.Logout)
	}
}

func setRouteName(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("route_name", name)
		c.Next()
	}
}

func isMongoConnected(mongodb *clients.MongoDB, c *gin.Context) bool {
	if mongodb == nil {
		return false
	}
	return mongodb.Client.Ping(c.Request.Context(), nil) == nil
}

func isRedisConnected(redisClient *clients.RedisClient, c *gin.Context) bool {
	if redisClient == nil {
		return false
	}
	return ping(c, redisClient.Client) == nil
}

func ping(c *gin.Context, client redis.UniversalClient) error {
	return client.Ping(c.Request.Context()).Err()
}

func corsMiddleware(csrfHeader string) gin.HandlerFunc {
	allowed := "Content-Type, Authorization"
	if csrfHeader != "" {
		allowed += ", " + csrfHeader
	}

	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", allowed)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
