package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"handyhub-admin-console/src/internal/cache"
	"handyhub-admin-console/src/internal/models"
	"handyhub-admin-console/src/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// StatusAuthenticationTimeout is answered when the CSRF token does not match
// the session.
const StatusAuthenticationTimeout = 419

// Context keys set by RequireAuth.
const (
	KeyUserID    = "user_id"
	KeySessionID = "session_id"
	KeyUserEmail = "user_email"
	KeyUserRole  = "user_role"
	keyCsrf      = "csrf_token"
)

// Claims represents JWT token claims
type Claims struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"tokenType"`
	Csrf      string `json:"csrf"`
	jwt.RegisteredClaims
}

// AuthMiddleware handles authentication and authorization
type AuthMiddleware struct {
	jwtSecret    string
	csrfHeader   string
	cacheService cache.Service
	sessionRepo  session.Repository
	now          func() time.Time
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtSecret, csrfHeader string, cacheService cache.Service, sessionRepo session.Repository) *AuthMiddleware {
	if csrfHeader == "" {
		csrfHeader = "X-CSRF-Token"
	}
	return &AuthMiddleware{
		jwtSecret:    jwtSecret,
		csrfHeader:   csrfHeader,
		cacheService: cacheService,
		sessionRepo:  sessionRepo,
		now:          time.Now,
	}
}

// RequireAuth validates JWT token and session
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extract token from Authorization header
		token := m.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is required",
			})
			c.Abort()
			return
		}

		claims, err := m.validateJWTToken(token)
		if err != nil {
			logrus.WithError(err).Warn("JWT token validation failed")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		isValidSession, err := m.validateSession(c.Request.Context(), claims.SessionID, claims.UserID)
		if err != nil {
			logrus.WithError(err).Error("Session validation failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Session validation error",
			})
			c.Abort()
			return
		}

		if !isValidSession {
			logrus.WithField("session_id", claims.SessionID).Warn("Session is invalid or expired")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Session expired - please login again",
			})
			c.Abort()
			return
		}

		// Store user info in context
		c.Set(KeyUserID, claims.UserID)
		c.Set(KeySessionID, claims.SessionID)
		c.Set(KeyUserEmail, claims.Email)
		c.Set(KeyUserRole, claims.Role)
		c.Set(keyCsrf, claims.Csrf)

		logrus.WithFields(logrus.Fields{
			"user_id":    claims.UserID,
			"session_id": claims.SessionID,
			"user_role":  claims.Role,
		}).Debug("User authenticated successfully")

		c.Next()
	}
}

// RequireAdminRights checks if user has admin privileges
func (m *AuthMiddleware) RequireAdminRights() gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString(KeyUserRole)
		if userRole == "" {
			logrus.Error("User role not found in context - ensure RequireAuth middleware runs first")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			c.Abort()
			return
		}

		if userRole != "admin" {
			logrus.WithFields(logrus.Fields{
				"user_id":   c.GetString(KeyUserID),
				"user_role": userRole,
			}).Warn("User attempted to access admin endpoint without admin privileges")

			c.JSON(http.StatusForbidden, gin.H{
				"error": "Access forbidden - admin privileges required",
			})
			c.Abort()
			return
		}

		logrus.WithField("user_id", c.GetString(KeyUserID)).Debug("Admin access granted")
		c.Next()
	}
}

// RequireCSRF compares the CSRF header with the token bound to the session:
// 403 when the header is missing, 419 when it does not match.
func (m *AuthMiddleware) RequireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(m.csrfHeader)
		if header == "" {
			logrus.WithField("session_id", c.GetString(KeySessionID)).Warn("CSRF header missing")
			c.JSON(http.StatusForbidden, gin.H{
				"error": "CSRF token is required",
			})
			c.Abort()
			return
		}

		expected := c.GetString(keyCsrf)
		if expected == "" || subtle.ConstantTimeCompare([]byte(header), []byte(expected)) != 1 {
			logrus.WithField("session_id", c.GetString(KeySessionID)).Warn("CSRF token mismatch")
			c.JSON(StatusAuthenticationTimeout, gin.H{
				"error": "CSRF token mismatch - please reload",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractToken extracts JWT token from Authorization header
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		logrus.Debug("Authorization header missing")
		return ""
	}

	// Extract token from "Bearer <token>" format
	if !strings.HasPrefix(authHeader, "Bearer ") {
		logrus.Debug("Invalid authorization header format")
		return ""
	}

	return strings.TrimPrefix(authHeader, "Bearer ")
}

// validateJWTToken parses and validates JWT token (checks signature and expiration)
func (m *AuthMiddleware) validateJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(m.jwtSecret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token expired")
		}
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	// Check token type (should be access token)
	if claims.TokenType != "access" {
		return nil, errors.New("invalid token type")
	}

	return claims, nil
}

// validateSession checks session validity in Redis first, then MongoDB fallback
func (m *AuthMiddleware) validateSession(ctx context.Context, sessionID, userID string) (bool, error) {
	now := m.now()

	cached, err := m.cacheService.GetActiveSession(ctx, userID, sessionID)
	if err == nil && cached != nil && cached.Usable(now) {
		logrus.WithField("session_id", sessionID).Debug("Session validated from cache")
		return true, nil
	}

	stored, err := m.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			logrus.WithField("session_id", sessionID).Warn("Session not found")
			return false, nil
		}
		return false, err
	}

	if stored.UserID != userID {
		logrus.WithField("session_id", sessionID).Warn("Session belongs to another user")
		return false, nil
	}

	if !stored.Usable(now) {
		logrus.WithFields(logrus.Fields{
			"session_id": sessionID,
			"is_active":  stored.IsActive,
		}).Warn("Session is no longer usable")
		return false, nil
	}

	if err := m.cacheService.CacheActiveSession(ctx, stored); err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Warn("Failed to re-cache session")
	}

	logrus.WithField("session_id", sessionID).Debug("Session validated from MongoDB")
	return true, nil
}
