package api

import (
	"strconv"
	"strings"
	"time"

	"grocery-orders/config"
	"grocery-orders/internal/apperrors"
	"grocery-orders/internal/auth"
	"grocery-orders/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-Id"
	claimsKey       = "auth.claims"
)

// requestLogger tags every request with an id and logs it when done
func requestLogger(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)

		logger := base.With(zap.String("request_id", reqID))
		c.Request = c.Request.WithContext(util.WithLogger(c.Request.Context(), logger))

		c.Next()

		util.LoggerFrom(c.Request.Context()).Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// authMiddleware requires a valid bearer token
func authMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		token := raw
		if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
			token = strings.TrimSpace(raw[7:])
		}
		if token == "" {
			respondError(c, apperrors.New(apperrors.CodeUnauthenticated, "Unauthenticated"))
			return
		}

		claims, err := auth.ParseToken(cfg, token)
		if err != nil {
			util.LoggerFrom(c.Request.Context()).Debug("Rejected bearer token", zap.Error(err))
			respondError(c, apperrors.Wrap(apperrors.CodeUnauthenticated, err, "Invalid or expired token"))
			return
		}

		c.Set(claimsKey, claims)
		logger := util.LoggerFrom(c.Request.Context()).With(zap.Int64("user_id", claims.UserID))
		c.Request = c.Request.WithContext(util.WithLogger(c.Request.Context(), logger))
		c.Next()
	}
}

// requireAdmin only lets back-office tokens through
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil || !claims.IsAdmin() {
			respondError(c, apperrors.New(apperrors.CodeForbidden, "Admin role required"))
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func userID(c *gin.Context) int64 {
	if claims := claimsFrom(c); claims != nil {
		return claims.UserID
	}
	return 0
}
