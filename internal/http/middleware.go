package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"authgate/internal/domain"
)

const (
	requestIDHeader = "X-Request-ID"

	ctxUserKey      = "currentUser"
	ctxTokenKey     = "sessionToken"
	ctxRequestIDKey = "requestID"
)

// requireSession resolves the bearer token against the backend and stores the caller in the context.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		user, err := h.users.ResolveSession(c.Request.Context(), token)
		if err != nil {
			h.entry(c).WithError(err).Debug("session rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			return
		}

		c.Set(ctxUserKey, user)
		c.Set(ctxTokenKey, token)
		c.Next()
	}
}

// requireAdmin must run after requireSession. It re-reads the caller's role on every request.
func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := currentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		fresh, err := h.users.RequireAdmin(c.Request.Context(), caller)
		if err != nil {
			h.writeError(c, err)
			c.Abort()
			return
		}

		c.Set(ctxUserKey, fresh)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func currentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok && user != nil
}

func sessionToken(c *gin.Context) string {
	return c.GetString(ctxTokenKey)
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()

		fields := logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		}
		entry := logger.WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request")
		case status >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}

func (h *Handler) entry(c *gin.Context) *logrus.Entry {
	return h.logger.WithField("request_id", c.GetString(ctxRequestIDKey))
}
