package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"authgate/internal/domain"
	"authgate/internal/metrics"
	"authgate/internal/service"
)

// ActivityRecorder is where handlers report what users did. Record must not block.
type ActivityRecorder interface {
	Record(entry domain.ActivityLog)
	ListRecent(ctx context.Context, limit int) ([]domain.ActivityLog, error)
}

type Options struct {
	MaxUploadBytes int64
	EnableMetrics  bool
	Logger         *logrus.Logger
}

// Handler wires HTTP routes to the user service.
type Handler struct {
	users     service.UserService
	activity  ActivityRecorder
	maxUpload int64
	metrics   bool
	logger    *logrus.Logger
}

func NewHandler(users service.UserService, activity ActivityRecorder, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = service.DefaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Handler{
		users:     users,
		activity:  activity,
		maxUpload: opts.MaxUploadBytes,
		metrics:   opts.EnableMetrics,
		logger:    opts.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger))
	router.Use(corsMiddleware())
	if h.metrics {
		router.Use(metrics.Middleware())
		router.GET("/metrics", metrics.Handler())
	}

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		auth := api.Group("/auth")
		auth.POST("/signup", h.signup)
		auth.POST("/login", h.login)
		auth.POST("/reset-password", h.resetPassword)
		auth.POST("/verify-email", h.resendVerification)

		session := auth.Group("", h.requireSession())
		session.POST("/logout", h.logout)
		session.GET("/me", h.me)
		session.PUT("/me", h.updateMe)
		session.DELETE("/me", h.deleteMe)
		session.POST("/profile-picture", h.uploadProfilePicture)
		session.DELETE("/profile-picture", h.deleteProfilePicture)

		admin := api.Group("", h.requireSession(), h.requireAdmin())
		admin.GET("/users", h.listUsers)
		admin.DELETE("/users/:id", h.deleteUser)
		admin.PUT("/users/:id/role", h.updateUserRole)
		admin.GET("/activity", h.listActivity)
	}
}

func corsMiddleware() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	cfg.ExposeHeaders = []string{requestIDHeader}
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}
