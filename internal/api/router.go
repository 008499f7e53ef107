package api

import (
	"github.com/ericyu4real/mscac-chatbot/internal/api/handlers"
	"github.com/ericyu4real/mscac-chatbot/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type RouterConfig struct {
	Query  *handlers.QueryHandler
	Health *handlers.HealthHandler

	// RateLimiter is optional; nil disables rate limiting on /query.
	RateLimiter *middleware.RateLimiter

	// TrustedProxies lists the proxy IPs or CIDRs whose forwarding headers
	// are honoured. Empty means the socket peer is the client address.
	TrustedProxies []string
	Logger         *logrus.Logger
}

// NewRouter builds the gin engine with all routes
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		cfg.Logger.WithError(err).Warn("Invalid trusted proxies, forwarding headers are ignored")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(cfg.Logger),
		middleware.Logger(cfg.Logger),
		middleware.CORS(),
	)

	r.GET("/", cfg.Query.HandleBanner)
	r.GET("/health", cfg.Health.HandleHealth)

	query := []gin.HandlerFunc{}
	if cfg.RateLimiter != nil {
		query = append(query, cfg.RateLimiter.RateLimit())
	}
	query = append(query, cfg.Query.HandleQuery)
	r.POST("/query", query...)

	return r
}
