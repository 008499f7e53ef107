package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// StorePinger is satisfied by the message log.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger is satisfied by the database manager.
type RedisPinger interface {
	PingRedis() error
}

// IndexSizer is satisfied by the retriever.
type IndexSizer interface {
	IndexSize() int
}

// HealthChecker manages health checks for all dependencies
type HealthChecker struct {
	store  StorePinger
	redis  RedisPinger
	index  IndexSizer
	logger *logrus.Logger

	startTime time.Time
	mu        sync.RWMutex
	last      *OverallHealth
}

// NewHealthChecker builds a checker; redis may be nil when caching is off.
func NewHealthChecker(store StorePinger, redis RedisPinger, index IndexSizer, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		store:     store,
		redis:     redis,
		index:     index,
		logger:    logger,
		startTime: time.Now(),
	}
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int    `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"last_checked"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
	Uptime   string          `json:"uptime"`
}

// CheckMessageStore pings the message log backend
func (h *HealthChecker) CheckMessageStore(ctx context.Context) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := h.store.Ping(ctx)
	return h.result("message_store", StatusUnhealthy, start, err)
}

// CheckRedis checks the retrieval cache. A failing cache only degrades
// the service because retrieval falls back to the index.
func (h *HealthChecker) CheckRedis() ServiceHealth {
	start := time.Now()
	err := h.redis.PingRedis()
	return h.result("redis", StatusDegraded, start, err)
}

// CheckIndex reports an empty index as unhealthy
func (h *HealthChecker) CheckIndex() ServiceHealth {
	status := StatusHealthy
	errorMsg := ""
	if h.index.IndexSize() == 0 {
		status = StatusUnhealthy
		errorMsg = "index is empty"
	}
	return ServiceHealth{
		Name:        "index",
		Status:      status,
		Error:       errorMsg,
		LastChecked: time.Now().Format(time.RFC3339),
	}
}

func (h *HealthChecker) result(name, failStatus string, start time.Time, err error) ServiceHealth {
	responseTime := int(time.Since(start).Milliseconds())

	status := StatusHealthy
	errorMsg := ""
	if err != nil {
		status = failStatus
		errorMsg = err.Error()
		h.logger.WithError(err).WithField("service", name).Error("Health check failed")
	}

	return ServiceHealth{
		Name:         name,
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckAll performs health checks on all services
func (h *HealthChecker) CheckAll(ctx context.Context) OverallHealth {
	services := []ServiceHealth{
		h.CheckMessageStore(ctx),
		h.CheckIndex(),
	}
	if h.redis != nil {
		services = append(services, h.CheckRedis())
	}

	overallStatus := StatusHealthy
	for _, service := range services {
		if service.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		}
		if service.Status == StatusDegraded {
			overallStatus = StatusDegraded
		}
	}

	health := OverallHealth{
		Status:   overallStatus,
		Services: services,
		Uptime:   time.Since(h.startTime).Round(time.Second).String(),
	}

	h.mu.Lock()
	h.last = &health
	h.mu.Unlock()

	return health
}

// Last returns the most recent result, or nil before the first check
func (h *HealthChecker) Last() *OverallHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// PeriodicHealthCheck runs health checks periodically
func (h *HealthChecker) PeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev := h.Last()
			health := h.CheckAll(ctx)
			entry := h.logger.WithField("status", health.Status)
			switch {
			case prev != nil && prev.Status != health.Status:
				entry.WithField("previous", prev.Status).Warn("Health status changed")
			case health.Status != StatusHealthy:
				entry.Warn("Periodic health check reported problems")
			default:
				entry.Debug("Periodic health check completed")
			}
		}
	}
}
