package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RedisErrors counts Redis command failures by operation name.
var RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "whisperbox_redis_errors_total",
	Help: "Total number of Redis errors by operation type",
}, []string{"operation"})

// EmailDeliveries counts outbound email attempts by outcome.
var EmailDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "whisperbox_email_deliveries_total",
	Help: "Total number of outbound email deliveries by outcome",
}, []string{"outcome"})

var (
	promOnce     sync.Once
	promInstance *fiberprometheus.FiberPrometheus
)

// InitMetrics returns the Prometheus middleware instance for the service.
// The instance is created once; registering the same collectors twice in the
// default registry panics.
func InitMetrics(service string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promInstance = fiberprometheus.New(service)
	})
	return promInstance
}

// MetricsMiddleware returns the request-instrumenting handler of the given Prometheus middleware.
func MetricsMiddleware(p *fiberprometheus.FiberPrometheus) fiber.Handler {
	return p.Middleware
}
