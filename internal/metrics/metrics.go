package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_service_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_service_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_service_order_operations_total",
			Help: "Total number of order operations",
		},
		[]string{"operation", "status"},
	)

	orderRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_service_order_rejections_total",
			Help: "Rejected order operations by error kind and code",
		},
		[]string{"kind", "code"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_service_notifications_total",
			Help: "Status notifications consumed",
		},
		[]string{"new_status"},
	)

	ticketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_service_restaurant_tickets_total",
			Help: "New orders printed as restaurant tickets",
		},
		[]string{"restaurant_id"},
	)
)

// PrometheusMiddleware records request count and latency per route
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
	}
}

func RecordOrderOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	orderOperations.WithLabelValues(operation, status).Inc()
}

// RecordRejection counts an order request refused with a domain error
func RecordRejection(kind, code string) {
	orderRejections.WithLabelValues(kind, code).Inc()
}

func RecordNotification(newStatus string) {
	notificationsTotal.WithLabelValues(newStatus).Inc()
}

// RecordTicket counts a new order handed to a restaurant
func RecordTicket(restaurantID int64) {
	ticketsTotal.WithLabelValues(strconv.FormatInt(restaurantID, 10)).Inc()
}
