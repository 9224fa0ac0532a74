package api

import (
	"context"
	"net/http"
	"time"

	"grocery-orders/config"
	"grocery-orders/internal/gateway"
	"grocery-orders/internal/models"
	"grocery-orders/internal/service"
	"grocery-orders/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PaymentEventSink receives verified gateway events. broker.GatewayEventPublisher
// queues them for the payment worker; DirectSink applies them in-process.
type PaymentEventSink interface {
	PublishPaymentIntentEvent(ctx context.Context, event *models.PaymentIntentEvent) error
}

// Pinger is a dependency checked by /ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders   *service.OrderService
	payments *service.PaymentService
	gateway  gateway.Gateway
	sink     PaymentEventSink
	auth     config.AuthConfig
	checks   map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	payments *service.PaymentService,
	gw gateway.Gateway,
	sink PaymentEventSink,
	authCfg config.AuthConfig,
) *Handler {
	return &Handler{
		orders:   orders,
		payments: payments,
		gateway:  gw,
		sink:     sink,
		auth:     authCfg,
		checks:   make(map[string]Pinger),
	}
}

// AddReadinessCheck registers a dependency that must answer for /ready to pass
func (h *Handler) AddReadinessCheck(name string, p Pinger) {
	h.checks[name] = p
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	registerValidators()

	router.Use(gin.Recovery())
	router.Use(requestLogger(util.GetLogger()))
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/payment/webhook", h.paymentWebhook)

	authed := v1.Group("", authMiddleware(h.auth))
	{
		authed.GET("/orders", h.getOrders)
		authed.GET("/orders/:id", h.getOrder)
		authed.GET("/orders/:id/track", h.trackOrder)
		authed.POST("/orders/:id/status", requireAdmin(), h.updateOrderStatus)

		authed.POST("/payment/create-intent", h.createPaymentIntent)
		authed.POST("/payment/confirm", h.confirmPayment)
		authed.GET("/payment/status/:payment_id", h.getPaymentStatus)
		authed.POST("/payment/reorder/:order_id", h.reorder)
		authed.GET("/payment/getAllTransactions", h.getAllTransactions)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every registered dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
