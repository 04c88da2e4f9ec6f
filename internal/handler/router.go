package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/crowdsense/pkg/logger"
	"github.com/prohmpiriya/crowdsense/pkg/middleware"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
)

// Handlers groups the HTTP handlers mounted by NewRouter
type Handlers struct {
	Health      *HealthHandler
	Destination *DestinationHandler
	Booking     *BookingHandler
	Checkpoint  *CheckpointHandler
	ActionOrder *ActionOrderHandler
}

// RouterConfig contains configuration for the API router
type RouterConfig struct {
	ServiceName string
	Log         *logger.Logger
	// Idempotency guards POST /bookings; nil disables it
	Idempotency *middleware.IdempotencyConfig
	// ScanLimiter throttles scans per checkpoint; nil disables it
	ScanLimiter *middleware.KeyedLimiter
}

// NewRouter builds the gin engine with every admission route
func NewRouter(h *Handlers, cfg *RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		router.Use(telemetry.TracingMiddleware(cfg.ServiceName))
	}
	if cfg.Log != nil {
		router.Use(middleware.Logger(cfg.Log))
	}

	router.GET("/health", h.Health.Health)
	router.GET("/ready", h.Health.Ready)

	v1 := router.Group("/api/v1")

	destinations := v1.Group("/destinations/:id")
	{
		destinations.GET("/capacity", h.Destination.GetCapacity)
		destinations.GET("/availability", h.Destination.CheckAvailability)
		destinations.POST("/quote", h.Destination.Quote)
		destinations.GET("/occupancy", h.Destination.GetOccupancy)
	}

	bookings := v1.Group("/bookings")
	bookings.Use(middleware.UserID(true))
	{
		create := []gin.HandlerFunc{h.Booking.CreateBooking}
		if cfg.Idempotency != nil {
			create = append([]gin.HandlerFunc{middleware.IdempotencyMiddleware(cfg.Idempotency)}, create...)
		}
		bookings.POST("", create...)
		bookings.GET("", h.Booking.ListBookings)
		bookings.GET("/:id", h.Booking.GetBooking)
		bookings.POST("/:id/confirm", h.Booking.ConfirmBooking)
		bookings.POST("/:id/cancel", h.Booking.CancelBooking)
		bookings.POST("/:id/check-in", h.Booking.CheckIn)
		bookings.POST("/:id/check-out", h.Booking.CheckOut)
	}

	checkpoints := v1.Group("/checkpoints/:checkpoint_id")
	if cfg.ScanLimiter != nil {
		checkpoints.Use(middleware.RateLimitByParam(cfg.ScanLimiter, "checkpoint_id"))
	}
	{
		checkpoints.POST("/entry", h.Checkpoint.ScanEntry)
		checkpoints.POST("/exit", h.Checkpoint.ScanExit)
	}

	orders := v1.Group("/action-orders")
	{
		orders.POST("", h.ActionOrder.Create)
		orders.GET("", h.ActionOrder.List)
		orders.POST("/:id/acknowledge", h.ActionOrder.Acknowledge)
		orders.POST("/:id/complete", h.ActionOrder.Complete)
	}

	return router
}
