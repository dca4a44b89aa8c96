package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
)

const swaggerDocFile = "bookingflow.swagger.json"

type RouterConfig struct {
	// SwaggerDir holds bookingflow.swagger.json; empty disables the docs UI.
	SwaggerDir string
	Log        logrus.FieldLogger
}

func NewRouter(bookings *BookingHandler, inventory *InventoryHandler, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Log != nil {
		router.Use(requestLogger(cfg.Log))
	}

	v1 := router.Group("/api/v1")
	bookings.Register(v1.Group("/bookings"))
	inventory.Register(v1.Group("/inventory"))

	admin := v1.Group("/admin")
	adminBookings := admin.Group("/bookings")
	bookings.RegisterAdmin(adminBookings)
	inventory.RegisterAdmin(admin.Group("/inventory"), adminBookings)

	if cfg.SwaggerDir != "" {
		router.Static("/swagger-doc", cfg.SwaggerDir)
		router.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(
			httpSwagger.URL("/swagger-doc/"+swaggerDocFile),
		)))
	}
	return router
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last()).Error("request failed")
			return
		}
		entry.Debug("request served")
	}
}
