package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/server/handlers"
)

// Handlers groups the HTTP adapters. Messages is optional and its route is only mounted
// when WhatsApp is configured.
type Handlers struct {
	Batches  *handlers.BatchHandler
	Impact   *handlers.ImpactHandler
	Messages *handlers.MessageHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	api := r.Group("/api")
	api.POST("/batches", h.Batches.Create)
	api.GET("/batches/:id", h.Batches.Get)
	api.POST("/batches/:id/retrigger", h.Batches.Retrigger)
	api.GET("/impact", h.Impact.Get)
	if h.Messages != nil {
		api.POST("/messages", h.Messages.Send)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
