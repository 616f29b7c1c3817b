package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
	"github.com/mamadbah2/agrimatch/internal/service/batches"
)

// BatchService is the intake side of the engine.
type BatchService interface {
	Create(ctx context.Context, req models.CreateBatchRequest) (models.WasteBatch, error)
	Get(ctx context.Context, id string) (models.WasteBatch, error)
	Retrigger(ctx context.Context, id string) (models.WasteBatch, error)
}

// BatchHandler exposes waste batch submission and retrigger over HTTP.
type BatchHandler struct {
	svc    BatchService
	logger *zap.Logger
}

// NewBatchHandler constructs the HTTP handler adapter.
func NewBatchHandler(svc BatchService, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{svc: svc, logger: logger}
}

// Create stores a new pending batch.
func (h *BatchHandler) Create(c *gin.Context) {
	var req models.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid batch payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	b, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "failed creating batch", err)
		return
	}

	c.JSON(http.StatusCreated, b)
}

// Get returns one batch.
func (h *BatchHandler) Get(c *gin.Context) {
	b, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "failed loading batch", err)
		return
	}

	c.JSON(http.StatusOK, b)
}

// Retrigger sends a batch back to pending under a new generation.
func (h *BatchHandler) Retrigger(c *gin.Context) {
	b, err := h.svc.Retrigger(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "failed retriggering batch", err)
		return
	}

	c.JSON(http.StatusAccepted, b)
}

func (h *BatchHandler) respondError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, batches.ErrInvalidBatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrBatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
	case errors.Is(err, models.ErrBatchExists):
		c.JSON(http.StatusConflict, gin.H{"error": "batch already exists"})
	default:
		h.logger.Error(msg, zap.String("batch_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
