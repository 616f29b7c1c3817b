package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

// ImpactService aggregates settled matches.
type ImpactService interface {
	Impact(ctx context.Context, region string) (models.ImpactMetrics, error)
}

// ImpactHandler serves regional impact metrics.
type ImpactHandler struct {
	svc           ImpactService
	defaultRegion string
	logger        *zap.Logger
}

// NewImpactHandler constructs the handler. defaultRegion is used when the query omits one.
func NewImpactHandler(svc ImpactService, defaultRegion string, logger *zap.Logger) *ImpactHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImpactHandler{svc: svc, defaultRegion: defaultRegion, logger: logger}
}

// Get returns ImpactMetrics for ?region=.
func (h *ImpactHandler) Get(c *gin.Context) {
	region := strings.TrimSpace(c.Query("region"))
	if region == "" {
		region = h.defaultRegion
	}

	metrics, err := h.svc.Impact(c.Request.Context(), region)
	if err != nil {
		h.logger.Error("failed computing impact", zap.String("region", region), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to compute impact"})
		return
	}

	c.JSON(http.StatusOK, metrics)
}
