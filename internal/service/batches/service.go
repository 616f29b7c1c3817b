// Package batches creates waste submissions and drives the manual retrigger.
package batches

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

// ErrInvalidBatch indicates the submission payload failed validation.
var ErrInvalidBatch = errors.New("invalid waste batch")

// Store persists batches.
type Store interface {
	CreateBatch(ctx context.Context, b models.WasteBatch) error
	GetBatch(ctx context.Context, id string) (models.WasteBatch, error)
	ResetBatch(ctx context.Context, id string, at time.Time) (models.WasteBatch, error)
}

// Service handles batch intake and retrigger.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewService constructs a batch service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Create stores a new pending batch. The trigger path picks it up from there.
func (s *Service) Create(ctx context.Context, req models.CreateBatchRequest) (models.WasteBatch, error) {
	wasteType := normalizeWasteType(req.WasteType)
	switch {
	case strings.TrimSpace(req.FarmerID) == "":
		return models.WasteBatch{}, fmt.Errorf("%w: farmerId is required", ErrInvalidBatch)
	case wasteType == "":
		return models.WasteBatch{}, fmt.Errorf("%w: wasteType is required", ErrInvalidBatch)
	case req.QuantityKg <= 0:
		return models.WasteBatch{}, fmt.Errorf("%w: quantityKg must be positive", ErrInvalidBatch)
	case req.Location.Lat < -90 || req.Location.Lat > 90 || req.Location.Lng < -180 || req.Location.Lng > 180:
		return models.WasteBatch{}, fmt.Errorf("%w: location out of range", ErrInvalidBatch)
	}

	b := models.WasteBatch{
		ID:            s.newID(),
		FarmerID:      strings.TrimSpace(req.FarmerID),
		FarmerName:    strings.TrimSpace(req.FarmerName),
		FarmerPhone:   strings.TrimSpace(req.FarmerPhone),
		WasteType:     wasteType,
		QuantityKg:    req.QuantityKg,
		MoistureLevel: strings.ToLower(strings.TrimSpace(req.MoistureLevel)),
		Season:        strings.TrimSpace(req.Season),
		Location:      req.Location,
		PhotoURL:      req.PhotoURL,
		Status:        models.StatusPending,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateBatch(ctx, b); err != nil {
		return models.WasteBatch{}, err
	}

	s.logger.Info("waste batch created",
		zap.String("batch_id", b.ID),
		zap.String("waste_type", b.WasteType),
		zap.Float64("quantity_kg", b.QuantityKg))
	return b, nil
}

// Get loads one batch.
func (s *Service) Get(ctx context.Context, id string) (models.WasteBatch, error) {
	return s.store.GetBatch(ctx, id)
}

// Retrigger resets a batch to pending under a new generation, whatever its current status.
// It is the only way to reprocess a settled batch.
func (s *Service) Retrigger(ctx context.Context, id string) (models.WasteBatch, error) {
	if strings.TrimSpace(id) == "" {
		return models.WasteBatch{}, fmt.Errorf("%w: batch id is required", ErrInvalidBatch)
	}

	b, err := s.store.ResetBatch(ctx, id, s.now().UTC())
	if err != nil {
		return models.WasteBatch{}, err
	}
	s.logger.Info("waste batch retriggered", zap.String("batch_id", id), zap.Int("generation", b.Generation))
	return b, nil
}

// normalizeWasteType maps "Paddy Straw" and "paddy-straw" to "paddy_straw".
func normalizeWasteType(raw string) string {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	return strings.Join(fields, "_")
}
