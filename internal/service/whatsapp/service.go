package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
	client "github.com/mamadbah2/agrimatch/pkg/clients/whatsapp"
)

const sendTimeout = 10 * time.Second

// ErrNoOperator is returned when no operator number is configured.
var ErrNoOperator = errors.New("operator whatsapp number not configured")

// MetaWhatsAppService sends farmer and operator notifications through the WhatsApp Cloud API.
type MetaWhatsAppService struct {
	client         client.Client
	operatorNumber string
	logger         *zap.Logger
}

// NewMetaWhatsAppService wires a new service instance.
func NewMetaWhatsAppService(c client.Client, operatorNumber string, logger *zap.Logger) *MetaWhatsAppService {
	svc := &MetaWhatsAppService{
		client:         c,
		operatorNumber: operatorNumber,
		logger:         logger,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

// Settled tells the farmer how their batch ended. Batches without a phone number are skipped.
func (s *MetaWhatsAppService) Settled(ctx context.Context, batch models.WasteBatch, m *models.AIMatch) {
	if batch.FarmerPhone == "" {
		return
	}

	body := FarmerMessage(batch, m)
	if err := s.send(ctx, batch.FarmerPhone, body); err != nil {
		s.logger.Warn("failed to notify farmer",
			zap.String("batch_id", batch.ID),
			zap.String("status", string(batch.Status)),
			zap.Error(err))
		return
	}
	s.logger.Info("farmer notified", zap.String("batch_id", batch.ID), zap.String("status", string(batch.Status)))
}

// NotifyOperator sends body to the configured operator number.
func (s *MetaWhatsAppService) NotifyOperator(ctx context.Context, body string) error {
	if s.operatorNumber == "" {
		return ErrNoOperator
	}
	return s.send(ctx, s.operatorNumber, body)
}

// SendOutbound lets operators push ad hoc messages via HTTP.
func (s *MetaWhatsAppService) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := s.client.SendText(ctxWithTimeout, client.TextMessage{
		To:         req.To,
		Body:       req.Message,
		PreviewURL: req.PreviewURL,
	})
	return err
}

func (s *MetaWhatsAppService) send(ctx context.Context, to, body string) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := s.client.SendText(ctxWithTimeout, client.TextMessage{To: to, Body: body})
	return err
}

// FarmerMessage renders the status update for a settled batch.
func FarmerMessage(batch models.WasteBatch, m *models.AIMatch) string {
	switch {
	case batch.Status == models.StatusMatchFailed || m == nil:
		return fmt.Sprintf("We could not find a buyer for your %s batch (%.0f kg): %s. An operator will review it.",
			batch.WasteType, batch.QuantityKg, batch.Error)
	case batch.Status == models.StatusMatchPending:
		return fmt.Sprintf("Your %s batch (%.0f kg) is provisionally matched with %s at Rs %.2f/kg (about Rs %.2f). "+
			"The offer is pending confirmation. Ref %s.",
			batch.WasteType, batch.QuantityKg, m.IndustryName, m.PricePerKg, m.TotalValue, m.ID)
	default:
		return fmt.Sprintf("Your %s batch (%.0f kg) is matched with %s at Rs %.2f/kg (about Rs %.2f), %.1f km away. "+
			"Selling instead of burning prevents %.2f kg of PM2.5. Ref %s.",
			batch.WasteType, batch.QuantityKg, m.IndustryName, m.PricePerKg, m.TotalValue, m.DistanceKm, m.PM25PreventedKg, m.ID)
	}
}
