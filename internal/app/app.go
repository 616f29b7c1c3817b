// Package app assembles the engine from configuration. The server and the operator CLI
// share it so both run batches through the same wiring.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/config"
	"github.com/mamadbah2/agrimatch/internal/domain/models"
	"github.com/mamadbah2/agrimatch/internal/llm"
	"github.com/mamadbah2/agrimatch/internal/repository/mongodb"
	"github.com/mamadbah2/agrimatch/internal/repository/sheets"
	"github.com/mamadbah2/agrimatch/internal/retry"
	batchsvc "github.com/mamadbah2/agrimatch/internal/service/batches"
	"github.com/mamadbah2/agrimatch/internal/service/orchestrator"
	reportingsvc "github.com/mamadbah2/agrimatch/internal/service/reporting"
	whatsappsvc "github.com/mamadbah2/agrimatch/internal/service/whatsapp"
	"github.com/mamadbah2/agrimatch/pkg/clients/anthropic"
	"github.com/mamadbah2/agrimatch/pkg/clients/gemini"
	whatsappclient "github.com/mamadbah2/agrimatch/pkg/clients/whatsapp"
)

// App holds the wired services.
type App struct {
	Config       *config.Config
	Repo         *mongodb.MongoDBRepository
	Orchestrator *orchestrator.Orchestrator
	Batches      *batchsvc.Service
	Reporting    *reportingsvc.Service
	// Messaging is nil when WhatsApp is not configured.
	Messaging *whatsappsvc.MetaWhatsAppService
	logger    *zap.Logger
}

// New connects to MongoDB and the configured providers.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	repo, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName, logger.Named("repo.mongodb"))
	if err != nil {
		return nil, fmt.Errorf("init mongodb repository: %w", err)
	}
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = repo.Close(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	router, err := newModelRouter(cfg.AI, logger)
	if err != nil {
		_ = repo.Close(context.Background())
		return nil, err
	}

	policy := llm.NewPolicy(router, llm.Config{
		MaxAttempts: cfg.Matching.MaxAttempts,
		Backoff: retry.Backoff{
			Initial:    cfg.Matching.BackoffInitial,
			Multiplier: cfg.Matching.BackoffMultiplier,
			Max:        cfg.Matching.BackoffMax,
		},
		CallTimeout: cfg.Matching.CallTimeout,
	}, logger.Named("llm.policy"))

	var ledger sheets.Ledger = sheets.NopLedger{}
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets.CredentialsPath, cfg.Sheets.SpreadsheetID, logger.Named("repo.sheets"))
		if err != nil {
			_ = repo.Close(context.Background())
			return nil, fmt.Errorf("init sheets ledger: %w", err)
		}
		ledger = sheets.NewMatchLedger(sheetsRepo)
		logger.Info("match ledger enabled")
	}

	observers := []orchestrator.Observer{orchestrator.NewLedgerObserver(ledger, logger.Named("observer.ledger"))}

	a := &App{Config: cfg, Repo: repo, logger: logger}

	var notifier reportingsvc.OperatorNotifier
	if cfg.WhatsApp.Enabled() {
		client, err := whatsappclient.NewClient(whatsappclient.Options{
			AccessToken:   cfg.WhatsApp.AccessToken,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			BaseURL:       cfg.WhatsApp.BaseURL,
			APIVersion:    cfg.WhatsApp.APIVersion,
		})
		if err != nil {
			_ = repo.Close(context.Background())
			return nil, fmt.Errorf("init whatsapp client: %w", err)
		}
		a.Messaging = whatsappsvc.NewMetaWhatsAppService(client, cfg.WhatsApp.OperatorNumber, logger.Named("svc.whatsapp"))
		observers = append(observers, a.Messaging)
		notifier = a.Messaging
		logger.Info("whatsapp notifications enabled")
	} else {
		logger.Warn("whatsapp credentials missing, notifications disabled")
	}

	a.Orchestrator = orchestrator.New(repo, policy, orchestrator.Config{
		Models: cfg.AI.Models,
		Request: llm.Request{
			Temperature: cfg.AI.Temperature,
			TopK:        cfg.AI.TopK,
			TopP:        cfg.AI.TopP,
			MaxTokens:   cfg.AI.MaxTokens,
			JSON:        true,
		},
		Budget:        cfg.Matching.Budget,
		WriteReserve:  cfg.Matching.WriteReserve,
		WriteAttempts: cfg.Matching.WriteAttempts,
		WriteBackoff: retry.Backoff{
			Initial:    cfg.Matching.WriteBackoffInitial,
			Multiplier: cfg.Matching.WriteBackoffMultiplier,
			Max:        cfg.Matching.WriteBackoffMax,
		},
		DefaultRegion: cfg.Matching.DefaultRegion,
		DefaultOrigin: models.Location{Lat: cfg.Matching.DefaultLat, Lng: cfg.Matching.DefaultLng},
		AgentName:     cfg.Matching.AgentName,
	}, logger.Named("svc.orchestrator"), observers...)

	a.Batches = batchsvc.NewService(repo, logger.Named("svc.batches"))
	a.Reporting = reportingsvc.NewService(repo, ledger, notifier, logger.Named("svc.reporting"))

	return a, nil
}

// Process runs one batch and logs the result. It matches the watcher and scheduler handler shape.
func (a *App) Process(ctx context.Context, batchID string) error {
	res, err := a.Orchestrator.Process(ctx, batchID)
	if err != nil {
		return err
	}
	a.logger.Debug("batch processed",
		zap.String("batch_id", res.BatchID),
		zap.String("status", string(res.Status)),
		zap.Bool("skipped", res.Skipped))
	return nil
}

// Close releases the MongoDB connection.
func (a *App) Close(ctx context.Context) error {
	return a.Repo.Close(ctx)
}

func newModelRouter(cfg config.AIConfig, logger *zap.Logger) (*llm.Router, error) {
	router := llm.NewRouter()

	if cfg.GeminiKey != "" {
		client, err := gemini.NewClient(gemini.Options{APIKey: cfg.GeminiKey, RequestsPerSecond: cfg.RequestsPerSecond})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		router.Register(string(config.ProviderGemini), llm.GeminiProvider{Client: client})
		logger.Info("gemini provider enabled")
	}

	if cfg.AnthropicKey != "" {
		router.Register(string(config.ProviderAnthropic), llm.AnthropicProvider{Client: anthropic.NewClient(anthropic.Options{
			APIKey:            cfg.AnthropicKey,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})})
		logger.Info("anthropic provider enabled")
	}

	for _, m := range cfg.Models {
		if !router.Supports(m) {
			logger.Warn("model has no registered provider, attempts will fail", zap.String("model", m))
		}
	}
	return router, nil
}
