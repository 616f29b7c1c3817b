package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
	"github.com/mamadbah2/agrimatch/internal/server/handlers"
	"github.com/mamadbah2/agrimatch/internal/service/batches"
)

type fakeBatches struct {
	created []models.CreateBatchRequest
	stored  map[string]models.WasteBatch
	failure error
}

func (f *fakeBatches) Create(_ context.Context, req models.CreateBatchRequest) (models.WasteBatch, error) {
	if req.WasteType == "gravel" {
		return models.WasteBatch{}, fmt.Errorf("%w: unsupported waste type", batches.ErrInvalidBatch)
	}
	f.created = append(f.created, req)
	return models.WasteBatch{ID: "b-new", FarmerID: req.FarmerID, Status: models.StatusPending}, nil
}

func (f *fakeBatches) Get(_ context.Context, id string) (models.WasteBatch, error) {
	if f.failure != nil {
		return models.WasteBatch{}, f.failure
	}
	b, ok := f.stored[id]
	if !ok {
		return models.WasteBatch{}, fmt.Errorf("%w: %s", models.ErrBatchNotFound, id)
	}
	return b, nil
}

func (f *fakeBatches) Retrigger(_ context.Context, id string) (models.WasteBatch, error) {
	b, ok := f.stored[id]
	if !ok {
		return models.WasteBatch{}, fmt.Errorf("%w: %s", models.ErrBatchNotFound, id)
	}
	b.Status = models.StatusPending
	b.Generation++
	return b, nil
}

type fakeImpact struct {
	regions []string
}

func (f *fakeImpact) Impact(_ context.Context, region string) (models.ImpactMetrics, error) {
	f.regions = append(f.regions, region)
	return models.ImpactMetrics{Region: region, TotalMatches: 3}, nil
}

type fakeSender struct {
	sent []models.OutboundMessageRequest
}

func (f *fakeSender) SendOutbound(_ context.Context, req models.OutboundMessageRequest) error {
	if req.To == "000" {
		return errors.New("whatsapp api returned 400")
	}
	f.sent = append(f.sent, req)
	return nil
}

type fixture struct {
	batches *fakeBatches
	impact  *fakeImpact
	sender  *fakeSender
	engine  http.Handler
}

func newFixture(t *testing.T, withMessages bool) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &fixture{
		batches: &fakeBatches{stored: map[string]models.WasteBatch{
			"b1": {ID: "b1", FarmerID: "f1", Status: models.StatusMatched, Generation: 1},
		}},
		impact: &fakeImpact{},
		sender: &fakeSender{},
	}
	h := Handlers{
		Batches: handlers.NewBatchHandler(f.batches, logger),
		Impact:  handlers.NewImpactHandler(f.impact, "Punjab", logger),
	}
	if withMessages {
		h.Messages = handlers.NewMessageHandler(f.sender, logger)
	}
	f.engine = New(h, logger)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestBatchRoutes(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"create", http.MethodPost, "/api/batches", `{"farmerId":"f1","wasteType":"paddy_straw","quantityKg":700}`, http.StatusCreated},
		{"create missing quantity", http.MethodPost, "/api/batches", `{"farmerId":"f1","wasteType":"paddy_straw"}`, http.StatusBadRequest},
		{"create malformed", http.MethodPost, "/api/batches", `{"farmerId":`, http.StatusBadRequest},
		{"create rejected by service", http.MethodPost, "/api/batches", `{"farmerId":"f1","wasteType":"gravel","quantityKg":10}`, http.StatusBadRequest},
		{"get", http.MethodGet, "/api/batches/b1", "", http.StatusOK},
		{"get missing", http.MethodGet, "/api/batches/nope", "", http.StatusNotFound},
		{"retrigger", http.MethodPost, "/api/batches/b1/retrigger", "", http.StatusAccepted},
		{"retrigger missing", http.MethodPost, "/api/batches/nope/retrigger", "", http.StatusNotFound},
		{"healthz", http.MethodGet, "/healthz", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			rec := f.do(tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRetriggerReturnsNewGeneration(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodPost, "/api/batches/b1/retrigger", "")

	var b models.WasteBatch
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if b.Status != models.StatusPending || b.Generation != 2 {
		t.Errorf("unexpected batch %+v", b)
	}
}

func TestGetStoreFailureIsInternal(t *testing.T) {
	f := newFixture(t, false)
	f.batches.failure = errors.New("server selection timeout")

	rec := f.do(http.MethodGet, "/api/batches/b1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestImpactRegion(t *testing.T) {
	f := newFixture(t, false)

	f.do(http.MethodGet, "/api/impact", "")
	f.do(http.MethodGet, "/api/impact?region=Haryana", "")

	if len(f.impact.regions) != 2 || f.impact.regions[0] != "Punjab" || f.impact.regions[1] != "Haryana" {
		t.Errorf("unexpected regions %v", f.impact.regions)
	}
}

func TestMessagesRoute(t *testing.T) {
	t.Run("not mounted without whatsapp", func(t *testing.T) {
		f := newFixture(t, false)
		rec := f.do(http.MethodPost, "/api/messages", `{"to":"919876543210","message":"hi"}`)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("sends", func(t *testing.T) {
		f := newFixture(t, true)
		rec := f.do(http.MethodPost, "/api/messages", `{"to":"919876543210","message":"Pickup confirmed"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
		if len(f.sender.sent) != 1 || f.sender.sent[0].Message != "Pickup confirmed" {
			t.Errorf("unexpected sends %+v", f.sender.sent)
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		f := newFixture(t, true)
		rec := f.do(http.MethodPost, "/api/messages", `{"to":"000","message":"hi"}`)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
	})

	t.Run("missing body fields", func(t *testing.T) {
		f := newFixture(t, true)
		rec := f.do(http.MethodPost, "/api/messages", `{"to":"919876543210"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
