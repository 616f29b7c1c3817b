package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load("testdata-missing.env")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Matching.DefaultRegion != "Punjab" {
		t.Errorf("expected default region Punjab, got %s", cfg.Matching.DefaultRegion)
	}
	if cfg.Matching.MaxAttempts != 3 || cfg.Matching.BackoffInitial != time.Second {
		t.Errorf("unexpected retry defaults %+v", cfg.Matching)
	}
	if cfg.Matching.WriteAttempts != 3 || cfg.Matching.WriteBackoffInitial != 200*time.Millisecond ||
		cfg.Matching.WriteBackoffMultiplier != 2 || cfg.Matching.WriteBackoffMax != 2*time.Second {
		t.Errorf("unexpected write retry defaults %+v", cfg.Matching)
	}
	if len(cfg.AI.Models) != 2 || cfg.AI.Models[0] != "gemini-2.0-flash" {
		t.Errorf("unexpected model list %v", cfg.AI.Models)
	}
	if cfg.AI.TopK != 40 || cfg.AI.MaxTokens != 8192 {
		t.Errorf("unexpected generation controls %+v", cfg.AI)
	}
	if cfg.WhatsApp.Enabled() || cfg.Sheets.Enabled() {
		t.Error("optional integrations should be disabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("ANTHROPIC_API_KEY", "a-key")
	t.Setenv("MATCH_MODELS", " gemini-2.0-flash , claude-3-haiku-20240307 ,")
	t.Setenv("MATCH_BACKOFF_MAX", "20s")
	t.Setenv("MATCH_CONCURRENCY", "8")
	t.Setenv("MATCH_WRITE_ATTEMPTS", "5")
	t.Setenv("MATCH_WRITE_BACKOFF_INITIAL", "50ms")
	t.Setenv("MATCH_WRITE_BACKOFF_MAX", "1s")

	cfg, err := Load("testdata-missing.env")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.AI.Models) != 2 || cfg.AI.Models[1] != "claude-3-haiku-20240307" {
		t.Errorf("unexpected model list %v", cfg.AI.Models)
	}
	if cfg.Matching.BackoffMax != 20*time.Second || cfg.Matching.Concurrency != 8 {
		t.Errorf("overrides not applied: %+v", cfg.Matching)
	}
	if cfg.Matching.WriteAttempts != 5 || cfg.Matching.WriteBackoffInitial != 50*time.Millisecond ||
		cfg.Matching.WriteBackoffMax != time.Second {
		t.Errorf("write retry overrides not applied: %+v", cfg.Matching)
	}
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "no provider key",
			env:     map[string]string{},
			wantErr: "GEMINI_API_KEY or ANTHROPIC_API_KEY",
		},
		{
			name:    "model without matching key",
			env:     map[string]string{"GEMINI_API_KEY": "g", "MATCH_MODELS": "claude-3-haiku-20240307"},
			wantErr: "requires ANTHROPIC_API_KEY",
		},
		{
			name:    "unroutable model",
			env:     map[string]string{"GEMINI_API_KEY": "g", "MATCH_MODELS": "llama-3"},
			wantErr: "no known provider",
		},
		{
			name:    "malformed duration",
			env:     map[string]string{"GEMINI_API_KEY": "g", "MATCH_BUDGET": "soon"},
			wantErr: "invalid MATCH_BUDGET",
		},
		{
			name:    "budget smaller than reserve",
			env:     map[string]string{"GEMINI_API_KEY": "g", "MATCH_BUDGET": "5s"},
			wantErr: "must exceed MATCH_WRITE_RESERVE",
		},
		{
			name:    "no write attempts",
			env:     map[string]string{"GEMINI_API_KEY": "g", "MATCH_WRITE_ATTEMPTS": "0"},
			wantErr: "MATCH_WRITE_ATTEMPTS must be at least 1",
		},
		{
			name:    "shrinking write backoff",
			env:     map[string]string{"GEMINI_API_KEY": "g", "MATCH_WRITE_BACKOFF_MULTIPLIER": "0.5"},
			wantErr: "MATCH_WRITE_BACKOFF_MULTIPLIER must be at least 1",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv("ANTHROPIC_API_KEY", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := Load("testdata-missing.env")
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestProviderFor(t *testing.T) {
	testCases := map[string]Provider{
		"gemini-2.0-flash":        ProviderGemini,
		"Claude-3-haiku-20240307": ProviderAnthropic,
		"gpt-4o":                  ProviderUnknown,
	}
	for model, expected := range testCases {
		if got := ProviderFor(model); got != expected {
			t.Errorf("%s: expected %q, got %q", model, expected, got)
		}
	}
}
