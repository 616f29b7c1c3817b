package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(Options{PhoneNumberID: "123"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v20.0/555/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Options{AccessToken: "token", PhoneNumberID: "555", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, err := c.SendText(context.Background(), TextMessage{To: "+91 98765-43210", Body: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "wamid.1" {
		t.Errorf("expected wamid.1, got %s", id)
	}
	if got["to"] != "919876543210" {
		t.Errorf("expected normalized recipient, got %v", got["to"])
	}
}

func TestSendTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100}}`))
	}))
	defer srv.Close()

	c, _ := NewClient(Options{AccessToken: "token", PhoneNumberID: "555", BaseURL: srv.URL})
	_, err := c.SendText(context.Background(), TextMessage{To: "919876543210", Body: "hi"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.HTTPStatus() != http.StatusBadRequest || apiErr.Detail.Code != 100 {
		t.Errorf("unexpected api error %+v", apiErr)
	}
}
