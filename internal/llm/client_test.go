package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/finlens/receipt-extract/internal/common"
)

func TestComplete_DecodesFirstChoice(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"openai/gpt-4o","choices":[{"message":{"content":"{\"items\":[]}"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "bearer", srv.Client(), nil)
	resp, err := c.Complete(context.Background(), Request{
		Model:               "openai/gpt-4o",
		MaxCompletionTokens: 100,
		Messages:            []Message{Text("user", "hi")},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Model != "openai/gpt-4o" || resp.Message.Text() != `{"items":[]}` {
		t.Fatalf("resp = %+v", resp)
	}
	if gotBody["temperature"] != float64(0) || gotBody["stream"] != false {
		t.Fatalf("request body = %+v", gotBody)
	}
}

func TestComplete_BackendErrorIsTagged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"model overloaded"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "bearer", srv.Client(), nil)
	_, err := c.Complete(context.Background(), Request{Model: "m", Messages: []Message{Text("user", "hi")}})
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, common.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable in chain", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "bearer", srv.Client(), nil)
	if _, err := c.Complete(context.Background(), Request{Model: "m"}); err == nil {
		t.Fatal("want error for empty choices")
	}
}
