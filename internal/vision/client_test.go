package vision

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/finlens/receipt-extract/internal/common"
)

func annotateServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/img", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not-a-real-jpeg"))
	})
	mux.HandleFunc("/annotate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	return httptest.NewServer(mux)
}

func TestAnnotate_BackendFailureIsTagged(t *testing.T) {
	srv := annotateServer(t, http.StatusForbidden, `{"error":{"message":"API key not valid"}}`)
	defer srv.Close()

	c := NewClient("bad-key", srv.URL+"/annotate", srv.Client(), nil)
	_, err := c.Annotate(context.Background(), srv.URL+"/img")
	if err == nil {
		t.Fatal("want error")
	}
	if !errors.Is(err, common.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable in chain", err)
	}
}

func TestAnnotate_EmptyAnnotationIsGeometryUnavailable(t *testing.T) {
	srv := annotateServer(t, http.StatusOK, `{"responses":[{}]}`)
	defer srv.Close()

	c := NewClient("key", srv.URL+"/annotate", srv.Client(), nil)
	_, err := c.Annotate(context.Background(), srv.URL+"/img")
	if !errors.Is(err, common.ErrGeometryUnavailable) {
		t.Fatalf("err = %v, want ErrGeometryUnavailable in chain", err)
	}
}
