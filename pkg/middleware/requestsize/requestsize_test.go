package requestsize

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nimburion/listquery/pkg/controller"
	"github.com/nimburion/listquery/pkg/server/router"
	ginadapter "github.com/nimburion/listquery/pkg/server/router/gin"
)

func newTestRouter(maxBytes int64, called *bool) router.Router {
	r := ginadapter.NewRouter()
	r.Use(Middleware(maxBytes))
	r.POST("/items", func(c router.Context) error {
		if called != nil {
			*called = true
		}
		var payload map[string]interface{}
		if err := c.Bind(&payload); err != nil {
			return err
		}
		return controller.Created(c, "Document created successfully", payload)
	})
	return r
}

func post(r http.Handler, body string, unknownLength bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/items", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if unknownLength {
		req.ContentLength = -1
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_AllowsRequestWithinLimit(t *testing.T) {
	rec := post(newTestRouter(64, nil), `{"name":"ok"}`, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rec.Code)
	}
}

func TestMiddleware_RejectsDeclaredOversizedBody(t *testing.T) {
	called := false
	rec := post(newTestRouter(8, &called), `{"name":"too-long"}`, false)

	if called {
		t.Fatal("handler should not run for oversized requests")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, rec.Code)
	}
	var resp controller.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != controller.StatusError || resp.Code != "request.too_large" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if resp.Details["max_size"] != float64(8) {
		t.Fatalf("expected max_size detail, got %v", resp.Details)
	}
}

func TestMiddleware_MapsMaxBytesErrorFromHandler(t *testing.T) {
	rec := post(newTestRouter(16, nil), `{"name":"012345678901234567890123456789"}`, true)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "request.too_large") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestMiddleware_DisabledForNonPositiveLimit(t *testing.T) {
	rec := post(newTestRouter(0, nil), `{"name":"01234567890123456789"}`, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rec.Code)
	}
}
