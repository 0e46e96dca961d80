package contract

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nimburion/listquery/pkg/server/router"
)

type ctxKey struct{}

// TestRouterContract runs the behaviour every router adapter must share with
// the others so resource handlers and middleware stay adapter-independent.
func TestRouterContract(t *testing.T, createRouter func() router.Router) {
	t.Helper()

	t.Run("resource_routes", func(t *testing.T) {
		r := createRouter()
		mountResource(r.Group("/api").Group("/v1"), "/users")

		tests := []struct {
			method string
			path   string
			code   int
			body   string
		}{
			{http.MethodGet, "/api/v1/users", http.StatusOK, "GET /api/v1/users"},
			{http.MethodPost, "/api/v1/users", http.StatusOK, "POST /api/v1/users"},
			{http.MethodGet, "/api/v1/users/42", http.StatusOK, "GET /api/v1/users/:id id=42"},
			{http.MethodPut, "/api/v1/users/42", http.StatusOK, "PUT /api/v1/users/:id id=42"},
			{http.MethodPatch, "/api/v1/users/42", http.StatusOK, "PATCH /api/v1/users/:id id=42"},
			{http.MethodDelete, "/api/v1/users/42", http.StatusOK, "DELETE /api/v1/users/:id id=42"},
			{http.MethodGet, "/api/v1/users/u1/orders/o9", http.StatusOK, "GET /api/v1/users/:id/orders/:orderId id=u1 orderId=o9"},
			{http.MethodGet, "/api/v1/users/", http.StatusNotFound, ""},
			{http.MethodGet, "/users", http.StatusNotFound, ""},
		}
		for _, tt := range tests {
			t.Run(tt.method+" "+tt.path, func(t *testing.T) {
				res := performRequest(r, tt.method, tt.path, nil, "")
				if res.Code != tt.code {
					t.Fatalf("expected %d, got %d", tt.code, res.Code)
				}
				if tt.body != "" && res.Body.String() != tt.body {
					t.Fatalf("expected body %q, got %q", tt.body, res.Body.String())
				}
			})
		}
	})

	t.Run("list_query_string", func(t *testing.T) {
		r := createRouter()
		r.GET("/users", func(c router.Context) error {
			v := c.QueryValues()
			return c.String(http.StatusOK, c.Query("status")+"|"+strings.Join(v["status"], ",")+"|"+v.Get("inList[email]")+"|"+v.Get("mongoQuery"))
		})

		tests := []struct {
			name  string
			query string
			want  string
		}{
			{"absent", "", "|||"},
			{"single", "?status=a", "a|a||"},
			{"repeated keeps order", "?status=b&status=a", "b|b,a||"},
			{"encoded bracket group", "?inList%5Bemail%5D=a%40x.com,b%40x.com", "|||a@x.com,b@x.com|"},
			{"raw bracket group", "?inList[email]=a", "|||a|"},
			{"json value", "?mongoQuery=%7B%22age%22%3A%7B%22%24gt%22%3A1%7D%7D", `|||{"age":{"$gt":1}}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res := performRequest(r, http.MethodGet, "/users"+tt.query, nil, "")
				if res.Body.String() != tt.want {
					t.Fatalf("expected %q, got %q", tt.want, res.Body.String())
				}
			})
		}
	})

	t.Run("middleware_chain", func(t *testing.T) {
		var order []string
		trace := func(name string) router.MiddlewareFunc {
			return func(next router.HandlerFunc) router.HandlerFunc {
				return func(c router.Context) error {
					order = append(order, name)
					return next(c)
				}
			}
		}

		r := createRouter()
		r.Use(trace("global"))
		api := r.Group("/api", trace("group"))
		api.GET("/users", func(c router.Context) error {
			order = append(order, "handler")
			return c.String(http.StatusOK, "ok")
		}, trace("route"))

		if res := performRequest(r, http.MethodGet, "/api/users", nil, ""); res.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", res.Code)
		}
		if got := strings.Join(order, ","); got != "global,group,route,handler" {
			t.Fatalf("unexpected middleware order: %s", got)
		}

		order = nil
		r.Use(trace("late"))
		r.GET("/orders", func(c router.Context) error { return c.String(http.StatusOK, "ok") })
		performRequest(r, http.MethodGet, "/api/users", nil, "")
		if got := strings.Join(order, ","); got != "global,group,route,handler" {
			t.Fatalf("middleware added later must not wrap earlier routes, got %s", got)
		}
		order = nil
		performRequest(r, http.MethodGet, "/orders", nil, "")
		if got := strings.Join(order, ","); got != "global,late" {
			t.Fatalf("expected later middleware on later routes, got %s", got)
		}
	})

	t.Run("middleware_short_circuit", func(t *testing.T) {
		r := createRouter()
		called := false
		reject := func(next router.HandlerFunc) router.HandlerFunc {
			return func(c router.Context) error {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"status": "error"})
			}
		}
		fail := func(next router.HandlerFunc) router.HandlerFunc {
			return func(c router.Context) error { return errors.New("stop") }
		}
		handler := func(c router.Context) error {
			called = true
			return c.String(http.StatusOK, "never")
		}
		r.GET("/limited", handler, reject)
		r.GET("/broken", handler, fail)

		if res := performRequest(r, http.MethodGet, "/limited", nil, ""); res.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", res.Code)
		}
		if res := performRequest(r, http.MethodGet, "/broken", nil, ""); res.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", res.Code)
		}
		if called {
			t.Fatal("handler must not run when middleware stops the chain")
		}
	})

	t.Run("not_found_fallback", func(t *testing.T) {
		r := createRouter()
		r.Use(func(next router.HandlerFunc) router.HandlerFunc {
			return func(c router.Context) error {
				c.Response().Header().Set("X-Request-ID", "req-1")
				return next(c)
			}
		})
		r.NotFound(func(c router.Context) error {
			if c.RoutePattern() != "" {
				t.Fatalf("expected empty pattern for unmatched route, got %q", c.RoutePattern())
			}
			return c.JSON(http.StatusNotFound, map[string]string{"status": "error", "code": "route.not_found"})
		})
		r.Group("/api").GET("/users", func(c router.Context) error { return c.String(http.StatusOK, "ok") })

		for _, path := range []string{"/unknown", "/api/unknown"} {
			res := performRequest(r, http.MethodGet, path, nil, "")
			if res.Code != http.StatusNotFound {
				t.Fatalf("%s: expected 404, got %d", path, res.Code)
			}
			if !strings.Contains(res.Body.String(), "route.not_found") {
				t.Fatalf("%s: expected json fallback body, got %q", path, res.Body.String())
			}
			if res.Header().Get("X-Request-ID") != "req-1" {
				t.Fatalf("%s: expected global middleware around the fallback", path)
			}
		}
	})

	t.Run("request_and_response_replacement", func(t *testing.T) {
		r := createRouter()
		r.Use(func(next router.HandlerFunc) router.HandlerFunc {
			return func(c router.Context) error {
				c.SetRequest(c.Request().WithContext(context.WithValue(c.Request().Context(), ctxKey{}, "tenant-a")))
				c.SetResponse(&upperWriter{ResponseWriter: c.Response()})
				return next(c)
			}
		})
		r.GET("/users/:id", func(c router.Context) error {
			tenant, _ := c.Request().Context().Value(ctxKey{}).(string)
			return c.String(http.StatusOK, tenant+":"+c.Param("id"))
		})

		res := performRequest(r, http.MethodGet, "/users/abc", nil, "")
		if res.Body.String() != "TENANT-A:ABC" {
			t.Fatalf("expected replaced request and writer to be used, got %q", res.Body.String())
		}
	})

	t.Run("bind", func(t *testing.T) {
		r := createRouter()
		r.POST("/users", func(c router.Context) error {
			var payload map[string]interface{}
			if err := c.Bind(&payload); err != nil {
				return c.String(http.StatusBadRequest, "bind-error")
			}
			name, _ := payload["name"].(string)
			return c.String(http.StatusCreated, name)
		})

		tests := []struct {
			name        string
			body        io.Reader
			contentType string
			code        int
		}{
			{"json object", strings.NewReader(`{"name":"alice"}`), "application/json", http.StatusCreated},
			{"json with charset", strings.NewReader(`{"name":"bob"}`), "application/json; charset=utf-8", http.StatusCreated},
			{"truncated json", strings.NewReader("{"), "application/json", http.StatusBadRequest},
			{"empty body", nil, "application/json", http.StatusBadRequest},
			{"form body", strings.NewReader("name=x"), "text/plain", http.StatusBadRequest},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res := performRequest(r, http.MethodPost, "/users", tt.body, tt.contentType)
				if res.Code != tt.code {
					t.Fatalf("expected %d, got %d (%q)", tt.code, res.Code, res.Body.String())
				}
			})
		}
	})

	t.Run("responses", func(t *testing.T) {
		r := createRouter()
		r.GET("/json", func(c router.Context) error {
			return c.JSON(http.StatusCreated, map[string]string{"status": "success"})
		})
		r.GET("/text", func(c router.Context) error {
			return c.String(http.StatusAccepted, "hello")
		})

		tests := []struct {
			path        string
			code        int
			contentType string
			body        string
		}{
			{"/json", http.StatusCreated, "application/json", `"status":"success"`},
			{"/text", http.StatusAccepted, "text/plain", "hello"},
		}
		for _, tt := range tests {
			res := performRequest(r, http.MethodGet, tt.path, nil, "")
			if res.Code != tt.code {
				t.Fatalf("%s: expected %d, got %d", tt.path, tt.code, res.Code)
			}
			if !strings.Contains(res.Header().Get("Content-Type"), tt.contentType) {
				t.Fatalf("%s: expected %s, got %q", tt.path, tt.contentType, res.Header().Get("Content-Type"))
			}
			if !strings.Contains(res.Body.String(), tt.body) {
				t.Fatalf("%s: expected body containing %q, got %q", tt.path, tt.body, res.Body.String())
			}
		}
	})

	t.Run("context_storage", func(t *testing.T) {
		r := createRouter()
		r.Use(func(next router.HandlerFunc) router.HandlerFunc {
			return func(c router.Context) error {
				c.Set("request_id", "req-7")
				return next(c)
			}
		})
		r.GET("/ctx", func(c router.Context) error {
			if c.Get("missing") != nil {
				t.Fatal("expected nil for missing key")
			}
			c.Set("page", 2)
			if c.Get("page") != 2 || c.Get("request_id") != "req-7" {
				t.Fatalf("unexpected stored values: page=%v request_id=%v", c.Get("page"), c.Get("request_id"))
			}
			return c.String(http.StatusOK, "ok")
		})

		if res := performRequest(r, http.MethodGet, "/ctx", nil, ""); res.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", res.Code)
		}
	})

	t.Run("handler_errors", func(t *testing.T) {
		r := createRouter()
		r.GET("/unwritten", func(c router.Context) error { return errors.New("boom") })
		r.GET("/written", func(c router.Context) error {
			if err := c.String(http.StatusBadRequest, "bad"); err != nil {
				return err
			}
			return errors.New("ignored")
		})

		if res := performRequest(r, http.MethodGet, "/unwritten", nil, ""); res.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", res.Code)
		}
		res := performRequest(r, http.MethodGet, "/written", nil, "")
		if res.Code != http.StatusBadRequest || res.Body.String() != "bad" {
			t.Fatalf("expected written response kept, got %d %q", res.Code, res.Body.String())
		}
	})

	t.Run("response_writer", func(t *testing.T) {
		r := createRouter()
		r.GET("/body", func(c router.Context) error {
			rw := c.Response()
			if rw.Written() || rw.Status() != http.StatusOK {
				t.Fatalf("expected fresh writer, got written=%v status=%d", rw.Written(), rw.Status())
			}
			if _, err := rw.Write([]byte("ok")); err != nil {
				return err
			}
			if !rw.Written() {
				t.Fatal("Written must be true after write")
			}
			return nil
		})
		r.GET("/header", func(c router.Context) error {
			rw := c.Response()
			rw.WriteHeader(http.StatusNoContent)
			if rw.Status() != http.StatusNoContent || !rw.Written() {
				t.Fatalf("expected 204 written, got written=%v status=%d", rw.Written(), rw.Status())
			}
			return nil
		})

		if res := performRequest(r, http.MethodGet, "/body", nil, ""); res.Code != http.StatusOK || res.Body.String() != "ok" {
			t.Fatalf("expected 200 ok, got %d %q", res.Code, res.Body.String())
		}
		if res := performRequest(r, http.MethodGet, "/header", nil, ""); res.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", res.Code)
		}
	})
}

// mountResource registers the routes a list resource uses, each echoing the
// matched pattern and path parameters.
func mountResource(r router.Router, path string) {
	echo := func(params ...string) router.HandlerFunc {
		return func(c router.Context) error {
			out := c.Request().Method + " " + c.RoutePattern()
			for _, name := range params {
				out += " " + name + "=" + c.Param(name)
			}
			return c.String(http.StatusOK, out)
		}
	}
	item := path + "/:id"
	r.GET(path, echo())
	r.POST(path, echo())
	r.GET(item, echo("id"))
	r.PUT(item, echo("id"))
	r.PATCH(item, echo("id"))
	r.DELETE(item, echo("id"))
	r.GET(item+"/orders/:orderId", echo("id", "orderId"))
}

type upperWriter struct {
	router.ResponseWriter
}

func (w *upperWriter) Write(b []byte) (int, error) {
	return w.ResponseWriter.Write([]byte(strings.ToUpper(string(b))))
}

func performRequest(r router.Router, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	var testBody io.Reader = http.NoBody
	if body != nil {
		testBody = body
	}
	req := httptest.NewRequest(method, path, testBody)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
