// Package gorilla implements router.Router on gorilla/mux.
package gorilla

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/nimburion/listquery/pkg/server/router"
)

// GorillaRouter implements router.Router using gorilla/mux.
type GorillaRouter struct {
	root              *mux.Router
	router            *mux.Router
	middleware        []router.MiddlewareFunc
	mu                *sync.RWMutex
	optionsRegistered *map[string]struct{}
}

// NewRouter creates a new GorillaRouter.
func NewRouter() *GorillaRouter {
	optionsRegistered := make(map[string]struct{})
	root := mux.NewRouter()
	return &GorillaRouter{
		root:              root,
		router:            root,
		mu:                &sync.RWMutex{},
		optionsRegistered: &optionsRegistered,
	}
}

func (r *GorillaRouter) GET(path string, handler router.HandlerFunc, middleware ...router.MiddlewareFunc) {
	r.handle(http.MethodGet, path, handler, middleware)
}

func (r *GorillaRouter) POST(path string, handler router.HandlerFunc, middleware ...router.MiddlewareFunc) {
	r.handle(http.MethodPost, path, handler, middleware)
}

func (r *GorillaRouter) PUT(path string, handler router.HandlerFunc, middleware ...router.MiddlewareFunc) {
	r.handle(http.MethodPut, path, handler, middleware)
}

func (r *GorillaRouter) DELETE(path string, handler router.HandlerFunc, middleware ...router.MiddlewareFunc) {
	r.handle(http.MethodDelete, path, handler, middleware)
}

func (r *GorillaRouter) PATCH(path string, handler router.HandlerFunc, middleware ...router.MiddlewareFunc) {
	r.handle(http.MethodPatch, path, handler, middleware)
}

// Group creates a route group with common prefix and middleware.
func (r *GorillaRouter) Group(prefix string, middleware ...router.MiddlewareFunc) router.Router {
	return &GorillaRouter{
		root:              r.root,
		router:            r.router.PathPrefix(prefix).Subrouter(),
		middleware:        append(r.snapshot(), middleware...),
		mu:                r.mu,
		optionsRegistered: r.optionsRegistered,
	}
}

// Use applies middleware to routes registered after the call.
func (r *GorillaRouter) Use(middleware ...router.MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, middleware...)
}

// NotFound installs the fallback on the root router, so it also answers
// for unmatched paths under a group prefix.
func (r *GorillaRouter) NotFound(h router.HandlerFunc) {
	global := r.snapshot()
	r.root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		run(newContext(w, req), h, nil, global)
	})
}

func (r *GorillaRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.root.ServeHTTP(w, req)
}

func (r *GorillaRouter) snapshot() []router.MiddlewareFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]router.MiddlewareFunc{}, r.middleware...)
}

func (r *GorillaRouter) handle(method, path string, h router.HandlerFunc, routeMiddleware []router.MiddlewareFunc) {
	global := r.snapshot()
	muxPath := toMuxPath(path)
	r.router.HandleFunc(muxPath, func(w http.ResponseWriter, req *http.Request) {
		run(newContext(w, req), h, routeMiddleware, global)
	}).Methods(method)

	r.ensureOptionsRoute(muxPath)
}

// run chains global then route middleware around h. An error that reaches
// the router with nothing written becomes a plain 500.
func run(ctx *gorillaContext, h router.HandlerFunc, routeMiddleware, global []router.MiddlewareFunc) {
	handler := h
	for i := len(routeMiddleware) - 1; i >= 0; i-- {
		handler = routeMiddleware[i](handler)
	}
	for i := len(global) - 1; i >= 0; i-- {
		handler = global[i](handler)
	}
	if err := handler(ctx); err != nil && !ctx.Response().Written() {
		http.Error(ctx.Response(), err.Error(), http.StatusInternalServerError)
	}
}

func (r *GorillaRouter) ensureOptionsRoute(muxPath string) {
	r.mu.Lock()
	if _, exists := (*r.optionsRegistered)[muxPath]; exists {
		r.mu.Unlock()
		return
	}
	(*r.optionsRegistered)[muxPath] = struct{}{}
	global := append([]router.MiddlewareFunc{}, r.middleware...)
	r.mu.Unlock()

	noContent := func(c router.Context) error {
		if !c.Response().Written() {
			c.Response().WriteHeader(http.StatusNoContent)
		}
		return nil
	}
	r.router.HandleFunc(muxPath, func(w http.ResponseWriter, req *http.Request) {
		run(newContext(w, req), noContent, nil, global)
	}).Methods(http.MethodOptions)
}

// toMuxPath rewrites ":id" segments into mux's "{id}" form.
func toMuxPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			parts[i] = "{" + p[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}

// fromMuxPath is the inverse of toMuxPath.
func fromMuxPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			name := p[1 : len(p)-1]
			if j := strings.IndexByte(name, ':'); j >= 0 {
				name = name[:j]
			}
			parts[i] = ":" + name
		}
	}
	return strings.Join(parts, "/")
}

// gorillaContext adapts mux request/response to router.Context.
type gorillaContext struct {
	request  *http.Request
	response router.ResponseWriter
	store    map[string]interface{}
	mu       sync.RWMutex
}

func newContext(w http.ResponseWriter, r *http.Request) *gorillaContext {
	return &gorillaContext{
		request:  r,
		response: &gorillaResponseWriter{ResponseWriter: w},
		store:    make(map[string]interface{}),
	}
}

func (c *gorillaContext) Request() *http.Request              { return c.request }
func (c *gorillaContext) SetRequest(r *http.Request)          { c.request = r }
func (c *gorillaContext) Response() router.ResponseWriter     { return c.response }
func (c *gorillaContext) SetResponse(w router.ResponseWriter) { c.response = w }
func (c *gorillaContext) Param(name string) string            { return mux.Vars(c.request)[name] }
func (c *gorillaContext) Query(name string) string            { return c.request.URL.Query().Get(name) }
func (c *gorillaContext) QueryValues() url.Values             { return c.request.URL.Query() }

func (c *gorillaContext) RoutePattern() string {
	route := mux.CurrentRoute(c.request)
	if route == nil {
		return ""
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return fromMuxPath(tpl)
}

func (c *gorillaContext) Bind(v interface{}) error {
	if c.request.Body == nil || c.request.Body == http.NoBody {
		return fmt.Errorf("request body is empty")
	}
	defer c.request.Body.Close()

	contentType := c.request.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return fmt.Errorf("unsupported content type: %s", contentType)
	}

	return json.NewDecoder(c.request.Body).Decode(v)
}

func (c *gorillaContext) JSON(code int, v interface{}) error {
	c.response.Header().Set("Content-Type", "application/json")
	c.response.WriteHeader(code)
	return json.NewEncoder(c.response).Encode(v)
}

func (c *gorillaContext) String(code int, s string) error {
	c.response.Header().Set("Content-Type", "text/plain")
	c.response.WriteHeader(code)
	_, err := io.WriteString(c.response, s)
	return err
}

func (c *gorillaContext) Get(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store[key]
}

func (c *gorillaContext) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = value
}

// gorillaResponseWriter wraps http.ResponseWriter and tracks status/written state.
type gorillaResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
	mu      sync.RWMutex
}

func (w *gorillaResponseWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.written {
		return
	}
	w.status = code
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *gorillaResponseWriter) Write(b []byte) (int, error) {
	if !w.Written() {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *gorillaResponseWriter) Status() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *gorillaResponseWriter) Written() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.written
}

func (w *gorillaResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (w *gorillaResponseWriter) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if !ok {
		return
	}
	flusher.Flush()
}
