// Package router abstracts HTTP routing so resource handlers can be mounted on
// either gin or gorilla/mux without change.
package router

import (
	"net/http"
	"net/url"
)

// Router registers handlers and serves requests.
// Paths use the ":name" placeholder syntax for every implementation.
type Router interface {
	GET(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	POST(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	PUT(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	DELETE(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	PATCH(path string, handler HandlerFunc, middleware ...MiddlewareFunc)

	// Group creates a route group with common prefix and middleware.
	Group(prefix string, middleware ...MiddlewareFunc) Router

	// Use applies middleware to all routes registered afterwards.
	Use(middleware ...MiddlewareFunc)

	// NotFound sets the handler for requests that match no route.
	// Middleware registered with Use runs around it.
	NotFound(handler HandlerFunc)

	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// HandlerFunc handles one request.
type HandlerFunc func(Context) error

// MiddlewareFunc wraps a HandlerFunc.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

// Context gives handlers router-independent access to the request and response.
type Context interface {
	Request() *http.Request
	SetRequest(r *http.Request)

	Response() ResponseWriter
	SetResponse(w ResponseWriter)

	// Param returns a path parameter, or "" if absent.
	Param(name string) string

	// Query returns the first value of a query parameter.
	Query(name string) string

	// QueryValues returns every query parameter with all its values, in the
	// form list endpoints consume.
	QueryValues() url.Values

	// RoutePattern returns the registered pattern that matched, e.g.
	// "/users/:id", or "" when no route matched.
	RoutePattern() string

	// Bind decodes a JSON request body into v.
	Bind(v interface{}) error

	JSON(code int, v interface{}) error
	String(code int, s string) error

	Get(key string) interface{}
	Set(key string, value interface{})
}

// ResponseWriter tracks the status written to the client.
type ResponseWriter interface {
	http.ResponseWriter

	// Status returns the written status code, 200 if none yet.
	Status() int

	// Written reports whether headers were sent.
	Written() bool
}
