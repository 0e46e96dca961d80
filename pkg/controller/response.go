package controller

import (
	"net/http"

	"github.com/nimburion/listquery/pkg/query"
	"github.com/nimburion/listquery/pkg/repository/document"
	"github.com/nimburion/listquery/pkg/server/router"
)

// Envelope status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SuccessResponse is the envelope for single-document operations.
type SuccessResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse is the paginated list envelope. It carries no per-request
// values, so identical queries against unchanged data render identical bodies.
type ListResponse struct {
	Status   string              `json:"status"`
	Data     []document.Document `json:"data"`
	PageInfo query.PageInfo      `json:"pageInfo"`
}

// List sends a page of documents with HTTP 200.
func List(c router.Context, result query.Result) error {
	data := result.Documents
	if data == nil {
		data = []document.Document{}
	}
	return c.JSON(http.StatusOK, ListResponse{
		Status:   StatusSuccess,
		Data:     data,
		PageInfo: result.PageInfo,
	})
}

// Success sends a 200 envelope with a message and optional data.
func Success(c router.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, SuccessResponse{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	})
}

// Created sends a 201 envelope for a newly stored document.
func Created(c router.Context, message string, data interface{}) error {
	return c.JSON(http.StatusCreated, SuccessResponse{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	})
}

// Error renders err through MapError.
func Error(c router.Context, err error) error {
	statusCode, errorResponse := MapError(c.Request().Context(), err)
	return c.JSON(statusCode, errorResponse)
}

// NotFound is the router fallback for unmatched paths.
func NotFound(c router.Context) error {
	return Error(c, NewRouteNotFoundError())
}
