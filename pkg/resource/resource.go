// Package resource exposes one document collection over HTTP: a paginated
// list endpoint backed by the list query engine, plus single-document
// create, read, update and delete.
package resource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nimburion/listquery/pkg/controller"
	"github.com/nimburion/listquery/pkg/i18n"
	"github.com/nimburion/listquery/pkg/observability/logger"
	"github.com/nimburion/listquery/pkg/query"
	"github.com/nimburion/listquery/pkg/repository/document"
	"github.com/nimburion/listquery/pkg/server/router"
)

// Response messages.
const (
	MessageFound    = "Document found"
	MessageNotFound = "Document not found"
	MessageCreated  = "Document created successfully"
	MessageUpdated  = "Document updated"
	MessageDeleted  = "Document deleted"
)

// Lister answers list queries and drops cached pages after writes.
type Lister interface {
	List(ctx context.Context, req query.Request) (*query.Result, error)
	Invalidate(ctx context.Context, collection string) error
}

// Config describes one exposed collection.
type Config struct {
	// Path is the route prefix, e.g. "/users".
	Path         string
	Collection   string
	SearchFields []string
	// BaseFilter is merged into every list query and wins over caller filters.
	BaseFilter document.Filter
}

// Handler serves one collection.
type Handler struct {
	cfg    Config
	store  document.Store
	lister Lister
	log    logger.Logger
}

// NewHandler validates its collaborators and returns a Handler.
func NewHandler(cfg Config, store document.Store, lister Lister, log logger.Logger) (*Handler, error) {
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if lister == nil {
		return nil, fmt.Errorf("lister is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg.Path = "/" + strings.Trim(strings.TrimSpace(cfg.Path), "/")
	if cfg.Path == "/" {
		cfg.Path = "/" + cfg.Collection
	}
	return &Handler{cfg: cfg, store: store, lister: lister, log: log}, nil
}

// Register mounts the collection routes. writeMiddleware wraps only the
// routes that read a request body.
func (h *Handler) Register(r router.Router, writeMiddleware ...router.MiddlewareFunc) {
	item := h.cfg.Path + "/:id"
	r.GET(h.cfg.Path, h.List)
	r.POST(h.cfg.Path, h.Create, writeMiddleware...)
	r.GET(item, h.Get)
	r.PUT(item, h.Update, writeMiddleware...)
	r.PATCH(item, h.Update, writeMiddleware...)
	r.DELETE(item, h.Delete)
}

// List answers GET <path> with the paginated envelope.
func (h *Handler) List(c router.Context) error {
	result, err := h.lister.List(c.Request().Context(), query.Request{
		Collection:   h.cfg.Collection,
		BaseFilter:   h.cfg.BaseFilter,
		SearchFields: h.cfg.SearchFields,
		Params:       query.ParseParams(c.QueryValues()),
	})
	if err != nil {
		return controller.Error(c, err)
	}
	return controller.List(c, *result)
}

// Get answers GET <path>/:id.
func (h *Handler) Get(c router.Context) error {
	ctx := c.Request().Context()
	doc, err := h.store.FindByID(ctx, h.cfg.Collection, document.ParseID(c.Param("id")))
	if err != nil {
		return h.fail(c, "find", err)
	}
	return controller.Success(c, MessageFound, doc)
}

// Create answers POST <path>.
func (h *Handler) Create(c router.Context) error {
	body, err := bindDocument(c)
	if err != nil {
		return controller.Error(c, err)
	}
	ctx := c.Request().Context()
	doc, err := h.store.Insert(ctx, h.cfg.Collection, body)
	if err != nil {
		return h.fail(c, "insert", err)
	}
	h.invalidate(ctx)
	return controller.Created(c, MessageCreated, doc)
}

// Update answers PUT and PATCH <path>/:id. Both set only the given fields.
func (h *Handler) Update(c router.Context) error {
	patch, err := bindDocument(c)
	if err != nil {
		return controller.Error(c, err)
	}
	ctx := c.Request().Context()
	doc, err := h.store.UpdateByID(ctx, h.cfg.Collection, document.ParseID(c.Param("id")), patch)
	if err != nil {
		return h.fail(c, "update", err)
	}
	h.invalidate(ctx)
	return controller.Success(c, MessageUpdated, doc)
}

// Delete answers DELETE <path>/:id.
func (h *Handler) Delete(c router.Context) error {
	ctx := c.Request().Context()
	deleted, err := h.store.DeleteByID(ctx, h.cfg.Collection, document.ParseID(c.Param("id")))
	if err != nil {
		return h.fail(c, "delete", err)
	}
	if !deleted {
		return controller.Error(c, controller.NewNotFoundError(MessageNotFound))
	}
	h.invalidate(ctx)
	return controller.Success(c, MessageDeleted, nil)
}

// fail renders a store error. Missing documents and duplicate keys are
// client errors; anything else is logged and reported as a 500.
func (h *Handler) fail(c router.Context, op string, err error) error {
	if errors.Is(err, document.ErrNotFound) {
		return controller.Error(c, controller.NewNotFoundError(MessageNotFound))
	}
	var dup *document.DuplicateKeyError
	if errors.As(err, &dup) {
		return controller.Error(c, conflictError(dup))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return controller.Error(c, err)
	}
	h.log.WithContext(c.Request().Context()).Error("document operation failed",
		"collection", h.cfg.Collection,
		"operation", op,
		"error", err,
	)
	return controller.Error(c, controller.NewInternalError("failed to "+op+" document", err))
}

func (h *Handler) invalidate(ctx context.Context) {
	if err := h.lister.Invalidate(ctx, h.cfg.Collection); err != nil {
		h.log.WithContext(ctx).Warn("list cache invalidation failed",
			"collection", h.cfg.Collection,
			"error", err,
		)
	}
}

func conflictError(dup *document.DuplicateKeyError) error {
	if dup.Field == "" {
		return i18n.NewError("resource.duplicate", nil, dup).
			WithMessage("document already exists").
			WithHTTPStatus(http.StatusConflict)
	}
	return controller.NewConflictError(dup.Error(), map[string]interface{}{
		"field": dup.Field,
		"value": dup.Value,
	})
}

func bindDocument(c router.Context) (document.Document, error) {
	var body map[string]interface{}
	if err := c.Bind(&body); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, controller.NewPayloadTooLargeError(maxBytesErr.Limit)
		}
		return nil, invalidBody(err)
	}
	if body == nil {
		return nil, invalidBody(errors.New("body is null"))
	}
	return body, nil
}

func invalidBody(cause error) error {
	return i18n.NewError("validation.body_invalid", nil, cause).
		WithMessage("request body must be a JSON object").
		WithHTTPStatus(http.StatusBadRequest)
}
