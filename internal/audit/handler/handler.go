package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fcp-audit/internal/audit/models"
	dErrors "fcp-audit/pkg/domain-errors"
	"fcp-audit/pkg/platform/httputil"
	"fcp-audit/pkg/requestcontext"
)

// ListPath is the retrieval endpoint.
const ListPath = "/api/v1/audit"

// Service defines the retrieval operations the handler needs.
type Service interface {
	List(ctx context.Context, page, pageSize int) ([]models.AuditRecord, error)
}

// Handler serves paginated reads over stored audit records.
type Handler struct {
	logger          *slog.Logger
	service         Service
	defaultPageSize int
	maxPageSize     int
}

// New creates a Handler. pageSize defaults to defaultPageSize and may not
// exceed maxPageSize.
func New(service Service, logger *slog.Logger, defaultPageSize, maxPageSize int) *Handler {
	return &Handler{
		logger:          logger,
		service:         service,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// Register registers the audit routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get(ListPath, h.handleList)
}

// ListResponse is the body of a successful list call.
type ListResponse struct {
	Data  ListData  `json:"data"`
	Links ListLinks `json:"links"`
	Meta  ListMeta  `json:"meta"`
}

type ListData struct {
	Events []models.AuditRecord `json:"events"`
}

type ListLinks struct {
	Self  string `json:"self"`
	First string `json:"first"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
}

type ListMeta struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	page, err := queryInt(r.URL.Query(), "page", 1, 1, 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pageSize, err := queryInt(r.URL.Query(), "pageSize", h.defaultPageSize, 1, h.maxPageSize)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.service.List(ctx, page, pageSize)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestID,
			"page", page,
			"page_size", pageSize,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	links := ListLinks{
		Self:  pageLink(page, pageSize),
		First: pageLink(1, pageSize),
	}
	if page > 1 {
		links.Prev = pageLink(page-1, pageSize)
	}
	if len(events) == pageSize {
		links.Next = pageLink(page+1, pageSize)
	}

	httputil.WriteJSON(w, http.StatusOK, ListResponse{
		Data:  ListData{Events: events},
		Links: links,
		Meta:  ListMeta{Page: page, PageSize: pageSize},
	})
}

// queryInt parses an optional integer parameter. A max of 0 means unbounded.
func queryInt(q url.Values, name string, fallback, min, max int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("%q must be an integer", name))
	}
	if n < min {
		return 0, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("%q must be greater than or equal to %d", name, min))
	}
	if max > 0 && n > max {
		return 0, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("%q must be less than or equal to %d", name, max))
	}
	return n, nil
}

func pageLink(page, pageSize int) string {
	return fmt.Sprintf("%s?page=%d&pageSize=%d", ListPath, page, pageSize)
}
