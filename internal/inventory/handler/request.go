package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/repository"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/service"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/httputil"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
)

// ValidateRequestInput is the body of a dry-run validation
type ValidateRequestInput struct {
	Items []repository.LineItem `json:"items" validate:"required,min=1,dive"`
}

// RejectRequestInput is the optional body of a rejection
type RejectRequestInput struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// RequestHandler handles stock request endpoints
type RequestHandler struct {
	workflow *service.RequestWorkflow
	engine   *service.StockAllocationEngine
	logger   *logger.Logger
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(workflow *service.RequestWorkflow, engine *service.StockAllocationEngine, log *logger.Logger) *RequestHandler {
	return &RequestHandler{
		workflow: workflow,
		engine:   engine,
		logger:   log,
	}
}

// List lists stock requests
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r, 20, 100)
	q := r.URL.Query()

	filter := repository.RequestFilter{
		Status:       q.Get("status"),
		Priority:     q.Get("priority"),
		EngineerName: q.Get("engineer_name"),
		Page:         page,
		PerPage:      perPage,
	}
	if err := httputil.Validate(&requestQuery{Status: filter.Status, Priority: filter.Priority}); err != nil {
		httputil.Error(w, err)
		return
	}

	reqs, total, err := h.workflow.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, reqs, httputil.NewMeta(page, perPage, total))
}

type requestQuery struct {
	Status   string `json:"status" validate:"omitempty,oneof=pending approved rejected"`
	Priority string `json:"priority" validate:"omitempty,oneof=normal urgent"`
}

// Mine lists the caller's own requests
func (h *RequestHandler) Mine(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r, 20, 100)

	reqs, total, err := h.workflow.Mine(r.Context(), actor.FromContext(r.Context()), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, reqs, httputil.NewMeta(page, perPage, total))
}

// Get gets a request by ID
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.workflow.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, req)
}

// Create files a new stock request
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateRequestInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	req, err := h.workflow.Create(r.Context(), input, actor.FromContext(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, req)
}

// Validate checks a request against current stock without changing anything
func (h *RequestHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var input ValidateRequestInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.engine.Validate(r.Context(), input.Items)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Approve approves a pending request and deducts its stock
func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	req, err := h.engine.Approve(r.Context(), chi.URLParam(r, "id"), actor.FromContext(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, req)
}

// Reject rejects a pending request
func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var input RejectRequestInput
	if err := decodeOptionalJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	req, err := h.engine.Reject(r.Context(), chi.URLParam(r, "id"), actor.FromContext(r.Context()), input.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, req)
}

// decodeOptionalJSON decodes the body when there is one
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.BadRequest("failed to read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.BadRequest("invalid JSON body")
	}
	return nil
}
