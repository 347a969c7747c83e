// Package server exposes GenerateStructure over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/santiagomed/scaff/core"
	"github.com/santiagomed/scaff/fs"
	"github.com/santiagomed/scaff/logger"
	"github.com/santiagomed/scaff/tree"
)

const maxBodyBytes = 64 << 10

// Generator is the caller-facing pipeline operation.
type Generator interface {
	GenerateStructure(ctx context.Context, prompt string) (*tree.ProjectStructure, error)
}

type Handler struct {
	gen      Generator
	logger   logger.Logger
	gatherer prometheus.Gatherer
}

// NewHandler builds the HTTP handler. gatherer may be nil to leave out
// /metrics.
func NewHandler(gen Generator, log logger.Logger, gatherer prometheus.Gatherer) *Handler {
	return &Handler{gen: gen, logger: log, gatherer: gatherer}
}

func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(h.withLogging)

	router.Get("/healthz", h.health)
	router.Post("/v1/structures", h.generate)
	if h.gatherer != nil {
		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Structure *tree.ProjectStructure `json:"structure"`
	Tree      string                 `json:"tree"`
}

type errorResponse struct {
	Error    string        `json:"error"`
	Category core.Category `json:"category,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	ps, err := h.gen.GenerateStructure(r.Context(), req.Prompt)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	if r.URL.Query().Get("format") == "zip" {
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="`+ps.Root.Name+`.zip"`)
		if err := fs.ExportZip(w, ps.Root); err != nil {
			h.logger.WithField("error", err).Error("failed to export zip")
		}
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{Structure: ps, Tree: tree.Render(ps.Root)})
}

var categoryStatus = map[core.Category]int{
	core.CategoryInvalidPrompt:   http.StatusBadRequest,
	core.CategoryParseError:      http.StatusUnprocessableEntity,
	core.CategoryValidationError: http.StatusUnprocessableEntity,
	core.CategoryTimeout:         http.StatusGatewayTimeout,
	core.CategoryRateLimited:     http.StatusServiceUnavailable,
	core.CategoryAuthFailure:     http.StatusBadGateway,
	core.CategoryUnknown:         http.StatusBadGateway,
	core.CategoryInvalidNode:     http.StatusInternalServerError,
	core.CategoryCanceled:        499,
}

func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	var report *core.FailureReport
	if !errors.As(err, &report) {
		h.logger.WithField("error", err).Error("unexpected generator error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	status, ok := categoryStatus[report.Category]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: report.Summary, Category: report.Category, Attempts: report.Attempts})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
