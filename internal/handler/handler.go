// Package handler exposes the evaluation pipeline over HTTP as a JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pavelanni/gradesheet/internal/eval"
	"github.com/pavelanni/gradesheet/internal/keystore"
	"github.com/pavelanni/gradesheet/internal/model"
)

// maxUploadBytes caps answer sheet uploads at 20 MiB.
const maxUploadBytes = 20 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store *keystore.Store
	orch  *eval.Orchestrator
}

// New creates a new Handler.
func New(s *keystore.Store, o *eval.Orchestrator) *Handler {
	return &Handler{store: s, orch: o}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/tests", h.handleListTests)
	r.Post("/tests/{testID}/evaluations", h.handleEvaluate)
	r.Get("/tests/{testID}/evaluations", h.handleListEvaluations)
	r.Get("/evaluations/{evaluationID}", h.handleGetEvaluation)
}

func (h *Handler) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.store.ListTests()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	testID, err := strconv.ParseInt(chi.URLParam(r, "testID"), 10, 64)
	if err != nil || testID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid test ID")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request: "+err.Error())
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing document field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	doc := model.Document{Name: header.Filename, MIME: mime, Data: data}

	report, err := h.orch.Evaluate(r.Context(), doc, testID)
	if err != nil {
		writeEvaluationError(w, err)
		return
	}

	if err := h.store.SaveReport(*report); err != nil {
		slog.Error("save report", "evaluation_id", report.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "evaluation completed but could not be saved")
		return
	}

	writeJSON(w, http.StatusCreated, report)
}

func (h *Handler) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	testID, err := strconv.ParseInt(chi.URLParam(r, "testID"), 10, 64)
	if err != nil || testID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid test ID")
		return
	}
	reports, err := h.store.ListReports(testID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "evaluationID")
	report, err := h.store.GetReport(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "evaluation not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// writeEvaluationError maps pipeline failures to HTTP status codes.
// Answer key problems and segmentation conflicts are client-visible
// configuration issues, extraction failures are upstream problems.
func writeEvaluationError(w http.ResponseWriter, err error) {
	var cfgErr *model.ConfigError
	var extErr *model.ExtractionError
	var segErr *model.SegmentationError

	switch {
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &segErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &extErr):
		if extErr.Timeout {
			writeError(w, http.StatusGatewayTimeout, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error("evaluation failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
