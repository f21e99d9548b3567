package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tierstore/tierstore/interfaces"
	"github.com/tierstore/tierstore/storage"
)

// maxBlobSize is the maximum allowed request body size (64MB).
const maxBlobSize = 64 * 1024 * 1024

// Handler processes HTTP requests for the tiered content store. It is glue
// only: every storage decision lives in the hybrid backend, and callers see
// envelopes and typed errors, never tier selection.
type Handler struct {
	store *storage.Hybrid
	log   *slog.Logger
}

// NewHandler creates a blob API handler around the hybrid backend.
func NewHandler(store *storage.Hybrid, log *slog.Logger) *Handler {
	return &Handler{store: store, log: log}
}

// statusFor maps the storage error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrNotFound), errors.Is(err, interfaces.ErrVersionNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrContentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, interfaces.ErrInvalidVersion), errors.Is(err, interfaces.ErrInvalidLocationURI):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrPartialFailure):
		return http.StatusBadGateway
	case errors.Is(err, interfaces.ErrTransient), errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, locator string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", slog.String("locator", locator), "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleWrite stores the request body under the locator and returns the
// envelope.
func (h *Handler) HandleWrite(w http.ResponseWriter, r *http.Request) {
	locator := chi.URLParam(r, "locator")

	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBlobSize))
	if err != nil {
		h.writeError(w, locator, fmt.Errorf("%w: %v", interfaces.ErrContentTooLarge, err))
		return
	}

	env, err := h.store.Write(r.Context(), locator, content)
	if err != nil {
		h.writeError(w, locator, err)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

// HandleRead streams the blob content back to the caller.
func (h *Handler) HandleRead(w http.ResponseWriter, r *http.Request) {
	locator := chi.URLParam(r, "locator")

	content, err := h.store.Read(r.Context(), locator)
	if err != nil {
		h.writeError(w, locator, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// HandleDelete removes the locator from all tiers.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	locator := chi.URLParam(r, "locator")

	if err := h.store.Delete(r.Context(), locator); err != nil {
		h.writeError(w, locator, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleExists answers HEAD requests with presence only.
func (h *Handler) HandleExists(w http.ResponseWriter, r *http.Request) {
	locator := chi.URLParam(r, "locator")

	if !h.store.Exists(r.Context(), locator) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleStat returns the metadata envelope without content.
func (h *Handler) HandleStat(w http.ResponseWriter, r *http.Request) {
	locator := chi.URLParam(r, "locator")

	env, err := h.store.Stat(r.Context(), locator)
	if err != nil {
		h.writeError(w, locator, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

type copyRequest struct {
	Destination string `json:"destination"`
}

// HandleCopy duplicates the locator's content under a new locator.
func (h *Handler) HandleCopy(w http.ResponseWriter, r *http.Request) {
	locator := chi.URLParam(r, "locator")

	var req copyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Destination == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "destination required"})
		return
	}

	env, err := h.store.Copy(r.Context(), locator, req.Destination)
	if err != nil {
		h.writeError(w, locator, err)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

type createVersionResponse struct {
	VersionID string                    `json:"version_id"`
	Record    *interfaces.VersionRecord `json:"record"`
}

// HandleCreateVersion stores the request body as a new version. The commit
// message comes from the X-Commit-Message header.
func (h *Handler) HandleCreateVersion(w http.ResponseWriter, r *http.Request) {
	locator := chi.URLParam(r, "locator")
	message := r.Header.Get("X-Commit-Message")

	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBlobSize))
	if err != nil {
		h.writeError(w, locator, fmt.Errorf("%w: %v", interfaces.ErrContentTooLarge, err))
		return
	}

	versionID, record, err := h.store.CreateVersion(r.Context(), locator, content, message)
	if err != nil {
		h.writeError(w, locator, err)
		return
	}
	writeJSON(w, http.StatusCreated, createVersionResponse{VersionID: versionID, Record: record})
}

// HandleListVersions returns the locator's version history, newest first.
func (h *Handler) HandleListVersions(w http.ResponseWriter, r *http.Request) {
	locator := chi.URLParam(r, "locator")

	records, err := h.store.ListVersions(r.Context(), locator)
	if err != nil {
		h.writeError(w, locator, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleGetVersion returns the content of one version.
func (h *Handler) HandleGetVersion(w http.ResponseWriter, r *http.Request) {
	locator := chi.URLParam(r, "locator")
	versionID := chi.URLParam(r, "version_id")

	content, err := h.store.GetVersion(r.Context(), locator, versionID)
	if err != nil {
		h.writeError(w, locator, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

type presignRequest struct {
	Method    string `json:"method"`
	ExpiresIn string `json:"expires_in"`
}

type presignResponse struct {
	URL       string `json:"url"`
	ExpiresIn string `json:"expires_in"`
}

// HandlePresign issues a time-bounded URL for direct client access when a
// tier supports it.
func (h *Handler) HandlePresign(w http.ResponseWriter, r *http.Request) {
	locator := chi.URLParam(r, "locator")

	presigner := h.store.Presigner()
	if presigner == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "no tier supports presigned URLs"})
		return
	}

	req := presignRequest{Method: http.MethodGet, ExpiresIn: "15m"}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed presign request"})
			return
		}
	}
	expiresIn, err := time.ParseDuration(req.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid expires_in"})
		return
	}

	url, err := presigner.GeneratePresignedURL(r.Context(), locator, req.Method, expiresIn)
	if err != nil {
		h.writeError(w, locator, err)
		return
	}
	writeJSON(w, http.StatusOK, presignResponse{URL: url, ExpiresIn: expiresIn.String()})
}

// HandleStats reports per-tier identity and health plus access patterns.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.StorageStats(r.Context()))
}

// HandleTriggerTiering runs one tiering maintenance pass.
func (h *Handler) HandleTriggerTiering(w http.ResponseWriter, r *http.Request) {
	h.store.TriggerTiering(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
