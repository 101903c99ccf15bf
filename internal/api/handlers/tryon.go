package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fitroom/tryon-engine/internal/cache"
	"github.com/fitroom/tryon-engine/internal/history"
	"github.com/fitroom/tryon-engine/internal/imagestore"
	"github.com/fitroom/tryon-engine/internal/models"
	"github.com/fitroom/tryon-engine/internal/queue"
)

const maxUploadBytes = 20 << 20

type TryonHandler struct {
	history *history.Service
	images  *imagestore.Local
	queue   *queue.Client
	cache   *cache.Cache
}

func NewTryonHandler(hist *history.Service, images *imagestore.Local, qc *queue.Client, c *cache.Cache) *TryonHandler {
	return &TryonHandler{history: hist, images: images, queue: qc, cache: c}
}

// Create accepts a multipart form with "subject" and "garment" photos and
// enqueues the try-on for background processing.
func (h *TryonHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	subject, _, err := r.FormFile("subject")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing subject photo")
		return
	}
	defer subject.Close()

	garment, _, err := r.FormFile("garment")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing garment photo")
		return
	}
	defer garment.Close()

	id := uuid.New()

	subjectPath, err := h.images.SaveUpload(id.String(), "subject", subject)
	if err != nil {
		slog.Error("failed to store subject photo", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store uploads")
		return
	}
	garmentPath, err := h.images.SaveUpload(id.String(), "garment", garment)
	if err != nil {
		slog.Error("failed to store garment photo", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store uploads")
		return
	}

	if err := h.history.Create(r.Context(), &models.Tryon{
		ID:          id,
		SubjectPath: subjectPath,
		GarmentPath: garmentPath,
	}); err != nil {
		slog.Warn("failed to record tryon", "tryon_id", id, "error", err)
	}

	if err := h.queue.EnqueueTryonProcess(queue.TryonProcessPayload{
		TryonID:     id.String(),
		SubjectPath: subjectPath,
		GarmentPath: garmentPath,
	}); err != nil {
		slog.Error("failed to enqueue tryon", "tryon_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue try-on")
		return
	}

	if h.cache != nil {
		if err := h.cache.SetProgress(r.Context(), id.String(), "queued"); err != nil {
			slog.Debug("failed to set initial progress", "error", err)
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     id.String(),
		"status": string(models.TryonPending),
	})
}

func (h *TryonHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTryonID(w, r)
	if !ok {
		return
	}

	t, err := h.history.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "try-on not found")
			return
		}
		slog.Error("failed to load tryon", "tryon_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load try-on")
		return
	}

	iterations, err := h.history.Iterations(r.Context(), id)
	if err != nil {
		slog.Warn("failed to load iterations", "tryon_id", id, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tryon":      t,
		"iterations": iterations,
	})
}

// Result streams the final image of a completed try-on.
func (h *TryonHandler) Result(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTryonID(w, r)
	if !ok {
		return
	}

	t, err := h.history.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "try-on not found")
			return
		}
		slog.Error("failed to load tryon", "tryon_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load try-on")
		return
	}

	if t.Status != models.TryonCompleted || t.ResultPath == "" {
		writeError(w, http.StatusConflict, "try-on has no result yet")
		return
	}
	if _, err := os.Stat(t.ResultPath); err != nil {
		writeError(w, http.StatusNotFound, "result image missing")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, t.ResultPath)
}

func (h *TryonHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTryonID(w, r)
	if !ok {
		return
	}

	if h.cache != nil {
		if p, err := h.cache.GetProgress(r.Context(), id.String()); err == nil && p != nil {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}

	// Progress entries expire; fall back to the durable record.
	t, err := h.history.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "try-on not found")
			return
		}
		slog.Error("failed to load tryon", "tryon_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load try-on")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(t.Status)})
}

func parseTryonID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid try-on ID")
		return uuid.Nil, false
	}
	return id, true
}
