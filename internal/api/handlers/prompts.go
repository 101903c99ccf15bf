package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fitroom/tryon-engine/internal/models"
	"github.com/fitroom/tryon-engine/internal/promptstore"
)

// PromptsHandler exposes the evolving prompt lineage, mostly for operators
// watching which revisions win.
type PromptsHandler struct {
	store promptstore.Store
}

func NewPromptsHandler(store promptstore.Store) *PromptsHandler {
	return &PromptsHandler{store: store}
}

func (h *PromptsHandler) Get(w http.ResponseWriter, r *http.Request) {
	category := models.Category(chi.URLParam(r, "category"))
	if !category.Valid() {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}

	active, err := h.store.GetActive(r.Context(), category)
	if err != nil && !errors.Is(err, promptstore.ErrNotFound) {
		slog.Error("failed to load active prompt", "category", category, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load prompts")
		return
	}

	lineage, err := h.store.History(r.Context(), category)
	if err != nil {
		slog.Error("failed to load prompt history", "category", category, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load prompts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category": category,
		"active":   active,
		"versions": lineage,
	})
}
