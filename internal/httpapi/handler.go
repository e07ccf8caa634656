package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	categoryDb "github.com/quizparty-games/quizparty/internal/database/category/database"
	"github.com/quizparty-games/quizparty/internal/logging"
	"github.com/quizparty-games/quizparty/internal/quizparty"
	"github.com/quizparty-games/quizparty/internal/quizparty/match"
)

// Handler serves the plain HTTP query surface next to the websocket: category
// browsing for the lobby screen and a couple of room queries.
type Handler struct {
	categories *categoryDb.DB
	manager    *quizparty.Manager
}

func New(categories *categoryDb.DB, manager *quizparty.Manager) *Handler {
	return &Handler{categories: categories, manager: manager}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/categories", h.handleCategories)
	mux.HandleFunc("/api/categories/", h.handleCategoryQuestions)
	mux.HandleFunc("/api/rooms/", h.handleRooms)
}

// handleCategories lists every category for the host's selection screen.
func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, match.CodeInvalidState, "method not allowed")
		return
	}

	list, err := h.categories.FetchAll()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": list})
}

// handleCategoryQuestions serves GET /api/categories/{id}/questions.
func (h *Handler) handleCategoryQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, match.CodeInvalidState, "method not allowed")
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/categories/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "questions" {
		writeError(w, http.StatusNotFound, match.CodeNotFound, "not found")
		return
	}

	if _, err := h.categories.Fetch(parts[0]); err != nil {
		if err == categoryDb.ErrNotFound {
			writeError(w, http.StatusNotFound, match.CodeNotFound, "category not found")
			return
		}
		h.fail(w, r, err)
		return
	}

	templates, err := h.categories.FetchTemplates(parts[0])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"questions": templates})
}

// handleRooms serves GET /api/rooms/{id}/players and
// POST /api/rooms/{id}/categories.
func (h *Handler) handleRooms(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/rooms/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, match.CodeNotFound, "not found")
		return
	}

	roomID, action := parts[0], parts[1]

	switch {
	case action == "players" && r.Method == http.MethodGet:
		roster, err := h.manager.Roster(roomID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"players": roster})
	case action == "categories" && r.Method == http.MethodPost:
		var req struct {
			CategoryIDs []string `json:"categoryIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, match.CodeInvalidState, "malformed payload")
			return
		}
		if err := h.manager.AssignCategories(r.Context(), roomID, req.CategoryIDs); err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	default:
		writeError(w, http.StatusNotFound, match.CodeNotFound, "not found")
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := match.CodeOf(err)
	message := err.Error()

	if code == match.CodeInternal {
		logging.FromContext(r.Context()).Named("httpapi.Handler").
			Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		message = "internal error"
	}

	writeError(w, statusOf(code), code, message)
}

func statusOf(code string) int {
	switch code {
	case match.CodeNotFound:
		return http.StatusNotFound
	case match.CodePermissionDenied:
		return http.StatusForbidden
	case match.CodeConflict:
		return http.StatusConflict
	case match.CodeInvalidState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message, "code": code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
