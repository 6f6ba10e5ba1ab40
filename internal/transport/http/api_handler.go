package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"concrete-quiz-service/internal/app"
	"concrete-quiz-service/internal/domain"
)

// APIHandler serves the JSON API over the reward ledger.
type APIHandler struct {
	ledger *app.LedgerService
	logger *slog.Logger
	now    func() time.Time
}

func NewAPIHandler(ledger *app.LedgerService, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{ledger: ledger, logger: logger, now: time.Now}
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.health)
	mux.HandleFunc("POST /api/login", h.login)
	mux.HandleFunc("GET /api/users", h.listUsers)
	mux.HandleFunc("DELETE /api/users", h.resetUsers)
	mux.HandleFunc("GET /api/users/{username}", h.getUser)
	mux.HandleFunc("POST /api/users/{username}/attempts", h.recordAttempt)
	mux.HandleFunc("GET /api/leaderboard", h.leaderboard)
}

type loginRequest struct {
	Username string `json:"username"`
}

// attemptRequest uses pointers so missing fields can be told apart from zero.
type attemptRequest struct {
	Score          *int `json:"score"`
	TotalQuestions *int `json:"totalQuestions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *APIHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": h.now().UTC(),
	})
}

func (h *APIHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidUsername)
		return
	}
	entry, err := h.ledger.Login(r.Context(), req.Username)
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.ListAll(r.Context())
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *APIHandler) getUser(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ledger.Get(r.Context(), r.PathValue("username"))
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) recordAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Score == nil || req.TotalQuestions == nil {
		writeError(w, domain.ErrInvalidAnswerData)
		return
	}
	entry, err := h.ledger.RecordAttempt(r.Context(), r.PathValue("username"), *req.Score, *req.TotalQuestions)
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) resetUsers(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.ResetAll(r.Context()); err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.Leaderboard(r.Context())
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *APIHandler) logFailure(r *http.Request, err error) {
	if status, _ := classify(err); status < http.StatusInternalServerError {
		return
	}
	h.logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
}

// classify maps domain errors to an HTTP status and a client-facing message.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidAnswerData):
		return http.StatusBadRequest, "Invalid attempt data"
	case errors.Is(err, domain.ErrInvalidUsername):
		return http.StatusBadRequest, "Username is required"
	case errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, domain.ErrInsufficientQuestions),
		errors.Is(err, domain.ErrOptionNotFound):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrBankNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrSessionNotFinished),
		errors.Is(err, domain.ErrAttemptAlreadyRecorded):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, message := classify(err)
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
