package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/assistant"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/catalog"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/ingest"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/metastore"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

const maxBodyBytes = 1 << 20

// HistoryReader lists recorded activity. *metastore.DB satisfies it.
type HistoryReader interface {
	Ingestions(ctx context.Context, storeID string, limit int) ([]metastore.Ingestion, error)
	Questions(ctx context.Context, storeID string, limit int) ([]metastore.Question, error)
}

// APIHandler handles JSON API requests
type APIHandler struct {
	registry  *store.Registry
	catalog   *catalog.Catalog
	ingestor  *ingest.Ingestor
	assistant *assistant.Service
	history   HistoryReader
	rowLimit  int
	logger    *slog.Logger
}

type ingestRequest struct {
	Store string   `json:"store"`
	Paths []string `json:"paths"`
	Force bool     `json:"force"`
}

type queryRequest struct {
	Store string `json:"store"`
	SQL   string `json:"sql"`
	Limit int    `json:"limit"`
}

type questionRequest struct {
	Store    string `json:"store"`
	Question string `json:"question"`
}

// Health reports that the server is up
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"store":     h.registry.DefaultID(),
		"assistant": h.assistant != nil,
	})
}

// Ingest loads CSV files into a store
func (h *APIHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.ingestor.Load(r.Context(), req.Store, req.Paths, ingest.LoadOptions{Force: req.Force})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Schema returns the table to columns map of a store
func (h *APIHandler) Schema(w http.ResponseWriter, r *http.Request) {
	st, err := h.registry.Get(r.URL.Query().Get("store"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	schema, err := h.catalog.Schema(r.Context(), st.ID())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"store":  st.ID(),
		"tables": schema,
		"count":  len(schema),
	})
}

// DescribeTable returns the column details of one table
func (h *APIHandler) DescribeTable(w http.ResponseWriter, r *http.Request) {
	st, err := h.registry.Get(r.URL.Query().Get("store"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	detail, err := h.catalog.Describe(r.Context(), st.ID(), chi.URLParam(r, "table"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// Query runs a read-only SQL statement
func (h *APIHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := h.registry.Get(req.Store)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	limit := h.rowLimit
	if req.Limit > 0 && (limit <= 0 || req.Limit < limit) {
		limit = req.Limit
	}
	res, err := st.Query(r.Context(), req.SQL, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// SQL translates a question into SQL and runs it
func (h *APIHandler) SQL(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, (*assistant.Service).SQL)
}

// Ask runs the full question pipeline
func (h *APIHandler) Ask(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, (*assistant.Service).Ask)
}

type answerFunc func(s *assistant.Service, ctx context.Context, storeID, question string) (*assistant.Answer, error)

func (h *APIHandler) answer(w http.ResponseWriter, r *http.Request, fn answerFunc) {
	if h.assistant == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "question answering not available: ANTHROPIC_API_KEY not set",
		})
		return
	}
	var req questionRequest
	if !h.decode(w, r, &req) {
		return
	}

	ans, err := fn(h.assistant, r.Context(), req.Store, req.Question)
	if err != nil {
		if ans != nil && ans.SQL != "" {
			status := statusFor(err)
			h.logError(r, status, err)
			respondJSON(w, status, map[string]interface{}{
				"error":  err.Error(),
				"answer": ans,
			})
			return
		}
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ans)
}

// History lists recent ingestions and questions
func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "history not available",
		})
		return
	}

	storeID := r.URL.Query().Get("store")
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, r, store.ErrInput("invalid limit %q", v))
			return
		}
		limit = n
	}

	ingestions, err := h.history.Ingestions(r.Context(), storeID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	questions, err := h.history.Questions(r.Context(), storeID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ingestions": ingestions,
		"questions":  questions,
	})
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, r, store.ErrInput("invalid request body: %v", err))
		return false
	}
	return true
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var qerr *store.QueryError
	switch {
	case store.IsInput(err), store.IsParse(err), errors.As(err, &qerr):
		return http.StatusBadRequest
	case store.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	h.logError(r, status, err)

	msg := err.Error()
	if status == http.StatusInternalServerError && !store.IsIO(err) {
		msg = "internal server error"
	}
	respondJSON(w, status, map[string]string{"error": msg})
}

func (h *APIHandler) logError(r *http.Request, status int, err error) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "Request failed",
		"error", err, "status", status, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
}

// respondJSON is a helper function to send JSON responses
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("JSON encoding error", "error", err)
	}
}
