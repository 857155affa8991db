package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hazyhaar/cod-population/pkg/header"
	"github.com/hazyhaar/cod-population/pkg/kit"
	"github.com/hazyhaar/cod-population/pkg/ledger"
)

// NewRouter returns an http.Handler with all inspection API routes.
func NewRouter(eps *Endpoints) http.Handler {
	mux := http.NewServeMux()
	h := &handler{eps: eps}

	mux.HandleFunc("GET /v1/headers/classify", methodNotAllowed) // classification takes a body
	mux.HandleFunc("POST /v1/headers/classify", h.handleClassifyHeaders)
	mux.HandleFunc("GET /v1/headers/decode/{header}", h.handleDecodeHeader)
	mux.HandleFunc("GET /v1/runs/latest", h.handleLatestRun)
	mux.HandleFunc("GET /v1/runs", h.handleListRuns)
	mux.HandleFunc("GET /v1/health", h.handleHealth)

	return cors(requestID(mux))
}

type handler struct {
	eps *Endpoints
}

// --- classify headers ---

type httpClassifyRequest struct {
	Headers  []string `json:"headers"`
	Level    int      `json:"level"`
	NonLatin []string `json:"non_latin,omitempty"`
}

func (h *handler) handleClassifyHeaders(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024) // 64 KiB max
	var req httpClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.eps.ClassifyHeaders(r.Context(), &classifyHeadersReq{
		Headers:  req.Headers,
		Level:    req.Level,
		NonLatin: req.NonLatin,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- decode header ---

func (h *handler) handleDecodeHeader(w http.ResponseWriter, r *http.Request) {
	resp, err := h.eps.DecodeHeader(r.Context(), &decodeHeaderReq{Header: r.PathValue("header")})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- runs ---

func (h *handler) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	resp, err := h.eps.LatestRun(r.Context(), nil)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	req := &listRunsReq{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		req.Limit = n
	}
	resp, err := h.eps.ListRuns(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- health ---

type healthResponse struct {
	Status        string `json:"status"`
	Ledger        bool   `json:"ledger"`
	LastRunID     string `json:"last_run_id,omitempty"`
	LastRunStatus string `json:"last_run_status,omitempty"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Ledger: h.eps.runs != nil}
	if h.eps.runs != nil {
		if runs, err := h.eps.runs.Runs(r.Context(), 1); err == nil && len(runs) > 0 {
			resp.LastRunID = runs[0].ID
			resp.LastRunStatus = runs[0].Status
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNoRuns):
		return http.StatusNotFound
	case errors.Is(err, header.ErrNotPopulation),
		errors.Is(err, header.ErrFusedBounds),
		errors.Is(err, header.ErrInvertedBounds),
		errors.Is(err, header.ErrAgeRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errNoLedger):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// requestID tags each request with the caller's X-Request-ID, or a new one,
// and echoes it back.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := kit.WithTransport(kit.WithRequestID(r.Context(), id), "http")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
