package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilupskalvis/branchd/internal/audit"
	"github.com/kilupskalvis/branchd/internal/lockmgr"
	"github.com/kilupskalvis/branchd/internal/models"
	"github.com/kilupskalvis/branchd/internal/orchestrator"
	"github.com/kilupskalvis/branchd/internal/risk"
	"github.com/kilupskalvis/branchd/internal/shadow"
	"github.com/kilupskalvis/branchd/internal/store"
)

// ServerConfig holds configurable limits for the server.
type ServerConfig struct {
	MaxRequestBody    int64  // bytes, for JSON endpoints
	RequestsPerMinute int    // per-client rate limit
	AuthToken         string // static bearer token; empty disables auth
}

// DefaultServerConfig returns reasonable defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxRequestBody:    4 * 1024 * 1024, // 4MB
		RequestsPerMinute: 300,
	}
}

// Deps bundles the collaborators the HTTP API fronts.
type Deps struct {
	Store      *store.Store
	Locks      *lockmgr.Manager
	Shadows    *shadow.Manager
	Orch       *orchestrator.Orchestrator
	Audit      *audit.Store
	Classifier *risk.Classifier
	Thresholds risk.Thresholds
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(deps Deps, cfg *ServerConfig, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	rl := newRateLimiter(cfg.RequestsPerMinute)
	auth := authMiddleware(cfg.AuthToken)

	// Execution order: auth -> rl -> handler
	withAuth := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, auth, rl.middleware)
	}

	api := &apiHandler{deps: deps, cfg: cfg, logger: logger}

	mux := http.NewServeMux()

	// Health and metrics endpoints (no auth)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", api.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Indexing events
	mux.Handle("POST /api/v1/events", withAuth(api.handlePostEvent))

	// Branches
	mux.Handle("POST /api/v1/branches", withAuth(api.handleCreateBranch))
	mux.Handle("GET /api/v1/branches", withAuth(api.handleListBranches))
	mux.Handle("GET /api/v1/branches/{name}", withAuth(api.handleGetBranch))
	mux.Handle("POST /api/v1/branches/{name}/indexing/begin", withAuth(api.handleBeginIndexing))
	mux.Handle("POST /api/v1/branches/{name}/indexing/complete", withAuth(api.handleCompleteIndexing))
	mux.Handle("POST /api/v1/branches/{name}/recover", withAuth(api.handleRecoverBranch))
	mux.Handle("GET /api/v1/branches/{name}/live/{type}", withAuth(api.handleGetLivePointer))

	// Shadow indexes
	mux.Handle("POST /api/v1/shadows", withAuth(api.handleStartShadowBuild))
	mux.Handle("GET /api/v1/shadows", withAuth(api.handleListShadows))
	mux.Handle("GET /api/v1/shadows/{id}", withAuth(api.handleGetShadow))
	mux.Handle("POST /api/v1/shadows/{id}/fail", withAuth(api.handleFailShadowBuild))
	mux.Handle("POST /api/v1/shadows/{id}/switch", withAuth(api.handleSwitchShadow))

	// Merge analysis
	mux.Handle("POST /api/v1/merge/evaluate", withAuth(api.handleEvaluateMerge))

	// Audit trail
	mux.Handle("GET /api/v1/audit", withAuth(api.handleRecentAudit))

	// Apply global middleware
	handler := applyMiddleware(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		requestIDMiddleware,
	)

	cleanup := func() {
		rl.Stop()
	}

	return handler, cleanup
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type apiHandler struct {
	deps   Deps
	cfg    *ServerConfig
	logger *slog.Logger
}

// --- Health Handlers ---

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (a *apiHandler) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if _, err := a.deps.Locks.ListBranches(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready: branch store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// --- Event Handler ---

func (a *apiHandler) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.IndexingEvent
	if err := readJSON(r, a.cfg.MaxRequestBody, &ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}

	if err := a.deps.Orch.Submit(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "event_id": ev.ID})
}

// --- Branch Handlers ---

func (a *apiHandler) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		HeadCommitID string `json:"head_commit_id"`
		BaseCommitID string `json:"base_commit_id"`
	}
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "name is required"})
		return
	}

	branch, err := a.deps.Locks.CreateBranch(r.Context(), req.Name, req.HeadCommitID, req.BaseCommitID)
	if err != nil {
		if errors.Is(err, store.ErrExists) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":   "conflict",
				"message": fmt.Sprintf("branch '%s' already exists", req.Name),
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, branch)
}

func (a *apiHandler) handleListBranches(w http.ResponseWriter, _ *http.Request) {
	branches, err := a.deps.Locks.ListBranches()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (a *apiHandler) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	branch, err := a.deps.Locks.GetBranchState(r.PathValue("name"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "branch not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, branch)
}

func (a *apiHandler) handleBeginIndexing(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req struct {
		ResourceTypes []string `json:"resource_types"`
		AcquiredBy    string   `json:"acquired_by"`
	}
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}
	if req.AcquiredBy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "acquired_by is required"})
		return
	}

	err := a.deps.Locks.BeginIndexing(r.Context(), name, req.ResourceTypes, req.AcquiredBy)
	if err != nil {
		var conflict *lockmgr.LockConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":   "lock_conflict",
				"message": conflict.Error(),
				"detail": map[string]string{
					"resource_type": conflict.ResourceType,
					"held_by":       conflict.HeldBy,
				},
			})
			return
		}
		var invalid *lockmgr.InvalidStateError
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "invalid_state", "message": invalid.Error()})
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "branch not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (a *apiHandler) handleCompleteIndexing(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req struct {
		CompletedBy   string   `json:"completed_by"`
		ResourceTypes []string `json:"resource_types"`
	}
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}

	released, err := a.deps.Locks.CompleteIndexing(r.Context(), name, req.CompletedBy, req.ResourceTypes)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "branch not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"released": released})
}

func (a *apiHandler) handleRecoverBranch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}

	branch, err := a.deps.Locks.GetBranchState(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "branch not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}

	if branch.State != models.BranchError {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "invalid_state",
			"message": fmt.Sprintf("branch '%s' is %s, only ERROR branches can be recovered", name, branch.State),
		})
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "operator recovery"
	}
	if err := a.deps.Locks.SetBranchState(r.Context(), name, models.BranchActive, reason); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (a *apiHandler) handleGetLivePointer(w http.ResponseWriter, r *http.Request) {
	ptr, err := a.deps.Store.GetLivePointer(r.PathValue("name"), r.PathValue("type"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "no live index for branch and type"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ptr)
}

// --- Shadow Handlers ---

func (a *apiHandler) handleStartShadowBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BranchName string `json:"branch_name"`
		IndexType  string `json:"index_type"`
	}
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}
	if req.BranchName == "" || req.IndexType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "branch_name and index_type are required"})
		return
	}

	sh, err := a.deps.Shadows.StartBuild(r.Context(), req.BranchName, req.IndexType)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (a *apiHandler) handleListShadows(w http.ResponseWriter, r *http.Request) {
	shadows, err := a.deps.Shadows.ListShadows(r.URL.Query().Get("branch"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, shadows)
}

func (a *apiHandler) handleGetShadow(w http.ResponseWriter, r *http.Request) {
	sh, err := a.deps.Shadows.GetShadow(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "shadow index not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (a *apiHandler) handleFailShadowBuild(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}

	if err := a.deps.Shadows.FailBuild(r.Context(), id, req.Reason); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "shadow index not found"})
		case errors.Is(err, shadow.ErrTerminal):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "invalid_state", "message": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (a *apiHandler) handleSwitchShadow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req models.SwitchRequest
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}

	result, err := a.deps.Shadows.RequestSwitch(r.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "shadow index not found"})
		case errors.Is(err, shadow.ErrTerminal):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "invalid_state", "message": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// --- Merge Evaluation Handler ---

// handleEvaluateMerge runs the classification, impact, and decision pipeline
// over a caller-supplied conflict set without touching any branch. Useful
// for previewing what the orchestrator would decide.
func (a *apiHandler) handleEvaluateMerge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Conflicts []*models.Conflict `json:"conflicts"`
	}
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}

	resolutions := a.deps.Classifier.ClassifyAll(req.Conflicts)
	impact := a.deps.Classifier.AnalyzeBusinessImpact(req.Conflicts)
	assessment := a.deps.Classifier.AssessMergeRisks(req.Conflicts, impact)
	decision := risk.Decide(req.Conflicts, resolutions, assessment, a.deps.Thresholds)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decision":    decision,
		"resolutions": resolutions,
		"impact":      impact,
		"assessment":  assessment,
	})
}

// --- Audit Handler ---

func (a *apiHandler) handleRecentAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := a.deps.Audit.Recent(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
