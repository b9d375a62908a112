package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"hireloop/gatehouse/pkg/audit"
	"hireloop/gatehouse/pkg/middleware"
	"hireloop/gatehouse/pkg/throttle"
)

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the JSON error payload returned by handlers.
type errorResponse struct {
	Error       string `json:"error"`
	WaitSeconds int    `json:"wait_seconds,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.jobs.List()})
}

// createJobRequest is the body of POST /api/jobs.
type createJobRequest struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Title == "" || req.Company == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "title and company are required"})
		return
	}

	principal := middleware.GetPrincipal(r.Context())
	job := s.jobs.Create(req.Title, req.Company, req.Description, principal)

	slog.InfoContext(r.Context(), "job posting created",
		"job_id", job.ID,
		"principal_id", principal,
	)
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	principal := middleware.GetPrincipal(r.Context())

	job := s.jobs.Get(id)
	if job == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job not found"})
		return
	}
	if job.PostedBy != principal && !s.config.Auth.IsAdmin(principal) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "not allowed to delete this job"})
		return
	}

	s.jobs.Delete(id)
	slog.InfoContext(r.Context(), "job posting deleted",
		"job_id", id,
		"principal_id", principal,
	)
	w.WriteHeader(http.StatusNoContent)
}

// loginRequest is the body of POST /api/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin verifies demo credentials. Failed attempts consume the
// failed_login quota for the submitted username; once exhausted, further
// failures get 429 with the remaining lockout time instead of 401.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username and password are required"})
		return
	}

	if password, ok := s.config.Auth.Users[req.Username]; ok && password == req.Password {
		writeJSON(w, http.StatusOK, map[string]string{"principal_id": req.Username})
		return
	}

	decision, err := s.deps.Evaluator.CheckFailedLogin(r.Context(), req.Username)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed login check errored, rejecting attempt",
			"username", req.Username,
			"error", err,
		)
		failClosed := &throttle.QuotaExceededError{WaitSeconds: 1}
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:       failClosed.Error(),
			WaitSeconds: failClosed.WaitSeconds,
		})
		return
	}

	if !decision.Allowed {
		var quotaErr *throttle.QuotaExceededError
		msg := "rate limit exceeded"
		if errors.As(decision.Err(), &quotaErr) {
			msg = quotaErr.Error()
		}
		w.Header().Set("Retry-After", strconv.Itoa(decision.WaitSeconds))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:       msg,
			WaitSeconds: decision.WaitSeconds,
		})
		return
	}

	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
}

// auditQueryResponse is the body of GET /api/audit.
type auditQueryResponse struct {
	Records []*audit.Record `json:"records"`
	Count   int64           `json:"count"`
}

// handleAuditQuery serves the audit trail. Admin principals see all records;
// everyone else sees only their own. Filters come from query parameters:
// principal, method, status, path_prefix, start, end (RFC 3339), limit,
// offset.
func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}
	if s.deps.AuditStore == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "audit trail is disabled"})
		return
	}

	query, err := parseAuditQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// Non-admins are scoped to their own records.
	if !s.config.Auth.IsAdmin(principal) {
		if query.PrincipalID != "" && query.PrincipalID != principal {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "not allowed to view other principals' records"})
			return
		}
		query.PrincipalID = principal
	}

	records, err := s.deps.AuditStore.Query(r.Context(), query)
	if err != nil {
		slog.ErrorContext(r.Context(), "audit query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "audit query failed"})
		return
	}
	count, err := s.deps.AuditStore.Count(r.Context(), query)
	if err != nil {
		slog.ErrorContext(r.Context(), "audit count failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "audit query failed"})
		return
	}

	if records == nil {
		records = []*audit.Record{}
	}
	writeJSON(w, http.StatusOK, auditQueryResponse{Records: records, Count: count})
}

// parseAuditQuery translates URL query parameters into an audit query.
func parseAuditQuery(r *http.Request) (*audit.Query, error) {
	q := r.URL.Query()
	query := &audit.Query{
		PrincipalID: q.Get("principal"),
		Method:      q.Get("method"),
		PathPrefix:  q.Get("path_prefix"),
	}

	if v := q.Get("status"); v != "" {
		status, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New("status must be an integer")
		}
		query.StatusCode = status
	}
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, errors.New("start must be an RFC 3339 timestamp")
		}
		query.StartTime = &t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, errors.New("end must be an RFC 3339 timestamp")
		}
		query.EndTime = &t
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return nil, errors.New("limit must be a non-negative integer")
		}
		query.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return nil, errors.New("offset must be a non-negative integer")
		}
		query.Offset = offset
	}

	return query, nil
}
