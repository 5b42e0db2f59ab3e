// Package reviewstub is an in-memory implementation of the review-assignment
// service endpoints exercised by the load generator. It backs local smoke
// runs (reviewload stub) and the integration tests.
package reviewstub

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/studiowebux/reviewload/internal/types"
	"go.uber.org/zap"
)

// Options configures the stub
type Options struct {
	// ReviewersPerPR is the number of reviewers assigned on create (default 2)
	ReviewersPerPR int
	// OmitReviewerList makes reassign answer with replaced_by only
	OmitReviewerList bool
	Logger           *zap.Logger
}

// Server serves the stub endpoints
type Server struct {
	store  *Store
	opts   Options
	logger *zap.Logger
}

// NewServer creates a stub with an empty store
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		store:  NewStore(opts.ReviewersPerPR),
		opts:   opts,
		logger: opts.Logger,
	}
}

// Store exposes the server state for assertions
func (s *Server) Store() *Store {
	return s.store
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/team/add", s.handleAddTeam)
	r.Route("/pullRequest", func(r chi.Router) {
		r.Post("/create", s.handleCreatePullRequest)
		r.Post("/merge", s.handleMergePullRequest)
		r.Post("/reassign", s.handleReassign)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func (s *Server) handleAddTeam(w http.ResponseWriter, r *http.Request) {
	var req types.Team
	if !decodeBody(w, r, &req) {
		return
	}
	team, err := s.store.AddTeam(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.TeamResponse{Team: team})
}

func (s *Server) handleCreatePullRequest(w http.ResponseWriter, r *http.Request) {
	var req types.CreatePullRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pr, err := s.store.CreatePullRequest(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.PullRequestResponse{PR: &pr})
}

func (s *Server) handleMergePullRequest(w http.ResponseWriter, r *http.Request) {
	var req types.MergePullRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pr, err := s.store.MergePullRequest(req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.PullRequestResponse{PR: &pr})
}

func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req types.ReassignReviewer
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" || req.OldUserID == "" {
		writeError(w, ErrInvalidInput)
		return
	}
	pr, replacedBy, err := s.store.Reassign(req.ID, req.OldUserID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := types.PullRequestResponse{ReplacedBy: replacedBy}
	if !s.opts.OmitReviewerList {
		resp.PR = &pr
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, ErrInvalidInput)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, types.ErrorCode("INTERNAL_ERROR")
	switch {
	case errors.Is(err, ErrInvalidInput):
		status, code = http.StatusBadRequest, types.ErrorCodeInvalidInput
	case errors.Is(err, ErrTeamExists):
		status, code = http.StatusBadRequest, types.ErrorCodeTeamExists
	case errors.Is(err, ErrNotFound):
		status, code = http.StatusNotFound, types.ErrorCodeNotFound
	case errors.Is(err, ErrPRExists):
		status, code = http.StatusConflict, types.ErrorCodePRExists
	case errors.Is(err, ErrPRMerged):
		status, code = http.StatusConflict, types.ErrorCodePRMerged
	case errors.Is(err, ErrNotAssigned):
		status, code = http.StatusConflict, types.ErrorCodeNotAssigned
	case errors.Is(err, ErrNoCandidate):
		status, code = http.StatusConflict, types.ErrorCodeNoCandidate
	}
	writeJSON(w, status, types.ErrorResponse{Error: types.ErrorBody{Code: code, Message: err.Error()}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
