package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rpggio/galley/internal/domain/access"
	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/record"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/domain/workflow"
)

// Services contains the domain services exposed over HTTP.
type Services struct {
	Records   *record.Service
	Workflows *workflow.Service
	Access    *access.Gate
	Activity  *activity.Service
}

// Options configures the router.
type Options struct {
	// Auth authenticates /api. Required.
	Auth func(http.Handler) http.Handler
	// MCP, when set, is mounted at /mcp. It authenticates its own calls.
	MCP    http.Handler
	Logger *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	svc    Services
	logger *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(svc Services, opts Options) *chi.Mux {
	srv := &Server{svc: svc, logger: discardLogger(opts.Logger)}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)
	r.Post("/links/{tokenID}/access", srv.handleAccess)

	r.Group(func(r chi.Router) {
		r.Use(opts.Auth)

		r.Route("/api", func(r chi.Router) {
			r.Route("/records", func(r chi.Router) {
				r.Post("/", srv.handleCreateRecord)
				r.Get("/{id}", srv.handleGetRecord)
				r.Put("/{id}", srv.handleReplaceRecord)
				r.Patch("/{id}", srv.handlePatchRecord)
				r.Delete("/{id}", srv.handleDeleteRecord)
			})
			r.Route("/submissions", func(r chi.Router) {
				r.Post("/", srv.handleCreateSubmission)
				r.Get("/by-slug/{slug}", srv.handleGetSubmissionBySlug)
				r.Get("/{id}", srv.handleGetSubmission)
				r.Get("/{id}/transitions", srv.handleListTransitions)
				r.Post("/{id}/transitions", srv.handleTransition)
				r.Post("/{id}/jobs/{correlationID}/complete", srv.handleCompleteJob)
			})
			r.Route("/tokens", func(r chi.Router) {
				r.Post("/", srv.handleCreateToken)
				r.Get("/{id}", srv.handleGetToken)
				r.Delete("/{id}", srv.handleDeleteToken)
				r.Get("/{id}/log", srv.handleTokenLog)
				r.Post("/{id}/revoke", srv.handleRevokeToken)
				r.Post("/{id}/reactivate", srv.handleReactivateToken)
			})
			r.Get("/activity", srv.handleListActivity)
		})
	})

	if opts.MCP != nil {
		r.Handle("/mcp", opts.MCP)
		r.Handle("/mcp/*", opts.MCP)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleAccess is the public magic link endpoint. A refused link answers
// 403 with the reason.
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Access.ValidateAndLogAccess(r.Context(), chi.URLParam(r, "tokenID"), access.Attempt{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusForbidden
	}
	writeJSON(w, status, result)
}

type recordBody struct {
	Payload json.RawMessage `json:"payload"`
}

// patchBody sets Value at Path, or removes Path when Delete is true.
type patchBody struct {
	Path   string          `json:"path"`
	Value  json.RawMessage `json:"value,omitempty"`
	Delete bool            `json:"delete,omitempty"`
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body recordBody
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.svc.Records.Create(r.Context(), p.TenantID, body.Payload)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.svc.Records.Get(r.Context(), p.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReplaceRecord(w http.ResponseWriter, r *http.Request) {
	var body recordBody
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	s.updateRecord(w, r, record.Replace(body.Payload))
}

func (s *Server) handlePatchRecord(w http.ResponseWriter, r *http.Request) {
	var body patchBody
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	modify := record.SetField(body.Path, body.Value)
	if body.Delete {
		modify = record.DeleteField(body.Path)
	}
	s.updateRecord(w, r, modify)
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request, modify record.Modifier) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.svc.Records.Update(r.Context(), p.TenantID, chi.URLParam(r, "id"), modify, record.WithActor(p.ActorID))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.Records.Delete(r.Context(), p.TenantID, chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createSubmissionBody struct {
	WorkflowID string `json:"workflow_id"`
	Title      string `json:"title"`
}

type transitionBody struct {
	To          string     `json:"to"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

type completeJobBody struct {
	Succeeded   bool       `json:"succeeded"`
	Error       string     `json:"error,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// TransitionView is how an available transition is listed.
type TransitionView struct {
	From           workflow.State `json:"from"`
	To             workflow.State `json:"to"`
	RequiredScopes []string       `json:"required_scopes,omitempty"`
	Kind           string         `json:"kind"`
	JobType        string         `json:"job_type,omitempty"`
}

// NewTransitionView flattens t for clients.
func NewTransitionView(t workflow.Transition) TransitionView {
	v := TransitionView{From: t.From, To: t.To, RequiredScopes: t.RequiredScopes, Kind: "simple"}
	if job, ok := t.Action.(workflow.JobBased); ok {
		v.Kind, v.JobType = "job", job.JobType
	}
	return v
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body createSubmissionBody
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.svc.Workflows.Create(r.Context(), p, workflow.CreateRequest{WorkflowID: body.WorkflowID, Title: body.Title})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.svc.Workflows.Get(r.Context(), p.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleGetSubmissionBySlug(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.svc.Workflows.GetBySlug(r.Context(), p.TenantID, chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	transitions, err := s.svc.Workflows.AvailableTransitions(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]TransitionView, 0, len(transitions))
	for _, t := range transitions {
		views = append(views, NewTransitionView(t))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleTransition answers 202 when the transition was handed to a job and
// 200 when the status changed.
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body transitionBody
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.svc.Workflows.Transition(r.Context(), p, workflow.TransitionCommand{
		SubmissionID: chi.URLParam(r, "id"),
		To:           workflow.State(body.To),
		PublishedAt:  body.PublishedAt,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if sub.PendingTransition != nil && sub.PendingTransition.To == workflow.State(body.To) {
		status = http.StatusAccepted
	}
	writeJSON(w, status, sub)
}

func (s *Server) handleCompleteJob(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body completeJobBody
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.svc.Workflows.CompleteJob(r.Context(), workflow.CompletionRequest{
		Actor:         p,
		SubmissionID:  chi.URLParam(r, "id"),
		CorrelationID: chi.URLParam(r, "correlationID"),
		Succeeded:     body.Succeeded,
		Error:         body.Error,
		PublishedAt:   body.PublishedAt,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// createTokenBody takes the limit as a JSON number so fractions can be
// rejected instead of truncated.
type createTokenBody struct {
	Resource    string      `json:"resource"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	AccessLimit json.Number `json:"access_limit,omitempty"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body createTokenBody
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := access.ParseAccessLimit(body.AccessLimit.String())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tok, err := s.svc.Access.Create(r.Context(), p, access.CreateRequest{
		Resource:    body.Resource,
		ExpiresAt:   body.ExpiresAt,
		AccessLimit: limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tok, err := s.svc.Access.Get(r.Context(), p.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleTokenLog(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.svc.Access.AccessLog(r.Context(), p.TenantID, chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []access.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	s.setRevoked(w, r, s.svc.Access.Revoke)
}

func (s *Server) handleReactivateToken(w http.ResponseWriter, r *http.Request) {
	s.setRevoked(w, r, s.svc.Access.Reactivate)
}

func (s *Server) setRevoked(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, actor scope.Principal, id string) (*access.Token, error)) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tok, err := apply(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.Access.Delete(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	var opts activity.ListActivityOptions
	if v := q.Get("subject_type"); v != "" {
		st := activity.SubjectType(v)
		opts.SubjectType = &st
	}
	if v := q.Get("subject_id"); v != "" {
		opts.SubjectID = &v
	}
	if v := q.Get("kind"); v != "" {
		k := activity.Kind(v)
		opts.Kind = &k
	}
	if opts.Limit, err = intQuery(r, "limit"); err != nil {
		s.fail(w, r, err)
		return
	}
	if opts.Offset, err = intQuery(r, "offset"); err != nil {
		s.fail(w, r, err)
		return
	}

	entries, err := s.svc.Activity.List(r.Context(), p.TenantID, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []activity.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}
