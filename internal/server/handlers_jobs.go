package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/freelance-market/internal/lifecycle"
	"github.com/jonathan/freelance-market/internal/types"
)

// ---------------------------------------------------------------------
// Job Handlers
// ---------------------------------------------------------------------

// AssignRequest names the freelancer whose proposal wins the job.
type AssignRequest struct {
	FreelancerID uuid.UUID `json:"freelancer_id" validate:"required"`
}

// transitionResponse reports an idempotent transition and its outcome.
type transitionResponse struct {
	Job     *types.Job        `json:"job"`
	Outcome lifecycle.Outcome `json:"outcome"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}

	var in types.CreateJobInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.handleError(w, r, err)
		return
	}

	job, err := s.engine.Jobs.Create(r.Context(), actor, in)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, job)
}

// handleListJobs lists jobs, newest first. Filters: status, category,
// client_id, freelancer_id, limit, offset.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := types.JobFilter{
		Category: q.Get("category"),
		Limit:    parseQueryInt(r, "limit", 50, 100),
		Offset:   parseQueryInt(r, "offset", 0, 0),
	}
	if v := q.Get("status"); v != "" {
		status := types.JobStatus(v)
		if !status.Known() {
			s.handleError(w, r, &ErrValidation{Field: "status", Message: "unknown job status"})
			return
		}
		filter.Status = &status
	}
	idFilters := []struct {
		key string
		dst **uuid.UUID
	}{
		{"client_id", &filter.ClientID},
		{"freelancer_id", &filter.Freelancer},
	}
	for _, f := range idFilters {
		v := q.Get(f.key)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			s.handleError(w, r, &ErrValidation{Field: f.key, Message: "must be a UUID"})
			return
		}
		*f.dst = &id
	}

	jobs, err := s.engine.Jobs.List(r.Context(), actor, filter)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []types.Job{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"count":  len(jobs),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	job, err := s.engine.Jobs.Get(r.Context(), actor, jobID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var patch types.JobPatch
	if err := s.decodeJSON(w, r, &patch); err != nil {
		s.handleError(w, r, err)
		return
	}

	job, err := s.engine.Jobs.Update(r.Context(), actor, jobID, patch)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	if err := s.engine.Jobs.Delete(r.Context(), actor, jobID); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignFreelancer(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var req AssignRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	job, outcome, err := s.engine.Jobs.AssignFreelancer(r.Context(), actor, jobID, req.FreelancerID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, transitionResponse{Job: job, Outcome: outcome})
}

func (s *Server) handleCompleteJob(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	job, outcome, err := s.engine.Jobs.Complete(r.Context(), actor, jobID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, transitionResponse{Job: job, Outcome: outcome})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	s.jobTransition(w, r, s.engine.Jobs.Cancel)
}

func (s *Server) handleCloseJob(w http.ResponseWriter, r *http.Request) {
	s.jobTransition(w, r, s.engine.Jobs.Close)
}

// jobTransition runs a body-less job operation against the {id} path segment.
func (s *Server) jobTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor types.Actor, id uuid.UUID) (*types.Job, error)) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	job, err := op(r.Context(), actor, jobID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}
