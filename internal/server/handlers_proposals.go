package server

import (
	"net/http"

	"github.com/jonathan/freelance-market/internal/types"
)

// ---------------------------------------------------------------------
// Proposal Handlers
// ---------------------------------------------------------------------

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var in types.CreateProposalInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.handleError(w, r, err)
		return
	}

	proposal, err := s.engine.Proposals.Create(r.Context(), actor, jobID, in)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, proposal)
}

func (s *Server) handleListJobProposals(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	proposals, err := s.engine.Proposals.ListByJob(r.Context(), actor, jobID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.proposalList(w, proposals)
}

// handleCheckProposal reports whether the caller already bid on the job.
func (s *Server) handleCheckProposal(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	exists, err := s.engine.Proposals.CheckExists(r.Context(), actor, jobID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (s *Server) handleListMyProposals(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}

	proposals, err := s.engine.Proposals.ListMine(r.Context(), actor)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.proposalList(w, proposals)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	proposalID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	proposal, err := s.engine.Proposals.Get(r.Context(), actor, proposalID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, proposal)
}

func (s *Server) handleSetProposalStatus(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	proposalID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var in types.SetProposalStatusInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.handleError(w, r, err)
		return
	}

	proposal, err := s.engine.Proposals.SetStatus(r.Context(), actor, proposalID, in.Status)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, proposal)
}

func (s *Server) handleWithdrawProposal(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	proposalID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	proposal, err := s.engine.Proposals.Withdraw(r.Context(), actor, proposalID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, proposal)
}

func (s *Server) proposalList(w http.ResponseWriter, proposals []types.Proposal) {
	if proposals == nil {
		proposals = []types.Proposal{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"proposals": proposals,
		"count":     len(proposals),
	})
}
