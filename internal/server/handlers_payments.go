package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/freelance-market/internal/types"
)

// ---------------------------------------------------------------------
// Payment Handlers
// ---------------------------------------------------------------------

// handleCreateOrder opens a gateway order for the job. Nothing is stored
// until the client funds escrow with the gateway's confirmation.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var in types.CreateOrderInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.handleError(w, r, err)
		return
	}

	order, err := s.engine.Escrow.CreateOrder(r.Context(), actor, jobID, in.Amount)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, order)
}

func (s *Server) handleFundEscrow(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var in types.FundInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.handleError(w, r, err)
		return
	}
	in.JobID = jobID

	payment, err := s.engine.Escrow.Fund(r.Context(), actor, in)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, payment)
}

func (s *Server) handleListJobPayments(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	payments, err := s.engine.Escrow.ListByJob(r.Context(), actor, jobID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if payments == nil {
		payments = []types.Payment{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"payments": payments,
		"count":    len(payments),
	})
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	s.paymentOp(w, r, s.engine.Escrow.Get)
}

func (s *Server) handleReleasePayment(w http.ResponseWriter, r *http.Request) {
	s.paymentOp(w, r, s.engine.Escrow.Release)
}

func (s *Server) handleRefundPayment(w http.ResponseWriter, r *http.Request) {
	s.paymentOp(w, r, s.engine.Escrow.Refund)
}

func (s *Server) handleDisputePayment(w http.ResponseWriter, r *http.Request) {
	s.paymentOp(w, r, s.engine.Escrow.Dispute)
}

// paymentOp runs a body-less payment operation against the {id} path segment.
func (s *Server) paymentOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor types.Actor, id uuid.UUID) (*types.Payment, error)) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	paymentID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	payment, err := op(r.Context(), actor, paymentID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, payment)
}
