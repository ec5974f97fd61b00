package server

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jonathan/freelance-market/internal/lifecycle"
	"github.com/jonathan/freelance-market/internal/server/middleware"
	"github.com/jonathan/freelance-market/internal/types"
)

// parseQueryInt parses an integer query parameter with default and max values
func parseQueryInt(r *http.Request, key string, defaultValue, maxValue int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val < 0 {
		return defaultValue
	}
	if maxValue > 0 && val > maxValue {
		return maxValue
	}
	return val
}

// pathUUID parses the named path segment as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}

// actorFromRequest loads the authenticated user behind the request. The user
// record, not the token, decides role and status, so suspensions and role
// changes apply to tokens that are already issued.
func (s *Server) actorFromRequest(w http.ResponseWriter, r *http.Request) (types.Actor, *types.User, bool) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return types.Actor{}, nil, false
	}

	user, err := s.userService.Get(r.Context(), userID)
	if err != nil {
		s.handleError(w, r, &lifecycle.Error{Kind: lifecycle.KindUnavailable, Message: "failed to load user", Cause: err})
		return types.Actor{}, nil, false
	}
	if user == nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized", "account no longer exists")
		return types.Actor{}, nil, false
	}
	if user.Status == types.UserSuspended {
		s.handleError(w, r, &ErrAccountSuspended{})
		return types.Actor{}, nil, false
	}
	return types.ActorFor(user), user, true
}

// handleMe returns the authenticated user's profile and running totals.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	_, user, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, user)
}
