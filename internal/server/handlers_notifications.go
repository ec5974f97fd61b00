package server

import (
	"net/http"
	"strconv"

	"github.com/jonathan/freelance-market/internal/types"
)

// ---------------------------------------------------------------------
// Notification Handlers
// ---------------------------------------------------------------------

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}

	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	filter := types.NotificationFilter{
		UnreadOnly: unreadOnly,
		Limit:      parseQueryInt(r, "limit", 50, 100),
		Offset:     parseQueryInt(r, "offset", 0, 0),
	}

	notifications, err := s.engine.Notifications.List(r.Context(), actor, filter)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	unread, err := s.engine.Notifications.UnreadCount(r.Context(), actor)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []types.Notification{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"unread_count":  unread,
		"limit":         filter.Limit,
		"offset":        filter.Offset,
	})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}

	unread, err := s.engine.Notifications.UnreadCount(r.Context(), actor)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int{"unread_count": unread})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	if err := s.engine.Notifications.MarkRead(r.Context(), actor, id); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}

	n, err := s.engine.Notifications.MarkAllRead(r.Context(), actor)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	if err := s.engine.Notifications.Delete(r.Context(), actor, id); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := s.actorFromRequest(w, r)
	if !ok {
		return
	}

	n, err := s.engine.Notifications.Clear(r.Context(), actor)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int{"deleted": n})
}
