package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/homey-core/internal/audit"
)

// handleListActivity returns the activity log, newest first.
//
// Query parameters:
//   - action: sign_in, sign_out, sign_up, refresh, create, toggle, adjust
//   - entity_type: device, session, user
//   - entity_id: a specific device or session
//   - mine: "true" limits entries to the caller
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "activity log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if q.Get("mine") == "true" {
		filter.UserID = userIDFrom(r.Context())
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.activity.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list activity", "error", err)
		writeInternalError(w, "failed to list activity")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
