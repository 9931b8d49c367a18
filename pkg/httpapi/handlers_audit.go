package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/newtron-network/flowmesh/pkg/audit"
	"github.com/newtron-network/flowmesh/pkg/auth"
)

// handleQueryAudit reads the audit trail (connect/disconnect events logged
// by cmd/flowd's monitor subscriber, flow_run events logged by
// handleRunFlow) filtered by query parameters. There is no per-device
// nesting here since an audit query commonly spans devices, so the
// permission check carries no device context.
func (s *Server) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	if err := s.checkPermission(r, auth.PermAuditView, auth.NewContext()); err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	filter := audit.Filter{
		StableID:    q.Get("stable_device_id"),
		User:        q.Get("user"),
		Operation:   q.Get("operation"),
		FlowID:      q.Get("flow_id"),
		FailureOnly: q.Get("failures") == "true",
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}
	if last := q.Get("last"); last != "" {
		if d, err := time.ParseDuration(last); err == nil {
			filter.StartTime = time.Now().Add(-d)
		}
	}

	events, err := audit.Query(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
