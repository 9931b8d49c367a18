package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newtron-network/flowmesh/pkg/audit"
	"github.com/newtron-network/flowmesh/pkg/auth"
	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
	"github.com/newtron-network/flowmesh/pkg/navigation"
)

// screenObservation is the wire shape of a screen teaching request: the
// package whose graph is being taught, plus the before/after activity and
// landmark signature and the action that moved between them.
type screenObservation struct {
	Package         string                     `json:"package"`
	BeforeActivity  string                     `json:"before_activity"`
	BeforeLandmarks []flowmodel.Landmark       `json:"before_landmarks"`
	AfterActivity   string                     `json:"after_activity"`
	AfterLandmarks  []flowmodel.Landmark       `json:"after_landmarks"`
	Action          flowmodel.ActionDescriptor `json:"action"`
}

// handleTeachTransition records one observed screen transition in a
// package's navigation graph (spec §4.7's LearnTransition), gated by
// PermNavTeach since it mutates shared navigation state for a device.
func (s *Server) handleTeachTransition(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	if err := s.checkPermission(r, auth.PermNavTeach, auth.NewContext().WithDevice(stableID)); err != nil {
		writeError(w, err)
		return
	}
	var obs screenObservation
	if err := decodeJSON(r.Body, &obs); err != nil {
		writeError(w, err)
		return
	}
	if obs.Package == "" {
		writeError(w, ferrors.NewValidationError("package is required"))
		return
	}

	event := audit.NewEvent(requestUser(r), stableID, string(audit.EventTypeNavTeach))
	transition, err := s.Navigation.LearnTransition(obs.Package, obs.BeforeActivity, obs.BeforeLandmarks,
		obs.AfterActivity, obs.AfterLandmarks, obs.Action)
	if err != nil {
		_ = audit.Log(event.WithError(err))
		writeError(w, err)
		return
	}
	_ = audit.Log(event.WithSuccess())
	writeJSON(w, http.StatusOK, transition)
}

// handleMineFlow reconstructs navigation transitions from a flow's recorded
// step observations (spec §4.7's mining mode) instead of live teaching.
func (s *Server) handleMineFlow(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	if err := s.checkPermission(r, auth.PermNavTeach, auth.NewContext().WithDevice(stableID)); err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Package string                 `json:"package"`
		Steps   []navigation.MinedStep `json:"steps"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Package == "" {
		writeError(w, ferrors.NewValidationError("package is required"))
		return
	}

	learned, err := s.Navigation.MineFlow(req.Package, req.Steps)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"transitions_learned": learned})
}

// handleFindPath exposes the package's Dijkstra pathfinder as a read-only
// query, requiring only PermFlowView since it does not mutate the graph.
func (s *Server) handleFindPath(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	if err := s.checkPermission(r, auth.PermFlowView, auth.NewContext().WithDevice(stableID)); err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	pkg, from, to := q.Get("package"), q.Get("from"), q.Get("to")
	if pkg == "" || from == "" || to == "" {
		writeError(w, ferrors.NewValidationError("package, from, and to are required"))
		return
	}
	path, err := s.Navigation.FindPath(pkg, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}
