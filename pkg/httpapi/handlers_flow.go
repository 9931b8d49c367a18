package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newtron-network/flowmesh/pkg/audit"
	"github.com/newtron-network/flowmesh/pkg/auth"
	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	flows, err := s.Flows.GetAll(stableID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	flowID := chi.URLParam(r, "flowID")
	flow, err := s.Flows.Get(stableID, flowID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	if err := s.checkPermission(r, auth.PermFlowEdit, auth.NewContext().WithDevice(stableID)); err != nil {
		writeError(w, err)
		return
	}
	var flow flowmodel.Flow
	if err := decodeJSON(r.Body, &flow); err != nil {
		writeError(w, err)
		return
	}
	flow.StableDeviceID = stableID
	if err := s.Flows.Create(stableID, &flow); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &flow)
}

func (s *Server) handleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	flowID := chi.URLParam(r, "flowID")
	if err := s.checkPermission(r, auth.PermFlowEdit, auth.NewContext().WithDevice(stableID).WithFlow(flowID)); err != nil {
		writeError(w, err)
		return
	}
	var flow flowmodel.Flow
	if err := decodeJSON(r.Body, &flow); err != nil {
		writeError(w, err)
		return
	}
	flow.StableDeviceID = stableID
	flow.FlowID = flowID
	if err := s.Flows.Update(stableID, &flow); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &flow)
}

func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	flowID := chi.URLParam(r, "flowID")
	if err := s.checkPermission(r, auth.PermFlowEdit, auth.NewContext().WithDevice(stableID).WithFlow(flowID)); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Flows.Delete(stableID, flowID); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}

// handleRunFlow enqueues a flow for immediate execution on the scheduler's
// device worker, per spec §6's POST /api/flows/{id}/run.
func (s *Server) handleRunFlow(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	flowID := chi.URLParam(r, "flowID")
	if err := s.checkPermission(r, auth.PermFlowRun, auth.NewContext().WithDevice(stableID).WithFlow(flowID)); err != nil {
		writeError(w, err)
		return
	}
	flow, err := s.Flows.Get(stableID, flowID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !flow.Enabled {
		writeError(w, ferrors.NewValidationError("flow is disabled"))
		return
	}
	event := audit.NewEvent(requestUser(r), stableID, string(audit.EventTypeFlowRun)).WithFlow(flowID)
	if err := s.Scheduler.Enqueue(flow); err != nil {
		_ = audit.Log(event.WithError(err))
		writeError(w, err)
		return
	}
	_ = audit.Log(event.WithSuccess())
	writeJSON(w, http.StatusOK, map[string]string{"status": "enqueued", "flow_id": flowID})
}

func (s *Server) handleFlowHistory(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	results, err := s.History.GetAll(flowID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
