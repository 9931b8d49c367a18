package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newtron-network/flowmesh/pkg/auth"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	actions, err := s.Actions.GetAll(stableID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	actionID := chi.URLParam(r, "actionID")
	action, err := s.Actions.Get(stableID, actionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	if err := s.checkPermission(r, auth.PermActionEdit, auth.NewContext().WithDevice(stableID)); err != nil {
		writeError(w, err)
		return
	}
	var action flowmodel.Action
	if err := decodeJSON(r.Body, &action); err != nil {
		writeError(w, err)
		return
	}
	action.StableDeviceID = stableID
	if err := s.Actions.Create(stableID, &action); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &action)
}

func (s *Server) handleUpdateAction(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	actionID := chi.URLParam(r, "actionID")
	if err := s.checkPermission(r, auth.PermActionEdit, auth.NewContext().WithDevice(stableID).WithResource(actionID)); err != nil {
		writeError(w, err)
		return
	}
	var action flowmodel.Action
	if err := decodeJSON(r.Body, &action); err != nil {
		writeError(w, err)
		return
	}
	action.StableDeviceID = stableID
	action.ActionID = actionID
	if err := s.Actions.Update(stableID, &action); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &action)
}

func (s *Server) handleDeleteAction(w http.ResponseWriter, r *http.Request) {
	stableID := chi.URLParam(r, "stableID")
	actionID := chi.URLParam(r, "actionID")
	if err := s.checkPermission(r, auth.PermActionEdit, auth.NewContext().WithDevice(stableID).WithResource(actionID)); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Actions.Delete(stableID, actionID); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}
