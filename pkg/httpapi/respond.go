// Package httpapi is the thin HTTP surface over the flow engine (spec §6):
// CRUD routes for flows/actions/sensors nested under a device, flow
// execution, and read-only device/queue status. Grounded on
// _examples/r3e-network-service_layer/packages/com.r3e.services.secrets/http.go
// for the JSON request/response plumbing and routed with
// github.com/go-chi/chi/v5, the pack's committed router dependency.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/newtron-network/flowmesh/pkg/auth"
	"github.com/newtron-network/flowmesh/pkg/ferrors"
)

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return ferrors.NewValidationError(err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// requestUser reports the caller identity for audit events and permission
// checks. This surface has no authentication layer (spec.md's non-goals
// exclude it beyond transport credentials), so it trusts an optional
// caller-supplied header.
func requestUser(r *http.Request) string {
	if u := r.Header.Get("X-Flowmesh-User"); u != "" {
		return u
	}
	return "api"
}

// checkPermission enforces perm against the request's user when a Checker
// is configured. With no Checker (the default, no AuthPolicyPath set) every
// request passes.
func (s *Server) checkPermission(r *http.Request, perm auth.Permission, authCtx *auth.Context) error {
	if s.Checker == nil {
		return nil
	}
	return s.Checker.CheckUser(requestUser(r), perm, authCtx)
}

// writeError maps an engine error to the status codes in spec §7: 400
// validation, 404 not found, 409 conflict, 503 device offline/transport,
// 500 everything else.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var valErr *ferrors.ValidationError
	var notFoundErr *ferrors.NotFoundError
	var conflictErr *ferrors.ConflictError
	var offlineErr *ferrors.DeviceOfflineError
	var transportErr *ferrors.TransportError
	var overflowErr *ferrors.QueueOverflowError

	switch {
	case errors.As(err, &valErr):
		status = http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	case errors.As(err, &conflictErr):
		status = http.StatusConflict
	case errors.As(err, &offlineErr):
		status = http.StatusServiceUnavailable
	case errors.As(err, &transportErr):
		status = http.StatusServiceUnavailable
	case errors.As(err, &overflowErr):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ferrors.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ferrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ferrors.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ferrors.ErrDeviceOffline), errors.Is(err, ferrors.ErrTransport), errors.Is(err, ferrors.ErrQueueOverflow):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ferrors.ErrForbidden):
		status = http.StatusForbidden
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
