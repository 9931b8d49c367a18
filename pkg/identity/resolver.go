// Package identity implements the Device Identity Resolver from spec §4.1:
// a bidirectional ConnectionID <-> StableID mapping, plus a legacy-id alias
// table, persisted to one file under a process-wide mutex.
package identity

import (
	"regexp"
	"sync"
	"time"

	"github.com/newtron-network/flowmesh/pkg/atomicfile"
	"github.com/newtron-network/flowmesh/pkg/logging"
)

var sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Metadata is the caller-supplied context attached to a Register call.
type Metadata struct {
	Model        string `json:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

type connectionEvent struct {
	ConnectionID string    `json:"connection_id"`
	At           time.Time `json:"at"`
}

type record struct {
	StableID          string            `json:"stable_id"`
	ConnectionID      string            `json:"connection_id"`
	Metadata          Metadata          `json:"metadata"`
	ConnectionHistory []connectionEvent `json:"connection_history"`
}

const maxConnectionHistory = 10

type fileState struct {
	Records      map[string]*record `json:"records"` // keyed by stable_id
	ConnToStable map[string]string  `json:"conn_to_stable"`
	LegacyAlias  map[string]string  `json:"legacy_alias"` // legacy_id -> stable_id
}

// RegisterResult reports what Register observed.
type RegisterResult struct {
	IsNew     bool
	Rebinding bool
	StableID  string
}

// Resolver is the process-wide ConnectionID <-> StableID mapping.
type Resolver struct {
	mu   sync.RWMutex
	path string
	st   *fileState

	// onRebind is invoked (outside the lock) when Register observes a
	// stable_id moving to a new connection_id, so the migrator can act.
	onRebind func(stableID, oldConnID, newConnID string)
}

// New loads (or initializes) a Resolver persisted at path.
func New(path string) (*Resolver, error) {
	st := &fileState{
		Records:      make(map[string]*record),
		ConnToStable: make(map[string]string),
		LegacyAlias:  make(map[string]string),
	}
	if err := atomicfile.ReadJSON(path, st); err != nil {
		return nil, err
	}
	if st.Records == nil {
		st.Records = make(map[string]*record)
	}
	if st.ConnToStable == nil {
		st.ConnToStable = make(map[string]string)
	}
	if st.LegacyAlias == nil {
		st.LegacyAlias = make(map[string]string)
	}
	return &Resolver{path: path, st: st}, nil
}

// OnRebind registers the callback invoked whenever Register observes a
// rebinding, so the data migrator can react.
func (r *Resolver) OnRebind(fn func(stableID, oldConnID, newConnID string)) {
	r.mu.Lock()
	r.onRebind = fn
	r.mu.Unlock()
}

// Register inserts or updates the conn_id <-> stable_id mapping.
func (r *Resolver) Register(connID, stableID string, meta Metadata) RegisterResult {
	r.mu.Lock()

	rec, exists := r.st.Records[stableID]
	now := time.Now().UTC()
	var rebinding bool
	var oldConnID string

	if !exists {
		rec = &record{StableID: stableID}
		r.st.Records[stableID] = rec
	} else if rec.ConnectionID != "" && rec.ConnectionID != connID {
		rebinding = true
		oldConnID = rec.ConnectionID
		delete(r.st.ConnToStable, oldConnID)
	}

	rec.ConnectionID = connID
	rec.Metadata = meta
	rec.ConnectionHistory = append(rec.ConnectionHistory, connectionEvent{ConnectionID: connID, At: now})
	if len(rec.ConnectionHistory) > maxConnectionHistory {
		rec.ConnectionHistory = rec.ConnectionHistory[len(rec.ConnectionHistory)-maxConnectionHistory:]
	}
	r.st.ConnToStable[connID] = stableID

	cb := r.onRebind
	if err := r.persistLocked(); err != nil {
		logging.WithField("path", r.path).WithField("error", err).Warn("identity: persisting resolver state failed")
	}
	r.mu.Unlock()

	if rebinding && cb != nil {
		cb(stableID, oldConnID, connID)
	}

	return RegisterResult{IsNew: !exists, Rebinding: rebinding, StableID: stableID}
}

// Resolve accepts either a ConnectionID or a StableID and returns the
// stable_id. Unknown ids are returned verbatim, never rejected.
func (r *Resolver) Resolve(anyID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.st.Records[anyID]; ok {
		return anyID
	}
	if stable, ok := r.st.ConnToStable[anyID]; ok {
		return stable
	}
	if stable, ok := r.st.LegacyAlias[anyID]; ok {
		return stable
	}
	return anyID
}

// GetConnection returns the currently-bound connection id for a stable id.
func (r *Resolver) GetConnection(stableID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.st.Records[stableID]
	if !ok {
		return "", false
	}
	return rec.ConnectionID, true
}

// GetStable returns the stable id currently bound to a connection id.
func (r *Resolver) GetStable(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stable, ok := r.st.ConnToStable[connID]
	return stable, ok
}

// RegisterLegacy installs a one-way alias from a legacy id to a stable id.
func (r *Resolver) RegisterLegacy(legacyID, stableID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.LegacyAlias[legacyID] = stableID
	return r.persistLocked()
}

// SanitizeForFilename resolves anyID to its stable id, then replaces every
// non [A-Za-z0-9_-] rune with '_'.
func (r *Resolver) SanitizeForFilename(anyID string) string {
	return sanitize(r.Resolve(anyID))
}

// SanitizeForTopic behaves identically to SanitizeForFilename; broker topic
// segments and filenames share the same character restrictions.
func (r *Resolver) SanitizeForTopic(anyID string) string {
	return sanitize(r.Resolve(anyID))
}

func sanitize(s string) string {
	return sanitizeRe.ReplaceAllString(s, "_")
}

// Forget removes all mappings and metadata for the resolved stable_id.
func (r *Resolver) Forget(anyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stable := anyID
	if _, ok := r.st.Records[anyID]; !ok {
		if s, ok := r.st.ConnToStable[anyID]; ok {
			stable = s
		}
	}
	if rec, ok := r.st.Records[stable]; ok {
		delete(r.st.ConnToStable, rec.ConnectionID)
		delete(r.st.Records, stable)
	}
	for legacy, s := range r.st.LegacyAlias {
		if s == stable {
			delete(r.st.LegacyAlias, legacy)
		}
	}
	return r.persistLocked()
}

func (r *Resolver) persistLocked() error {
	return atomicfile.WriteJSON(r.path, r.st)
}
