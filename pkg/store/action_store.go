package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/newtron-network/flowmesh/pkg/atomicfile"
	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

type actionFileLayout struct {
	Actions []*flowmodel.Action `json:"actions"`
}

// ActionStore persists Action records, one file per stable device id.
type ActionStore struct {
	mu      sync.RWMutex
	dataDir string
	cache   map[string][]*flowmodel.Action
}

// NewActionStore opens a store rooted at dataDir (spec: data/actions_<id>.json).
func NewActionStore(dataDir string) *ActionStore {
	return &ActionStore{dataDir: dataDir, cache: make(map[string][]*flowmodel.Action)}
}

func (s *ActionStore) path(stableID string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("actions_%s.json", stableID))
}

func (s *ActionStore) load(stableID string) ([]*flowmodel.Action, error) {
	if cached, ok := s.cache[stableID]; ok {
		return cached, nil
	}
	var f actionFileLayout
	if err := atomicfile.ReadJSON(s.path(stableID), &f); err != nil {
		return nil, err
	}
	s.cache[stableID] = f.Actions
	return f.Actions, nil
}

func (s *ActionStore) persist(stableID string, actions []*flowmodel.Action) error {
	s.cache[stableID] = actions
	return atomicfile.WriteJSON(s.path(stableID), actionFileLayout{Actions: actions})
}

// GetAll returns every action for a device.
func (s *ActionStore) GetAll(stableID string) ([]*flowmodel.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(stableID)
}

// Get returns one action by id.
func (s *ActionStore) Get(stableID, actionID string) (*flowmodel.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actions, err := s.load(stableID)
	if err != nil {
		return nil, err
	}
	for _, a := range actions {
		if a.ActionID == actionID {
			return a, nil
		}
	}
	return nil, ferrors.NewNotFoundError("action", actionID)
}

// Create adds a new action, validated per its kind.
func (s *ActionStore) Create(stableID string, action *flowmodel.Action) error {
	if err := action.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	actions, err := s.load(stableID)
	if err != nil {
		return err
	}
	for _, a := range actions {
		if a.ActionID == action.ActionID {
			return &ferrors.ConflictError{Kind: "action", ID: action.ActionID}
		}
	}
	actions = append(actions, action)
	return s.persist(stableID, actions)
}

// Update replaces an existing action.
func (s *ActionStore) Update(stableID string, action *flowmodel.Action) error {
	if err := action.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	actions, err := s.load(stableID)
	if err != nil {
		return err
	}
	for i, a := range actions {
		if a.ActionID == action.ActionID {
			actions[i] = action
			return s.persist(stableID, actions)
		}
	}
	return ferrors.NewNotFoundError("action", action.ActionID)
}

// Delete removes an action by id.
func (s *ActionStore) Delete(stableID, actionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions, err := s.load(stableID)
	if err != nil {
		return err
	}
	for i, a := range actions {
		if a.ActionID == actionID {
			actions = append(actions[:i], actions[i+1:]...)
			return s.persist(stableID, actions)
		}
	}
	return ferrors.NewNotFoundError("action", actionID)
}

// RecordResult updates an action's execution_count/last_result write-through.
func (s *ActionStore) RecordResult(stableID, actionID string, result flowmodel.ActionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions, err := s.load(stableID)
	if err != nil {
		return err
	}
	for i, a := range actions {
		if a.ActionID == actionID {
			actions[i].ExecutionCount++
			actions[i].LastResult = &result
			return s.persist(stableID, actions)
		}
	}
	return ferrors.NewNotFoundError("action", actionID)
}
