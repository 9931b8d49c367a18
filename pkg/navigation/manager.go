// Package navigation implements the Navigation Manager & Graph from spec
// §4.7: per-package graphs with screen/transition learning, EMA-updated
// statistics, and a Dijkstra pathfinder weighted by reliability and latency.
package navigation

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/newtron-network/flowmesh/pkg/atomicfile"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// PackageHash16 derives the filename stem for a package's graph file: the
// first 16 hex characters of sha1(package).
func PackageHash16(pkg string) string {
	h := sha1.Sum([]byte(pkg))
	return hex.EncodeToString(h[:])[:16]
}

// Manager owns every package's NavigationGraph with a write-through cache;
// writers serialize on the graph's package key (spec §3 ownership rule).
type Manager struct {
	configDir string

	mu     sync.RWMutex
	graphs map[string]*flowmodel.NavigationGraph // package -> graph
	locks  map[string]*sync.Mutex                // per-package write lock
}

// NewManager opens a manager rooted at configDir (spec: config/navigation/nav_<hash16>.json).
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir: configDir,
		graphs:    make(map[string]*flowmodel.NavigationGraph),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (m *Manager) path(pkg string) string {
	return filepath.Join(m.configDir, "navigation", fmt.Sprintf("nav_%s.json", PackageHash16(pkg)))
}

func (m *Manager) packageLock(pkg string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[pkg]
	if !ok {
		l = &sync.Mutex{}
		m.locks[pkg] = l
	}
	return l
}

// Graph returns the graph for a package, loading it from disk on first use.
func (m *Manager) Graph(pkg string) (*flowmodel.NavigationGraph, error) {
	m.mu.RLock()
	g, ok := m.graphs[pkg]
	m.mu.RUnlock()
	if ok {
		return g, nil
	}

	g = flowmodel.NewNavigationGraph(pkg, time.Now().UTC())
	if err := atomicfile.ReadJSON(m.path(pkg), g); err != nil {
		return nil, err
	}
	if g.Screens == nil {
		g.Screens = make(map[string]*flowmodel.Screen)
	}
	if g.Package == "" {
		g.Package = pkg
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.graphs[pkg]; ok {
		return existing, nil
	}
	m.graphs[pkg] = g
	return g, nil
}

func (m *Manager) persist(pkg string) error {
	g, err := m.Graph(pkg)
	if err != nil {
		return err
	}
	g.UpdatedAt = time.Now().UTC()
	return atomicfile.WriteJSON(m.path(pkg), g)
}

// ensureScreen finds or creates a screen by (activity, landmarks), updating
// visit_count/last_seen either way. Must be called with the package lock held.
func ensureScreen(g *flowmodel.NavigationGraph, activity string, landmarks []flowmodel.Landmark, now time.Time) *flowmodel.Screen {
	id := flowmodel.ScreenID(activity, landmarks)
	if s, ok := g.Screens[id]; ok {
		s.VisitCount++
		s.LastSeen = now
		return s
	}
	s := flowmodel.NewScreen(g.Package, activity, landmarks, now)
	s.VisitCount = 1
	g.Screens[id] = s
	return s
}

// LearnTransition ensures the before/after screens exist, then inserts or
// increments the matching transition.
func (m *Manager) LearnTransition(pkg, beforeActivity string, beforeLandmarks []flowmodel.Landmark,
	afterActivity string, afterLandmarks []flowmodel.Landmark, action flowmodel.ActionDescriptor) (*flowmodel.Transition, error) {

	lock := m.packageLock(pkg)
	lock.Lock()
	defer lock.Unlock()

	g, err := m.Graph(pkg)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	before := ensureScreen(g, beforeActivity, beforeLandmarks, now)
	after := ensureScreen(g, afterActivity, afterLandmarks, now)

	tid := flowmodel.TransitionID(before.ScreenID, after.ScreenID, action)
	for _, t := range g.Transitions {
		if t.TransitionID == tid {
			t.RecordUse(true, 0, now)
			return t, m.persist(pkg)
		}
	}
	t := &flowmodel.Transition{
		TransitionID: tid,
		SourceID:     before.ScreenID,
		TargetID:     after.ScreenID,
		Action:       action,
		LearnedFrom:  flowmodel.LearnedRecording,
	}
	t.RecordUse(true, 0, now)
	g.Transitions = append(g.Transitions, t)
	return t, m.persist(pkg)
}

// RecordTransitionUse updates an existing transition's EMA statistics after
// it is used during flow execution (spec §4.7's "statistics updates on
// execution").
func (m *Manager) RecordTransitionUse(pkg, transitionID string, success bool, durationMS float64) error {
	lock := m.packageLock(pkg)
	lock.Lock()
	defer lock.Unlock()

	g, err := m.Graph(pkg)
	if err != nil {
		return err
	}
	for _, t := range g.Transitions {
		if t.TransitionID == transitionID {
			t.RecordUse(success, durationMS, time.Now().UTC())
			return m.persist(pkg)
		}
	}
	return fmt.Errorf("transition %s not found in package %s", transitionID, pkg)
}

// SetHomeScreen clears is_home on every other screen, then flags the
// resolved one (spec §8: at most one home screen per graph).
func (m *Manager) SetHomeScreen(pkg, activity string, landmarks []flowmodel.Landmark) error {
	lock := m.packageLock(pkg)
	lock.Lock()
	defer lock.Unlock()

	g, err := m.Graph(pkg)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	target := ensureScreen(g, activity, landmarks, now)
	for _, s := range g.Screens {
		s.IsHome = s.ScreenID == target.ScreenID
	}
	g.HomeScreenID = target.ScreenID
	return m.persist(pkg)
}

// IdentifyCurrentScreen resolves a Screen first by exact screen_id, falling
// back to matching by activity alone.
func (m *Manager) IdentifyCurrentScreen(pkg, activity string, landmarks []flowmodel.Landmark) (*flowmodel.Screen, error) {
	g, err := m.Graph(pkg)
	if err != nil {
		return nil, err
	}
	id := flowmodel.ScreenID(activity, landmarks)
	if s, ok := g.Screens[id]; ok {
		return s, nil
	}
	for _, s := range g.Screens {
		if s.Activity == activity {
			return s, nil
		}
	}
	return nil, nil
}
