// Package monitor implements the Connection Monitor from spec §4.9 and
// original_source/connection_monitor.py (SPEC_FULL.md §4): it owns the
// live transport for every watched device, probes it on a schedule,
// tracks the online/offline state machine with exponential backoff and
// rediscovery, and fans state changes out to any number of
// OnConnect/OnDisconnect subscribers.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/newtron-network/flowmesh/pkg/config"
	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
	"github.com/newtron-network/flowmesh/pkg/logging"
	"github.com/newtron-network/flowmesh/pkg/transport"
)

// Dialer establishes a DeviceTransport for a connection id. Implemented by
// whatever wires up pkg/transport's ssh/subprocess/proxy constructors for a
// discovered device.
type Dialer interface {
	Dial(ctx context.Context, connID string) (transport.DeviceTransport, error)
}

// Callback is invoked with a device's stable id on a state transition.
type Callback func(stableID string)

type deviceEntry struct {
	mu               sync.Mutex
	stableID         string
	connID           string
	transport        transport.DeviceTransport
	breaker          *gobreaker.CircuitBreaker
	state            flowmodel.DeviceState
	lastSeen         time.Time
	retryCount       int
	retryDelay       time.Duration
	rediscoverFired  bool
	cancel           context.CancelFunc
}

// Monitor probes every watched device and maintains its connectivity state.
type Monitor struct {
	dialer   Dialer
	cfg      config.MonitorConfig
	timeouts config.TimeoutConfig

	mu      sync.RWMutex
	devices map[string]*deviceEntry

	cbMu         sync.Mutex
	onConnect    []Callback
	onDisconnect []Callback
	replay       func(ctx context.Context, stableID string)
	rediscover   func(ctx context.Context, stableID string)
}

// New builds a Monitor over dialer, using cfg for probe cadence/backoff and
// timeouts for the per-probe health-check deadline.
func New(dialer Dialer, cfg config.MonitorConfig, timeouts config.TimeoutConfig) *Monitor {
	return &Monitor{
		dialer:   dialer,
		cfg:      cfg,
		timeouts: timeouts,
		devices:  make(map[string]*deviceEntry),
	}
}

// OnConnect registers fn to run (in the probe goroutine, outside any lock)
// whenever a device transitions to online. Multiple subsystems may
// subscribe independently (broker availability, performance monitor, audit
// log), matching the original's callback-list design.
func (m *Monitor) OnConnect(fn Callback) {
	m.cbMu.Lock()
	m.onConnect = append(m.onConnect, fn)
	m.cbMu.Unlock()
}

// OnDisconnect registers fn to run whenever a device transitions to offline.
func (m *Monitor) OnDisconnect(fn Callback) {
	m.cbMu.Lock()
	m.onDisconnect = append(m.onDisconnect, fn)
	m.cbMu.Unlock()
}

// SetReplay registers the hook invoked after a successful reconnect, once
// the device is marked online and the OnConnect callbacks have run: queued
// commands accrued while offline are replayed sequentially (spec §4.9's
// offline→online transition). The monitor does not hold back newly
// scheduled flows while the hook runs. A failure in one replayed
// command does not abort the others; that sequencing is the hook's
// responsibility, not the monitor's.
func (m *Monitor) SetReplay(fn func(ctx context.Context, stableID string)) {
	m.cbMu.Lock()
	m.replay = fn
	m.cbMu.Unlock()
}

// SetRediscover registers the hook invoked once a device has failed to
// reconnect RediscoverAfterRetries times in a row (spec §4.9's "network
// rediscovery" trigger), typically re-running device enumeration so the
// identity resolver can rebind the stable id to a new connection id.
func (m *Monitor) SetRediscover(fn func(ctx context.Context, stableID string)) {
	m.cbMu.Lock()
	m.rediscover = fn
	m.cbMu.Unlock()
}

// Watch starts probing stableID over connID. Calling Watch again for a
// stable id already being watched replaces its connection id (a rebind)
// and resets backoff state.
func (m *Monitor) Watch(stableID, connID string) {
	m.mu.Lock()
	if existing, ok := m.devices[stableID]; ok {
		existing.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	entry := &deviceEntry{
		stableID:   stableID,
		connID:     connID,
		state:      flowmodel.DeviceOffline,
		retryDelay: time.Duration(m.cfg.BackoffStartSeconds) * time.Second,
		cancel:     cancel,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "device-" + stableID,
			MaxRequests: 1,
			Timeout:     time.Duration(m.cfg.BackoffCapSeconds) * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(m.cfg.RediscoverAfterRetries)
			},
		}),
	}
	m.devices[stableID] = entry
	m.mu.Unlock()

	go m.run(ctx, entry)
}

// Unwatch stops probing a device and removes its entry.
func (m *Monitor) Unwatch(stableID string) {
	m.mu.Lock()
	entry, ok := m.devices[stableID]
	if ok {
		delete(m.devices, stableID)
	}
	m.mu.Unlock()
	if ok {
		entry.cancel()
	}
}

// Transport returns the live transport for a device, implementing
// executor.TransportResolver. Returns ferrors.DeviceOfflineError if the
// device is not currently connected.
func (m *Monitor) Transport(stableID string) (transport.DeviceTransport, error) {
	m.mu.RLock()
	entry, ok := m.devices[stableID]
	m.mu.RUnlock()
	if !ok {
		return nil, &ferrors.DeviceOfflineError{StableID: stableID}
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.state != flowmodel.DeviceOnline || entry.transport == nil {
		return nil, &ferrors.DeviceOfflineError{StableID: stableID}
	}
	return entry.transport, nil
}

// State reports a watched device's current connectivity state.
func (m *Monitor) State(stableID string) (flowmodel.DeviceState, bool) {
	m.mu.RLock()
	entry, ok := m.devices[stableID]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state, true
}

// run is the per-device probe loop: one long-lived goroutine mirroring
// pkg/scheduler's per-device worker shape, applying the online/offline
// state machine from spec §4.9.
func (m *Monitor) run(ctx context.Context, entry *deviceEntry) {
	log := logging.WithDevice(entry.stableID).WithField("component", "monitor")
	for {
		entry.mu.Lock()
		wasOnline := entry.state == flowmodel.DeviceOnline
		entry.mu.Unlock()

		err := m.probe(ctx, entry, wasOnline)

		entry.mu.Lock()
		nowOnline := err == nil
		immediateRetry := false
		if nowOnline {
			entry.state = flowmodel.DeviceOnline
			entry.lastSeen = time.Now().UTC()
			entry.retryCount = 0
			entry.retryDelay = time.Duration(m.cfg.BackoffStartSeconds) * time.Second
			entry.rediscoverFired = false
		} else {
			if wasOnline {
				// online -> offline: reset the counter and retry at once.
				entry.retryCount = 0
				entry.retryDelay = time.Duration(m.cfg.BackoffStartSeconds) * time.Second
				immediateRetry = true
			} else {
				entry.retryCount++
				entry.retryDelay *= 2
				backoffCap := time.Duration(m.cfg.BackoffCapSeconds) * time.Second
				if entry.retryDelay > backoffCap {
					entry.retryDelay = backoffCap
				}
			}
			entry.state = flowmodel.DeviceOffline
			if entry.transport != nil {
				entry.transport.Close()
				entry.transport = nil
			}
		}
		retryCount := entry.retryCount
		rediscoverFired := entry.rediscoverFired
		if !nowOnline && !wasOnline && retryCount >= m.cfg.RediscoverAfterRetries && !rediscoverFired {
			entry.rediscoverFired = true
		}
		wait := time.Duration(m.cfg.ProbeIntervalSeconds) * time.Second
		if !nowOnline {
			wait = entry.retryDelay
		}
		if immediateRetry {
			wait = 0
		}
		entry.mu.Unlock()

		switch {
		case nowOnline && !wasOnline:
			log.Info("device connected")
			m.cbMu.Lock()
			connectCbs := append([]Callback(nil), m.onConnect...)
			replay := m.replay
			m.cbMu.Unlock()
			for _, cb := range connectCbs {
				cb(entry.stableID)
			}
			if replay != nil {
				replay(ctx, entry.stableID)
			}
		case !nowOnline && wasOnline:
			log.Warn("device disconnected")
			m.cbMu.Lock()
			disconnectCbs := append([]Callback(nil), m.onDisconnect...)
			m.cbMu.Unlock()
			for _, cb := range disconnectCbs {
				cb(entry.stableID)
			}
		case !nowOnline:
			log.WithField("retry", retryCount).Debugf("reconnect attempt failed: %v", err)
			if !rediscoverFired && retryCount >= m.cfg.RediscoverAfterRetries {
				log.Warn("rediscovery triggered after repeated reconnect failures")
				m.cbMu.Lock()
				rediscover := m.rediscover
				m.cbMu.Unlock()
				if rediscover != nil {
					rediscover(ctx, entry.stableID)
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// probe performs one health check. A device already online is checked with
// a trivial shell command (spec §4.9); an offline device has a reconnect
// attempted instead, dialing a fresh transport if needed.
func (m *Monitor) probe(ctx context.Context, entry *deviceEntry, wasOnline bool) error {
	healthCtx, cancel := context.WithTimeout(ctx, m.timeouts.HealthCheck)
	defer cancel()

	entry.mu.Lock()
	tr := entry.transport
	connID := entry.connID
	entry.mu.Unlock()

	if wasOnline && tr != nil {
		_, err := entry.breaker.Execute(func() (interface{}, error) {
			_, serr := tr.Shell(healthCtx, "echo ok")
			return nil, serr
		})
		return err
	}

	_, err := entry.breaker.Execute(func() (interface{}, error) {
		dialed, derr := m.dialer.Dial(healthCtx, connID)
		if derr != nil {
			return nil, derr
		}
		ok, cerr := dialed.Connect(healthCtx)
		if cerr != nil {
			dialed.Close()
			return nil, cerr
		}
		if !ok {
			dialed.Close()
			return nil, ferrors.NewTransportError("connect", errNotSurfaced)
		}
		entry.mu.Lock()
		entry.transport = dialed
		entry.mu.Unlock()
		return nil, nil
	})
	return err
}

var errNotSurfaced = errors.New("device did not respond to connect probe")
