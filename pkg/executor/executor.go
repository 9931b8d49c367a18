// Package executor implements the Flow Executor & Interpreter from spec
// §4.4: given a Flow, it runs each Step in order against a device's
// DeviceTransport, producing a FlowExecutionResult. It is the leaf consumer
// of Transport, NavigationGraph, the Action/Sensor stores, and the Text
// Extractor — every other subsystem in the data-flow diagram sits above it.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/newtron-network/flowmesh/pkg/broker"
	"github.com/newtron-network/flowmesh/pkg/devicelock"
	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
	"github.com/newtron-network/flowmesh/pkg/logging"
	"github.com/newtron-network/flowmesh/pkg/queue"
	"github.com/newtron-network/flowmesh/pkg/store"
	"github.com/newtron-network/flowmesh/pkg/transport"
)

// Android keyevent codes the interpreter issues directly for go_home/go_back.
const (
	keycodeHome = 3
	keycodeBack = 4
)

// maxLaunchWait is how long launch_app waits for the target app to surface.
const maxLaunchWait = 2 * time.Second

// TransportResolver looks up the live DeviceTransport for a connected
// device. Implemented by the connection monitor; returns
// ferrors.DeviceOfflineError if the device is not currently connected.
type TransportResolver interface {
	Transport(stableID string) (transport.DeviceTransport, error)
}

// Dependencies bundles everything the Executor reads from or writes to
// beyond the Flow and Transport themselves.
type Dependencies struct {
	Devices TransportResolver
	Actions *store.ActionStore
	Sensors *store.SensorStore
	History *store.HistoryStore
	Queue   *queue.Queue
	Locks   *devicelock.Locker
	Broker  broker.Publisher
}

// Executor runs Flows to completion, one at a time, holding the device's
// exclusive lock for the full run (spec §5).
type Executor struct {
	deps Dependencies
}

// New builds an Executor over deps.
func New(deps Dependencies) *Executor {
	return &Executor{deps: deps}
}

// session carries per-run state: the sensor-value cache (spec §4.4's
// "reuse if the current execution session cache already has a value") and
// the current step's details. Cancellation comes from the ctx passed to
// Execute, not from the session.
type session struct {
	flow        *flowmodel.Flow
	executionID string
	sensorCache map[string]string
	lastDetails map[string]interface{}
}

// Execute runs flow's steps in order against its target device, producing a
// FlowExecutionResult and appending it to history. The device's exclusive
// lock is held for the whole run.
func (e *Executor) Execute(ctx context.Context, flow *flowmodel.Flow) (*flowmodel.FlowExecutionResult, error) {
	holder := uuid.NewString()
	if e.deps.Locks != nil {
		if err := e.deps.Locks.Acquire(ctx, flow.StableDeviceID, holder); err != nil {
			return nil, err
		}
		defer e.deps.Locks.Release(context.Background(), flow.StableDeviceID, holder)
	}

	sess := &session{
		flow:        flow,
		executionID: uuid.NewString(),
		sensorCache: make(map[string]string),
	}
	log := logging.WithDevice(flow.StableDeviceID).WithFlow(flow.FlowID)

	result := &flowmodel.FlowExecutionResult{
		FlowID:      flow.FlowID,
		ExecutionID: sess.executionID,
		TotalSteps:  len(flow.Steps),
		StartedAt:   time.Now().UTC(),
	}
	start := time.Now()

	tr, err := e.resolveTransport(ctx, flow, int(flow.Priority))
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
		result.ExecutionTimeMS = float64(time.Since(start).Microseconds()) / 1000.0
		e.recordHistory(result)
		return result, err
	}

	result.Success = true
	for i, step := range flow.Steps {
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.ErrorMessage = (&ferrors.CancelledError{FlowID: flow.FlowID}).Error()
			break
		}

		sess.lastDetails = nil
		stepLog := flowmodel.FlowStepLog{StepIndex: i, Kind: step.Kind, Start: time.Now().UTC()}
		stepErr := e.runStep(ctx, sess, tr, step)
		stepLog.End = time.Now().UTC()
		stepLog.Success = stepErr == nil
		if stepErr != nil {
			stepLog.Error = stepErr.Error()
		}
		stepLog.Details = sess.lastDetails
		result.StepLogs = append(result.StepLogs, stepLog)
		result.ExecutedSteps++

		if stepErr != nil {
			log.WithField("step", i).Warnf("step %d (%s) failed: %v", i, step.Kind, stepErr)
			stopOnError := flow.StopOnError
			if step.StopOnError != nil {
				stopOnError = *step.StopOnError
			}
			result.Success = false
			if stopOnError || result.ErrorMessage == "" {
				result.ErrorMessage = stepErr.Error()
			}
			if stopOnError {
				break
			}
		}
	}

	result.ExecutionTimeMS = float64(time.Since(start).Microseconds()) / 1000.0
	e.recordHistory(result)
	if !result.Success {
		log.Warnf("flow run %s finished with errors", sess.executionID)
	}
	return result, nil
}

func (e *Executor) recordHistory(result *flowmodel.FlowExecutionResult) {
	if e.deps.History == nil {
		return
	}
	if err := e.deps.History.Append(*result); err != nil {
		logging.WithFlow(result.FlowID).Warnf("recording flow history failed: %v", err)
	}
}

// resolveTransport fetches the live transport for the flow's device. If the
// device is offline, the enqueuePriority'd caller's operation is deferred to
// the command queue and DeviceOffline is returned (spec §4.4's launch_app
// offline handling, generalized to cover the whole run).
func (e *Executor) resolveTransport(ctx context.Context, flow *flowmodel.Flow, enqueuePriority int) (transport.DeviceTransport, error) {
	tr, err := e.deps.Devices.Transport(flow.StableDeviceID)
	if err == nil {
		return tr, nil
	}
	if e.deps.Queue != nil {
		if _, qerr := e.deps.Queue.Enqueue(ctx, flow.StableDeviceID, "execute_flow", flow.FlowID, enqueuePriority, 0); qerr != nil {
			logging.WithDevice(flow.StableDeviceID).Warnf("deferring flow to command queue failed: %v", qerr)
		}
	}
	return nil, &ferrors.DeviceOfflineError{StableID: flow.StableDeviceID}
}
