package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/newtron-network/flowmesh/pkg/element"
	"github.com/newtron-network/flowmesh/pkg/extractor"
	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
	"github.com/newtron-network/flowmesh/pkg/logging"
	"github.com/newtron-network/flowmesh/pkg/transport"
)

// runStep dispatches one Step to its handler.
func (e *Executor) runStep(ctx context.Context, sess *session, tr transport.DeviceTransport, step flowmodel.Step) error {
	switch step.Kind {
	case flowmodel.StepLaunchApp:
		return e.runLaunchApp(ctx, sess, step)
	case flowmodel.StepTap:
		return tr.Tap(ctx, step.X, step.Y)
	case flowmodel.StepSwipe:
		return tr.Swipe(ctx, step.X, step.Y, step.X2, step.Y2, step.DurationMS)
	case flowmodel.StepKeyevent:
		return tr.Keyevent(ctx, step.Keycode)
	case flowmodel.StepText:
		return tr.Text(ctx, step.Text)
	case flowmodel.StepGoBack:
		return tr.Keyevent(ctx, keycodeBack)
	case flowmodel.StepGoHome:
		return tr.Keyevent(ctx, keycodeHome)
	case flowmodel.StepWait:
		return waitCtx(ctx, time.Duration(step.WaitSeconds*float64(time.Second)))
	case flowmodel.StepCaptureSensors:
		return e.runCaptureSensors(ctx, sess, tr, step)
	case flowmodel.StepExecuteAction:
		action, err := e.deps.Actions.Get(sess.flow.StableDeviceID, step.ActionID)
		if err != nil {
			return err
		}
		return e.runAction(ctx, sess, tr, action)
	case flowmodel.StepAssertScreen:
		return e.runAssertScreen(ctx, tr, step)
	case flowmodel.StepAssertElement:
		return e.runAssertElement(ctx, tr, step)
	default:
		return &ferrors.InternalError{Op: "runStep", Err: errors.New("unknown step kind " + string(step.Kind))}
	}
}

// waitCtx sleeps for d, returning early with ctx.Err() if cancelled.
func waitCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) runLaunchApp(ctx context.Context, sess *session, step flowmodel.Step) error {
	tr, err := e.deps.Devices.Transport(sess.flow.StableDeviceID)
	if err != nil {
		if e.deps.Queue != nil {
			if _, qerr := e.deps.Queue.Enqueue(ctx, sess.flow.StableDeviceID, "launch_app", step.Package, int(flowmodel.PriorityHigh), 0); qerr != nil {
				logging.WithDevice(sess.flow.StableDeviceID).Warnf("deferring launch_app to command queue failed: %v", qerr)
			}
		}
		return &ferrors.DeviceOfflineError{StableID: sess.flow.StableDeviceID}
	}

	launchCtx, cancel := context.WithTimeout(ctx, maxLaunchWait)
	defer cancel()
	surfaced, err := tr.LaunchApp(launchCtx, step.Package)
	if err != nil {
		return ferrors.NewTransportError("launch_app", err)
	}
	if !surfaced {
		return ferrors.NewTransportError("launch_app", errors.New("app did not surface within "+maxLaunchWait.String()))
	}
	return nil
}

// runCaptureSensors resolves each requested sensor independently: a sensor
// that fails to resolve does not block the others from publishing. The step
// reports per-sensor outcomes in its Details and fails overall if any sensor
// failed, matching the original sensor_updater.py's partial-failure
// semantics (SPEC_FULL.md §4).
func (e *Executor) runCaptureSensors(ctx context.Context, sess *session, tr transport.DeviceTransport, step flowmodel.Step) error {
	var elements []flowmodel.UIElement
	var elementsLoaded bool
	var elementsErr error

	outcomes := make(map[string]interface{}, len(step.SensorIDs))
	var firstErr error

	for _, sensorID := range step.SensorIDs {
		if v, cached := sess.sensorCache[sensorID]; cached {
			outcomes[sensorID] = v
			continue
		}

		value, err := func() (string, error) {
			sensor, err := e.deps.Sensors.Get(sess.flow.StableDeviceID, sensorID)
			if err != nil {
				return "", err
			}

			if !elementsLoaded {
				els, gerr := tr.GetUIElements(ctx, false)
				elementsLoaded = true
				if gerr != nil {
					elementsErr = ferrors.NewTransportError("get_ui_elements", gerr)
				}
				elements = els
			}
			if elementsErr != nil {
				return "", elementsErr
			}

			ref := sensor.Source.ElementRef
			if sensor.Source.Kind == flowmodel.SourceBounds {
				ref = &flowmodel.ElementRef{StoredBounds: sensor.Source.BoundsRef}
			}
			found := element.Find(ref, elements)
			if !found.Found {
				return "", &ferrors.ElementNotFoundError{Description: sensor.FriendlyName}
			}

			source := ""
			if found.Element != nil {
				source = found.Element.Text
			}
			value, err := extractor.Extract(sensor.Extraction, source)
			if err != nil {
				return "", &ferrors.ExtractionFailedError{Reason: err.Error()}
			}

			if e.deps.Broker != nil {
				attributes := map[string]interface{}{
					"confidence": found.Confidence,
					"method":     string(found.Method),
				}
				if perr := e.deps.Broker.PublishSensorUpdate(ctx, sensor, value, attributes); perr != nil {
					return "", ferrors.NewTransportError("publish_sensor_update", perr)
				}
			}
			return value, nil
		}()

		if err != nil {
			outcomes[sensorID] = err.Error()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sess.sensorCache[sensorID] = value
		outcomes[sensorID] = value
	}

	sess.lastDetails = map[string]interface{}{"sensor_results": outcomes}
	return firstErr
}

func (e *Executor) runAssertScreen(ctx context.Context, tr transport.DeviceTransport, step flowmodel.Step) error {
	attempts, spacing := assertPollParams()
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := waitCtx(ctx, spacing); err != nil {
				return err
			}
		}
		shell, err := tr.Shell(ctx, "dumpsys window | grep mCurrentFocus")
		if err != nil {
			lastErr = ferrors.NewTransportError("assert_screen", err)
			continue
		}
		if containsActivity(shell, step.ExpectedActivity) {
			return nil
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return &ferrors.ScreenValidationError{Screen: step.ExpectedActivity}
}

func (e *Executor) runAssertElement(ctx context.Context, tr transport.DeviceTransport, step flowmodel.Step) error {
	attempts, spacing := assertPollParams()
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := waitCtx(ctx, spacing); err != nil {
				return err
			}
		}
		elements, err := tr.GetUIElements(ctx, false)
		if err != nil {
			continue
		}
		if result := element.Find(step.ExpectedElement, elements); result.Found {
			return nil
		}
	}
	return &ferrors.ElementNotFoundError{Description: "assert_element"}
}

// defaultAssertAttempts/defaultAssertTimeoutSeconds mirror a NavigationBlock
// with max_navigation_attempts/navigation_timeout_seconds at their defaults,
// for assert steps that carry no navigation block of their own.
const (
	defaultAssertAttempts       = 3
	defaultAssertTimeoutSeconds = 9
)

func assertPollParams() (attempts int, spacing time.Duration) {
	nb := flowmodel.NavigationBlock{MaxNavigationAttempts: defaultAssertAttempts, NavigationTimeoutSeconds: defaultAssertTimeoutSeconds}
	return defaultAssertAttempts, time.Duration(nb.AttemptSpacing() * float64(time.Second))
}

func containsActivity(shellOutput, activity string) bool {
	if activity == "" {
		return true
	}
	return strings.Contains(shellOutput, activity)
}
