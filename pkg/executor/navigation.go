package executor

import (
	"context"
	"time"

	"github.com/newtron-network/flowmesh/pkg/element"
	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
	"github.com/newtron-network/flowmesh/pkg/transport"
)

// runAction executes one Action: if it carries a navigation block, that
// runs first (skipped if a single-shot check shows the flow already
// navigated there), then the action's own operation, then its children if
// it is a macro (spec §4.4).
func (e *Executor) runAction(ctx context.Context, sess *session, tr transport.DeviceTransport, action *flowmodel.Action) error {
	if action.Navigation != nil {
		if err := e.runNavigationBlock(ctx, sess, tr, action.Navigation); err != nil {
			return err
		}
		if action.Navigation.ReturnHomeAfter {
			defer tr.Keyevent(ctx, keycodeHome)
		}
	}
	return e.runActionOp(ctx, tr, action)
}

// runActionOp performs an Action's own operation, without its navigation
// block (already handled by the caller).
func (e *Executor) runActionOp(ctx context.Context, tr transport.DeviceTransport, action *flowmodel.Action) error {
	p := action.Parameters
	switch action.Kind {
	case flowmodel.ActionTap:
		return tr.Tap(ctx, p.X, p.Y)
	case flowmodel.ActionSwipe:
		return tr.Swipe(ctx, p.X, p.Y, p.X2, p.Y2, p.DurationMS)
	case flowmodel.ActionText:
		return tr.Text(ctx, p.Text)
	case flowmodel.ActionKeyevent:
		return tr.Keyevent(ctx, p.Keycode)
	case flowmodel.ActionLaunchApp:
		launchCtx, cancel := context.WithTimeout(ctx, maxLaunchWait)
		defer cancel()
		_, err := tr.LaunchApp(launchCtx, p.Package)
		return err
	case flowmodel.ActionDelay:
		return waitCtx(ctx, time.Duration(p.DelayMS)*time.Millisecond)
	case flowmodel.ActionMacro:
		for i := range action.Children {
			if err := e.runActionOp(ctx, tr, &action.Children[i]); err != nil {
				if action.StopOnError {
					return err
				}
			}
		}
		return nil
	default:
		return &ferrors.InternalError{Op: "runActionOp", Err: nil}
	}
}

// runNavigationBlock resolves nb.TargetApp, runs any prerequisite actions,
// walks navigation_sequence, and validates via validation_element, retrying
// up to max_navigation_attempts with a go_home + relaunch between attempts.
// If a single-shot check against the current screen already satisfies
// validation_element, the whole block is skipped (spec §4.4).
func (e *Executor) runNavigationBlock(ctx context.Context, sess *session, tr transport.DeviceTransport, nb *flowmodel.NavigationBlock) error {
	if nb.ValidationElement != nil {
		if elements, err := tr.GetUIElements(ctx, false); err == nil {
			if result := element.Find(nb.ValidationElement, elements); result.Found {
				return nil
			}
		}
	}

	if nb.TargetApp != "" {
		launchCtx, cancel := context.WithTimeout(ctx, maxLaunchWait)
		if _, err := tr.LaunchApp(launchCtx, nb.TargetApp); err != nil {
			cancel()
			return ferrors.NewTransportError("launch_app", err)
		}
		cancel()
	}

	for _, actionID := range nb.PrerequisiteActionIDs {
		action, err := e.deps.Actions.Get(sess.flow.StableDeviceID, actionID)
		if err != nil {
			return err
		}
		if err := e.runAction(ctx, sess, tr, action); err != nil {
			return err
		}
	}

	attempts := nb.MaxNavigationAttempts
	if attempts < 1 {
		attempts = 1
	}
	spacing := time.Duration(nb.AttemptSpacing() * float64(time.Second))

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := tr.Keyevent(ctx, keycodeHome); err != nil {
				return ferrors.NewTransportError("go_home", err)
			}
			if nb.TargetApp != "" {
				launchCtx, cancel := context.WithTimeout(ctx, maxLaunchWait)
				_, err := tr.LaunchApp(launchCtx, nb.TargetApp)
				cancel()
				if err != nil {
					return ferrors.NewTransportError("launch_app", err)
				}
			}
		}

		for _, ns := range nb.NavigationSequence {
			if err := e.runNavStep(ctx, tr, ns); err != nil {
				return err
			}
		}

		if err := waitCtx(ctx, spacing); err != nil {
			return err
		}

		elements, err := tr.GetUIElements(ctx, false)
		if err != nil {
			continue
		}
		if result := element.Find(nb.ValidationElement, elements); result.Found {
			return nil
		}
	}

	return &ferrors.NavigationExhaustedError{Attempts: attempts, Screen: nb.TargetApp}
}

func (e *Executor) runNavStep(ctx context.Context, tr transport.DeviceTransport, ns flowmodel.NavStep) error {
	switch ns.Kind {
	case flowmodel.NavTap:
		return tr.Tap(ctx, ns.X, ns.Y)
	case flowmodel.NavSwipe:
		return tr.Swipe(ctx, ns.X, ns.Y, ns.X2, ns.Y2, ns.DurationMS)
	case flowmodel.NavWait:
		return waitCtx(ctx, time.Duration(ns.WaitMS)*time.Millisecond)
	case flowmodel.NavKeyevent:
		return tr.Keyevent(ctx, ns.Keycode)
	case flowmodel.NavText:
		return tr.Text(ctx, ns.Text)
	default:
		return &ferrors.InternalError{Op: "runNavStep", Err: nil}
	}
}
