// Package transport defines the narrow DeviceTransport boundary the flow
// engine consumes, and provides the concrete implementations: direct SSH,
// local subprocess, and a server-proxied variant, following the teacher's
// three-flavor remote-access pattern from pkg/device/tunnel.go.
package transport

import (
	"context"

	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// DeviceTransport is the interface the core depends on to reach a device.
// Every method takes ctx for cancellation; SSHTransport's Connect and
// Screenshot do not observe it (Connect is bounded by the dial timeout).
type DeviceTransport interface {
	Connect(ctx context.Context) (bool, error)
	Shell(ctx context.Context, cmd string) (string, error)
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2, durationMS int) error
	Keyevent(ctx context.Context, code int) error
	Text(ctx context.Context, s string) error
	LaunchApp(ctx context.Context, pkg string) (bool, error)
	Screenshot(ctx context.Context) ([]byte, error)
	GetUIElements(ctx context.Context, boundsOnly bool) ([]flowmodel.UIElement, error)
	Close() error
}
