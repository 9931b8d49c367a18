package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// SubprocessTransport drives a device through a local binary (e.g. an adb
// client) invoked once per call, the second of the three duck-typed
// transport flavors generalized by the DeviceTransport trait.
type SubprocessTransport struct {
	binary string
	serial string
}

// NewSubprocessTransport builds a transport that shells out to binary,
// scoping every invocation to the given device serial.
func NewSubprocessTransport(binary, serial string) *SubprocessTransport {
	return &SubprocessTransport{binary: binary, serial: serial}
}

func (t *SubprocessTransport) run(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-s", t.serial}, args...)
	cmd := exec.CommandContext(ctx, t.binary, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s %v: %w: %s", t.binary, args, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Connect verifies the device serial is reachable.
func (t *SubprocessTransport) Connect(ctx context.Context) (bool, error) {
	out, err := t.run(ctx, "get-state")
	if err != nil {
		return false, err
	}
	return bytes.Contains(out, []byte("device")), nil
}

// Shell runs cmd through the subprocess binary's shell passthrough.
func (t *SubprocessTransport) Shell(ctx context.Context, cmd string) (string, error) {
	out, err := t.run(ctx, "shell", cmd)
	return string(out), err
}

func (t *SubprocessTransport) Tap(ctx context.Context, x, y int) error {
	_, err := t.run(ctx, "shell", "input", "tap", itoa(x), itoa(y))
	return err
}

func (t *SubprocessTransport) Swipe(ctx context.Context, x1, y1, x2, y2, durationMS int) error {
	_, err := t.run(ctx, "shell", "input", "swipe", itoa(x1), itoa(y1), itoa(x2), itoa(y2), itoa(durationMS))
	return err
}

func (t *SubprocessTransport) Keyevent(ctx context.Context, code int) error {
	_, err := t.run(ctx, "shell", "input", "keyevent", itoa(code))
	return err
}

func (t *SubprocessTransport) Text(ctx context.Context, s string) error {
	_, err := t.run(ctx, "shell", "input", "text", s)
	return err
}

func (t *SubprocessTransport) LaunchApp(ctx context.Context, pkg string) (bool, error) {
	out, err := t.run(ctx, "shell", "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return false, err
	}
	return len(out) > 0, nil
}

func (t *SubprocessTransport) Screenshot(ctx context.Context) ([]byte, error) {
	return t.run(ctx, "exec-out", "screencap", "-p")
}

func (t *SubprocessTransport) GetUIElements(ctx context.Context, boundsOnly bool) ([]flowmodel.UIElement, error) {
	args := []string{"shell", "uiautomator", "dump-json"}
	if boundsOnly {
		args = append(args, "--bounds-only")
	}
	out, err := t.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var elements []flowmodel.UIElement
	if err := json.Unmarshal(out, &elements); err != nil {
		return nil, fmt.Errorf("parsing ui elements: %w", err)
	}
	return elements, nil
}

func (t *SubprocessTransport) Close() error { return nil }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
