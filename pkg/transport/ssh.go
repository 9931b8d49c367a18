package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// SSHTransport drives a device over a remote shell reached via SSH,
// adapted from the teacher's SSHTunnel (used there to reach Redis inside a
// SONiC container; used here to reach an Android device's shell).
type SSHTransport struct {
	addr     string
	user     string
	password string
	timeout  time.Duration

	client *ssh.Client
}

// NewSSHTransport builds a transport for host:port, dialing lazily on Connect.
func NewSSHTransport(addr, user, password string, timeout time.Duration) *SSHTransport {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SSHTransport{addr: addr, user: user, password: password, timeout: timeout}
}

// Connect dials the SSH endpoint. Host key verification is intentionally
// skipped: Android debug bridges over SSH rarely carry a stable host key.
func (t *SSHTransport) Connect(ctx context.Context) (bool, error) {
	config := &ssh.ClientConfig{
		User:            t.user,
		Auth:            []ssh.AuthMethod{ssh.Password(t.password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         t.timeout,
	}
	client, err := ssh.Dial("tcp", t.addr, config)
	if err != nil {
		return false, fmt.Errorf("ssh dial %s: %w", t.addr, err)
	}
	t.client = client
	return true, nil
}

// Shell runs cmd on the device and returns its combined output.
func (t *SSHTransport) Shell(ctx context.Context, cmd string) (string, error) {
	if t.client == nil {
		return "", fmt.Errorf("ssh transport not connected")
	}
	session, err := t.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{string(out), err}
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return r.out, fmt.Errorf("ssh exec %q: %w", cmd, r.err)
		}
		return r.out, nil
	}
}

// Tap sends an input tap event via `input tap`.
func (t *SSHTransport) Tap(ctx context.Context, x, y int) error {
	_, err := t.Shell(ctx, fmt.Sprintf("input tap %d %d", x, y))
	return err
}

// Swipe sends an input swipe event via `input swipe`.
func (t *SSHTransport) Swipe(ctx context.Context, x1, y1, x2, y2, durationMS int) error {
	_, err := t.Shell(ctx, fmt.Sprintf("input swipe %d %d %d %d %d", x1, y1, x2, y2, durationMS))
	return err
}

// Keyevent sends an input keyevent.
func (t *SSHTransport) Keyevent(ctx context.Context, code int) error {
	_, err := t.Shell(ctx, fmt.Sprintf("input keyevent %d", code))
	return err
}

// Text injects literal text via `input text`.
func (t *SSHTransport) Text(ctx context.Context, s string) error {
	_, err := t.Shell(ctx, fmt.Sprintf("input text %q", s))
	return err
}

// LaunchApp starts an app's default activity via monkey.
func (t *SSHTransport) LaunchApp(ctx context.Context, pkg string) (bool, error) {
	out, err := t.Shell(ctx, fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", pkg))
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// Screenshot captures a PNG frame via screencap.
func (t *SSHTransport) Screenshot(ctx context.Context) ([]byte, error) {
	if t.client == nil {
		return nil, fmt.Errorf("ssh transport not connected")
	}
	session, err := t.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()
	out, err := session.Output("screencap -p")
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return out, nil
}

// GetUIElements requests the already-parsed element list from a helper
// resident on the device, which emits JSON. Parsing of raw UI-XML is out of
// scope (spec §1 Non-goals); the helper is assumed to emit flowmodel.UIElement.
func (t *SSHTransport) GetUIElements(ctx context.Context, boundsOnly bool) ([]flowmodel.UIElement, error) {
	cmd := "uiautomator dump-json"
	if boundsOnly {
		cmd += " --bounds-only"
	}
	out, err := t.Shell(ctx, cmd)
	if err != nil {
		return nil, err
	}
	var elements []flowmodel.UIElement
	if err := json.Unmarshal([]byte(out), &elements); err != nil {
		return nil, fmt.Errorf("parsing ui elements: %w", err)
	}
	return elements, nil
}

// Close tears down the SSH connection.
func (t *SSHTransport) Close() error {
	if t.client == nil {
		return nil
	}
	return t.client.Close()
}
