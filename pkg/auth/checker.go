package auth

import (
	"fmt"
	"os"
	"os/user"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/flowmesh/pkg/ferrors"
)

// Policy is the on-disk authorization policy: superusers bypass every check,
// user_groups maps a group name to its member usernames, and permissions
// maps a permission (or "all") to the groups/usernames allowed to exercise it.
type Policy struct {
	SuperUsers  []string            `yaml:"super_users"`
	UserGroups  map[string][]string `yaml:"user_groups"`
	Permissions map[string][]string `yaml:"permissions"`
}

// LoadPolicy reads a Policy from a YAML file. A missing file yields an empty
// policy rather than an error, matching config's permissive-default style.
func LoadPolicy(path string) (*Policy, error) {
	p := &Policy{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse auth policy %s: %w", path, err)
	}
	return p, nil
}

// Checker validates a username's permissions against a Policy.
type Checker struct {
	policy      *Policy
	currentUser string
}

// NewChecker builds a Checker for the OS user running the process.
func NewChecker(policy *Policy) *Checker {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return &Checker{policy: policy, currentUser: username}
}

// SetUser overrides the current user, for tests or an impersonation flag.
func (c *Checker) SetUser(username string) { c.currentUser = username }

// CurrentUser returns the active username.
func (c *Checker) CurrentUser() string { return c.currentUser }

// Check verifies the current user holds a permission.
func (c *Checker) Check(permission Permission, ctx *Context) error {
	return c.CheckUser(c.currentUser, permission, ctx)
}

// CheckUser verifies a specific user holds a permission.
func (c *Checker) CheckUser(username string, permission Permission, ctx *Context) error {
	if c.isSuperUser(username) {
		return nil
	}
	if c.checkPermissionMap(username, permission) {
		return nil
	}
	return &PermissionError{User: username, Permission: permission, Context: ctx}
}

// IsSuperUser reports whether the current user bypasses all checks.
func (c *Checker) IsSuperUser() bool { return c.isSuperUser(c.currentUser) }

func (c *Checker) isSuperUser(username string) bool {
	return slices.Contains(c.policy.SuperUsers, username)
}

func (c *Checker) checkPermissionMap(username string, permission Permission) bool {
	if groups, ok := c.policy.Permissions["all"]; ok && c.userInGroups(username, groups) {
		return true
	}
	groups, ok := c.policy.Permissions[string(permission)]
	if !ok {
		return false
	}
	return c.userInGroups(username, groups)
}

func (c *Checker) userInGroups(username string, allowedGroups []string) bool {
	for _, group := range allowedGroups {
		if group == username {
			return true
		}
		if members, ok := c.policy.UserGroups[group]; ok && slices.Contains(members, username) {
			return true
		}
	}
	return false
}

// ListPermissions returns every permission the current user holds (PermAll
// alone for a super user).
func (c *Checker) ListPermissions() []Permission {
	if c.IsSuperUser() {
		return []Permission{PermAll}
	}
	var out []Permission
	for perm, groups := range c.policy.Permissions {
		if c.userInGroups(c.currentUser, groups) {
			out = append(out, Permission(perm))
		}
	}
	return out
}

// GetUserGroups returns every group a username belongs to.
func (c *Checker) GetUserGroups(username string) []string {
	var out []string
	for group, members := range c.policy.UserGroups {
		if slices.Contains(members, username) {
			out = append(out, group)
		}
	}
	return out
}

// PermissionError represents a permission denial.
type PermissionError struct {
	User       string
	Permission Permission
	Context    *Context
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied: user %q does not have %q permission", e.User, e.Permission)
	if e.Context != nil {
		if e.Context.FlowID != "" {
			msg += fmt.Sprintf(" for flow %q", e.Context.FlowID)
		}
		if e.Context.StableDeviceID != "" {
			msg += fmt.Sprintf(" on device %q", e.Context.StableDeviceID)
		}
	}
	return msg
}

func (e *PermissionError) Unwrap() error { return ferrors.ErrForbidden }
