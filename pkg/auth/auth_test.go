package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/newtron-network/flowmesh/pkg/ferrors"
)

func TestContextChaining(t *testing.T) {
	ctx := NewContext().
		WithDevice("S1").
		WithFlow("f1").
		WithResource("sensor:batt")

	if ctx.StableDeviceID != "S1" {
		t.Errorf("StableDeviceID = %q", ctx.StableDeviceID)
	}
	if ctx.FlowID != "f1" {
		t.Errorf("FlowID = %q", ctx.FlowID)
	}
	if ctx.Resource != "sensor:batt" {
		t.Errorf("Resource = %q", ctx.Resource)
	}
}

func testPolicy() *Policy {
	return &Policy{
		SuperUsers: []string{"admin", "root"},
		UserGroups: map[string][]string{
			"operators": {"alice", "bob"},
			"viewers":   {"eve"},
		},
		Permissions: map[string][]string{
			"all":            {"operators"},
			string(PermFlowView):   {"operators", "viewers"},
			string(PermFlowEdit):   {"operators"},
			string(PermQueuePurge): {"direct-user"},
		},
	}
}

func TestCheckerSuperUser(t *testing.T) {
	checker := NewChecker(testPolicy())
	checker.SetUser("admin")

	if err := checker.Check(PermFlowEdit, nil); err != nil {
		t.Errorf("superuser should be allowed: %v", err)
	}
	if !checker.IsSuperUser() {
		t.Error("admin should be superuser")
	}
}

func TestCheckerGroupAndAllPermission(t *testing.T) {
	checker := NewChecker(testPolicy())

	t.Run("user in allowed group", func(t *testing.T) {
		checker.SetUser("alice")
		if err := checker.Check(PermFlowView, nil); err != nil {
			t.Errorf("alice (operators) should have flow.view: %v", err)
		}
	})

	t.Run("user with all via group", func(t *testing.T) {
		checker.SetUser("bob")
		if err := checker.Check(PermQueuePurge, nil); err != nil {
			t.Errorf("bob (operators with all) should have queue.purge: %v", err)
		}
	})

	t.Run("user without permission", func(t *testing.T) {
		checker.SetUser("eve")
		if err := checker.Check(PermFlowEdit, nil); err == nil {
			t.Error("eve (viewers) should not have flow.edit")
		}
	})
}

func TestCheckerDirectUserPermission(t *testing.T) {
	checker := NewChecker(testPolicy())
	checker.SetUser("direct-user")

	if err := checker.Check(PermQueuePurge, nil); err != nil {
		t.Errorf("direct user permission should work: %v", err)
	}
}

func TestCheckerPermissionError(t *testing.T) {
	checker := NewChecker(testPolicy())
	checker.SetUser("eve")

	ctx := NewContext().WithFlow("f1").WithDevice("S1")
	err := checker.Check(PermFlowEdit, ctx)
	if err == nil {
		t.Fatal("expected error")
	}

	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %T", err)
	}
	if permErr.User != "eve" {
		t.Errorf("User = %q", permErr.User)
	}
	if permErr.Permission != PermFlowEdit {
		t.Errorf("Permission = %q", permErr.Permission)
	}
	if !errors.Is(err, ferrors.ErrForbidden) {
		t.Error("should unwrap to ferrors.ErrForbidden")
	}
	if !strings.Contains(err.Error(), "f1") || !strings.Contains(err.Error(), "S1") {
		t.Errorf("message should mention flow and device context: %q", err.Error())
	}
}

func TestCheckerListPermissions(t *testing.T) {
	checker := NewChecker(testPolicy())

	checker.SetUser("admin")
	if perms := checker.ListPermissions(); len(perms) != 1 || perms[0] != PermAll {
		t.Errorf("superuser should list [all], got %v", perms)
	}

	checker.SetUser("eve")
	perms := checker.ListPermissions()
	has := make(map[Permission]bool)
	for _, p := range perms {
		has[p] = true
	}
	if !has[PermFlowView] {
		t.Error("eve should have flow.view")
	}
	if has[PermFlowEdit] {
		t.Error("eve should not have flow.edit")
	}
}

func TestCheckerGetUserGroups(t *testing.T) {
	checker := NewChecker(testPolicy())

	if groups := checker.GetUserGroups("alice"); len(groups) != 1 || groups[0] != "operators" {
		t.Errorf("alice groups = %v, want [operators]", groups)
	}
	if groups := checker.GetUserGroups("unknown"); len(groups) != 0 {
		t.Errorf("unknown user should have no groups, got %v", groups)
	}
}

func TestCheckerCurrentUser(t *testing.T) {
	checker := NewChecker(testPolicy())

	if checker.CurrentUser() == "" {
		t.Error("CurrentUser should not be empty after NewChecker")
	}
	checker.SetUser("test-user")
	if checker.CurrentUser() != "test-user" {
		t.Errorf("CurrentUser() = %q, want test-user", checker.CurrentUser())
	}
}

func TestCheckerNoPermissionsDefined(t *testing.T) {
	checker := NewChecker(&Policy{})
	checker.SetUser("anyone")

	if err := checker.Check(PermFlowEdit, nil); err == nil {
		t.Error("should be denied when no permissions defined")
	}
}

func TestLoadPolicyMissingFileIsEmpty(t *testing.T) {
	p, err := LoadPolicy("/nonexistent/policy.yaml")
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if len(p.SuperUsers) != 0 || len(p.Permissions) != 0 {
		t.Errorf("expected empty policy for missing file, got %+v", p)
	}
}

func TestPermissionErrorContextVariations(t *testing.T) {
	t.Run("nil context", func(t *testing.T) {
		err := &PermissionError{User: "alice", Permission: PermFlowEdit}
		msg := err.Error()
		if strings.Contains(msg, "for flow") || strings.Contains(msg, "on device") {
			t.Error("should not mention flow/device when context is nil")
		}
	})

	t.Run("context with flow only", func(t *testing.T) {
		err := &PermissionError{User: "alice", Permission: PermFlowEdit, Context: &Context{FlowID: "f1"}}
		if !strings.Contains(err.Error(), "f1") {
			t.Error("should mention flow id")
		}
	})
}
