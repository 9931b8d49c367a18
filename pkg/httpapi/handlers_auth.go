package httpapi

import (
	"net/http"

	"github.com/newtron-network/flowmesh/pkg/auth"
)

// whoAmIResponse is what flowctl's `auth whoami` renders.
type whoAmIResponse struct {
	User        string            `json:"user"`
	SuperUser   bool              `json:"super_user"`
	Groups      []string          `json:"groups"`
	Permissions []auth.Permission `json:"permissions"`
	Enforced    bool              `json:"enforced"`
}

// handleWhoAmI reports the calling user's resolved permissions. With no
// Checker configured (the default), enforcement is off and every permission
// is implicitly granted, which the response surfaces as enforced=false
// rather than PermAll to avoid implying a policy exists.
func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	if s.Checker == nil {
		writeJSON(w, http.StatusOK, whoAmIResponse{User: user, Enforced: false})
		return
	}
	writeJSON(w, http.StatusOK, whoAmIResponse{
		User:        user,
		SuperUser:   s.Checker.CheckUser(user, auth.PermAll, nil) == nil,
		Groups:      s.Checker.GetUserGroups(user),
		Permissions: permissionsFor(s.Checker, user),
		Enforced:    true,
	})
}

// permissionsFor lists every standard permission a user holds, grouped in
// the same order as auth.StandardCategories so flowctl can render them
// category by category.
func permissionsFor(checker *auth.Checker, user string) []auth.Permission {
	var out []auth.Permission
	for _, category := range auth.StandardCategories {
		for _, perm := range category.Permissions {
			if checker.CheckUser(user, perm, auth.NewContext()) == nil {
				out = append(out, perm)
			}
		}
	}
	return out
}
