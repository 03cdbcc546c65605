package signaling

import "strings"

// Role is the part a connection plays in a room. Wire aliases are resolved
// once, at the edge, by ParseRole.
type Role int

const (
	RoleUnassigned Role = iota
	RoleSender          // screen-sharing device ("sender" or "android" on the wire)
	RoleReceiver        // display ("receiver" or "windows" on the wire)
)

var roleAliases = map[string]Role{
	"sender":   RoleSender,
	"android":  RoleSender,
	"receiver": RoleReceiver,
	"windows":  RoleReceiver,
}

// ParseRole resolves a wire role name, case-insensitively. It reports false
// for anything that is not a sender or receiver alias.
func ParseRole(s string) (Role, bool) {
	role, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]
	return role, ok
}

// String returns the canonical wire name.
func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	default:
		return "unassigned"
	}
}

// Opposite returns the counterpart role. Unassigned has no counterpart.
func (r Role) Opposite() Role {
	switch r {
	case RoleSender:
		return RoleReceiver
	case RoleReceiver:
		return RoleSender
	default:
		return RoleUnassigned
	}
}

func (r Role) valid() bool {
	return r == RoleSender || r == RoleReceiver
}
