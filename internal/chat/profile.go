package chat

// Role identifies the privilege level of an authenticated user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// forbiddenCommands maps a role to the command names it may not invoke.
// Authorization is a denylist: a command absent here is allowed for the role.
var forbiddenCommands = map[Role]map[string]struct{}{
	RoleUser: {"kick": {}},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	}
	return false
}

// Allows reports whether the role may invoke the named command.
func (r Role) Allows(command string) bool {
	denied, ok := forbiddenCommands[r]
	if !ok {
		return true
	}
	_, forbidden := denied[command]
	return !forbidden
}

// UserProfile is the immutable identity produced by successful authentication.
// A profile is held by exactly one session at a time and does not outlive it.
type UserProfile struct {
	Username string
	Role     Role
}
