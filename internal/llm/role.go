package llm

import "fmt"

// Role identifies the author of a conversation turn as it arrives on the
// wire: the human user or the model itself.
type Role string

const (
	RoleUser Role = "user"
	RoleLLM  Role = "llm"
)

// invalidRoleError signals a history turn whose role is outside the
// recognized set. It is never coerced to a default.
type invalidRoleError struct{ role string }

func (e invalidRoleError) Error() string {
	return fmt.Sprintf("role=%s is undefined, supported are: (%q, %q)", e.role, RoleUser, RoleLLM)
}

// ErrInvalidRole constructs an invalid-role error for the given wire value.
func ErrInvalidRole(role string) error { return invalidRoleError{role: role} }

// IsInvalidRole reports whether err indicates an unrecognized turn role.
func IsInvalidRole(err error) bool {
	_, ok := err.(invalidRoleError)
	return ok
}

// ParseRole validates a wire role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleLLM:
		return Role(s), nil
	}
	return "", invalidRoleError{role: s}
}

// ChatTurn is one message of a conversation. Immutable once constructed.
type ChatTurn struct {
	Role    Role
	Content string
}

// History is the conversation so far, oldest turn first. Prompt assembly
// only ever reads the most recent turns (see Params.ContextDepth); older
// turns are dropped, not summarized.
type History []ChatTurn

// Tail returns the suffix of at most n turns.
func (h History) Tail(n int) History {
	if n <= 0 {
		return nil
	}
	if len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}
