package domain

// UniqueIDPrefix returns the unique ID prefix for an elevated role, or "" for user
func UniqueIDPrefix(r Role) string {
	switch r {
	case RoleAdmin:
		return "AD"
	case RoleSuperAdmin:
		return "SA"
	case RoleSuperuser:
		return "SU"
	}
	return ""
}

// AuthorizeRoleChange decides whether actor may move a target from current to next.
//
//   - a superuser target is immutable
//   - superuser actors may do anything else
//   - super_admin actors may only move targets between user and admin
//   - everyone else is denied
//
// Allowed no-op changes return ErrAlreadyInThatState.
func AuthorizeRoleChange(actor, current, next Role) error {
	if !next.Valid() {
		return ErrInvalidRole
	}
	if current == RoleSuperuser {
		return ErrRoleChangeDenied
	}

	switch actor {
	case RoleSuperuser:
	case RoleSuperAdmin:
		if !isBasicRole(current) || !isBasicRole(next) {
			return ErrRoleChangeDenied
		}
	default:
		return ErrRoleChangeDenied
	}

	if current == next {
		return ErrAlreadyInThatState
	}
	return nil
}

func isBasicRole(r Role) bool {
	return r == RoleUser || r == RoleAdmin
}

// AuthorizeSessionTermination decides whether actor may log out targetID's devices.
// Only super_admin and superuser may target someone else.
func AuthorizeSessionTermination(actorRole Role, actorID, targetID string) error {
	if actorID == targetID {
		return nil
	}
	if actorRole == RoleSuperAdmin || actorRole == RoleSuperuser {
		return nil
	}
	return ErrSessionTerminationDenied
}
