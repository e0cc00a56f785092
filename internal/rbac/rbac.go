package rbac

type Role string
type Action string

const (
	RoleViewer  Role = "viewer"
	RoleAnalyst Role = "analyst"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead   Action = "read"
	ActionTriage Action = "triage"
	ActionManage Action = "manage"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleAnalyst:
		return action == ActionRead || action == ActionTriage
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleAnalyst, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
