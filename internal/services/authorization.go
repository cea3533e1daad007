package services

import "github.com/markdave123-py/docrag/internal/models"

// Action names an operation a user may attempt.
type Action string

const (
	ActionUploadDocument Action = "document:upload"
	ActionReadDocument   Action = "document:read"
	ActionUseRAG         Action = "rag:use"
	ActionReadUser       Action = "user:read"
	ActionUpdateUser     Action = "user:update"
	ActionUpdateUserRole Action = "user:update_role"
)

func isStaff(u *models.User) bool {
	return u.Role == models.RoleAdmin || u.Role == models.RoleModerator
}

// Authorize reports whether user may perform action. resource is nil for
// collection-level checks, or the *models.Document / *models.User being
// acted on. Inactive users and unknown roles are denied everything.
func Authorize(user *models.User, action Action, resource any) bool {
	if user == nil || !user.IsActive || !user.Role.Valid() {
		return false
	}

	switch action {
	case ActionUploadDocument, ActionUseRAG:
		return true

	case ActionReadDocument:
		switch r := resource.(type) {
		case nil:
			return true
		case *models.Document:
			return r != nil && (isStaff(user) || r.UploaderID == user.ID)
		}
		return false

	case ActionReadUser:
		switch r := resource.(type) {
		case nil:
			return isStaff(user)
		case *models.User:
			return r != nil && (isStaff(user) || r.ID == user.ID)
		}
		return false

	case ActionUpdateUser:
		r, ok := resource.(*models.User)
		return ok && r != nil && (user.Role == models.RoleAdmin || r.ID == user.ID)

	case ActionUpdateUserRole:
		return user.Role == models.RoleAdmin
	}
	return false
}
