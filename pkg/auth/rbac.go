package auth

import "fmt"

// 权限常量
const (
	PermissionReadPreferences  = "preferences:read"
	PermissionWritePreferences = "preferences:write"
	// 访问其他用户的偏好
	PermissionManageAnyUser = "preferences:any_user"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionReadPreferences,
		PermissionWritePreferences,
	},
	RoleAdmin: {
		PermissionReadPreferences,
		PermissionWritePreferences,
		PermissionManageAnyUser,
	},
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查调用方是否有指定权限
func CheckPermission(id Identity, permission string) error {
	if !HasPermission(id.Role, permission) {
		return &PermissionDeniedError{UserID: id.UserID, Permission: permission}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("insufficient permissions: %s", e.Permission)
}

// ValidateUserID 校验路径中的用户与 token 用户一致，管理员除外
func ValidateUserID(id Identity, pathUserID string) error {
	if id.UserID == pathUserID || HasPermission(id.Role, PermissionManageAnyUser) {
		return nil
	}
	return &UserIDMismatchError{TokenUserID: id.UserID, PathUserID: pathUserID}
}

// UserIDMismatchError 表示 user_id 不匹配的错误
type UserIDMismatchError struct {
	TokenUserID string
	PathUserID  string
}

func (e *UserIDMismatchError) Error() string {
	return "user id in path does not match token"
}
