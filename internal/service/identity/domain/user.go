// internal/service/identity/domain/user.go
package domain

import "lensmart/internal/pkg/auth"

// User 是外部身份系统同步过来的只读用户目录条目
type User struct {
	ID   string
	Name string
	Role auth.Role
}
