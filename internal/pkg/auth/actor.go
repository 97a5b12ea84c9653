// internal/pkg/auth/actor.go
package auth

import (
	"context"
	"net/http"
	"strings"

	"lensmart/internal/pkg/apperr"
)

// 身份由上游网关完成认证后通过请求头传入
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

type Role string

const (
	RoleOptician Role = "OPTICIAN"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) Valid() bool { return r == RoleOptician || r == RoleAdmin }

// Actor 是发起当前请求的调用方
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// CanActFor 管理员可代任何眼镜店操作，眼镜店只能操作自己
func (a Actor) CanActFor(opticianID string) bool {
	return a.IsAdmin() || (a.Role == RoleOptician && a.UserID == opticianID)
}

// FromRequest 读取身份请求头，缺失或角色非法返回 Unauthorized
func FromRequest(r *http.Request) (Actor, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	role := Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
	if id == "" || !role.Valid() {
		return Actor{}, apperr.Unauthorized("missing or invalid caller identity")
	}
	return Actor{UserID: id, Role: role}, nil
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
