// internal/pkg/httpapi/middleware.go
package httpapi

import (
	"net/http"

	"lensmart/internal/pkg/auth"
)

// Authenticated 解析调用方身份并放入 context，失败直接返回 401
func Authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := auth.FromRequest(r)
		if err != nil {
			WriteError(r.Context(), w, err)
			return
		}
		next(w, r.WithContext(auth.WithActor(r.Context(), actor)))
	}
}

// AdminOnly 在 Authenticated 之上要求 ADMIN 角色
func AdminOnly(next http.HandlerFunc) http.HandlerFunc {
	return Authenticated(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())
		if !actor.IsAdmin() {
			Forbidden(r.Context(), w, "admin role required")
			return
		}
		next(w, r)
	})
}
