package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"campus-backend/internal/platform/apierr"
)

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"
)

// RequireAuth: Authorization: Bearer <token> を検証して context に sub/role を詰める
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			apierr.Abort(c, apierr.Unauthenticated("missing Authorization header"))
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			apierr.Abort(c, apierr.Unauthenticated("invalid Authorization header"))
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			apierr.Abort(c, apierr.Unauthenticated("empty token"))
			return
		}

		caller, err := ParseToken(secret, tokenStr)
		if err != nil {
			apierr.Abort(c, apierr.Unauthenticated("invalid token"))
			return
		}

		SetCaller(c, caller)
		c.Next()
	}
}

// RequireRole: RequireAuth の後ろに置く
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			apierr.Abort(c, apierr.Unauthenticated("not authenticated"))
			return
		}
		if !caller.HasRole(roles...) {
			apierr.Abort(c, apierr.Forbidden("forbidden"))
			return
		}
		c.Next()
	}
}

func SetCaller(c *gin.Context, caller Caller) {
	c.Set(CtxUserIDKey, caller.UserID)
	c.Set(CtxRoleKey, caller.Role)
}

func CallerFrom(c *gin.Context) (Caller, bool) {
	id := c.GetString(CtxUserIDKey)
	role, _ := c.Get(CtxRoleKey)
	r, ok := role.(Role)
	if id == "" || !ok {
		return Caller{}, false
	}
	return Caller{UserID: id, Role: r}, true
}
