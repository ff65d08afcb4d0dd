package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// The gateway authenticates callers and forwards identity in these headers.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	ctxIdentity = "identity"
)

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

type Identity struct {
	UserID string
	Role   string
}

// IsOperator reports whether the caller may act on orders it does not own.
func (i Identity) IsOperator() bool {
	return i.Role == RoleAdmin || i.Role == RoleStaff
}

// RequireIdentity rejects requests without X-User-ID. A missing role means customer.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole)))
		if role == "" {
			role = RoleCustomer
		}
		c.Set(ctxIdentity, Identity{UserID: userID, Role: role})
		c.Next()
	}
}

// RequireOperator must run after RequireIdentity.
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := FromContext(c)
		if !ok || !id.IsOperator() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
