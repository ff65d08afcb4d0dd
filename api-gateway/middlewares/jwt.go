package middlewares

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/auth"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// Context keys read by the forwarder.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// ParseAccessToken validates an HMAC signed access token issued by the auth
// service and returns its claims.
func ParseAccessToken(tokenString string, secretKey []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Ensure the token method is HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if typ, _ := claims["typ"].(string); typ != "access" {
		return nil, fmt.Errorf("invalid token type")
	}
	// MapClaims validation skips a missing exp
	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return nil, fmt.Errorf("token has no expiry")
	}
	return claims, nil
}

// JWTMiddleware requires a bearer access token and stores the caller's id and
// role for the forwarder.
func JWTMiddleware(secretKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
			c.Abort()
			return
		}

		// Remove "Bearer " prefix from token string
		if !strings.HasPrefix(tokenString, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			c.Abort()
			return
		}

		claims, err := ParseAccessToken(tokenString[7:], secretKey)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		sub, _ := claims["sub"].(string)
		if sub == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has no subject"})
			c.Abort()
			return
		}
		role, _ := claims["role"].(string)
		if role == "" {
			role = auth.RoleCustomer
		}

		c.Set(CtxUserID, sub)
		c.Set(CtxRole, strings.ToLower(role))
		c.Next()
	}
}

// AdminRoleMiddleware lets staff and admins through. It must run after JWTMiddleware.
func AdminRoleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(CtxRole)
		if !(auth.Identity{Role: role}).IsOperator() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
