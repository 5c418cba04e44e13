package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/credgate/credgate/internal/util"
)

const (
	SessionUserID = "user_id"
)

// RequireUser authenticates the management surface. Browser sessions carry
// the user ID in the session cookie; API clients present a bearer JWT
// (HS256) whose subject is the user ID.
func RequireUser(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if userID, ok := session.Get(SessionUserID).(string); ok && userID != "" {
			c.Set(util.ContextKeyUserID, userID)
			c.Next()
			return
		}

		if userID := userIDFromBearer(c, jwtSecret); userID != "" {
			c.Set(util.ContextKeyUserID, userID)
			c.Next()
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "unauthorized",
			"error_description": "Authentication required",
		})
		c.Abort()
	}
}

// userIDFromBearer validates an HS256 bearer token and returns its subject
func userIDFromBearer(c *gin.Context, jwtSecret string) string {
	header := c.GetHeader("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" || jwtSecret == "" {
		return ""
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return ""
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return subject
}

// GetUserID returns the authenticated user ID set by RequireUser
func GetUserID(c *gin.Context) string {
	return util.GetUserIDFromContext(c)
}
