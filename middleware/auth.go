package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bharatinvest/config"
	"github.com/cppla/bharatinvest/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
)

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(ctx *gin.Context) (string, bool) {
	parts := strings.SplitN(ctx.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// AuthRequired ensures the request is authenticated via JWT. The event stream cannot set
// headers from a browser, so a token query parameter is accepted as well.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString, ok := BearerToken(ctx)
		if !ok {
			tokenString = strings.TrimSpace(ctx.Query("token"))
		}
		if tokenString == "" {
			if ctx.GetHeader("Authorization") == "" {
				utils.Error(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			} else {
				utils.Error(ctx, http.StatusUnauthorized, 40102, "invalid authorization header format")
			}
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}

		if utils.IsRevoked(claims) {
			utils.Error(ctx, http.StatusUnauthorized, 40104, "token revoked")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Next()
	}
}

// IsAdminUsername checks whether given username is configured as an admin (case-insensitive)
func IsAdminUsername(username string) bool {
	uname := strings.TrimSpace(username)
	if uname == "" {
		return false
	}
	for _, u := range config.Get().AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), uname) {
			return true
		}
	}
	return false
}

// AdminRequired lets only configured admins through. It must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		uname, _ := ctx.Get(ContextUsernameKey)
		name, _ := uname.(string)
		if !IsAdminUsername(name) {
			utils.Error(ctx, http.StatusForbidden, 40310, "admin only")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
