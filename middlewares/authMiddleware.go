package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/maisonops/boutique_backend/models"
	"github.com/maisonops/boutique_backend/utils"
)

// AuthMiddleware resolves the Authorization bearer header. A value that
// validates as one of our JWTs authenticates the request directly from its
// claims; anything else is copied into the token header so the session
// middleware can look it up in Redis. Requests without a bearer header pass
// through untouched.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := strings.TrimSpace(c.Request.Header.Get("Authorization"))
		if auth == "" || !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			c.Next()
			return
		}
		bearer := strings.TrimSpace(auth[len("Bearer "):])
		if bearer == "" {
			c.Next()
			return
		}

		validated, err := utils.JwtValidate(bearer)
		if err != nil || !validated.Valid {
			// Not a JWT we issued; treat it as an opaque session token.
			if c.Request.Header.Get("token") == "" {
				c.Request.Header.Set("token", bearer)
			}
			c.Next()
			return
		}

		claims, ok := validated.Claims.(*utils.JwtCustomClaim)
		if !ok || claims.Username == "" {
			c.Next()
			return
		}

		ctx := utils.SetUsernameInContext(c.Request.Context(), claims.Username)
		ctx = utils.SetUserIdInContext(ctx, claims.ID)
		ctx = utils.SetIsAdminInContext(ctx, claims.Role == models.UserRoleAdmin)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
