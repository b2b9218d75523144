package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// IdentityHeader carries the already-authenticated principal set by the
// boundary in front of this subsystem. Session issuance itself is out of
// scope here.
const IdentityHeader = "X-Drive-User"

const identityKey = "driveUser"

// RequireIdentity rejects requests without a caller identity and stashes the
// username in the gin context for controllers.
func RequireIdentity(c *gin.Context) {
	user := c.GetHeader(IdentityHeader)
	if user == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing caller identity"})
		return
	}
	c.Set(identityKey, user)
	c.Next()
}

// CurrentUser returns the identity stored by RequireIdentity.
func CurrentUser(c *gin.Context) string {
	return c.GetString(identityKey)
}
