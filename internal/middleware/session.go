package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionCookieName = "DF_WIZARD_SESSION"
	sessionContextKey = "session_id"
)

// Session makes sure every request carries a wizard session id. A missing
// or malformed cookie gets a fresh id.
func Session(secure bool, maxAge int) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(SessionCookieName)
		if err != nil || uuid.Validate(sid) != nil {
			sid = uuid.New().String()
		}
		// refresh on every request so the cookie lives as long as the stored state
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookieName, sid, maxAge, "/", "", secure, true)
		c.Set(sessionContextKey, sid)
		c.Next()
	}
}

// SessionID returns the id attached by Session.
func SessionID(c *gin.Context) string {
	return c.GetString(sessionContextKey)
}
