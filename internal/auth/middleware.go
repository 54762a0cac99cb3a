package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/roomchat/pkg/log"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/response"
)

// RequireAuth rejects requests without a valid credential and stores the
// identity in the gin context and the request logger.
func RequireAuth(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		identity, err := v.Verify(ctx, ExtractToken(c.Request))
		if err != nil {
			l := log.Ctx(ctx)
			l.Debug().Err(err).Msg("request rejected")
			response.Unauthorized(c, "missing or invalid credentials")
			return
		}

		c.Set(log.FieldUserID, identity.UserID)
		c.Set(log.FieldUsername, identity.Username)
		c.Request = c.Request.WithContext(log.With(ctx, log.FieldUserID, identity.UserID))

		c.Next()
	}
}

// GetUserID extracts the user ID set by RequireAuth.
func GetUserID(c *gin.Context) string {
	return c.GetString(log.FieldUserID)
}

// GetUsername extracts the username set by RequireAuth.
func GetUsername(c *gin.Context) string {
	return c.GetString(log.FieldUsername)
}
