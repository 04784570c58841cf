package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github/martinmaurice/llmgate/internal/server/respond"
	"github/martinmaurice/llmgate/pkg/auth"
)

const (
	accountIDHeader     = "X-Account-ID"
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "

	AccountIDContextKey            = "accountId"
	IsAuthenticatedContextValueKey = "isUserAuthenticated"
)

// AuthenticationMiddleware resolves the account of the caller. With a token
// secret only a valid bearer token authenticates and the account id header is
// ignored. Callers without credentials are keyed by client ip.
func AuthenticationMiddleware(tokenSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenSecret != "" {
			header := c.GetHeader(authorizationHeader)
			if header != "" {
				if !strings.HasPrefix(header, bearerPrefix) {
					respond.Error(c, fmt.Errorf("%w: expected a bearer token", auth.ErrInvalidToken))
					return
				}

				accountID, err := auth.AccountIDFromToken(strings.TrimPrefix(header, bearerPrefix), tokenSecret)
				if err != nil {
					respond.Error(c, err)
					return
				}

				c.Set(AccountIDContextKey, accountID)
				c.Set(IsAuthenticatedContextValueKey, true)
				c.Next()
				return
			}
		} else if accountID := strings.TrimSpace(c.GetHeader(accountIDHeader)); accountID != "" {
			c.Set(AccountIDContextKey, accountID)
			c.Set(IsAuthenticatedContextValueKey, true)
			c.Next()
			return
		}

		c.Set(AccountIDContextKey, fmt.Sprintf("anonymous:%s", c.ClientIP()))
		c.Set(IsAuthenticatedContextValueKey, false)
		c.Next()
	}
}

func AccountID(c *gin.Context) string {
	return c.GetString(AccountIDContextKey)
}

// IsAuthenticated reports whether the account came from a token or the
// account id header rather than the anonymous fallback.
func IsAuthenticated(c *gin.Context) bool {
	return c.GetBool(IsAuthenticatedContextValueKey)
}
