package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/weiawesome/wes-io-live/roomchat/pkg/jwt"
)

// ErrUnauthenticated is returned for missing, invalid or expired credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

const (
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	TokenQueryKey = "token"
)

// Identity is the authenticated user behind a request or connection.
type Identity struct {
	UserID   string
	Username string
}

// Validator verifies a bearer credential.
type Validator interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// JWTValidator verifies HS256 access tokens.
type JWTValidator struct {
	manager *jwt.Manager
}

func NewJWTValidator(manager *jwt.Manager) *JWTValidator {
	return &JWTValidator{manager: manager}
}

func (v *JWTValidator) Verify(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := v.manager.ValidateToken(credential)
	if err != nil {
		return nil, errors.Join(ErrUnauthenticated, err)
	}

	username := claims.Username
	if username == "" {
		username = claims.UserID
	}
	return &Identity{UserID: claims.UserID, Username: username}, nil
}

// ExtractToken returns the bearer token of r. Browsers cannot set headers on
// websocket upgrades, so the token query parameter is accepted as well.
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get(AuthHeaderKey); header != "" {
		if strings.HasPrefix(header, BearerPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
		}
		return ""
	}
	return r.URL.Query().Get(TokenQueryKey)
}
