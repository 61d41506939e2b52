package session

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// FromAccessToken builds a Session from the access token's claims without
// verifying the signature. Verification is the API's job; the client only
// needs the identity and role for display and gating.
func FromAccessToken(rawToken string) (*Session, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.New("[FromAccessToken] empty access token")
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "[FromAccessToken] ParseUnverified")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("[FromAccessToken] error extracting claims")
	}

	sub, _ := claims.GetSubject()
	email, _ := claims["email"].(string)
	metadata, _ := claims["user_metadata"].(map[string]any)

	s := &Session{
		UserID:      sub,
		Email:       email,
		AccessToken: rawToken,
		User: User{
			ID:       sub,
			Email:    email,
			Metadata: metadata,
		},
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	s.Role = RoleOf(&s.User)
	return s, nil
}

// opaqueSession is used when the access token is not a JWT.
func opaqueSession(rawToken string, expiry time.Time) *Session {
	return &Session{
		AccessToken: rawToken,
		ExpiresAt:   expiry,
		Role:        RoleStaff,
	}
}
