// Package adminauth authenticates the separate admin-facing caller
// identity for the operational surface (/admin/channels/*,
// /admin/load-balancer/*), distinct from the client-facing API-key
// bearer tokens internal/apikey issues.
package adminauth

import (
	"fmt"

	"github.com/golang-jwt/jwt"

	"github.com/llmweaver/gateway/internal/logging"
)

// JWTAuthenticator validates admin bearer tokens as HMAC-signed JWTs,
// satisfying internal/httpapi's AdminAuthenticator interface.
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator builds an authenticator over a shared HMAC secret.
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

// AuthenticateAdmin parses and validates rawToken, rejecting anything
// not signed with the configured secret, expired, or not-yet-valid.
func (a *JWTAuthenticator) AuthenticateAdmin(rawToken string) bool {
	if rawToken == "" {
		return false
	}
	token, err := jwt.ParseWithClaims(rawToken, &jwt.StandardClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		logging.SysLogf("admin jwt rejected: %v", err)
		return false
	}
	return token.Valid
}
