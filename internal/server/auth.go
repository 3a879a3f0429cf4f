// Bearer token authentication for mutating endpoints.

package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errUnauthorized   = errors.New("unauthorized")
	errInvalidAuthHdr = errors.New("invalid authorization header")
	errInvalidToken   = errors.New("invalid token")
	errInvalidSubject = errors.New("invalid subject in token")
)

// Authenticator validates HS256 bearer tokens. A nil *Authenticator accepts
// every request as anonymous.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator returns nil when secret is empty.
func NewAuthenticator(secret string) *Authenticator {
	if secret == "" {
		return nil
	}
	return &Authenticator{secret: []byte(secret)}
}

// Subject returns the token subject of r, or "" when authentication is
// disabled.
func (a *Authenticator) Subject(r *http.Request) (string, error) {
	if a == nil {
		return "", nil
	}
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errUnauthorized
	}
	scheme, tokenString, ok := strings.Cut(authHeader, " ")
	if !ok || scheme != "Bearer" || tokenString == "" {
		return "", errInvalidAuthHdr
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errInvalidSubject
	}
	return sub, nil
}

// NewToken signs a token for subject valid for ttl. A ttl of 0 issues a token
// without expiry.
func NewToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
