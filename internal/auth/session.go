package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenHeader carries the token returned when a workspace session
// is opened. Websocket clients pass it as the token query parameter.
const SessionTokenHeader = "X-Session-Token"

var ErrSessionMismatch = errors.New("token belongs to another session")

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// IssueSessionToken signs a token bound to sessionID. A zero ttl never
// expires.
func (a *Authenticator) IssueSessionToken(sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			Subject:  sessionID,
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// VerifySessionToken checks that token was issued for sessionID.
func (a *Authenticator) VerifySessionToken(token, sessionID string) error {
	var claims sessionClaims
	if err := a.parse(token, &claims); err != nil {
		return err
	}
	if claims.SessionID != sessionID {
		return ErrSessionMismatch
	}
	return nil
}

// RequireSession rejects requests whose session token does not match the
// :param path parameter.
func (a *Authenticator) RequireSession(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(SessionTokenHeader)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "backend.auth.no_token"})
			return
		}
		if err := a.VerifySessionToken(token, c.Param(param)); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "backend.auth.invalid_token"})
			return
		}
		c.Next()
	}
}
