package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rmitchellscott/pdfdesk/internal/config"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
)

const cookieName = "auth_token"

// Authenticator checks the optional API key and login cookie, and issues
// workspace session tokens.
type Authenticator struct {
	cfg    config.AuthConfig
	secret []byte
	logins *IPLimiter
}

// New builds an Authenticator. A random signing key is generated when
// JWT_SECRET is unset, so tokens do not survive a restart.
func New(cfg config.AuthConfig) *Authenticator {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(err)
		}
	}
	return &Authenticator{cfg: cfg, secret: secret, logins: NewIPLimiter(5)}
}

// Enabled reports whether requests need credentials.
func (a *Authenticator) Enabled() bool { return a.cfg.Enabled() }

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *Authenticator) LoginHandler(c *gin.Context) {
	// rate limit by client IP
	if !a.logins.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "backend.auth.too_many_attempts"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "backend.auth.invalid_request", "detail": validationErrorMessage(err)})
		return
	}

	if a.cfg.Username == "" || a.cfg.Password == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backend.auth.not_configured"})
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(a.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(a.cfg.Password)) == 1
	if !userOK || !passOK {
		logging.Warnf("[AUTH] Failed login from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "backend.auth.invalid_credentials"})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": req.Username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	})
	tokenString, err := token.SignedString(a.secret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backend.auth.token_error"})
		return
	}

	// Set HTTP-only cookie
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cookieName, tokenString, 24*3600, "/", "", !a.cfg.AllowInsecure, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *Authenticator) LogoutHandler(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cookieName, "", -1, "/", "", !a.cfg.AllowInsecure, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// validAPIKey checks the Authorization bearer token and X-API-Key header.
func (a *Authenticator) validAPIKey(c *gin.Context) bool {
	if a.cfg.APIKey == "" {
		return false
	}
	want := []byte(a.cfg.APIKey)
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(h, "Bearer ")), want) == 1 {
			return true
		}
	}
	if k := c.GetHeader("X-API-Key"); k != "" {
		return subtle.ConstantTimeCompare([]byte(k), want) == 1
	}
	return false
}

func (a *Authenticator) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}

func (a *Authenticator) validCookie(c *gin.Context) bool {
	tokenString, err := c.Cookie(cookieName)
	if err != nil {
		return false
	}
	return a.parse(tokenString, jwt.MapClaims{}) == nil
}

// Middleware requires an API key or login cookie when auth is configured.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() || a.validAPIKey(c) || a.validCookie(c) {
			c.Next()
			return
		}
		if _, err := c.Cookie(cookieName); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "backend.auth.no_token"})
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "backend.auth.invalid_token"})
	}
}

func (a *Authenticator) CheckAuthHandler(c *gin.Context) {
	authenticated := !a.Enabled() || a.validAPIKey(c) || a.validCookie(c)
	c.JSON(http.StatusOK, gin.H{
		"authenticated": authenticated,
		"authRequired":  a.Enabled(),
		"loginEnabled":  a.cfg.Username != "" && a.cfg.Password != "",
	})
}
