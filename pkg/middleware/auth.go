package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carried by access tokens. The subject is the owner id.
type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Secret      []byte
	Issuer      string
	PublicPaths []string
}

// Authentication validates bearer tokens. Tokens are issued elsewhere.
type Authentication struct {
	config AuthConfig
	parser *jwt.Parser
	logger *zap.SugaredLogger
}

// NewAuthentication creates a new authentication middleware
func NewAuthentication(config AuthConfig, logger *zap.SugaredLogger) *Authentication {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	return &Authentication{
		config: config,
		parser: jwt.NewParser(opts...),
		logger: logger,
	}
}

// Middleware returns the gin authentication middleware
func (a *Authentication) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.isPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		claims, err := a.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			a.logger.Warnw("authentication failed",
				"path", c.Request.URL.Path,
				"client_ip", GetClientIP(c),
				"error", err,
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
				"code":  "unauthorized",
			})
			return
		}

		c.Set(ContextKeyOwner, claims.Subject)
		c.Set(ContextKeyAdmin, claims.Admin)
		c.Next()
	}
}

// RequireAdmin rejects requests whose token lacks the admin claim
func (a *Authentication) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			a.logger.Warnw("admin access denied", "owner", Owner(c), "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin privileges required",
				"code":  "forbidden",
			})
			return
		}
		c.Next()
	}
}

// Authenticate parses and validates an Authorization header value
func (a *Authentication) Authenticate(header string) (*Claims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := a.parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return a.config.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

func (a *Authentication) isPublicPath(path string) bool {
	for _, p := range a.config.PublicPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
