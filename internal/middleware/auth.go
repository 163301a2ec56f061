package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/soaringjerry/coachdesk/internal/logger"
	"github.com/soaringjerry/coachdesk/internal/services"
)

const actorKey = "actor"

type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens. Tokens are issued elsewhere; SignToken
// exists for the CLI and tests.
type Authenticator struct {
	secret []byte
	issuer string
	log    *logger.Logger
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string, log *logger.Logger) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		log:    log.With("middleware", "Authenticator"),
		now:    time.Now,
	}, nil
}

func (a *Authenticator) SignToken(subject, name string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	now := a.now()
	claims := Claims{Name: name, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Parse(tok string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(*jwt.Token) (interface{}, error) { return a.secret, nil }, opts...)
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return c, nil
}

// RequireAuth rejects requests without a valid bearer token and tags the request
// context with the token subject as the acting operator.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c)
		if tok == "" {
			abortUnauthorized(c, "missing or invalid token")
			return
		}
		claims, err := a.Parse(tok)
		if err != nil {
			a.log.Debug("token rejected", "path", c.FullPath(), "error", err)
			abortUnauthorized(c, "missing or invalid token")
			return
		}
		c.Set(actorKey, claims.Subject)
		c.Request = c.Request.WithContext(services.WithActor(c.Request.Context(), claims.Subject))
		c.Next()
	}
}

// Actor returns the subject RequireAuth accepted, if any.
func Actor(c *gin.Context) (string, bool) {
	return c.GetString(actorKey), c.GetString(actorKey) != ""
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"message": msg, "code": "unauthorized"},
	})
}
