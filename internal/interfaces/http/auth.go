package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/garyjia/uxone/internal/domain/entity"
)

const actorContextKey = "uxone.actor"

// Claims are the JWT claims identifying a caller
type Claims struct {
	jwt.RegisteredClaims
	Department string `json:"department,omitempty"`
	Role       string `json:"role"`
}

// TokenAuthenticator verifies HS256 bearer tokens
type TokenAuthenticator struct {
	secret []byte
	issuer string
}

// NewTokenAuthenticator creates an authenticator for the shared secret.
// An empty issuer accepts tokens from any issuer.
func NewTokenAuthenticator(secret, issuer string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for actor, valid for ttl
func (a *TokenAuthenticator) Issue(actor entity.Actor, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Department: string(actor.Department),
		Role:       string(actor.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate parses a token and maps its claims to an actor
func (a *TokenAuthenticator) Authenticate(token string) (entity.Actor, error) {
	if len(a.secret) == 0 {
		return entity.Actor{}, errors.New("jwt secret not configured")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return entity.Actor{}, err
	}
	if !parsed.Valid {
		return entity.Actor{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return entity.Actor{}, errors.New("subject claim required")
	}

	role, err := entity.ParseRole(claims.Role)
	if err != nil {
		return entity.Actor{}, fmt.Errorf("role claim: %w", err)
	}
	actor := entity.Actor{UserID: claims.Subject, Role: role}
	if claims.Department != "" {
		dept, err := entity.ParseDepartment(claims.Department)
		if err != nil {
			return entity.Actor{}, fmt.Errorf("department claim: %w", err)
		}
		actor.Department = dept
	}
	return actor, nil
}

// Middleware rejects requests without a valid bearer token and stores the actor
func (a *TokenAuthenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: "authentication required"})
			return
		}

		actor, err := a.Authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: "invalid token"})
			return
		}

		c.Set(actorContextKey, actor)
		c.Next()
	}
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func actorFromContext(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorContextKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}
