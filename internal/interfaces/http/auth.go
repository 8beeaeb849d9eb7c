package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/garyjia/invoice-ledger/internal/application/scope"
)

// AuthConfig configures bearer token verification
type AuthConfig struct {
	Secret string

	// Issuer is checked against the iss claim when set
	Issuer string
}

// Claims is the bearer token payload. sub is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Companies []string `json:"companies,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

var errMissingToken = errors.New("missing bearer token")

// authMiddleware verifies the HS256 bearer token and puts the resulting actor into the request context
func authMiddleware(cfg AuthConfig, resolver *scope.Resolver) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		actor, err := actorFromToken(parser, cfg.Secret, resolver, c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		c.Request = c.Request.WithContext(scope.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func actorFromToken(parser *jwt.Parser, secret string, resolver *scope.Resolver, header string) (*scope.Actor, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errMissingToken
	}

	claims := &Claims{}
	_, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid token subject: %w", err)
	}

	companies := make([]uuid.UUID, 0, len(claims.Companies))
	for _, s := range claims.Companies {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid company claim %q: %w", s, err)
		}
		companies = append(companies, id)
	}

	return resolver.NewActor(userID, companies, claims.Roles), nil
}

// requestActor returns the actor placed by authMiddleware
func requestActor(c *gin.Context) *scope.Actor {
	actor, _ := scope.ActorFromContext(c.Request.Context())
	return actor
}
