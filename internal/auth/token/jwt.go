// Package token verifies HS256 bearer tokens issued by the identity provider.
package token

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/printdesk/internal/auth/domain"
	"github.com/smallbiznis/printdesk/internal/clock"
	"github.com/smallbiznis/printdesk/internal/config"
)

const leeway = 30 * time.Second

type Claims struct {
	Role   string `json:"role,omitempty"`
	ShopID string `json:"shop_id,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

func NewVerifier(cfg config.Config, clk clock.Clock) domain.TokenVerifier {
	return &Verifier{
		secret: []byte(strings.TrimSpace(cfg.AuthJWTSecret)),
		issuer: strings.TrimSpace(cfg.AuthJWTIssuer),
		clock:  clk,
	}
}

func (v *Verifier) Verify(_ context.Context, raw string) (domain.Identity, error) {
	if len(v.secret) == 0 {
		return domain.Identity{}, domain.ErrAuthNotConfigured
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Identity{}, domain.ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if v.clock != nil {
		opts = append(opts, jwt.WithTimeFunc(v.clock.Now))
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, domain.ErrTokenExpired
		}
		return domain.Identity{}, domain.ErrInvalidToken
	}
	if !parsed.Valid {
		return domain.Identity{}, domain.ErrInvalidToken
	}
	return identityFromClaims(claims)
}

func identityFromClaims(claims *Claims) (domain.Identity, error) {
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return domain.Identity{}, domain.ErrInvalidToken
	}

	role := domain.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	switch role {
	case "":
		role = domain.RoleCustomer
	case domain.RoleCustomer, domain.RoleOperator, domain.RoleOwner:
	default:
		return domain.Identity{}, domain.ErrInvalidToken
	}

	identity := domain.Identity{Subject: subject, Role: role}
	if shop := strings.TrimSpace(claims.ShopID); shop != "" {
		id, err := snowflake.ParseString(shop)
		if err != nil || id <= 0 {
			return domain.Identity{}, domain.ErrInvalidToken
		}
		identity.ShopID = id
	}
	if role != domain.RoleCustomer && identity.ShopID == 0 {
		return domain.Identity{}, domain.ErrInvalidToken
	}
	return identity, nil
}

// Issue signs a token for identity. It backs local tooling and tests; the
// production issuer lives outside this service.
func Issue(secret string, identity domain.Identity, issuer string, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		Role: string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	if identity.ShopID != 0 {
		claims.ShopID = identity.ShopID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
