// Package domain contains the caller identity carried by bearer tokens.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
	RoleOwner    Role = "owner"
)

// Identity is the authenticated caller. ShopID is set for shop staff only.
type Identity struct {
	Subject string
	Role    Role
	ShopID  snowflake.ID
}

// IsStaff reports whether the identity belongs to shop staff.
func (i Identity) IsStaff() bool {
	return (i.Role == RoleOperator || i.Role == RoleOwner) && i.ShopID != 0
}

type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (Identity, error)
}

var (
	ErrMissingToken      = errors.New("missing_token")
	ErrInvalidToken      = errors.New("invalid_token")
	ErrTokenExpired      = errors.New("token_expired")
	ErrAuthNotConfigured = errors.New("auth_not_configured")
)

type ctxKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(ctxKey{}).(Identity)
	return identity, ok && identity.Subject != ""
}
