package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/printdesk/internal/auth/domain"
)

type Service interface {
	Authorize(ctx context.Context, identity authdomain.Identity, shopID snowflake.ID, object, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidShop   = errors.New("invalid_shop")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
