package authorization

import (
	"context"
	"sync"
	"testing"

	auditdomain "github.com/smallbiznis/printdesk/internal/audit/domain"
	authdomain "github.com/smallbiznis/printdesk/internal/auth/domain"
	"github.com/smallbiznis/printdesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu      sync.Mutex
	entries []auditdomain.Entry
}

func (r *recorder) Record(_ context.Context, entry auditdomain.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func newService(t *testing.T) (Service, *recorder) {
	t.Helper()

	enforcer, err := NewEnforcer(testutil.OpenDB(t))
	require.NoError(t, err)
	rec := &recorder{}
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer, Recorder: rec}), rec
}

func TestAuthorizeStaffWithinOwnShop(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	operator := authdomain.Identity{Subject: "op-1", Role: authdomain.RoleOperator, ShopID: 7}
	owner := authdomain.Identity{Subject: "own-1", Role: authdomain.RoleOwner, ShopID: 7}

	assert.NoError(t, svc.Authorize(ctx, operator, 7, ObjectOrder, ActionOrderTransition))
	assert.NoError(t, svc.Authorize(ctx, owner, 7, ObjectOrder, ActionOrderTransition))
	assert.NoError(t, svc.Authorize(ctx, owner, 7, ObjectAuditLog, ActionAuditLogView))

	assert.ErrorIs(t, svc.Authorize(ctx, operator, 7, ObjectAuditLog, ActionAuditLogView), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, operator, 8, ObjectOrder, ActionOrderTransition), ErrForbidden)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.entries, 2)
	assert.Equal(t, auditdomain.ActionAuthorizationDenied, rec.entries[0].Action)
}

func TestAuthorizeRejectsCustomers(t *testing.T) {
	svc, _ := newService(t)

	customer := authdomain.Identity{Subject: "user-1", Role: authdomain.RoleCustomer}
	assert.ErrorIs(t, svc.Authorize(context.Background(), customer, 7, ObjectOrder, ActionOrderTransition), ErrForbidden)
}

func TestAuthorizeFollowsRoleChanges(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	promoted := authdomain.Identity{Subject: "staff-1", Role: authdomain.RoleOwner, ShopID: 7}
	require.NoError(t, svc.Authorize(ctx, promoted, 7, ObjectAuditLog, ActionAuditLogView))

	demoted := promoted
	demoted.Role = authdomain.RoleOperator
	assert.ErrorIs(t, svc.Authorize(ctx, demoted, 7, ObjectAuditLog, ActionAuditLogView), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, demoted, 7, ObjectOrder, ActionOrderTransition))
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	operator := authdomain.Identity{Subject: "op-1", Role: authdomain.RoleOperator, ShopID: 7}

	assert.ErrorIs(t, svc.Authorize(ctx, authdomain.Identity{}, 7, ObjectOrder, ActionOrderView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, operator, 0, ObjectOrder, ActionOrderView), ErrInvalidShop)
	assert.ErrorIs(t, svc.Authorize(ctx, operator, 7, "", ActionOrderView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, operator, 7, ObjectOrder, " "), ErrInvalidAction)
}

func TestNewEnforcerSeedsIdempotently(t *testing.T) {
	db := testutil.OpenDB(t)

	_, err := NewEnforcer(db)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, 5)
}
