package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/printdesk/internal/audit/domain"
	authdomain "github.com/smallbiznis/printdesk/internal/auth/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrder    = "order"
	ObjectAuditLog = "audit_log"
)

const (
	ActionOrderView       = "order.view"
	ActionOrderTransition = "order.transition"
	ActionAuditLogView    = "audit_log.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Recorder auditdomain.Recorder `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	recorder auditdomain.Recorder
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		recorder: p.Recorder,
	}
}

// Authorize checks that identity may perform action on object within shopID.
// Staff are only ever granted rights inside the shop named by their token.
func (s *ServiceImpl) Authorize(ctx context.Context, identity authdomain.Identity, shopID snowflake.ID, object, action string) error {
	subjectID := strings.TrimSpace(identity.Subject)
	if subjectID == "" {
		return ErrInvalidActor
	}
	if shopID <= 0 {
		return ErrInvalidShop
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	if !identity.IsStaff() || identity.ShopID != shopID {
		s.denied(ctx, identity, shopID, object, action)
		return ErrForbidden
	}

	subject := fmt.Sprintf("user:%s", subjectID)
	roleName := fmt.Sprintf("role:%s", identity.Role)
	domain := fmt.Sprintf("shop:%s", shopID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.denied(ctx, identity, shopID, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link for subject in domain; a role
// change in the token replaces the stored link.
func (s *ServiceImpl) ensureGrouping(subject, roleName, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) denied(ctx context.Context, identity authdomain.Identity, shopID snowflake.ID, object, action string) {
	s.log.Info("authorization denied",
		zap.String("subject", identity.Subject),
		zap.String("role", string(identity.Role)),
		zap.String("shop_id", shopID.String()),
		zap.String("action", action),
	)
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    identity.Subject,
		Action:     auditdomain.ActionAuthorizationDenied,
		TargetType: "authorization",
		TargetID:   "capability",
		Metadata: map[string]any{
			"object":  object,
			"action":  action,
			"role":    string(identity.Role),
			"shop_id": shopID.String(),
		},
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Operators run the print queue.
		{"role:operator", ObjectOrder, ActionOrderView},
		{"role:operator", ObjectOrder, ActionOrderTransition},

		{"role:owner", ObjectOrder, ActionOrderView},
		{"role:owner", ObjectOrder, ActionOrderTransition},
		{"role:owner", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
