package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/firmbill/internal/cache"
	entitlementdomain "github.com/smallbiznis/firmbill/internal/entitlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultSubscriptionTTL = 45 * time.Second
	defaultLimitsTTL       = 10 * time.Minute
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Catalog entitlementdomain.Catalog
}

type Service struct {
	log     *zap.Logger
	catalog entitlementdomain.Catalog

	subscriptions cache.Cache[string, entitlementdomain.Subscription]
	limits        cache.Cache[string, []entitlementdomain.ResourceLimit]
}

func NewService(p ServiceParam) entitlementdomain.Service {
	return &Service{
		log:     p.Log.Named("entitlement.service"),
		catalog: p.Catalog,

		subscriptions: cache.NewTTLCache[string, entitlementdomain.Subscription](),
		limits:        cache.NewTTLCache[string, []entitlementdomain.ResourceLimit](),
	}
}

func (s *Service) ActiveSubscription(ctx context.Context, firmID snowflake.ID) (entitlementdomain.Subscription, error) {
	if firmID == 0 {
		return entitlementdomain.Subscription{}, entitlementdomain.ErrInvalidFirm
	}

	if cached, ok := s.subscriptions.Get(firmID.String()); ok {
		return cached, nil
	}

	sub, err := s.catalog.GetActiveSubscription(ctx, firmID)
	if err != nil {
		return entitlementdomain.Subscription{}, err
	}
	if sub.PlanID == 0 {
		return entitlementdomain.Subscription{}, entitlementdomain.ErrSubscriptionNotFound
	}

	s.subscriptions.Set(firmID.String(), sub, defaultSubscriptionTTL)
	return sub, nil
}

func (s *Service) ResolveLimits(ctx context.Context, firmID snowflake.ID) ([]entitlementdomain.ResourceLimit, error) {
	sub, err := s.ActiveSubscription(ctx, firmID)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.limits.Get(sub.PlanID.String()); ok {
		return cached, nil
	}

	limits, err := s.catalog.GetResourceLimits(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	s.limits.Set(sub.PlanID.String(), limits, defaultLimitsTTL)
	return limits, nil
}
