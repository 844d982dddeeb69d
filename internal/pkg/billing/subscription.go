package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
)

// SwitchPlan quotes the prorated price of moving to newPlanID. It does not
// change any state; the switch happens when the new subscription is paid.
func (s *Service) SwitchPlan(ctx context.Context, adminID, newPlanID string) (*ProrationQuote, error) {
	if strings.TrimSpace(newPlanID) == "" {
		return nil, newError(KindValidation, nil, "newPlanId is required")
	}
	_, org, err := s.resolveAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	next, err := s.catalog.Get(ctx, newPlanID)
	if err != nil {
		return nil, err
	}
	if !next.IsActive {
		return nil, newError(KindValidation, nil, "plan %s is not available", next.Name)
	}

	current, err := s.currentPlan(ctx, org)
	if err != nil {
		return nil, err
	}
	sub := org.Billing.Subscription
	if current == nil {
		sub = models.Subscription{}
	} else if current.ID == next.ID {
		return nil, newError(KindValidation, nil, "organization is already on the %s plan", next.Name)
	}

	return QuoteProration(current, sub, next, s.clock()), nil
}

// currentPlan returns the plan of a live subscription, or nil.
func (s *Service) currentPlan(ctx context.Context, org *models.Organization) (*models.Plan, error) {
	b := org.Billing
	if b.PlanType != models.PlanTypeSubscription || !b.Subscription.Status.IsLive() || b.CurrentPlanID == nil {
		return nil, nil
	}
	plan, err := s.repos.Plan.GetByID(ctx, *b.CurrentPlanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, newError(KindInternal, err, "could not load current plan")
	}
	return plan, nil
}

// CancelSubscription ends the organization's subscription now, or at the end
// of the paid period when immediate is false.
func (s *Service) CancelSubscription(ctx context.Context, adminID string, immediate bool) (*CancelResult, error) {
	_, org, err := s.resolveAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repos.Organization.CancelSubscription(ctx, org.ID, immediate, s.clock())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNoActiveSubscription):
			return nil, newError(KindValidation, err, "no active subscription to cancel")
		case errors.Is(err, repository.ErrNotFound):
			return nil, newError(KindNotFound, err, "organization not found")
		}
		return nil, newError(KindInternal, err, "could not cancel subscription")
	}
	log.Infof("[Billing] Subscription cancelled: org=%s immediate=%t", org.ID, immediate)

	if s.notifier != nil {
		if err := s.notifier.NotifySubscriptionCancelled(ctx, org.ID, immediate); err != nil {
			log.Warnf("[Billing] Could not queue cancellation notice for org %s: %v", org.ID, err)
		}
	}

	return &CancelResult{
		Immediate:    immediate,
		Subscription: updated.Billing.Subscription,
		PlanType:     updated.Billing.PlanType,
	}, nil
}
