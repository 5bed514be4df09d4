package billing

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/InvoiceFox/app/models"
)

// minProviderTrialLead is the shortest trial end the provider accepts on a new
// checkout. Shorter remaining trials start billing immediately.
const minProviderTrialLead = 48 * time.Hour

// CreateCheckout issues a hosted checkout session for the account's paid tier.
// The subscription row is not touched; the provider's completion event links it.
func (s *Service) CreateCheckout(ctx context.Context, accountID uint, in CheckoutInput) (*CheckoutResult, error) {
	const op = "billing.CreateCheckout"

	if err := validate.Struct(in); err != nil {
		return nil, newError(KindValidation, op, err, "successUrl and cancelUrl must be absolute urls")
	}
	sub, err := s.repo.GetSubscriptionByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if sub.Tier == models.TierFree {
		return nil, newError(KindInvalidState, op, ErrInvalidState, "free accounts have no paid plan to set up")
	}
	if sub.ExternalSubscriptionID != "" && sub.Status != models.SubscriptionStatusCanceled {
		return nil, newError(KindInvalidState, op, ErrInvalidState, "a provider subscription already exists, use the billing portal")
	}
	if s.provider == nil {
		return nil, newError(KindTransient, op, ErrNotConfigured, "billing provider not configured")
	}
	priceID := s.cfg.PriceID(sub.Tier)
	if priceID == "" {
		return nil, newError(KindTransient, op, ErrNotConfigured, "no price configured for tier "+sub.Tier)
	}

	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	req := CheckoutRequest{
		AccountID:  accountID,
		Tier:       sub.Tier,
		PriceID:    priceID,
		CustomerID: sub.ExternalCustomerID,
		Email:      account.Email,
		SuccessURL: in.SuccessURL,
		CancelURL:  in.CancelURL,
	}
	now := s.now()
	if sub.TrialEnd != nil && sub.TrialEnd.Sub(now) >= minProviderTrialLead {
		req.TrialEnd = sub.TrialEnd
	}

	session, err := s.provider.CreateCheckoutSession(ctx, req)
	s.metrics.ObserveProviderRequest("checkout", err)
	if err != nil {
		return nil, err
	}

	record := &models.CheckoutSession{
		SessionID: session.ID,
		AccountID: accountID,
		Tier:      sub.Tier,
		PriceID:   priceID,
	}
	if err := s.repo.CreateCheckoutSession(ctx, record); err != nil {
		// completion still correlates through the session's client reference
		log.Warnf("[Billing] Could not record checkout session %s for account %d: %v", session.ID, accountID, err)
	}

	log.Infof("[Billing] Issued checkout session %s for account %d (tier=%s)", session.ID, accountID, sub.Tier)
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// CreatePortal issues a billing portal session. It requires a provider customer.
func (s *Service) CreatePortal(ctx context.Context, accountID uint, in PortalInput) (*PortalResult, error) {
	const op = "billing.CreatePortal"

	if err := validate.Struct(in); err != nil {
		return nil, newError(KindValidation, op, err, "returnUrl must be an absolute url")
	}
	sub, err := s.repo.GetSubscriptionByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if sub.ExternalCustomerID == "" {
		return nil, newError(KindNotFound, op, ErrCustomerNotFound, "no billing customer exists for this account yet")
	}
	if s.provider == nil {
		return nil, newError(KindTransient, op, ErrNotConfigured, "billing provider not configured")
	}

	session, err := s.provider.CreatePortalSession(ctx, sub.ExternalCustomerID, in.ReturnURL)
	s.metrics.ObserveProviderRequest("portal", err)
	if err != nil {
		return nil, err
	}
	return &PortalResult{URL: session.URL}, nil
}
