package billing

import (
	"context"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// CheckoutRequest describes a hosted checkout the provider should create.
type CheckoutRequest struct {
	AccountID  uint
	Tier       string
	PriceID    string
	CustomerID string
	Email      string
	SuccessURL string
	CancelURL  string
	TrialEnd   *time.Time
}

// ProviderSession is a hosted page issued by the provider.
type ProviderSession struct {
	ID  string
	URL string
}

// Provider is the outbound side of the billing provider.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*ProviderSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*ProviderSession, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

type stripeProvider struct {
	sc *client.API
}

// NewStripeProvider returns a Provider backed by the Stripe API. It returns nil
// when no secret key is configured.
func NewStripeProvider(secretKey string) Provider {
	if secretKey == "" {
		return nil
	}
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &stripeProvider{sc: sc}
}

func (p *stripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*ProviderSession, error) {
	accountRef := strconv.FormatUint(uint64(req.AccountID), 10)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(accountRef),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				metadataAccountID: accountRef,
				"tier":            req.Tier,
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataAccountID, accountRef)
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	if req.TrialEnd != nil {
		params.SubscriptionData.TrialEnd = stripe.Int64(req.TrialEnd.Unix())
	}

	s, err := p.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, newError(KindTransient, "billing.stripe.CreateCheckoutSession", err, "provider request failed")
	}
	return &ProviderSession{ID: s.ID, URL: s.URL}, nil
}

func (p *stripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*ProviderSession, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := p.sc.BillingPortalSessions.New(params)
	if err != nil {
		return nil, newError(KindTransient, "billing.stripe.CreatePortalSession", err, "provider request failed")
	}
	return &ProviderSession{ID: s.ID, URL: s.URL}, nil
}

func (p *stripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	if _, err := p.sc.Subscriptions.Cancel(subscriptionID, params); err != nil {
		if se, ok := err.(*stripe.Error); ok && se.Code == stripe.ErrorCodeResourceMissing {
			// already gone at the provider
			return nil
		}
		return newError(KindTransient, "billing.stripe.CancelSubscription", err, "provider request failed")
	}
	return nil
}
