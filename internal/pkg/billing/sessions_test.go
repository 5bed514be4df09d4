package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing/billingtest"
)

var checkoutInput = billing.CheckoutInput{
	SuccessURL: "https://app.example.com/billing/success",
	CancelURL:  "https://app.example.com/billing/cancel",
}

func TestCreateCheckout(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "checkout@example.com")

	res, err := f.svc.CreateCheckout(context.Background(), reg.Account.ID, checkoutInput)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", res.SessionID)
	assert.NotEmpty(t, res.URL)

	require.Equal(t, 1, f.provider.CheckoutCalls())
	req := f.provider.Checkout[0]
	assert.Equal(t, reg.Account.ID, req.AccountID)
	assert.Equal(t, billingtest.PromotionalPriceID, req.PriceID)
	assert.Equal(t, "checkout@example.com", req.Email)
	require.NotNil(t, req.TrialEnd)
	assert.True(t, reg.Subscription.TrialEnd.Equal(*req.TrialEnd))

	var recorded models.CheckoutSession
	require.NoError(t, f.db.Where("session_id = ?", res.SessionID).First(&recorded).Error)
	assert.Equal(t, reg.Account.ID, recorded.AccountID)

	sub := f.subscription(t, reg.Account.ID)
	assert.Equal(t, models.SubscriptionStatusTrialing, sub.Status)
	assert.False(t, sub.HasPaymentMethod())
}

func TestCreateCheckout_ShortTrialIsNotForwarded(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "late@example.com")
	f.now = f.now.AddDate(0, 0, 13)

	_, err := f.svc.CreateCheckout(context.Background(), reg.Account.ID, checkoutInput)
	require.NoError(t, err)
	assert.Nil(t, f.provider.Checkout[0].TrialEnd)
}

func TestCreateCheckout_FreeTierIsInvalidState(t *testing.T) {
	f := newFixture(t, func(c *billing.Config) { c.FreeSlots = 1 })
	reg := f.register(t, "free@example.com")

	_, err := f.svc.CreateCheckout(context.Background(), reg.Account.ID, checkoutInput)
	require.Error(t, err)
	assert.Equal(t, billing.KindInvalidState, billing.KindOf(err))
	assert.Equal(t, 0, f.provider.CheckoutCalls())
}

func TestCreateCheckout_ExistingProviderSubscription(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "existing@example.com")
	f.attach(t, reg.Account.ID, f.now)

	_, err := f.svc.CreateCheckout(context.Background(), reg.Account.ID, checkoutInput)
	assert.Equal(t, billing.KindInvalidState, billing.KindOf(err))
	assert.Equal(t, 0, f.provider.CheckoutCalls())
}

func TestCreateCheckout_RejectsRelativeURLs(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "urls@example.com")

	_, err := f.svc.CreateCheckout(context.Background(), reg.Account.ID, billing.CheckoutInput{SuccessURL: "/ok", CancelURL: "/no"})
	assert.Equal(t, billing.KindValidation, billing.KindOf(err))
}

func TestCreateCheckout_ProviderNotConfigured(t *testing.T) {
	db := billingtest.NewTestDB(t)
	svc := billing.NewServiceFromDB(db, billingtest.Config())
	reg, err := svc.Register(context.Background(), billing.RegisterInput{Name: "No Stripe", Email: "nostripe@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.CreateCheckout(context.Background(), reg.Account.ID, checkoutInput)
	assert.ErrorIs(t, err, billing.ErrNotConfigured)
	assert.Equal(t, billing.KindTransient, billing.KindOf(err))
}

func TestCreatePortal(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "portal@example.com")
	in := billing.PortalInput{ReturnURL: "https://app.example.com/settings"}

	_, err := f.svc.CreatePortal(context.Background(), reg.Account.ID, in)
	assert.ErrorIs(t, err, billing.ErrCustomerNotFound)
	assert.Equal(t, billing.KindNotFound, billing.KindOf(err))
	assert.Empty(t, f.provider.Portal)

	f.attach(t, reg.Account.ID, f.now)
	res, err := f.svc.CreatePortal(context.Background(), reg.Account.ID, in)
	require.NoError(t, err)
	assert.Contains(t, res.URL, "cus_1")
	assert.Equal(t, []string{"cus_1"}, f.provider.Portal)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "cancel@example.com")
	f.attach(t, reg.Account.ID, f.now)

	sub, err := f.svc.Cancel(context.Background(), reg.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
	assert.Equal(t, []string{"sub_1"}, f.provider.Canceled)
	assert.False(t, billing.HasAccess(f.subscription(t, reg.Account.ID), f.now))

	_, err = f.svc.Cancel(context.Background(), reg.Account.ID)
	require.NoError(t, err)
	assert.Len(t, f.provider.Canceled, 1)
	assert.Equal(t, 1, f.notifier.SentOfKind(billing.NoticeSubscriptionCanceled))

	// a provider update created before the local cancel changes nothing
	res, err := f.deliver(t, "evt_late_update", billing.EventSubscriptionUpdated, f.now.Add(-time.Minute),
		billingtest.SubscriptionObject("sub_1", "cus_1", "active", 0, billingtest.PromotionalPriceID))
	require.NoError(t, err)
	assert.Equal(t, models.EventOutcomeIgnored, res.Outcome)
}

func TestCancel_WithoutProviderSubscription(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "trialonly@example.com")

	sub, err := f.svc.Cancel(context.Background(), reg.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
	assert.Empty(t, f.provider.Canceled)
}
