package billing_test

import (
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing/billingtest"
)

func TestStripeVerifier(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := billingtest.EventPayload(t, "evt_sig", billing.EventInvoicePaymentFailed, created,
		billingtest.InvoiceObject("in_1", "cus_1", "sub_1"))
	v := billing.NewStripeVerifier(billingtest.WebhookSecret, 5*time.Minute)

	t.Run("valid signature", func(t *testing.T) {
		ev, err := v.Verify(payload, billingtest.Sign(payload, billingtest.WebhookSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "evt_sig", ev.ID)
		assert.Equal(t, billing.EventInvoicePaymentFailed, ev.Type)
		assert.True(t, created.Equal(ev.Created))
		assert.Contains(t, string(ev.Data), `"in_1"`)
	})

	t.Run("tampered body", func(t *testing.T) {
		header := billingtest.Sign(payload, billingtest.WebhookSecret, time.Now())
		tampered := append([]byte{}, payload...)
		tampered[len(tampered)-2] = ' '

		_, err := v.Verify(tampered, header)
		require.Error(t, err)
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
		assert.Equal(t, billing.KindAuthentication, billing.KindOf(err))
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Verify(payload, billingtest.Sign(payload, "whsec_other", time.Now()))
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := v.Verify(payload, "")
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
		assert.Equal(t, billing.KindAuthentication, billing.KindOf(err))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		old := time.Now().Add(-10 * time.Minute)
		sig := webhook.ComputeSignature(old, payload, billingtest.WebhookSecret)
		header := fmt.Sprintf("t=%d,v1=%s", old.Unix(), hex.EncodeToString(sig))

		_, err := v.Verify(payload, header)
		assert.ErrorIs(t, err, billing.ErrStaleTimestamp)
		assert.Equal(t, billing.KindAuthentication, billing.KindOf(err))
	})

	t.Run("secret not configured", func(t *testing.T) {
		unset := billing.NewStripeVerifier("  ", 5*time.Minute)
		_, err := unset.Verify(payload, billingtest.Sign(payload, billingtest.WebhookSecret, time.Now()))
		assert.ErrorIs(t, err, billing.ErrNotConfigured)
		assert.Equal(t, billing.KindTransient, billing.KindOf(err))
	})

	t.Run("signed body without event id", func(t *testing.T) {
		body := []byte(`{"object":"event","type":"invoice.paid","data":{"object":{}}}`)
		_, err := v.Verify(body, billingtest.Sign(body, billingtest.WebhookSecret, time.Now()))
		assert.ErrorIs(t, err, billing.ErrMalformedEvent)
		assert.Equal(t, billing.KindValidation, billing.KindOf(err))
	})

	t.Run("signed body that is not json", func(t *testing.T) {
		body := []byte(`not json`)
		_, err := v.Verify(body, billingtest.Sign(body, billingtest.WebhookSecret, time.Now()))
		assert.ErrorIs(t, err, billing.ErrMalformedEvent)
	})
}
