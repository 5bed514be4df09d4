package billing

import (
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

// Verifier authenticates a raw webhook body against its signature header.
type Verifier interface {
	Verify(payload []byte, signatureHeader string) (Event, error)
}

// StripeVerifier checks the Stripe-Signature scheme: an HMAC-SHA256 over
// "<timestamp>.<raw body>" with a bounded timestamp age.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewStripeVerifier(secret string, tolerance time.Duration) *StripeVerifier {
	return &StripeVerifier{secret: strings.TrimSpace(secret), tolerance: tolerance}
}

// Verify must receive the body exactly as it arrived on the wire.
func (v *StripeVerifier) Verify(payload []byte, signatureHeader string) (Event, error) {
	const op = "billing.Verify"

	if v.secret == "" {
		return Event{}, newError(KindTransient, op, ErrNotConfigured, "webhook secret missing")
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return Event{}, newError(KindAuthentication, op, ErrInvalidSignature, "missing signature header")
	}

	err := webhook.ValidatePayloadWithTolerance(payload, signatureHeader, v.secret, v.tolerance)
	switch {
	case err == nil:
	case errors.Is(err, webhook.ErrTooOld):
		return Event{}, newError(KindAuthentication, op, ErrStaleTimestamp, "")
	default:
		return Event{}, newError(KindAuthentication, op, ErrInvalidSignature, "")
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, newError(KindValidation, op, ErrMalformedEvent, "event body is not a valid event")
	}
	if evt.ID == "" || evt.Type == "" {
		return Event{}, newError(KindValidation, op, ErrMalformedEvent, "event id and type are required")
	}

	out := Event{
		ID:      evt.ID,
		Type:    string(evt.Type),
		Created: time.Unix(evt.Created, 0).UTC(),
	}
	if evt.Data != nil {
		out.Data = evt.Data.Raw
	}
	return out, nil
}
