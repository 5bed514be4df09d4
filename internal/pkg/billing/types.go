package billing

import (
	"encoding/json"
	"time"
)

// Event is a verified provider notification in provider-neutral form.
// Data holds the raw data.object of the notification.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Data    json.RawMessage
}

// Result describes how one webhook delivery was handled.
type Result struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Outcome   string `json:"outcome"`
	Duplicate bool   `json:"duplicate"`
}

// NoticeKind names a customer-facing billing notification.
type NoticeKind string

const (
	NoticePaymentFailed         NoticeKind = "payment_failed"
	NoticeSubscriptionCanceled  NoticeKind = "subscription_canceled"
	NoticeSubscriptionActivated NoticeKind = "subscription_activated"
	NoticeTrialEnded            NoticeKind = "trial_ended"
)

// Notification is a side effect requested by a state transition. Key is stable
// across redeliveries of the same cause so that it is emitted at most once.
type Notification struct {
	Kind      NoticeKind `json:"kind"`
	AccountID uint       `json:"account_id"`
	Key       string     `json:"key"`
}

// RegisterInput is the payload for creating an account.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=3,max=150"`
	Email    string `json:"email" validate:"required,email,max=200"`
	Password string `json:"password" validate:"required,min=6,max=200"`
	IPv4     string `json:"-"`
	IPv6     string `json:"-"`
}

// CheckoutInput is the payload for creating a hosted checkout session.
type CheckoutInput struct {
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

// PortalInput is the payload for creating a billing portal session.
type PortalInput struct {
	ReturnURL string `json:"returnUrl" validate:"required,url"`
}

// CheckoutResult is returned to the caller after a checkout session was issued.
type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// PortalResult is returned to the caller after a portal session was issued.
type PortalResult struct {
	URL string `json:"url"`
}
