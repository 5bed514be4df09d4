// Package billingtest provides fixtures for exercising the billing engine
// against an in-memory database.
package billingtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing"
)

const (
	WebhookSecret      = "whsec_test_secret"
	StandardPriceID    = "price_standard"
	PromotionalPriceID = "price_promotional"
)

// Config returns a billing configuration with two promotional slots.
func Config() billing.Config {
	return billing.Config{
		WebhookSecret:      WebhookSecret,
		WebhookTolerance:   5 * time.Minute,
		WebhookTimeout:     5 * time.Second,
		StandardPriceID:    StandardPriceID,
		PromotionalPriceID: PromotionalPriceID,
		TrialDays:          14,
		FreeSlots:          0,
		PromotionalSlots:   2,
		StandardMonthly:    1900,
		PromotionalMonthly: 900,
		Currency:           "eur",
	}
}

// NewTestDB opens a private in-memory SQLite database with all tables migrated.
// A single connection serializes transactions, so concurrent tests on it never
// race inside the store. The conflict paths of ReserveEvent and CreateAccount
// are covered separately against sqlmock.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

// Sign returns a Stripe-Signature header for payload signed at ts.
func Sign(payload []byte, secret string, ts time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	})
	return signed.Header
}

// EventPayload builds the JSON body of a Stripe event wrapping object.
func EventPayload(t testing.TB, id, eventType string, created time.Time, object interface{}) []byte {
	t.Helper()

	raw, err := json.Marshal(object)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     created.Unix(),
		"api_version": stripe.APIVersion,
		"livemode":    false,
		"data":        map[string]json.RawMessage{"object": raw},
	})
	require.NoError(t, err)
	return body
}

// SubscriptionObject builds a Stripe subscription object.
func SubscriptionObject(id, customer, status string, accountID uint, priceID string) map[string]interface{} {
	obj := map[string]interface{}{
		"id":       id,
		"object":   "subscription",
		"customer": customer,
		"status":   status,
		"items": map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"id": "si_" + id, "object": "subscription_item", "price": map[string]interface{}{"id": priceID, "object": "price"}},
			},
		},
		"metadata": map[string]string{},
	}
	if accountID != 0 {
		obj["metadata"] = map[string]string{"account_id": fmt.Sprint(accountID)}
	}
	return obj
}

// InvoiceObject builds a Stripe invoice object for a subscription.
func InvoiceObject(id, customer, subscription string) map[string]interface{} {
	return map[string]interface{}{
		"id":           id,
		"object":       "invoice",
		"customer":     customer,
		"subscription": subscription,
	}
}

// CheckoutObject builds a completed Stripe checkout session.
func CheckoutObject(id string, accountID uint, customer, subscription string) map[string]interface{} {
	return map[string]interface{}{
		"id":                  id,
		"object":              "checkout.session",
		"client_reference_id": fmt.Sprint(accountID),
		"customer":            customer,
		"subscription":        subscription,
		"mode":                "subscription",
	}
}

// FakeProvider records outbound provider calls.
type FakeProvider struct {
	mu       sync.Mutex
	seq      int
	Err      error
	Checkout []billing.CheckoutRequest
	Portal   []string
	Canceled []string
}

func (p *FakeProvider) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (*billing.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.seq++
	p.Checkout = append(p.Checkout, req)
	id := fmt.Sprintf("cs_test_%d", p.seq)
	return &billing.ProviderSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (p *FakeProvider) CreatePortalSession(_ context.Context, customerID, _ string) (*billing.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.Portal = append(p.Portal, customerID)
	return &billing.ProviderSession{ID: "bps_test", URL: "https://billing.stripe.test/" + customerID}, nil
}

func (p *FakeProvider) CancelSubscription(_ context.Context, subscriptionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Canceled = append(p.Canceled, subscriptionID)
	return nil
}

func (p *FakeProvider) CheckoutCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Checkout)
}

// RecordingNotifier keeps accepted notifications and drops repeated keys.
type RecordingNotifier struct {
	mu    sync.Mutex
	seen  map[string]bool
	notes []billing.Notification
	Err   error
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{seen: make(map[string]bool)}
}

func (n *RecordingNotifier) Notify(_ context.Context, note billing.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	if n.seen[note.Key] {
		return nil
	}
	n.seen[note.Key] = true
	n.notes = append(n.notes, note)
	return nil
}

// Sent returns a copy of the accepted notifications.
func (n *RecordingNotifier) Sent() []billing.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]billing.Notification, len(n.notes))
	copy(out, n.notes)
	return out
}

// SentOfKind counts accepted notifications of one kind.
func (n *RecordingNotifier) SentOfKind(kind billing.NoticeKind) int {
	count := 0
	for _, note := range n.Sent() {
		if note.Kind == kind {
			count++
		}
	}
	return count
}
