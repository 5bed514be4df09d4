package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79"

	"github.com/ManuelReschke/InvoiceFox/app/models"
)

// Stripe event types handled by the engine.
const (
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaid             = "invoice.paid"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventCheckoutCompleted       = "checkout.session.completed"
)

const metadataAccountID = "account_id"

type stripeHandlers struct {
	cfg Config
}

// RegisterStripeHandlers wires every supported Stripe event type into d.
func RegisterStripeHandlers(d *Dispatcher, cfg Config) {
	h := &stripeHandlers{cfg: cfg}
	d.Register(EventSubscriptionCreated, h.subscriptionUpserted)
	d.Register(EventSubscriptionUpdated, h.subscriptionUpserted)
	d.Register(EventSubscriptionDeleted, h.subscriptionDeleted)
	d.Register(EventInvoicePaymentSucceeded, h.invoicePaid)
	d.Register(EventInvoicePaid, h.invoicePaid)
	d.Register(EventInvoicePaymentFailed, h.invoicePaymentFailed)
	d.Register(EventCheckoutCompleted, h.checkoutCompleted)
}

func (h *stripeHandlers) subscriptionUpserted(ctx context.Context, tx Repository, ev Event) (HandlerResult, error) {
	var s stripe.Subscription
	if err := decodeObject(ev, &s); err != nil {
		return HandlerResult{}, err
	}
	if s.ID == "" {
		return HandlerResult{}, malformed(ev, "subscription id missing")
	}

	sub, err := correlate(ctx, tx, s.Metadata[metadataAccountID], s.ID, customerID(s.Customer))
	if err != nil || sub == nil {
		return uncorrelated(ev, err)
	}
	if isStale(sub, ev) {
		return staleEvent(ev, sub)
	}

	prev := sub.Status
	if status := mapProviderStatus(string(s.Status)); status != "" {
		sub.Status = status
	} else {
		log.Warnf("[Billing] Event %s: unknown subscription status %q, keeping %q", ev.ID, s.Status, prev)
	}

	priceID := subscriptionPriceID(&s)
	if tier := h.tierFor(priceID, s.Metadata["tier"]); tier != "" {
		sub.Tier = tier
	}
	if priceID != "" {
		sub.ExternalPriceID = priceID
	}
	sub.ExternalSubscriptionID = s.ID
	if cid := customerID(s.Customer); cid != "" {
		sub.ExternalCustomerID = cid
	}
	sub.CurrentPeriodStart = unixPtr(s.CurrentPeriodStart)
	sub.CurrentPeriodEnd = unixPtr(s.CurrentPeriodEnd)
	sub.CancelAtPeriodEnd = s.CancelAtPeriodEnd
	if s.TrialStart > 0 {
		sub.TrialStart = unixPtr(s.TrialStart)
	}
	if s.TrialEnd > 0 {
		sub.TrialEnd = unixPtr(s.TrialEnd)
	}

	if err := save(ctx, tx, sub, ev, true); err != nil {
		return HandlerResult{}, err
	}
	return applied(transitionNotices(prev, sub, ev)...), nil
}

func (h *stripeHandlers) subscriptionDeleted(ctx context.Context, tx Repository, ev Event) (HandlerResult, error) {
	var s stripe.Subscription
	if err := decodeObject(ev, &s); err != nil {
		return HandlerResult{}, err
	}

	sub, err := correlate(ctx, tx, s.Metadata[metadataAccountID], s.ID, customerID(s.Customer))
	if err != nil || sub == nil {
		return uncorrelated(ev, err)
	}
	if isStale(sub, ev) {
		return staleEvent(ev, sub)
	}

	prev := sub.Status
	sub.Status = models.SubscriptionStatusCanceled
	sub.CancelAtPeriodEnd = false
	if err := save(ctx, tx, sub, ev, true); err != nil {
		return HandlerResult{}, err
	}
	return applied(transitionNotices(prev, sub, ev)...), nil
}

func (h *stripeHandlers) invoicePaid(ctx context.Context, tx Repository, ev Event) (HandlerResult, error) {
	sub, res, err := h.invoiceSubscription(ctx, tx, ev)
	if sub == nil {
		return res, err
	}

	prev := sub.Status
	if prev == models.SubscriptionStatusPastDue {
		if isStale(sub, ev) {
			return staleEvent(ev, sub)
		}
		sub.Status = models.SubscriptionStatusActive
	}
	if err := save(ctx, tx, sub, ev, sub.Status != prev); err != nil {
		return HandlerResult{}, err
	}
	return applied(transitionNotices(prev, sub, ev)...), nil
}

func (h *stripeHandlers) invoicePaymentFailed(ctx context.Context, tx Repository, ev Event) (HandlerResult, error) {
	sub, res, err := h.invoiceSubscription(ctx, tx, ev)
	if sub == nil {
		return res, err
	}

	prev := sub.Status
	if prev != models.SubscriptionStatusPastDue {
		if isStale(sub, ev) {
			return staleEvent(ev, sub)
		}
		sub.Status = models.SubscriptionStatusPastDue
	}
	if err := save(ctx, tx, sub, ev, sub.Status != prev); err != nil {
		return HandlerResult{}, err
	}
	return applied(transitionNotices(prev, sub, ev)...), nil
}

// invoiceSubscription resolves the subscription an invoice event refers to.
// A nil subscription means the caller should return res, err as-is.
func (h *stripeHandlers) invoiceSubscription(ctx context.Context, tx Repository, ev Event) (*models.Subscription, HandlerResult, error) {
	var inv stripe.Invoice
	if err := decodeObject(ev, &inv); err != nil {
		return nil, HandlerResult{}, err
	}

	subID := ""
	accountID := inv.Metadata[metadataAccountID]
	if inv.Subscription != nil {
		subID = inv.Subscription.ID
		if accountID == "" {
			accountID = inv.Subscription.Metadata[metadataAccountID]
		}
	}

	sub, err := correlate(ctx, tx, accountID, subID, customerID(inv.Customer))
	if err != nil || sub == nil {
		res, err := uncorrelated(ev, err)
		return nil, res, err
	}
	return sub, HandlerResult{}, nil
}

// checkoutCompleted attaches the provider ids to the subscription that asked
// for the session. Correlation comes from the session's client reference or
// metadata and is cross-checked against the locally recorded session.
func (h *stripeHandlers) checkoutCompleted(ctx context.Context, tx Repository, ev Event) (HandlerResult, error) {
	var cs stripe.CheckoutSession
	if err := decodeObject(ev, &cs); err != nil {
		return HandlerResult{}, err
	}

	ref := strings.TrimSpace(cs.ClientReferenceID)
	if ref == "" {
		ref = cs.Metadata[metadataAccountID]
	}
	accountID, ok := parseAccountID(ref)
	if !ok {
		log.Warnf("[Billing] Event %s: checkout session %s carries no account reference", ev.ID, cs.ID)
		return ignored(), nil
	}

	recorded, err := tx.GetCheckoutSession(ctx, cs.ID)
	switch {
	case err == nil:
		if recorded.AccountID != accountID {
			log.Warnf("[Billing] Event %s: checkout session %s belongs to account %d, event names %d", ev.ID, cs.ID, recorded.AccountID, accountID)
			return ignored(), nil
		}
	case KindOf(err) != KindNotFound:
		return HandlerResult{}, err
	}

	sub, err := correlate(ctx, tx, ref, "", "")
	if err != nil || sub == nil {
		return uncorrelated(ev, err)
	}

	cid := customerID(cs.Customer)
	sid := ""
	if cs.Subscription != nil {
		sid = cs.Subscription.ID
	}
	if cid == "" && sid == "" {
		return ignored(), nil
	}
	if cid != "" {
		sub.ExternalCustomerID = cid
	}
	if sid != "" {
		sub.ExternalSubscriptionID = sid
	}
	if recorded != nil && recorded.PriceID != "" && sub.ExternalPriceID == "" {
		sub.ExternalPriceID = recorded.PriceID
	}
	if err := save(ctx, tx, sub, ev, false); err != nil {
		return HandlerResult{}, err
	}
	return applied(), nil
}

func (h *stripeHandlers) tierFor(priceID, metadataTier string) string {
	if tier := h.cfg.TierForPrice(priceID); tier != "" {
		return tier
	}
	if t := strings.ToLower(strings.TrimSpace(metadataTier)); t == models.TierPromotional || t == models.TierStandard {
		return t
	}
	return ""
}

// correlate finds the subscription for an event. It returns (nil, nil) when
// nothing identifies a local account. A known account whose subscription row
// cannot be found is reported as transient so the provider redelivers.
func correlate(ctx context.Context, tx Repository, accountRef, externalSubID, externalCustomerID string) (*models.Subscription, error) {
	if accountID, ok := parseAccountID(accountRef); ok {
		sub, err := tx.GetSubscriptionByAccount(ctx, accountID)
		if err == nil {
			return sub, nil
		}
		if KindOf(err) != KindNotFound {
			return nil, err
		}
		if _, aerr := tx.GetAccount(ctx, accountID); aerr != nil {
			if KindOf(aerr) == KindNotFound {
				return nil, nil
			}
			return nil, aerr
		}
		return nil, newError(KindTransient, "billing.correlate", ErrSubscriptionNotFound, fmt.Sprintf("account %d has no subscription row yet", accountID))
	}

	if externalSubID != "" {
		sub, err := tx.GetSubscriptionByExternalSubscriptionID(ctx, externalSubID)
		if err == nil {
			return sub, nil
		}
		if KindOf(err) != KindNotFound {
			return nil, err
		}
	}
	if externalCustomerID != "" {
		sub, err := tx.GetSubscriptionByExternalCustomerID(ctx, externalCustomerID)
		if err == nil {
			return sub, nil
		}
		if KindOf(err) != KindNotFound {
			return nil, err
		}
	}
	return nil, nil
}

func uncorrelated(ev Event, err error) (HandlerResult, error) {
	if err != nil {
		return HandlerResult{}, err
	}
	log.Infof("[Billing] Event %s (%s): no matching subscription, ignoring", ev.ID, ev.Type)
	return ignored(), nil
}

// isStale reports whether a newer status-deciding event has already been
// applied to sub. Only subscription object events, invoice events that move
// the status and manual cancellation advance LastEventAt, so checkout
// completions and no-op invoices never fence out the subscription's state.
func isStale(sub *models.Subscription, ev Event) bool {
	return sub.LastEventAt != nil && !ev.Created.IsZero() && ev.Created.Before(*sub.LastEventAt)
}

func staleEvent(ev Event, sub *models.Subscription) (HandlerResult, error) {
	log.Infof("[Billing] Event %s (%s) created %s is older than last applied %s for account %d, ignoring",
		ev.ID, ev.Type, ev.Created.Format(time.RFC3339), sub.LastEventAt.Format(time.RFC3339), sub.AccountID)
	return ignored(), nil
}

// save persists sub. advance moves the ordering watermark to the event's
// creation time and is set only by events that decided the status.
func save(ctx context.Context, tx Repository, sub *models.Subscription, ev Event, advance bool) error {
	if advance && !ev.Created.IsZero() && (sub.LastEventAt == nil || ev.Created.After(*sub.LastEventAt)) {
		created := ev.Created.UTC()
		sub.LastEventAt = &created
	}
	return tx.SaveSubscription(ctx, sub)
}

// transitionNotices emits notifications only for real status transitions. The
// key is bound to the causing event so redelivery cannot emit twice.
func transitionNotices(prev string, sub *models.Subscription, ev Event) []Notification {
	if prev == sub.Status {
		return nil
	}
	var kind NoticeKind
	switch sub.Status {
	case models.SubscriptionStatusPastDue:
		kind = NoticePaymentFailed
	case models.SubscriptionStatusCanceled:
		kind = NoticeSubscriptionCanceled
	case models.SubscriptionStatusActive:
		if prev != models.SubscriptionStatusPastDue && prev != models.SubscriptionStatusUnpaid && prev != models.SubscriptionStatusIncomplete {
			return nil
		}
		kind = NoticeSubscriptionActivated
	default:
		return nil
	}
	return []Notification{{
		Kind:      kind,
		AccountID: sub.AccountID,
		Key:       fmt.Sprintf("%s:%s", kind, ev.ID),
	}}
}

func decodeObject(ev Event, v interface{}) error {
	if len(ev.Data) == 0 {
		return malformed(ev, "event data missing")
	}
	if err := json.Unmarshal(ev.Data, v); err != nil {
		return malformed(ev, err.Error())
	}
	return nil
}

func malformed(ev Event, msg string) error {
	return newError(KindValidation, "billing.decode "+ev.Type, ErrMalformedEvent, msg)
}

func parseAccountID(ref string) (uint, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(ref, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func subscriptionPriceID(s *stripe.Subscription) string {
	if s.Items == nil {
		return ""
	}
	for _, item := range s.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
