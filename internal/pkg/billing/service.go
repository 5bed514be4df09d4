package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/metrics"
)

const (
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
)

var validate = validator.New()

// Notifier accepts side effects requested by state transitions. Implementations
// must drop a notification whose Key was already accepted.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Service is the billing reconciliation engine.
type Service struct {
	cfg        Config
	repo       Repository
	verifier   Verifier
	dispatcher *Dispatcher
	provider   Provider
	notifier   Notifier
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Option func(*Service)

func WithVerifier(v Verifier) Option         { return func(s *Service) { s.verifier = v } }
func WithProvider(p Provider) Option         { return func(s *Service) { s.provider = p } }
func WithNotifier(n Notifier) Option         { return func(s *Service) { s.notifier = n } }
func WithMetrics(m *metrics.Metrics) Option  { return func(s *Service) { s.metrics = m } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates the engine from an injected repository. The Stripe
// verifier, handlers and API client are derived from cfg unless overridden.
func NewService(cfg Config, repo Repository, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		repo:       repo,
		verifier:   NewStripeVerifier(cfg.WebhookSecret, cfg.WebhookTolerance),
		dispatcher: NewDispatcher(),
		provider:   NewStripeProvider(cfg.StripeSecretKey),
		now:        time.Now,
	}
	RegisterStripeHandlers(s.dispatcher, cfg)
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.WebhookTimeout <= 0 {
		s.cfg.WebhookTimeout = 5 * time.Second
	}
	return s
}

// NewServiceFromDB creates the engine from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, cfg Config, opts ...Option) *Service {
	return NewService(cfg, NewRepository(db), opts...)
}

func (s *Service) Config() Config { return s.cfg }

func (s *Service) Now() time.Time { return s.now() }

// ProcessWebhook runs one delivery through verify, reserve, dispatch.
// Reservation and handler share one transaction: a handler error rolls the
// reservation back so the provider's retry is processed as fresh, while a
// committed reservation turns every later delivery into a duplicate.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signatureHeader string) (*Result, error) {
	start := time.Now()

	ev, err := s.verifier.Verify(payload, signatureHeader)
	if err != nil {
		s.metrics.ObserveWebhook(outcomeRejected, time.Since(start))
		log.Warnf("[Webhook] Rejected delivery: %v", err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.WebhookTimeout)
	defer cancel()

	res := &Result{EventID: ev.ID, EventType: ev.Type}
	var handled HandlerResult
	err = s.repo.WithTx(ctx, func(tx Repository) error {
		fresh, stored, err := tx.ReserveEvent(ctx, &models.ProcessedEvent{
			EventID:     ev.ID,
			EventType:   ev.Type,
			Outcome:     models.EventOutcomeApplied,
			ProcessedAt: s.now().UTC(),
		})
		if err != nil {
			return err
		}
		if !fresh {
			res.Duplicate = true
			res.Outcome = stored.Outcome
			return nil
		}

		handled, err = s.dispatcher.Dispatch(ctx, tx, ev)
		if err != nil {
			return err
		}
		if handled.Outcome == "" {
			handled.Outcome = models.EventOutcomeApplied
		}
		if handled.Outcome != models.EventOutcomeApplied {
			return tx.SetEventOutcome(ctx, ev.ID, handled.Outcome)
		}
		return nil
	})
	if err != nil {
		res.Outcome = models.EventOutcomeFailed
		s.metrics.ObserveWebhook(models.EventOutcomeFailed, time.Since(start))
		log.Errorf("[Webhook] Event %s (%s) failed (%s): %v", ev.ID, ev.Type, KindOf(err), err)
		return res, err
	}

	if res.Duplicate {
		s.metrics.ObserveWebhook(outcomeDuplicate, time.Since(start))
		log.Infof("[Webhook] Event %s (%s) is a duplicate, recorded outcome %s", ev.ID, ev.Type, res.Outcome)
		return res, nil
	}

	res.Outcome = handled.Outcome
	s.emit(ctx, handled.Notifications)
	s.metrics.ObserveWebhook(res.Outcome, time.Since(start))
	log.Infof("[Webhook] Event %s (%s) %s", ev.ID, ev.Type, res.Outcome)
	return res, nil
}

// emit hands committed side effects to the notifier. Failures are logged; the
// event is already committed and the notifier dedups by key.
func (s *Service) emit(ctx context.Context, notes []Notification) {
	if len(notes) == 0 {
		return
	}
	if s.notifier == nil {
		for _, n := range notes {
			log.Warnf("[Billing] No notifier configured, dropping %s notice for account %d", n.Kind, n.AccountID)
		}
		return
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	for _, n := range notes {
		if err := s.notifier.Notify(nctx, n); err != nil {
			log.Errorf("[Billing] Failed to enqueue %s notice for account %d: %v", n.Kind, n.AccountID, err)
			continue
		}
		s.metrics.ObserveNotification(string(n.Kind))
	}
}

// Registration is the result of creating an account.
type Registration struct {
	Account      *models.Account
	Subscription *models.Subscription
	APIKey       string
}

// Register creates an account and its subscription row in one transaction.
// The registration order is claimed inside that transaction, so a failed
// registration never consumes a number.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	const op = "billing.Register"

	if err := validate.Struct(in); err != nil {
		return nil, newError(KindValidation, op, err, "name, email and password are required")
	}
	account, err := models.NewAccount(in.Name, in.Email, in.Password)
	if err != nil {
		return nil, newError(KindValidation, op, err, "invalid account data")
	}
	account.IPv4 = in.IPv4
	account.IPv6 = in.IPv6
	rawKey, err := account.IssueAPIKey()
	if err != nil {
		return nil, newError(KindTransient, op, err, "could not issue api key")
	}

	var sub *models.Subscription
	err = s.repo.WithTx(ctx, func(tx Repository) error {
		taken, err := tx.EmailExists(ctx, account.Email)
		if err != nil {
			return err
		}
		if taken {
			return newError(KindValidation, op, ErrEmailTaken, "email already registered")
		}

		order, err := tx.NextRegistrationOrder(ctx)
		if err != nil {
			return err
		}
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}
		sub = s.cfg.TierPolicy().InitialSubscription(account.ID, order, s.now())
		return tx.CreateSubscription(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveRegistration(sub.Tier)
	log.Infof("[Billing] Registered account %d as #%d (tier=%s, status=%s)", account.ID, sub.RegistrationOrder, sub.Tier, sub.Status)
	return &Registration{Account: account, Subscription: sub, APIKey: rawKey}, nil
}

// Subscription returns the subscription row of an account.
func (s *Service) Subscription(ctx context.Context, accountID uint) (*models.Subscription, error) {
	return s.repo.GetSubscriptionByAccount(ctx, accountID)
}

// Status returns the status view of an account's subscription.
func (s *Service) Status(ctx context.Context, accountID uint) (*StatusView, error) {
	sub, err := s.repo.GetSubscriptionByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	view := NewStatusView(sub, s.cfg, s.now())
	return &view, nil
}

// Cancel is the explicit disconnect action. It cancels the provider
// subscription when one exists and marks the local row canceled.
func (s *Service) Cancel(ctx context.Context, accountID uint) (*models.Subscription, error) {
	const op = "billing.Cancel"

	sub, err := s.repo.GetSubscriptionByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if sub.Status == models.SubscriptionStatusCanceled {
		return sub, nil
	}

	if sub.ExternalSubscriptionID != "" {
		if s.provider == nil {
			return nil, newError(KindTransient, op, ErrNotConfigured, "billing provider not configured")
		}
		err := s.provider.CancelSubscription(ctx, sub.ExternalSubscriptionID)
		s.metrics.ObserveProviderRequest("cancel", err)
		if err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	prev := sub.Status
	sub.Status = models.SubscriptionStatusCanceled
	sub.CancelAtPeriodEnd = false
	// provider events created before the cancellation must not revive the row
	sub.LastEventAt = &now
	if err := s.repo.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	log.Infof("[Billing] Account %d canceled its subscription (was %s)", accountID, prev)
	s.emit(ctx, []Notification{{
		Kind:      NoticeSubscriptionCanceled,
		AccountID: accountID,
		Key:       fmt.Sprintf("%s:manual:%d:%d", NoticeSubscriptionCanceled, accountID, now.Unix()),
	}})
	return sub, nil
}

// NotifyExpiredTrials enqueues one trial_ended notice per closed trial window
// of accounts that never set up payment. It does not change any status.
func (s *Service) NotifyExpiredTrials(ctx context.Context) (int, error) {
	subs, err := s.repo.ListExpiredTrials(ctx, s.now(), 200)
	if err != nil {
		return 0, err
	}

	notes := make([]Notification, 0, len(subs))
	for _, sub := range subs {
		if sub.HasPaymentMethod() || sub.TrialEnd == nil {
			continue
		}
		notes = append(notes, Notification{
			Kind:      NoticeTrialEnded,
			AccountID: sub.AccountID,
			Key:       fmt.Sprintf("%s:%d:%d", NoticeTrialEnded, sub.AccountID, sub.TrialEnd.Unix()),
		})
	}
	s.emit(ctx, notes)
	return len(notes), nil
}
