package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/InvoiceFox/app/models"
)

// Repository provides the storage operations used by the billing engine.
// Every method runs on the handle it was created with; WithTx hands the
// callback a Repository bound to a single transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	ReserveEvent(ctx context.Context, event *models.ProcessedEvent) (bool, *models.ProcessedEvent, error)
	SetEventOutcome(ctx context.Context, eventID, outcome string) error
	GetProcessedEvent(ctx context.Context, eventID string) (*models.ProcessedEvent, error)

	NextRegistrationOrder(ctx context.Context) (int64, error)

	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id uint) (*models.Account, error)
	EmailExists(ctx context.Context, email string) (bool, error)

	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscriptionByAccount(ctx context.Context, accountID uint) (*models.Subscription, error)
	GetSubscriptionByExternalSubscriptionID(ctx context.Context, externalID string) (*models.Subscription, error)
	GetSubscriptionByExternalCustomerID(ctx context.Context, customerID string) (*models.Subscription, error)
	ListExpiredTrials(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)

	CreateCheckoutSession(ctx context.Context, session *models.CheckoutSession) error
	GetCheckoutSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

// ReserveEvent inserts the ledger row unless the event id is already present.
// The unique index decides the race; it returns true only for the inserting caller.
func (r *gormRepository) ReserveEvent(ctx context.Context, event *models.ProcessedEvent) (bool, *models.ProcessedEvent, error) {
	const op = "billing.ReserveEvent"

	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, storeError(op, tx.Error, nil)
	}
	if tx.RowsAffected > 0 {
		return true, event, nil
	}

	stored, err := r.GetProcessedEvent(ctx, event.EventID)
	if err != nil {
		return false, nil, err
	}
	return false, stored, nil
}

// SetEventOutcome is only used on a row reserved in the same transaction.
func (r *gormRepository) SetEventOutcome(ctx context.Context, eventID, outcome string) error {
	err := r.db.WithContext(ctx).Model(&models.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Update("outcome", outcome).Error
	return storeError("billing.SetEventOutcome", err, nil)
}

func (r *gormRepository) GetProcessedEvent(ctx context.Context, eventID string) (*models.ProcessedEvent, error) {
	var ev models.ProcessedEvent
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&ev).Error; err != nil {
		return nil, storeError("billing.GetProcessedEvent", err, errors.New("processed event not found"))
	}
	return &ev, nil
}

// NextRegistrationOrder increments the counter row and reads it back. The
// UPDATE holds the row lock until the surrounding transaction ends, so
// concurrent registrations are serialized and never observe the same value.
func (r *gormRepository) NextRegistrationOrder(ctx context.Context) (int64, error) {
	const op = "billing.NextRegistrationOrder"

	var order int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := &models.RegistrationCounter{ID: models.RegistrationCounterID}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(seed).Error; err != nil {
			return err
		}

		res := tx.Model(&models.RegistrationCounter{}).
			Where("id = ?", models.RegistrationCounterID).
			Updates(map[string]interface{}{
				"current_count": gorm.Expr("current_count + ?", 1),
				"updated_at":    time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errors.New("registration counter row missing")
		}

		var counter models.RegistrationCounter
		if err := tx.Where("id = ?", models.RegistrationCounterID).First(&counter).Error; err != nil {
			return err
		}
		order = counter.CurrentCount
		return nil
	})
	if err != nil {
		return 0, storeError(op, err, nil)
	}
	return order, nil
}

// CreateAccount inserts account. Losing a race on the unique email index is
// reported as ErrEmailTaken, the same as the up-front check in Register.
func (r *gormRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	const op = "billing.CreateAccount"
	err := r.db.WithContext(ctx).Create(account).Error
	if err != nil && isDuplicateKey(r.db, err) {
		return newError(KindValidation, op, ErrEmailTaken, "email already registered")
	}
	return storeError(op, err, nil)
}

func (r *gormRepository) GetAccount(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		return nil, storeError("billing.GetAccount", err, ErrAccountNotFound)
	}
	return &account, nil
}

func (r *gormRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Count(&n).Error
	if err != nil {
		return false, storeError("billing.EmailExists", err, nil)
	}
	return n > 0, nil
}

func (r *gormRepository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return storeError("billing.CreateSubscription", r.db.WithContext(ctx).Create(sub).Error, nil)
}

// subscriptionMutableColumns excludes account_id and registration_order, which never change.
var subscriptionMutableColumns = []string{
	"tier",
	"status",
	"trial_start",
	"trial_end",
	"current_period_start",
	"current_period_end",
	"cancel_at_period_end",
	"external_customer_id",
	"external_subscription_id",
	"external_price_id",
	"last_event_at",
	"updated_at",
}

func (r *gormRepository) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "billing.SaveSubscription"
	if sub.ID == 0 {
		return newError(KindTransient, op, ErrSubscriptionNotFound, "subscription has no id")
	}
	sub.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).Model(sub).Select(subscriptionMutableColumns).Updates(sub).Error
	return storeError(op, err, ErrSubscriptionNotFound)
}

func (r *gormRepository) GetSubscriptionByAccount(ctx context.Context, accountID uint) (*models.Subscription, error) {
	return r.findSubscription(ctx, "billing.GetSubscriptionByAccount", "account_id = ?", accountID)
}

func (r *gormRepository) GetSubscriptionByExternalSubscriptionID(ctx context.Context, externalID string) (*models.Subscription, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, newError(KindNotFound, "billing.GetSubscriptionByExternalSubscriptionID", ErrSubscriptionNotFound, "")
	}
	return r.findSubscription(ctx, "billing.GetSubscriptionByExternalSubscriptionID", "external_subscription_id = ?", externalID)
}

func (r *gormRepository) GetSubscriptionByExternalCustomerID(ctx context.Context, customerID string) (*models.Subscription, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, newError(KindNotFound, "billing.GetSubscriptionByExternalCustomerID", ErrSubscriptionNotFound, "")
	}
	return r.findSubscription(ctx, "billing.GetSubscriptionByExternalCustomerID", "external_customer_id = ?", customerID)
}

func (r *gormRepository) findSubscription(ctx context.Context, op, query string, arg interface{}) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where(query, arg).First(&sub).Error; err != nil {
		return nil, storeError(op, err, ErrSubscriptionNotFound)
	}
	return &sub, nil
}

// ListExpiredTrials returns trialing subscriptions whose trial window has closed.
func (r *gormRepository) ListExpiredTrials(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND trial_end IS NOT NULL AND trial_end <= ?", models.SubscriptionStatusTrialing, now.UTC()).
		Order("trial_end ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, storeError("billing.ListExpiredTrials", err, nil)
	}
	return subs, nil
}

func (r *gormRepository) CreateCheckoutSession(ctx context.Context, session *models.CheckoutSession) error {
	return storeError("billing.CreateCheckoutSession", r.db.WithContext(ctx).Create(session).Error, nil)
}

func (r *gormRepository) GetCheckoutSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	var s models.CheckoutSession
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error; err != nil {
		return nil, storeError("billing.GetCheckoutSession", err, errors.New("checkout session not found"))
	}
	return &s, nil
}

// isDuplicateKey recognizes unique index violations whether or not the
// connection was opened with TranslateError.
func isDuplicateKey(db *gorm.DB, err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if t, ok := db.Dialector.(gorm.ErrorTranslator); ok {
		return errors.Is(t.Translate(err), gorm.ErrDuplicatedKey)
	}
	return false
}
