package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/mail"
)

// AccountLookup loads the recipient of a notice.
type AccountLookup interface {
	GetByID(id uint) (*models.Account, error)
}

// Notifier turns billing notifications into queued email jobs. Each
// notification key is enqueued at most once within the dedup window.
type Notifier struct {
	queue  *Queue
	window time.Duration
}

func NewNotifier(queue *Queue, window time.Duration) *Notifier {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	return &Notifier{queue: queue, window: window}
}

func (n *Notifier) Notify(ctx context.Context, note billing.Notification) error {
	payload := BillingNoticeJobPayload{
		Kind:      string(note.Kind),
		AccountID: note.AccountID,
		Key:       note.Key,
	}
	_, _, err := n.queue.EnqueueJobOnce(ctx, note.Key, n.window, JobTypeBillingNotice, payload.ToMap())
	return err
}

// BillingNoticeHandler emails the account named in a billing notice job.
// Missing or disabled accounts complete the job without sending.
func BillingNoticeHandler(accounts AccountLookup, sender mail.Sender, billingURL string) JobHandler {
	return func(ctx context.Context, job *Job) error {
		p, err := BillingNoticeJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid billing notice payload: %w", err)
		}

		account, err := accounts.GetByID(p.AccountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Warnf("[JobQueue] Billing notice %s: account %d no longer exists", p.Key, p.AccountID)
				return nil
			}
			return err
		}
		if !account.IsActive() {
			log.Infof("[JobQueue] Billing notice %s: account %d is disabled, skipping", p.Key, p.AccountID)
			return nil
		}

		msg, err := mail.BillingNotice(p.Kind, account.Email, mail.NoticeData{
			Name:       account.Name,
			BillingURL: billingURL,
		})
		if err != nil {
			log.Errorf("[JobQueue] Billing notice %s: %v", p.Key, err)
			return nil
		}
		return sender.Send(ctx, msg)
	}
}
