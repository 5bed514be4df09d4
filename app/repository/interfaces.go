package repository

import (
	"time"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"gorm.io/gorm"
)

// AccountRepository defines the interface for account-related database operations.
// Account creation goes through billing.Service.Register so that the account and
// its subscription row are written in one transaction.
type AccountRepository interface {
	GetByID(id uint) (*models.Account, error)
	GetByEmail(email string) (*models.Account, error)
	GetByAPIKeyHash(hash string) (*models.Account, error)
	Update(account *models.Account) error
	TouchAPIKeyUsage(id uint, at time.Time) error
	Count() (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Account AccountRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account: NewAccountRepository(db),
	}
}
