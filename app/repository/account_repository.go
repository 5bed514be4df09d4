package repository

import (
	"strings"
	"time"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"gorm.io/gorm"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(id uint) (*models.Account, error) {
	var account models.Account
	err := r.db.First(&account, id).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByEmail retrieves an account by its email address
func (r *accountRepository) GetByEmail(email string) (*models.Account, error) {
	var account models.Account
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByAPIKeyHash resolves an API key hash to its account.
func (r *accountRepository) GetByAPIKeyHash(hash string) (*models.Account, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var account models.Account
	if err := r.db.Where("api_key_hash = ? AND api_key_hash <> ''", trimmed).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// Update updates an existing account in the database
func (r *accountRepository) Update(account *models.Account) error {
	return r.db.Save(account).Error
}

// TouchAPIKeyUsage records the last time the account's API key authenticated a request.
func (r *accountRepository) TouchAPIKeyUsage(id uint, at time.Time) error {
	return r.db.Model(&models.Account{}).
		Where("id = ?", id).
		UpdateColumn("api_key_last_used_at", at).Error
}

// Count returns the total number of accounts
func (r *accountRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Account{}).Count(&count).Error
	return count, err
}
