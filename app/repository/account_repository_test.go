package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing/billingtest"
)

func seedAccount(t *testing.T, db *gorm.DB, email string) (*models.Account, string) {
	t.Helper()
	a, err := models.NewAccount("Jane Doe", email, "secret123")
	require.NoError(t, err)
	raw, err := a.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, db.Create(a).Error)
	return a, raw
}

func TestAccountRepository_Lookups(t *testing.T) {
	db := billingtest.NewTestDB(t)
	repo := NewFactory(db).GetAccountRepository()
	a, raw := seedAccount(t, db, "jane@example.com")

	got, err := repo.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", got.Email)

	got, err = repo.GetByEmail("  JANE@example.com ")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = repo.GetByAPIKeyHash(models.HashAPIKey(raw))
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = repo.GetByAPIKeyHash("")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.GetByAPIKeyHash(models.HashAPIKey("ifx_wrong"))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.GetByID(999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAccountRepository_RotateAndTouch(t *testing.T) {
	db := billingtest.NewTestDB(t)
	repo := NewAccountRepository(db)
	a, oldKey := seedAccount(t, db, "max@example.com")

	newKey, err := a.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, repo.Update(a))

	_, err = repo.GetByAPIKeyHash(models.HashAPIKey(oldKey))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.TouchAPIKeyUsage(a.ID, at))

	got, err := repo.GetByAPIKeyHash(models.HashAPIKey(newKey))
	require.NoError(t, err)
	require.NotNil(t, got.APIKeyLastUsedAt)
	assert.True(t, got.APIKeyLastUsedAt.Equal(at))
}

func TestFactory_ReusesRepositories(t *testing.T) {
	f := NewFactory(billingtest.NewTestDB(t))
	assert.Same(t, f.Repositories(), f.Repositories())
	assert.NotNil(t, f.GetAccountRepository())
}
