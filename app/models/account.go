package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_DISABLED = "disabled"
)

// Account owns exactly one Subscription for its whole lifetime.
type Account struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email            string     `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password         string     `gorm:"type:text" json:"-" validate:"required,min=6"`
	Status           string     `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active disabled"`
	IPv4             string     `gorm:"type:varchar(15);default:null" json:"-"`
	IPv6             string     `gorm:"type:varchar(45);default:null" json:"-"`
	APIKeyHash       string     `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix     string     `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt  *time.Time `json:"api_key_created_at"`
	APIKeyLastUsedAt *time.Time `json:"api_key_last_used_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

var validate = validator.New()

func (a *Account) Validate() error {
	return validate.Struct(a)
}

// NewAccount builds an active account with a hashed password. It is not persisted.
func NewAccount(name, email, password string) (*Account, error) {
	a := &Account{
		Name:     strings.TrimSpace(name),
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: password,
		Status:   STATUS_ACTIVE,
	}
	// validate the raw password length before it is replaced by the hash
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := a.SetPassword(password); err != nil {
		return nil, err
	}
	return a, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

func (a *Account) CheckPassword(password string) bool {
	return CheckPasswordHash(password, a.Password)
}

func (a *Account) SetPassword(password string) error {
	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}
	a.Password = hashed
	return nil
}

func (a *Account) IsActive() bool {
	return a.Status == STATUS_ACTIVE
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "ifx_"

// HasActiveAPIKey reports whether the account has an API key configured.
func (a *Account) HasActiveAPIKey() bool {
	return a != nil && a.APIKeyHash != ""
}

// IssueAPIKey generates a new API key, stores its hash on the struct and returns the raw secret.
// The raw key is never persisted; callers must save the account afterwards.
func (a *Account) IssueAPIKey() (string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return "", err
	}
	now := time.Now()
	a.APIKeyHash = hash
	a.APIKeyPrefix = prefix
	a.APIKeyCreatedAt = &now
	a.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// RevokeAPIKey clears the stored API key metadata.
func (a *Account) RevokeAPIKey() {
	a.APIKeyHash = ""
	a.APIKeyPrefix = ""
	a.APIKeyLastUsedAt = nil
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	rawKey := apiKeyPrefix + strings.ToLower(apiKeyEncoding.EncodeToString(b))
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	return rawKey, rawKey[:16], HashAPIKey(rawKey), nil
}
