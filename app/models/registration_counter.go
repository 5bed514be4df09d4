package models

import "time"

// RegistrationCounterID is the primary key of the single counter row.
const RegistrationCounterID = 1

// RegistrationCounter holds the last registration order handed out.
type RegistrationCounter struct {
	ID           uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CurrentCount int64     `gorm:"not null;default:0" json:"current_count"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
