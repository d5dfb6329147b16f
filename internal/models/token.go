package models

import "time"

// RefreshToken is one still-valid refresh session. The raw signed token is
// never stored, only its SHA-256 hash; a stored hash corresponds to at most
// one live session.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	TokenHash string    `gorm:"not null;index" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}
