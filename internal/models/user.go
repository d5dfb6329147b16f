// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Role is the authorization role of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Gender values accepted on signup.
const (
	GenderMale   = "Male"
	GenderFemale = "Female"
)

// AccountState is the derived lifecycle state of a user account.
type AccountState int

const (
	// StatePendingConfirmation: created but email not yet verified.
	StatePendingConfirmation AccountState = iota
	// StateActive: confirmed and not frozen.
	StateActive
	// StateSelfFrozen: deactivated by the owner; login auto-restores.
	StateSelfFrozen
	// StateBanned: frozen by another actor (admin); login is refused.
	StateBanned
)

// User represents an account in the Whisperbox application.
type User struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	FirstName string `gorm:"not null" json:"firstName"`
	LastName  string `gorm:"not null" json:"lastName"`
	Email     string `gorm:"unique;not null" json:"email,omitempty"`
	Password  string `gorm:"not null" json:"-"`
	Gender    string `gorm:"default:Male" json:"gender"`
	Phone     string `json:"phone,omitempty"`
	Role      Role   `gorm:"type:varchar(16);default:user" json:"role"`

	IsConfirmed bool       `gorm:"default:false" json:"isConfirmed"`
	OTPCode     string     `json:"-"`
	OTPExpires  *time.Time `json:"-"`
	OTPAttempts int        `gorm:"default:0" json:"-"`

	PasswordResetCode     string     `json:"-"`
	PasswordResetExpires  *time.Time `json:"-"`
	PasswordResetVerified bool       `gorm:"default:false" json:"-"`

	IsDeleted  bool       `gorm:"default:false;index" json:"-"`
	DeletedBy  *uint      `json:"-"`
	DeletedAt  *time.Time `json:"-"`
	RestoredBy *uint      `json:"-"`
	RestoredAt *time.Time `json:"-"`

	AvatarURL string `json:"avatarUrl"`
	AvatarKey string `json:"-"`

	GoogleID *string `gorm:"uniqueIndex" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName returns the display name used in emails and profiles.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// State derives the account lifecycle state from the persisted flags.
func (u *User) State() AccountState {
	if u.IsDeleted {
		if u.DeletedBy != nil && *u.DeletedBy == u.ID {
			return StateSelfFrozen
		}
		return StateBanned
	}
	if !u.IsConfirmed {
		return StatePendingConfirmation
	}
	return StateActive
}

// PublicProfile is the projection returned for other users' profiles.
type PublicProfile struct {
	ID        uint   `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
	Gender    string `json:"gender"`
	AvatarURL string `json:"avatarUrl"`
}

// Public returns the restricted view of the user visible to anyone.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName(),
		Gender:    u.Gender,
		AvatarURL: u.AvatarURL,
	}
}
