package models

import "time"

// Message content length bounds enforced at the validation boundary.
const (
	MessageMinLen = 1
	MessageMaxLen = 2500
)

// Message is one direction-addressed note. A nil SenderID means the message
// was sent anonymously. Messages are only ever soft-deleted by normal flows.
type Message struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	ReceiverID  uint      `gorm:"not null;index" json:"receiverId"`
	SenderID    *uint     `gorm:"index" json:"senderId,omitempty"`
	IsAnonymous bool      `json:"isAnonymous"`
	IsViewed    bool      `gorm:"default:false" json:"isViewed"`
	IsDeleted   bool      `gorm:"default:false" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
