// Package seed populates a development database with plausible data.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"whisperbox/internal/models"
)

// Options controls how much data Seed creates.
type Options struct {
	Users           int
	MessagesPerUser int
	Password        string
	IncludeAdmin    bool
}

// DefaultOptions are sized for a quick local environment.
func DefaultOptions() Options {
	return Options{
		Users:           25,
		MessagesPerUser: 8,
		Password:        "Password123",
		IncludeAdmin:    true,
	}
}

// Seed fills the database with confirmed users and messages between them.
// Every generated account shares the same known password for local testing.
func Seed(ctx context.Context, db *gorm.DB, opts Options) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing seed password: %w", err)
	}

	var users []*models.User

	if opts.IncludeAdmin {
		admin := &models.User{
			FirstName:   "Ada",
			LastName:    "Admin",
			Email:       "admin@whisperbox.local",
			Password:    string(hash),
			Gender:      models.GenderFemale,
			Role:        models.RoleAdmin,
			IsConfirmed: true,
		}
		if err := db.WithContext(ctx).Create(admin).Error; err != nil {
			return fmt.Errorf("creating admin: %w", err)
		}
		users = append(users, admin)
	}

	for i := 0; i < opts.Users; i++ {
		gender := models.GenderMale
		if gofakeit.Bool() {
			gender = models.GenderFemale
		}
		user := &models.User{
			FirstName:   gofakeit.FirstName(),
			LastName:    gofakeit.LastName(),
			Email:       fmt.Sprintf("user%d@%s", i, gofakeit.DomainName()),
			Password:    string(hash),
			Gender:      gender,
			Phone:       gofakeit.Phone(),
			Role:        models.RoleUser,
			IsConfirmed: true,
		}
		if err := db.WithContext(ctx).Create(user).Error; err != nil {
			return fmt.Errorf("creating user %d: %w", i, err)
		}
		users = append(users, user)
	}

	for _, receiver := range users {
		for i := 0; i < opts.MessagesPerUser; i++ {
			message := &models.Message{
				Content:    gofakeit.Sentence(rand.Intn(12) + 3),
				ReceiverID: receiver.ID,
				IsViewed:   gofakeit.Bool(),
				CreatedAt:  gofakeit.DateRange(time.Now().AddDate(0, -1, 0), time.Now()),
			}
			// Roughly half the messages carry a sender identity.
			if gofakeit.Bool() {
				sender := users[rand.Intn(len(users))]
				if sender.ID != receiver.ID {
					id := sender.ID
					message.SenderID = &id
					message.IsAnonymous = false
				} else {
					message.IsAnonymous = true
				}
			} else {
				message.IsAnonymous = true
			}
			if err := db.WithContext(ctx).Create(message).Error; err != nil {
				return fmt.Errorf("creating message for user %d: %w", receiver.ID, err)
			}
		}
	}

	return nil
}
