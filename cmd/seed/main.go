// Command seed populates the development database with sample data.
package main

import (
	"context"
	"flag"
	"log"

	"whisperbox/internal/config"
	"whisperbox/internal/database"
	"whisperbox/internal/seed"
)

func main() {
	users := flag.Int("users", 25, "number of users to create")
	messages := flag.Int("messages", 8, "messages per user")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	opts := seed.DefaultOptions()
	opts.Users = *users
	opts.MessagesPerUser = *messages

	if err := seed.Seed(context.Background(), db, opts); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d users with %d messages each", opts.Users, opts.MessagesPerUser)
}
