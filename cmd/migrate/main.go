package main

import (
	"log"
	"os"

	"propman-be/internal/model"
	"propman-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(os.Getenv("DB_CONNECTION_STRING"), false)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Step 1: Setting up extensions...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warn: Failed to create pgcrypto extension: %v. Continuing...", err)
	}

	log.Println("Step 2: Running AutoMigrate...")
	if err := db.AutoMigrate(&model.Subscription{}, &model.PaymentAttempt{}); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// At most one current record per account.
	log.Println("Step 3: Creating constraints...")
	postMigrationSQL := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_subscriptions_one_current
		 ON subscriptions (account_id) WHERE is_current;`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_payment_attempts_checkout
		 ON payment_attempts (checkout_request_id) WHERE checkout_request_id <> '';`,
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("Success: Database migration completed.")
}
