package main

import (
	"log"

	"ai-chatflow-be/internal/config"
	"ai-chatflow-be/internal/model"
	"ai-chatflow-be/pkg/database"

	"github.com/fatih/color"
)

func main() {
	cfg := config.Load()

	db, err := database.Open(cfg.Database.Driver, cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	color.Cyan("Starting GORM migration (%s)...", driverName(cfg.Database.Driver))

	if driverName(cfg.Database.Driver) == "postgres" {
		color.White("Step 1: Setting up extensions...")
		for _, sql := range []string{
			`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
			`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
		} {
			if err := db.Exec(sql).Error; err != nil {
				color.Yellow("Warn: Failed to execute setup SQL: %v. Continuing...", err)
			}
		}
	}

	models := []interface{}{
		&model.User{},
		&model.UserProvider{},
		&model.Conversation{},
		&model.Message{},
	}

	color.White("Step 2: Running AutoMigrate for %d tables...", len(models))
	if err := db.AutoMigrate(models...); err != nil {
		color.Red("Error: AutoMigrate failed: %v", err)
		log.Fatal(err)
	}

	// Message history is always read per conversation in creation order.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages (conversation_id, created_at);`).Error; err != nil {
		color.Yellow("Warn: Failed to create composite index: %v", err)
	}

	color.Green("✅ Success: Database migration completed.")
}

func driverName(driver string) string {
	if driver == "" {
		return "postgres"
	}
	return driver
}
