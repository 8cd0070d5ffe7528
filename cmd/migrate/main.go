package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/windfall/jamtalk_service/internal/client"
	"github.com/windfall/jamtalk_service/migrations"
)

func main() {
	var (
		direction string
		dbURL     string
		timeout   time.Duration
	)

	flag.StringVar(&direction, "direction", "up", "Migration direction: up, down, or status")
	flag.StringVar(&dbURL, "db", "", "Database URL (or set DATABASE_URL env var)")
	flag.DurationVar(&timeout, "timeout", time.Minute, "Time allowed for the migration")
	flag.Parse()

	// Get database URL from flag or environment
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("Database URL is required. Set -db flag or DATABASE_URL env var")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pg, err := client.NewPostgresClient(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pg.Close()

	db := pg.DB()
	switch direction {
	case "up":
		err = migrations.Up(ctx, db)
	case "down":
		err = migrations.Down(ctx, db)
	case "status":
		err = migrations.Status(ctx, db)
	default:
		log.Fatalf("Unknown direction: %s (use up, down, or status)", direction)
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}
