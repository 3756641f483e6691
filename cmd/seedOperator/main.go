package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"drumtrack/infrastructure/argon"
	"drumtrack/infrastructure/audit"
	"drumtrack/infrastructure/sqlite"
	"drumtrack/store"
)

func main() {
	dbPath := getenv("DRUMTRACK_SQLITE_PATH", "drumtrack.db")
	code := getenv("OPERATOR_CODE", "op1")
	name := getenv("OPERATOR_NAME", "Operator One")
	pin := getenv("OPERATOR_PIN", "4912")

	db, err := sqlite.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := sqlite.ApplyMigrations(context.Background(), db, ""); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	pinHash, err := argon.CreateHash(pin, argon.DefaultParams)
	if err != nil {
		log.Fatalf("hash pin: %v", err)
	}

	st := store.New(db, audit.NewService())
	if err := st.UpsertOperator(context.Background(), code, name, pinHash); err != nil {
		log.Fatalf("seed operator: %v", err)
	}

	fmt.Printf("seeded operator (code=%s)\n", code)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
