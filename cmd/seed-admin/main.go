package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/egrangel/facerecon-sub001/internal/auth"
)

// Seeds the default organization and an active admin account. Safe to run
// repeatedly; existing rows are left alone.
func main() {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		dbUser = "facerecon"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "facerecon"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "facerecon"
	}

	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@example.com"
	}
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		log.Fatal("ADMIN_PASSWORD is required")
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", dbUser, dbPass, dbHost, dbName)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	var orgID int64
	err = db.QueryRow(`SELECT id FROM organizations WHERE name = 'Default Organization'`).Scan(&orgID)
	if err == sql.ErrNoRows {
		err = db.QueryRow(`
			INSERT INTO organizations (name)
			VALUES ('Default Organization')
			RETURNING id`).Scan(&orgID)
	}
	if err != nil {
		log.Fatalf("Organization seed failed: %v", err)
	}

	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		log.Fatalf("Password hash failed: %v", err)
	}

	_, err = db.Exec(`
		INSERT INTO users (organization_id, email, password_hash, is_active)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (email) DO NOTHING`, orgID, adminEmail, hash)
	if err != nil {
		log.Fatalf("User seed failed: %v", err)
	}

	fmt.Printf("SUCCESS: organization %d seeded with admin %s\n", orgID, adminEmail)
}
