/**
 * @description
 * Script to load a small demo marketplace into the settlement database: a buyer, two
 * suppliers, agreements in several states and a handful of unpaid submissions.
 *
 * Usage:
 *   go run ./cmd/seed [-y]
 *
 * Without -y the script asks for confirmation before writing.
 *
 * @dependencies
 * - github.com/joho/godotenv: loads DATABASE_URL from .env files.
 * - github.com/google/uuid: stable identifiers printed for manual testing.
 * - Environment variables: DATABASE_URL
 */
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/vendor-manager/settlement-service/internal/domain"
	"github.com/vendor-manager/settlement-service/internal/store"
	"github.com/vendor-manager/settlement-service/internal/store/migrations"
)

type seedSubmission struct {
	description string
	price       string
}

type seedAgreement struct {
	supplier    int
	status      domain.AgreementStatus
	terms       string
	submissions []seedSubmission
}

var (
	seedAccounts = []struct {
		name    string
		balance string
	}{
		{"Northwind Buyer", "1000.00"},
		{"Acme Supplies", "0.00"},
		{"Globex Services", "250.00"},
	}

	seedAgreements = []seedAgreement{
		{supplier: 1, status: domain.AgreementStatusInProgress, terms: "Monthly stationery supply", submissions: []seedSubmission{
			{"January delivery", "120.00"},
			{"February delivery", "135.50"},
		}},
		{supplier: 2, status: domain.AgreementStatusInProgress, terms: "Office cleaning", submissions: []seedSubmission{
			{"Week 1 cleaning", "80.00"},
		}},
		{supplier: 2, status: domain.AgreementStatusNew, terms: "Window maintenance"},
		{supplier: 1, status: domain.AgreementStatusTerminated, terms: "Expired print contract", submissions: []seedSubmission{
			{"Final print run", "40.00"},
		}},
	}
)

func main() {
	confirmed := len(os.Args) == 2 && os.Args[1] == "-y"
	if len(os.Args) > 2 || (len(os.Args) == 2 && !confirmed) {
		fmt.Println("Usage: go run ./cmd/seed [-y]")
		os.Exit(1)
	}

	// Load environment variables from .env file if it exists
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	if !confirmed {
		fmt.Printf("Seed demo data into %s? (yes/no): ", redactURL(databaseURL))
		var confirmation string
		fmt.Scanln(&confirmation)
		if confirmation != "yes" {
			fmt.Println("Seeding cancelled.")
			os.Exit(0)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	repo := store.NewPostgresRepository(pool)
	err = repo.WithTx(ctx, func(ctx context.Context) error {
		return seed(ctx, repo)
	})
	if err != nil {
		log.Fatalf("Failed to seed data: %v", err)
	}

	fmt.Println("Successfully seeded demo data.")
}

func seed(ctx context.Context, repo *store.PostgresRepository) error {
	accounts := make([]*domain.Account, 0, len(seedAccounts))
	for _, a := range seedAccounts {
		account := &domain.Account{
			ID:      uuid.NewString(),
			Name:    a.name,
			Balance: decimal.RequireFromString(a.balance),
		}
		if err := repo.CreateAccount(ctx, account); err != nil {
			return fmt.Errorf("create account %q: %w", a.name, err)
		}
		accounts = append(accounts, account)
		fmt.Printf("Account   %s  %-16s balance %s\n", account.ID, account.Name, account.Balance.StringFixed(2))
	}

	buyer := accounts[0]
	for _, a := range seedAgreements {
		agreement := &domain.Agreement{
			ID:         uuid.NewString(),
			BuyerID:    buyer.ID,
			SupplierID: accounts[a.supplier].ID,
			Status:     a.status,
			Terms:      a.terms,
		}
		if err := repo.CreateAgreement(ctx, agreement); err != nil {
			return fmt.Errorf("create agreement %q: %w", a.terms, err)
		}
		fmt.Printf("Agreement %s  %-16s %s\n", agreement.ID, agreement.Status, agreement.Terms)

		for _, s := range a.submissions {
			submission := &domain.Submission{
				ID:          uuid.NewString(),
				AgreementID: agreement.ID,
				Description: s.description,
				Price:       decimal.RequireFromString(s.price),
			}
			if err := repo.CreateSubmission(ctx, submission); err != nil {
				return fmt.Errorf("create submission %q: %w", s.description, err)
			}
			fmt.Printf("  Submission %s  price %s  %s\n", submission.ID, submission.Price.StringFixed(2), submission.Description)
		}
	}
	return nil
}

// redactURL hides the password in a connection string before printing it.
func redactURL(raw string) string {
	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		return "the configured database"
	}
	return fmt.Sprintf("%s@%s:%d/%s", cfg.ConnConfig.User, cfg.ConnConfig.Host, cfg.ConnConfig.Port, cfg.ConnConfig.Database)
}
