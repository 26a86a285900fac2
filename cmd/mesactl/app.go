package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dukerupert/mesa/internal/domain"
	"github.com/dukerupert/mesa/internal/postgres"
)

// adminStore is the subset of postgres.SubscriptionStore the CLI drives.
type adminStore interface {
	domain.OverrideStore
	CreateForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
	GetByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.SubscriptionRecord, error)
}

type app struct {
	databaseURL string

	store adminStore
	sqlDB *sql.DB
	pool  *pgxpool.Pool
	now   func() time.Time
}

func newApp() *app {
	return &app{now: time.Now}
}

// init connects lazily so tests can inject a store before Execute.
func (a *app) init(cmd *cobra.Command) error {
	if a.store != nil {
		return nil
	}
	_ = godotenv.Load()
	if a.databaseURL == "" {
		a.databaseURL = os.Getenv("DATABASE_URL")
	}
	if a.databaseURL == "" {
		return errors.New("no database configured: pass --database-url or set DATABASE_URL")
	}

	db, err := sql.Open("pgx", a.databaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.sqlDB = db

	pool, err := pgxpool.New(cmd.Context(), a.databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	a.pool = pool
	a.store = postgres.NewSubscriptionStore(pool)
	return nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.sqlDB != nil {
		a.sqlDB.Close()
	}
}

func parseTenant(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant id %q: %w", raw, err)
	}
	return id, nil
}

// expectOne turns the affected row count of a tenant-scoped write into an error.
func expectOne(rows int64, tenantID uuid.UUID) error {
	switch {
	case rows == 0:
		return fmt.Errorf("no subscription record for tenant %s", tenantID)
	case rows > 1:
		return fmt.Errorf("integrity fault: %d records updated for tenant %s", rows, tenantID)
	}
	return nil
}
