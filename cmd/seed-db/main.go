// Command seed-db provisions a development database with a few approved
// discounts so the API is usable immediately after startup.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/oakmart/ordercore/internal/domain/actor"
	"github.com/oakmart/ordercore/internal/domain/discount"
	"github.com/oakmart/ordercore/internal/storage/postgres"
)

var (
	seedStaff = actor.Actor{ID: "seed-staff", Role: actor.RoleStaff}
	seedAdmin = actor.Actor{ID: "seed-admin", Role: actor.RoleAdmin}
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewDiscountRepository(pool)
	return seedDiscounts(ctx, repo, discount.NewAdminService(repo))
}

func seedDiscounts(ctx context.Context, repo discount.Repository, admin *discount.AdminService) error {
	now := time.Now().UTC()
	cap25k := decimal.NewFromInt(25000)
	cap5k := decimal.NewFromInt(5000)
	limit100 := 100

	params := []discount.Params{
		{
			Code:              "SALE20",
			Percent:           20,
			MinOrderValue:     decimal.NewFromInt(100000),
			MaxDiscountAmount: &cap25k,
			StartDate:         now.AddDate(0, 0, -1),
			EndDate:           now.AddDate(0, 1, 0),
		},
		{
			Code:              "WELCOME10",
			Percent:           10,
			MinOrderValue:     decimal.NewFromInt(20000),
			MaxDiscountAmount: &cap5k,
			StartDate:         now.AddDate(0, 0, -1),
			EndDate:           now.AddDate(1, 0, 0),
			UsageLimit:        &limit100,
		},
		{
			Code:          "FLASH5",
			Percent:       5,
			MinOrderValue: decimal.Zero,
			StartDate:     now.AddDate(0, 0, -1),
			EndDate:       now.AddDate(0, 0, 7),
		},
	}

	for _, p := range params {
		// Re-running the seed is a no-op for codes that already exist.
		if _, err := repo.FindByCode(ctx, p.Code); err == nil {
			slog.Info("discount already present", slog.String("code", p.Code))
			continue
		} else if !errors.Is(err, discount.ErrNotFound) {
			return errors.Wrapf(err, "look up discount %s", p.Code)
		}

		d, err := admin.Create(ctx, p, seedStaff)
		if err != nil {
			return errors.Wrapf(err, "create discount %s", p.Code)
		}
		if _, err := admin.Approve(ctx, d.ID, seedAdmin); err != nil {
			return errors.Wrapf(err, "approve discount %s", p.Code)
		}

		slog.Info("seeded discount",
			slog.String("code", d.Code),
			slog.Int("percent", d.Percent),
		)
	}

	return nil
}
