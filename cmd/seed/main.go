// Command seed fills a running fintrack API with demo data for one user.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/client"
	"fintrack/internal/core"
	"fintrack/internal/log"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

func main() {
	baseURL := flag.String("url", "http://localhost:5000", "base URL of the fintrack API")
	email := flag.String("email", "demo@fintrack.local", "demo user email; logged in if it already exists")
	password := flag.String("password", "demo-password", "demo user password")
	count := flag.Int("transactions", 60, "number of transactions to create")
	months := flag.Int("months", 6, "spread transactions and budgets over this many months")
	seed := flag.Int64("seed", 0, "random seed; 0 picks one from the clock")
	flag.Parse()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentSeed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	faker := gofakeit.New(*seed)
	api := client.New(*baseURL, client.WithLogger(logger))

	session, err := api.Register(ctx, faker.Name(), *email, *password)
	if errors.Is(err, core.ErrConflict) {
		session, err = api.Login(ctx, *email, *password)
	}
	if err != nil {
		logger.Error("Failed to authenticate demo user", log.FieldError, err)
		os.Exit(1)
	}
	ctx = client.WithToken(ctx, session.Token)
	logger.Info("Seeding demo data", log.FieldUserID, session.ID, "email", *email, "seed", *seed)

	s := seeder{api: api, faker: faker, now: time.Now().UTC(), months: max(*months, 1)}
	if err := s.budgets(ctx); err != nil {
		logger.Error("Failed to seed budgets", log.FieldError, err)
		os.Exit(1)
	}
	created, err := s.transactions(ctx, *count)
	if err != nil {
		logger.Error("Failed to seed transactions", log.FieldError, err, "created", created)
		os.Exit(1)
	}

	alerts, err := api.Alerts(ctx, 0)
	if err != nil {
		logger.Warn("Failed to list alerts", log.FieldError, err)
	}
	logger.Info("Seeding complete", "transactions", created, "alerts", len(alerts))
}

type seeder struct {
	api    *client.Client
	faker  *gofakeit.Faker
	now    time.Time
	months int
}

func (s seeder) budgets(ctx context.Context) error {
	for i := 0; i < s.months; i++ {
		month, year := core.MonthYear(s.now.AddDate(0, -i, 0))
		amount := decimal.NewFromInt(int64(s.faker.Number(8, 20) * 100))
		if _, err := s.api.SetBudget(ctx, month, year, amount); err != nil {
			return err
		}
	}
	return nil
}

func (s seeder) transactions(ctx context.Context, n int) (int, error) {
	categories := core.Categories()
	start := core.PeriodOf(s.now.AddDate(0, -(s.months - 1), 0)).Start

	for i := 0; i < n; i++ {
		in := client.TransactionInput{
			Title:    title(s.faker.Company()),
			Type:     core.Expense,
			Category: categories[s.faker.Number(0, len(categories)-1)],
			Date:     s.faker.DateRange(start, s.now),
			Amount:   decimal.NewFromFloat(s.faker.Price(3, 250)).Round(2),
		}
		// roughly one in six is a paycheck or refund
		if s.faker.Number(1, 6) == 1 {
			in.Type = core.Income
			in.Category = core.Others
			in.Amount = decimal.NewFromFloat(s.faker.Price(800, 3000)).Round(2)
		}
		if s.faker.Bool() {
			in.Notes = s.faker.Sentence(6)
		}
		if _, err := s.api.CreateTransaction(ctx, in); err != nil {
			return i, err
		}
	}
	return n, nil
}

func title(s string) string {
	r := []rune(s)
	if len(r) > core.MaxTitleLength {
		r = r[:core.MaxTitleLength]
	}
	return string(r)
}
