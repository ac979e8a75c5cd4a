package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/vitewallet/ledger/internal/env"
	"github.com/vitewallet/ledger/internal/log"
	"github.com/vitewallet/ledger/internal/repository/postgres"
)

func main() {
	godotenv.Load()

	log.Setup(env.GetString("LOG_LEVEL", "INFO"))

	postgresURL := env.GetString("POSTGRES_URL",
		"postgres://postgres:dev@db:5432/postgres?connect_timeout=1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pg, err := pgxpool.New(ctx, postgresURL)
	if err != nil {
		slog.Error("connect to Postgres", "error", err)
		return
	}
	defer pg.Close()

	pgClient := postgres.New(pg, 1*time.Second)

	if err := pgClient.Ping(ctx); err != nil {
		slog.Error("check Postgres connection", "error", err)
		return
	}

	if err := pgClient.Migrate(ctx); err != nil {
		slog.Error("apply schema", "error", err)
		return
	}
}
