package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

func connectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}

	// The database may still be coming up alongside the service.
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(connectCtx, backoff, func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return db, nil
}
