// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mmeshcher/cusip-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к журналу проверок в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure или Deadlocks.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// InsertVerifications сохраняет пачку записей журнала в одной транзакции.
func (r *PostgresRepository) InsertVerifications(ctx context.Context, records []model.Verification) error {
	if len(records) == 0 {
		return nil
	}

	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, rec := range records {
			_, err := tx.Exec(ctx,
				`INSERT INTO verifications
				 (client_id, code, valid, error_kind, error_position, provided_digit, calculated_digit, checksum, checked_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				rec.ClientID, rec.Code, rec.Valid, rec.ErrorKind, rec.Position,
				rec.ProvidedDigit, rec.CalculatedDigit, rec.Checksum, rec.CheckedAt,
			)
			if err != nil {
				return fmt.Errorf("insert verification: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// ListVerifications возвращает последние проверки клиента, новые первыми.
func (r *PostgresRepository) ListVerifications(ctx context.Context, clientID string, limit int) ([]model.Verification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT code, valid, error_kind, error_position, provided_digit, calculated_digit, checksum, checked_at
		 FROM verifications
		 WHERE client_id = $1
		 ORDER BY checked_at DESC, id DESC
		 LIMIT $2`,
		clientID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select verifications: %w", err)
	}
	defer rows.Close()

	var res []model.Verification
	for rows.Next() {
		v := model.Verification{ClientID: clientID}
		if err := rows.Scan(
			&v.Code, &v.Valid, &v.ErrorKind, &v.Position,
			&v.ProvidedDigit, &v.CalculatedDigit, &v.Checksum, &v.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		res = append(res, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ClearVerifications удаляет журнал проверок клиента и возвращает число удалённых записей.
func (r *PostgresRepository) ClearVerifications(ctx context.Context, clientID string) (int64, error) {
	var deleted int64

	err := r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`DELETE FROM verifications WHERE client_id = $1`,
			clientID,
		)
		if err != nil {
			return fmt.Errorf("delete verifications: %w", err)
		}
		deleted = cmdTag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}
