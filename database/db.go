package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// querier: общее подмножество pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DB struct {
	Pool *pgxpool.Pool
}

// Queries выполняет запросы либо в транзакции, либо напрямую через пул.
type Queries struct {
	db querier
}

func New(ctx context.Context, url string) (*DB, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("подключение к БД: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping БД: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate создаёт недостающие таблицы.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("миграция схемы: %w", err)
	}
	return nil
}

// Queries возвращает набор запросов без транзакции (autocommit).
func (db *DB) Queries() *Queries {
	return &Queries{db: db.Pool}
}

// InTx выполняет fn в одной транзакции: commit при nil, иначе rollback и ошибка наружу.
func (db *DB) InTx(ctx context.Context, fn func(q *Queries) error) error {
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		return fn(&Queries{db: tx})
	})
}

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
