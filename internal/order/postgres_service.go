package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresService struct {
	pool *pgxpool.Pool
}

func NewPostgresService(ctx context.Context, dsn string) (*PostgresService, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	svc := &PostgresService{pool: pool}
	if err := svc.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return svc, nil
}

func (s *PostgresService) Close() {
	s.pool.Close()
}

func (s *PostgresService) Create(ctx context.Context, input CreateInput) (Order, error) {
	input, err := normalizeInput(input)
	if err != nil {
		return Order{}, err
	}

	row := s.pool.QueryRow(ctx, `
INSERT INTO orders (id, item, quantity, status, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, item, quantity, status, created_at
`, newOrderID(), input.Item, input.Quantity, StatusPlaced, time.Now().UTC())
	return scanOrder(row)
}

func (s *PostgresService) Get(ctx context.Context, id string) (Order, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, item, quantity, status, created_at
FROM orders
WHERE id = $1
`, strings.TrimSpace(id))
	return scanOrder(row)
}

func (s *PostgresService) Cancel(ctx context.Context, id string) (Order, error) {
	id = strings.TrimSpace(id)
	row := s.pool.QueryRow(ctx, `
UPDATE orders
SET status = $2
WHERE id = $1 AND status <> $2
RETURNING id, item, quantity, status, created_at
`, id, StatusCanceled)
	canceled, err := scanOrder(row)
	if !errors.Is(err, ErrOrderNotFound) {
		return canceled, err
	}

	existing, getErr := s.Get(ctx, id)
	if getErr != nil {
		return Order{}, getErr
	}
	return existing, ErrAlreadyCanceled
}

func (s *PostgresService) initSchema(ctx context.Context) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	item TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at DESC);`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initialize orders schema: %w", err)
		}
	}
	return nil
}

type orderRowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row orderRowScanner) (Order, error) {
	var out Order
	var status string
	err := row.Scan(&out.ID, &out.Item, &out.Quantity, &status, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	out.Status = Status(strings.TrimSpace(status))
	out.CreatedAt = out.CreatedAt.UTC()
	return out, nil
}
