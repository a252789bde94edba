package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flashsale/internal/model"
)

var ErrGoodNotFound = errors.New("good not found")

// GoodsRepo owns the durable goods table. The stock column here is the
// settlement source of truth; only the fulfillment worker decrements it.
type GoodsRepo struct {
	db *pgxpool.Pool
}

func NewGoodsRepo(db *pgxpool.Pool) *GoodsRepo {
	return &GoodsRepo{db: db}
}

func (r *GoodsRepo) GetByID(ctx context.Context, id int64) (*model.Good, error) {
	query := `SELECT id, name, price, stock_count, status, created_at, updated_at
	          FROM goods WHERE id = $1`

	var g model.Good
	err := r.db.QueryRow(ctx, query, id).
		Scan(&g.ID, &g.Name, &g.Price, &g.StockCount, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGoodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select good: %w", err)
	}
	return &g, nil
}

func (r *GoodsRepo) List(ctx context.Context) ([]model.Good, error) {
	query := `SELECT id, name, price, stock_count, status, created_at, updated_at
	          FROM goods WHERE status = 1 ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list goods: %w", err)
	}
	defer rows.Close()

	var goods []model.Good
	for rows.Next() {
		var g model.Good
		if err := rows.Scan(&g.ID, &g.Name, &g.Price, &g.StockCount, &g.Status, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan good: %w", err)
		}
		goods = append(goods, g)
	}
	return goods, rows.Err()
}

func (r *GoodsRepo) Create(ctx context.Context, g *model.Good) error {
	query := `INSERT INTO goods (name, price, stock_count, status)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id, created_at, updated_at`

	if g.Status == 0 {
		g.Status = 1
	}
	err := r.db.QueryRow(ctx, query, g.Name, g.Price, g.StockCount, g.Status).
		Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert good: %w", err)
	}
	return nil
}

func (r *GoodsRepo) Update(ctx context.Context, g *model.Good) error {
	query := `UPDATE goods SET name = $2, price = $3, stock_count = $4, status = $5, updated_at = now()
	          WHERE id = $1`

	ct, err := r.db.Exec(ctx, query, g.ID, g.Name, g.Price, g.StockCount, g.Status)
	if err != nil {
		return fmt.Errorf("update good: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrGoodNotFound
	}
	return nil
}

func (r *GoodsRepo) Delete(ctx context.Context, id int64) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM goods WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete good: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrGoodNotFound
	}
	return nil
}

// SetStock writes the authoritative stock count directly. Used by the
// administrative reset, never by the fulfillment path.
func (r *GoodsRepo) SetStock(ctx context.Context, id int64, stock int) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE goods SET stock_count = $2, updated_at = now() WHERE id = $1`, id, stock)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrGoodNotFound
	}
	return nil
}
