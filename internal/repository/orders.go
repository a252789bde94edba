package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"flashsale/internal/model"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order already exists for buyer and good")
	ErrStockExhausted = errors.New("durable stock exhausted")
)

const pgUniqueViolation = "23505"

// OrdersRepo owns the durable orders table. The unique constraint on
// (buyer_id, good_id) is the final arbiter against duplicate settlement.
type OrdersRepo struct {
	db *pgxpool.Pool
}

func NewOrdersRepo(db *pgxpool.Pool) *OrdersRepo {
	return &OrdersRepo{db: db}
}

func (r *OrdersRepo) GetByBuyerAndGood(ctx context.Context, buyerID, goodID int64) (*model.Order, error) {
	query := `SELECT id, buyer_id, good_id, good_name, price, created_at
	          FROM orders WHERE buyer_id = $1 AND good_id = $2`

	var o model.Order
	err := r.db.QueryRow(ctx, query, buyerID, goodID).
		Scan(&o.ID, &o.BuyerID, &o.GoodID, &o.GoodName, &o.Price, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	return &o, nil
}

func (r *OrdersRepo) List(ctx context.Context) ([]model.Order, error) {
	query := `SELECT id, buyer_id, good_id, good_name, price, created_at
	          FROM orders ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.GoodID, &o.GoodName, &o.Price, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// CreateFulfilled performs the settlement write: the optimistic conditional
// stock decrement and the order insert run in one transaction, so a
// redelivered message can never leave a decrement without its order.
// Returns ErrGoodNotFound, ErrStockExhausted (zero rows affected by the
// conditional decrement: fast-store/durable drift) or ErrDuplicateOrder
// (another delivery settled first).
func (r *OrdersRepo) CreateFulfilled(ctx context.Context, buyerID, goodID int64) (*model.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin settlement tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var name string
	var price int64
	err = tx.QueryRow(ctx, `SELECT name, price FROM goods WHERE id = $1`, goodID).Scan(&name, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGoodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select good for settlement: %w", err)
	}

	ct, err := tx.Exec(ctx,
		`UPDATE goods SET stock_count = stock_count - 1, updated_at = now()
		 WHERE id = $1 AND stock_count > 0`, goodID)
	if err != nil {
		return nil, fmt.Errorf("deduct stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrStockExhausted
	}

	o := model.Order{BuyerID: buyerID, GoodID: goodID, GoodName: name, Price: price}
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (buyer_id, good_id, good_name, price)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		buyerID, goodID, name, price).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrDuplicateOrder
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit settlement tx: %w", err)
	}
	return &o, nil
}
