package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Cancel deletes an order's lines and restores every reserved amount back to
// stock, then marks the order deleted. Reservation and release stay
// symmetric: the same locking discipline as remove, one transaction, product
// locks in ascending id order. Cancelling an already-deleted order is a
// no-op.
func (e *Engine) Cancel(ctx context.Context, orderID int64) error {
	tx, err := e.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if status == StatusDeleted {
		return nil
	}

	rows, err := tx.Query(ctx,
		`SELECT id, product_id, amount, sold_by_weight, requested_units
		 FROM order_item WHERE order_id=$1 ORDER BY id FOR UPDATE`, orderID)
	if err != nil {
		return fmt.Errorf("lock order items: %w", err)
	}
	lines, err := collectLines(rows, func(l lockedLine) int64 { return l.ID })
	if err != nil {
		return err
	}

	productIDs := make([]int64, 0, len(lines))
	for _, l := range lines {
		productIDs = append(productIDs, l.ProductID)
	}
	products, err := e.Catalog.LockProducts(ctx, tx, productIDs)
	if err != nil {
		return err
	}

	for _, l := range lines {
		if p, ok := products[l.ProductID]; ok && p.StockAmount != nil {
			if err := e.Catalog.AdjustStock(ctx, tx, l.ProductID, l.Amount); err != nil {
				return err
			}
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM order_item WHERE order_id=$1`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status=$2, price=0, updated_at=now() WHERE id=$1`,
		orderID, StatusDeleted); err != nil {
		return fmt.Errorf("mark order deleted: %w", err)
	}
	return tx.Commit(ctx)
}

// SetStatus performs a guarded status transition.
func (e *Engine) SetStatus(ctx context.Context, orderID int64, to Status) error {
	tx, err := e.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var from Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: cannot move order %d from %s to %s", ErrInvalidOp, orderID, from, to)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, orderID, to); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ExpireStalePending cancels pending orders untouched for longer than
// maxAge, restoring their reserved stock, and returns the expired ids. The
// background sweep in cmd/worker drives this.
func (e *Engine) ExpireStalePending(ctx context.Context, maxAge time.Duration) ([]int64, error) {
	rows, err := e.DB.Query(ctx,
		`SELECT id FROM orders WHERE status=$1 AND updated_at < now() - make_interval(secs => $2) ORDER BY id`,
		StatusPending, maxAge.Seconds())
	if err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expired []int64
	for _, id := range ids {
		if err := e.Cancel(ctx, id); err != nil {
			if e.Log != nil {
				e.Log.Warnw("expiring stale order failed", "order_id", id, "error", err)
			}
			continue
		}
		expired = append(expired, id)
	}
	return expired, nil
}

// GetOrder reads the current order and lines. Callers fall back to this
// after a failed patch to rebuild a consistent view.
func (e *Engine) GetOrder(ctx context.Context, orderID int64) (Order, []OrderItem, error) {
	order, err := scanOrder(e.DB.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM orders WHERE id=$1`, orderColumns), orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, nil, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, nil, err
	}
	items, err := loadItems(ctx, e.DB, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	return order, items, nil
}
