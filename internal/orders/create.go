package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shukmarket/orders-backend/internal/resolve"
)

const orderColumns = `id, shop_id, customer_id, COALESCE(external_id,''), status, price,
	COALESCE(payment_method,''), COALESCE(delivery_address,''), created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ShopID, &o.CustomerID, &o.ExternalID, &o.Status, &o.Price,
		&o.PaymentMethod, &o.DeliveryAddress, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateWithStockReserve opens a new order and reserves stock for every
// request it can fully satisfy; the rest becomes shortfalls or not-found
// results with substitution questions. An order row is created even when
// nothing could be reserved, so the conversation has a stable order id to
// keep referring to. The external id makes retries of the same inbound
// message idempotent.
func (e *Engine) CreateWithStockReserve(ctx context.Context, shopID int64, customerID, externalID string, reqs []resolve.ProductRequest) (*CreateResult, error) {
	if externalID != "" {
		existing, err := e.lookupByExternalID(ctx, shopID, externalID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	for _, r := range reqs {
		if r.Name == "" && r.SearchAlias == "" && (r.Category == "" || r.SubCategory == "") {
			return nil, fmt.Errorf("%w: request needs a name or a full category/sub-category", ErrInvalidOp)
		}
	}

	batch, err := e.Resolver.ResolveBatch(ctx, shopID, reqs)
	if err != nil {
		return nil, err
	}

	res := &CreateResult{}
	var shortfalls []pendingShortfall

	tx, err := e.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order, err := scanOrder(tx.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO orders(shop_id, customer_id, external_id, status, price)
		 VALUES ($1, $2, NULLIF($3,''), $4, 0)
		 RETURNING %s`, orderColumns),
		shopID, customerID, externalID, StatusPending))
	if err != nil {
		// A concurrent create with the same external id won the insert; its
		// commit released the unique-index wait, so the row is visible now.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && externalID != "" {
			_ = tx.Rollback(ctx)
			existing, lookErr := e.lookupByExternalID(ctx, shopID, externalID)
			if lookErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if err := e.applyAdds(ctx, tx, order.ID, batch.Found, &res.CappedWarnings, &shortfalls); err != nil {
		return nil, err
	}

	price, err := recomputePrice(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	order.Price = price
	res.Order = order
	res.Items = items

	notFound, insufficient, err := e.buildFollowups(ctx, shopID, batch.NotFound, shortfalls)
	if err != nil {
		if e.Log != nil {
			e.Log.Warnw("building follow-up questions failed", "order_id", order.ID, "error", err)
		}
		return res, nil
	}
	res.NotFoundAdds = notFound
	res.Insufficient = insufficient
	return res, nil
}

// lookupByExternalID returns the already-created order for an external id,
// or nil when none exists yet.
func (e *Engine) lookupByExternalID(ctx context.Context, shopID int64, externalID string) (*CreateResult, error) {
	existing, err := scanOrder(e.DB.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM orders WHERE shop_id=$1 AND external_id=$2`, orderColumns),
		shopID, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, e.DB, existing.ID)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Order: existing, Items: items, Existed: true}, nil
}
