package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shukmarket/orders-backend/internal/catalog"
	"github.com/shukmarket/orders-backend/internal/resolve"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderNotMutable = errors.New("order no longer accepts item changes")
	ErrInvalidOp       = errors.New("invalid operation")
)

// Engine applies line-item mutations to orders while keeping stock_amount
// correct under concurrent access. Every mutation runs in one transaction,
// takes FOR UPDATE locks on the order_item and product rows it touches
// before writing, and locks product rows in ascending id order so
// overlapping transactions acquire locks in the same sequence.
type Engine struct {
	DB            *pgxpool.Pool
	Catalog       *catalog.Store
	Resolver      *resolve.Resolver
	Finder        *resolve.Finder
	MaxPerProduct int
	AltLimit      int
	Log           *zap.SugaredLogger
}

type lockedLine struct {
	ID             int64
	ProductID      int64
	Amount         decimal.Decimal
	SoldByWeight   bool
	RequestedUnits *int
}

// pendingShortfall is a reservation that could not be satisfied; the
// substitution question is built after commit, outside the locks.
type pendingShortfall struct {
	addIndex    *int
	orderItemID int64
	product     catalog.Product
	requested   decimal.Decimal
	available   decimal.Decimal
}

func (p Patch) validate() error {
	for _, op := range p.Remove {
		if op.OrderItemID <= 0 {
			return fmt.Errorf("%w: remove requires order_item_id", ErrInvalidOp)
		}
	}
	for _, op := range p.Set {
		if op.OrderItemID <= 0 {
			return fmt.Errorf("%w: set requires order_item_id", ErrInvalidOp)
		}
		if op.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: set requires a positive amount", ErrInvalidOp)
		}
	}
	for _, r := range p.Add {
		if r.Name == "" && r.SearchAlias == "" && (r.Category == "" || r.SubCategory == "") {
			return fmt.Errorf("%w: add requires a name or a full category/sub-category", ErrInvalidOp)
		}
	}
	return nil
}

// ApplyPatch runs one batch of remove/set/add operations against an order.
// Op groups execute in the fixed order remove -> set -> add; each group
// locks everything it touches before mutating. Shortfalls and resolution
// misses are results, not errors: the patch still commits for the items it
// could satisfy, and the order price is recomputed unconditionally.
func (e *Engine) ApplyPatch(ctx context.Context, shopID, orderID int64, patch Patch) (*PatchResult, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	batch, err := e.Resolver.ResolveBatch(ctx, shopID, patch.Add)
	if err != nil {
		return nil, err
	}

	res := &PatchResult{Meta: PatchMeta{OrderID: orderID}}
	var shortfalls []pendingShortfall

	tx, err := e.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM orders WHERE id=$1 AND shop_id=$2 FOR UPDATE`,
		orderID, shopID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if !status.Mutable() {
		return nil, ErrOrderNotMutable
	}

	if err := e.applyRemoves(ctx, tx, orderID, patch.Remove); err != nil {
		return nil, err
	}
	if err := e.applySets(ctx, tx, orderID, patch.Set, &res.CappedWarnings, &shortfalls); err != nil {
		return nil, err
	}
	if err := e.applyAdds(ctx, tx, orderID, batch.Found, &res.CappedWarnings, &shortfalls); err != nil {
		return nil, err
	}

	price, err := recomputePrice(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	res.Items = items
	res.Meta.Price = price

	notFound, insufficient, err := e.buildFollowups(ctx, shopID, batch.NotFound, shortfalls)
	if err != nil {
		// The mutation is committed; losing substitution options only costs
		// the customer a follow-up suggestion.
		if e.Log != nil {
			e.Log.Warnw("building follow-up questions failed", "order_id", orderID, "error", err)
		}
	} else {
		res.NotFoundAdds = notFound
		res.Insufficient = insufficient
	}
	return res, nil
}

func (e *Engine) applyRemoves(ctx context.Context, tx pgx.Tx, orderID int64, ops []RemoveOp) error {
	if len(ops) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(ops))
	for _, op := range ops {
		ids = append(ids, op.OrderItemID)
	}
	lines, err := lockLines(ctx, tx, orderID, ids)
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

	for _, op := range ops {
		line, ok := lines[op.OrderItemID]
		if !ok {
			// Line already gone; removing twice must not restore stock twice.
			continue
		}
		if p, found := products[line.ProductID]; found && p.StockAmount != nil {
			if err := e.Catalog.AdjustStock(ctx, tx, line.ProductID, line.Amount); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM order_item WHERE id=$1`, line.ID); err != nil {
			return fmt.Errorf("delete order item %d: %w", line.ID, err)
		}
		delete(lines, op.OrderItemID)
	}
	return nil
}

func (e *Engine) applySets(ctx context.Context, tx pgx.Tx, orderID int64, ops []SetOp, caps *[]CapWarning, shortfalls *[]pendingShortfall) error {
	if len(ops) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(ops))
	for _, op := range ops {
		ids = append(ids, op.OrderItemID)
	}
	lines, err := lockLines(ctx, tx, orderID, ids)
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
	avail := stockSnapshot(products)

	for _, op := range ops {
		line, ok := lines[op.OrderItemID]
		if !ok {
			continue
		}
		p, found := products[line.ProductID]
		if !found {
			continue
		}

		newAmount := op.Amount
		if !op.SoldByWeight {
			newAmount = decimal.NewFromInt(newAmount.IntPart())
			newAmount = e.capAmount(newAmount, op.Amount, p, caps)
		}
		newAmount = newAmount.Round(3)
		delta := newAmount.Sub(line.Amount).Round(3)

		switch {
		case delta.IsZero():
			// Metadata-only change: weight flag or display units.
			if _, err := tx.Exec(ctx,
				`UPDATE order_item SET sold_by_weight=$2, requested_units=$3, updated_at=now() WHERE id=$1`,
				line.ID, op.SoldByWeight, op.Units); err != nil {
				return fmt.Errorf("update order item %d: %w", line.ID, err)
			}
		case delta.Sign() > 0:
			if s := avail[line.ProductID]; s != nil && s.LessThan(delta) {
				*shortfalls = append(*shortfalls, pendingShortfall{
					orderItemID: line.ID,
					product:     p,
					requested:   newAmount,
					available:   line.Amount.Add(*s),
				})
				continue
			}
			if err := e.moveStock(ctx, tx, avail, line.ProductID, delta.Neg()); err != nil {
				return err
			}
			if err := updateLine(ctx, tx, line.ID, newAmount, op.SoldByWeight, op.Units, p.Price); err != nil {
				return err
			}
			line.Amount = newAmount
			lines[op.OrderItemID] = line
		default:
			if err := e.moveStock(ctx, tx, avail, line.ProductID, delta.Neg()); err != nil {
				return err
			}
			if err := updateLine(ctx, tx, line.ID, newAmount, op.SoldByWeight, op.Units, p.Price); err != nil {
				return err
			}
			line.Amount = newAmount
			lines[op.OrderItemID] = line
		}
	}
	return nil
}

type mergedAdd struct {
	product  catalog.Product
	request  resolve.ProductRequest
	amount   decimal.Decimal
	units    *int
	addIndex int
}

// mergeAdds folds duplicate product requests into one add per product,
// summing amounts, keeping the first occurrence's request and index.
func mergeAdds(found []resolve.Match) []mergedAdd {
	byProduct := map[int64]int{}
	var merged []mergedAdd
	for _, m := range found {
		amount := m.Request.EffectiveAmount()
		if at, ok := byProduct[m.Product.ID]; ok {
			merged[at].amount = merged[at].amount.Add(amount)
			merged[at].units = sumUnits(merged[at].units, m.Request.Units)
			continue
		}
		byProduct[m.Product.ID] = len(merged)
		merged = append(merged, mergedAdd{
			product:  m.Product,
			request:  m.Request,
			amount:   amount,
			units:    m.Request.Units,
			addIndex: m.Index,
		})
	}
	return merged
}

func (e *Engine) applyAdds(ctx context.Context, tx pgx.Tx, orderID int64, found []resolve.Match, caps *[]CapWarning, shortfalls *[]pendingShortfall) error {
	if len(found) == 0 {
		return nil
	}
	merged := mergeAdds(found)
	productIDs := make([]int64, 0, len(merged))
	for _, m := range merged {
		productIDs = append(productIDs, m.product.ID)
	}
	lines, err := lockLinesByProduct(ctx, tx, orderID, productIDs)
	if err != nil {
		return err
	}
	products, err := e.Catalog.LockProducts(ctx, tx, productIDs)
	if err != nil {
		return err
	}
	avail := stockSnapshot(products)

	for _, m := range merged {
		idx := m.addIndex
		p, ok := products[m.product.ID]
		if !ok {
			// Product disappeared between resolution and locking.
			*shortfalls = append(*shortfalls, pendingShortfall{
				addIndex:  &idx,
				product:   m.product,
				requested: m.amount,
				available: decimal.Zero,
			})
			continue
		}

		if line, exists := lines[p.ID]; exists {
			// The weight/unit mode of the existing line wins.
			target := line.Amount.Add(m.amount)
			if !line.SoldByWeight {
				requested := target
				target = decimal.NewFromInt(target.IntPart())
				target = e.capAmount(target, requested, p, caps)
			}
			target = target.Round(3)
			inc := target.Sub(line.Amount).Round(3)
			if inc.Sign() <= 0 {
				continue
			}
			if s := avail[p.ID]; s != nil && s.LessThan(inc) {
				*shortfalls = append(*shortfalls, pendingShortfall{
					addIndex:  &idx,
					product:   p,
					requested: target,
					available: line.Amount.Add(*s),
				})
				continue
			}
			if err := e.moveStock(ctx, tx, avail, p.ID, inc.Neg()); err != nil {
				return err
			}
			units := sumUnits(line.RequestedUnits, m.units)
			if err := updateLine(ctx, tx, line.ID, target, line.SoldByWeight, units, p.Price); err != nil {
				return err
			}
			line.Amount = target
			lines[p.ID] = line
			continue
		}

		amount := m.amount
		if !m.request.SoldByWeight {
			requested := amount
			amount = decimal.NewFromInt(amount.IntPart())
			amount = e.capAmount(amount, requested, p, caps)
		}
		amount = amount.Round(3)
		if amount.Sign() <= 0 {
			continue
		}
		if s := avail[p.ID]; s != nil && s.LessThan(amount) {
			*shortfalls = append(*shortfalls, pendingShortfall{
				addIndex:  &idx,
				product:   p,
				requested: amount,
				available: s.Copy(),
			})
			continue
		}
		if err := e.moveStock(ctx, tx, avail, p.ID, amount.Neg()); err != nil {
			return err
		}
		price := p.Price.Mul(amount).Round(2)
		var lineID int64
		err := tx.QueryRow(ctx,
			`INSERT INTO order_item(order_id, product_id, amount, sold_by_weight, requested_units, price)
			 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
			orderID, p.ID, amount, m.request.SoldByWeight, m.units, price).Scan(&lineID)
		if err != nil {
			return fmt.Errorf("insert order item for product %d: %w", p.ID, err)
		}
		lines[p.ID] = lockedLine{
			ID:             lineID,
			ProductID:      p.ID,
			Amount:         amount,
			SoldByWeight:   m.request.SoldByWeight,
			RequestedUnits: m.units,
		}
	}
	return nil
}

// capAmount clamps a unit-sold amount to MaxPerProduct, recording a warning
// when the clamp changed the value. The cap applies strictly after merging.
func (e *Engine) capAmount(amount, requested decimal.Decimal, p catalog.Product, caps *[]CapWarning) decimal.Decimal {
	if e.MaxPerProduct <= 0 {
		return amount
	}
	max := decimal.NewFromInt(int64(e.MaxPerProduct))
	if amount.LessThanOrEqual(max) {
		return amount
	}
	*caps = append(*caps, CapWarning{
		ProductID:   p.ID,
		ProductName: p.Name,
		Requested:   requested,
		Capped:      int64(e.MaxPerProduct),
	})
	return max
}

// moveStock applies a delta to both the database row and the in-transaction
// snapshot, so later ops in the same group see the updated availability.
func (e *Engine) moveStock(ctx context.Context, tx pgx.Tx, avail map[int64]*decimal.Decimal, productID int64, delta decimal.Decimal) error {
	if avail[productID] == nil {
		return nil // unlimited stock
	}
	if err := e.Catalog.AdjustStock(ctx, tx, productID, delta); err != nil {
		return err
	}
	next := avail[productID].Add(delta)
	avail[productID] = &next
	return nil
}

func stockSnapshot(products map[int64]catalog.Product) map[int64]*decimal.Decimal {
	out := make(map[int64]*decimal.Decimal, len(products))
	for id, p := range products {
		if p.StockAmount == nil {
			out[id] = nil
			continue
		}
		v := p.StockAmount.Copy()
		out[id] = &v
	}
	return out
}

func sumUnits(a, b *int) *int {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		n := *a + *b
		return &n
	}
}

func lockLines(ctx context.Context, tx pgx.Tx, orderID int64, ids []int64) (map[int64]lockedLine, error) {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rows, err := tx.Query(ctx,
		`SELECT id, product_id, amount, sold_by_weight, requested_units
		 FROM order_item WHERE order_id=$1 AND id = ANY($2)
		 ORDER BY id FOR UPDATE`,
		orderID, sorted)
	if err != nil {
		return nil, fmt.Errorf("lock order items: %w", err)
	}
	return collectLines(rows, func(l lockedLine) int64 { return l.ID })
}

func lockLinesByProduct(ctx context.Context, tx pgx.Tx, orderID int64, productIDs []int64) (map[int64]lockedLine, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, product_id, amount, sold_by_weight, requested_units
		 FROM order_item WHERE order_id=$1 AND product_id = ANY($2)
		 ORDER BY id FOR UPDATE`,
		orderID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("lock order items by product: %w", err)
	}
	return collectLines(rows, func(l lockedLine) int64 { return l.ProductID })
}

func collectLines(rows pgx.Rows, key func(lockedLine) int64) (map[int64]lockedLine, error) {
	defer rows.Close()
	out := map[int64]lockedLine{}
	for rows.Next() {
		var l lockedLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Amount, &l.SoldByWeight, &l.RequestedUnits); err != nil {
			return nil, err
		}
		out[key(l)] = l
	}
	return out, rows.Err()
}

func updateLine(ctx context.Context, tx pgx.Tx, lineID int64, amount decimal.Decimal, soldByWeight bool, units *int, unitPrice decimal.Decimal) error {
	price := unitPrice.Mul(amount).Round(2)
	if _, err := tx.Exec(ctx,
		`UPDATE order_item SET amount=$2, sold_by_weight=$3, requested_units=$4, price=$5, updated_at=now() WHERE id=$1`,
		lineID, amount, soldByWeight, units, price); err != nil {
		return fmt.Errorf("update order item %d: %w", lineID, err)
	}
	return nil
}

// recomputePrice rewrites the order total as the exact sum of its current
// line prices. It runs on every mutation, changed or not, so the visible
// total never drifts from the sum of its parts.
func recomputePrice(ctx context.Context, tx pgx.Tx, orderID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := tx.QueryRow(ctx,
		`UPDATE orders
		 SET price = COALESCE((SELECT SUM(price) FROM order_item WHERE order_id=$1), 0),
		     updated_at = now()
		 WHERE id=$1 RETURNING price`,
		orderID).Scan(&price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("recompute order price: %w", err)
	}
	return price, nil
}

func loadItems(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, orderID int64) ([]OrderItem, error) {
	rows, err := q.Query(ctx,
		`SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.amount, oi.sold_by_weight,
		        oi.requested_units, oi.price, oi.created_at, oi.updated_at
		 FROM order_item oi
		 JOIN product p ON p.id = oi.product_id
		 WHERE oi.order_id=$1 ORDER BY oi.id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Amount,
			&it.SoldByWeight, &it.RequestedUnits, &it.Price, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// buildFollowups turns resolution misses and stock shortfalls into
// substitution questions. It runs after commit: pure reads, no locks held,
// and already offered products are excluded across the whole batch.
func (e *Engine) buildFollowups(ctx context.Context, shopID int64, misses []resolve.Miss, shortfalls []pendingShortfall) ([]NotFoundAdd, []Shortfall, error) {
	questions, byIndex, err := e.Finder.BuildQuestions(ctx, shopID, misses, e.AltLimit, nil)
	if err != nil {
		return nil, nil, err
	}
	var notFound []NotFoundAdd
	var offered []int64
	for i, m := range misses {
		notFound = append(notFound, NotFoundAdd{Index: m.Index, Request: m.Request, Question: questions[i]})
		for _, p := range byIndex[m.Index] {
			offered = append(offered, p.ID)
		}
	}

	var insufficient []Shortfall
	for _, sf := range shortfalls {
		exclude := append(append([]int64(nil), offered...), sf.product.ID)
		alts, err := e.Finder.Find(ctx, shopID, sf.product.Category, sf.product.SubCategory,
			exclude, e.AltLimit, sf.product.Name, nil)
		if err != nil {
			return nil, nil, err
		}
		s := Shortfall{
			AddIndex:    sf.addIndex,
			OrderItemID: sf.orderItemID,
			ProductID:   sf.product.ID,
			ProductName: sf.product.Name,
			Requested:   sf.requested,
			Available:   sf.available,
		}
		for _, a := range alts {
			s.Alternatives = append(s.Alternatives, a.Name)
			offered = append(offered, a.ID)
		}
		insufficient = append(insufficient, s)
	}
	return notFound, insufficient, nil
}
