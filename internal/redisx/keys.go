package redisx

import "time"

const (
	// Idempotent order creation: idem:order:create:{shop_id}:{external_id} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%d:%s"

	// Order status cache: order_status:{order_id} -> {"status": "...", "price": "..."}
	KeyOrderStatus = "order_status:%d"

	// Consumer dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Products already offered as substitutes in this conversation:
	// offered:{shop_id}:{customer_id} -> set of product ids. Keeps one turn's
	// questions from repeating the same suggestion.
	KeyOfferedProducts = "offered:%d:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLOffered     = 2 * time.Hour
)
