package orders

import "strconv"

const (
	TopicOrderCreated   = "order.created"
	TopicOrderUpdated   = "order.updated"
	TopicStockRejected  = "order.stock.rejected"
	TopicOrderExpired   = "order.expired"
	TopicCatalogChanged = "catalog.changed"
)

// Partition key = order id, so every event of one order keeps its order.
func PartitionKey(orderID int64) []byte {
	return []byte(strconv.FormatInt(orderID, 10))
}
