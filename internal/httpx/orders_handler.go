package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/shukmarket/orders-backend/internal/kafka"
	"github.com/shukmarket/orders-backend/internal/orders"
	"github.com/shukmarket/orders-backend/internal/redisx"
	"github.com/shukmarket/orders-backend/internal/resolve"
)

type OrdersHandler struct {
	Engine       *orders.Engine
	Redis        *redis.Client
	ProdCreated  *kafkax.Producer
	ProdUpdated  *kafkax.Producer
	ProdRejected *kafkax.Producer
	Service      string
	Log          *zap.SugaredLogger
}

type CreateOrderReq struct {
	ExternalID string                   `json:"external_id"`
	ShopID     int64                    `json:"shop_id"`
	CustomerID string                   `json:"customer_id"`
	Items      []resolve.ProductRequest `json:"items"`
}

type PatchOrderReq struct {
	ShopID int64                    `json:"shop_id"`
	Remove []orders.RemoveOp        `json:"remove,omitempty"`
	Set    []orders.SetOp           `json:"set,omitempty"`
	Add    []resolve.ProductRequest `json:"add,omitempty"`
}

type SetStatusReq struct {
	Status orders.Status `json:"status"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Patch("/orders/{id}/items", h.patchOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/status", h.setStatus)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Get("/orders/{id}", h.getOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func orderIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ShopID <= 0 || req.CustomerID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Engine.CreateWithStockReserve(ctx, req.ShopID, req.CustomerID, req.ExternalID, req.Items)
	if err != nil {
		if errors.Is(err, orders.ErrInvalidOp) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if req.ExternalID != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, req.ShopID, req.ExternalID)
		_ = h.Redis.Set(ctx, idemKey, res.Order.ID, redisx.TTLIdempotency).Err()
	}
	h.cacheStatus(ctx, res.Order)

	if !res.Existed {
		h.publish(h.ProdCreated, orders.EventOrderCreated, res.Order.ID, r.Header.Get("X-Request-Id"),
			orders.OrderCreatedPayload{
				OrderID:    res.Order.ID,
				ShopID:     req.ShopID,
				CustomerID: req.CustomerID,
				ExternalID: req.ExternalID,
				Price:      res.Order.Price,
				ItemCount:  len(res.Items),
			})
		if len(res.Insufficient) > 0 {
			h.publish(h.ProdRejected, orders.EventStockRejected, res.Order.ID, r.Header.Get("X-Request-Id"),
				orders.StockRejectedPayload{OrderID: res.Order.ID, ShopID: req.ShopID, Details: res.Insufficient})
		}
	}

	writeJSON(w, http.StatusAccepted, res)
}

func (h *OrdersHandler) patchOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}
	var req PatchOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ShopID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing shop_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	patch := orders.Patch{Remove: req.Remove, Set: req.Set, Add: req.Add}
	res, err := h.Engine.ApplyPatch(ctx, req.ShopID, orderID, patch)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrInvalidOp):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, orders.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, orders.ErrOrderNotMutable):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			// The transaction rolled back; hand the caller a fresh view of
			// the untouched order so the conversation can continue.
			h.Log.Errorw("patch failed", "order_id", orderID, "error", err)
			order, items, readErr := h.Engine.GetOrder(ctx, orderID)
			if readErr != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": err.Error(),
				"order": order,
				"items": items,
			})
		}
		return
	}

	order, _, readErr := h.Engine.GetOrder(ctx, orderID)
	if readErr == nil {
		h.cacheStatus(ctx, order)
	}
	h.publish(h.ProdUpdated, orders.EventOrderUpdated, orderID, r.Header.Get("X-Request-Id"),
		orders.OrderUpdatedPayload{OrderID: orderID, ShopID: req.ShopID, Price: res.Meta.Price, ItemCount: len(res.Items)})
	if len(res.Insufficient) > 0 {
		h.publish(h.ProdRejected, orders.EventStockRejected, orderID, r.Header.Get("X-Request-Id"),
			orders.StockRejectedPayload{OrderID: orderID, ShopID: req.ShopID, Details: res.Insufficient})
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Engine.Cancel(ctx, orderID); err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
	writeJSON(w, http.StatusOK, map[string]string{"status": string(orders.StatusDeleted)})
}

func (h *OrdersHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}
	var req SetStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Engine.SetStatus(ctx, orderID, req.Status); err != nil {
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, orders.ErrInvalidOp):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
	writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, items, err := h.Engine.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, map[string]any{"order": order, "items": items})
}

// getStatus is the cheap polling endpoint: redis first, database on a miss.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	order, _, err := h.Engine.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, map[string]any{"status": order.Status, "price": order.Price})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	body, err := json.Marshal(map[string]any{"status": o.Status, "price": o.Price})
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) publish(p *kafkax.Producer, eventType string, orderID int64, traceID string, payload any) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       traceID,
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       kafkax.MustJSON(payload),
	}
	p.Publish(orders.PartitionKey(orderID), kafkax.MustJSON(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
