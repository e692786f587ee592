package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shukmarket/orders-backend/internal/catalog"
	"github.com/shukmarket/orders-backend/internal/redisx"
	"github.com/shukmarket/orders-backend/internal/resolve"
	"github.com/shukmarket/orders-backend/internal/tokenize"
)

type ResolveHandler struct {
	Resolver *resolve.Resolver
	Finder   *resolve.Finder
	Weights  *tokenize.WeightStore
	Redis    *redis.Client
	AltLimit int
	Log      *zap.SugaredLogger
}

type ResolveReq struct {
	ShopID     int64                    `json:"shop_id"`
	CustomerID string                   `json:"customer_id"`
	Items      []resolve.ProductRequest `json:"items"`
}

type ResolveResp struct {
	Found        []resolve.Match           `json:"found"`
	NotFound     []resolve.Miss            `json:"not_found"`
	AltQuestions []resolve.AltQuestion     `json:"alt_questions,omitempty"`
	Alternatives map[int][]catalog.Product `json:"alternatives,omitempty"`
}

func (h *ResolveHandler) Register(r *chi.Mux) {
	r.Post("/resolve", h.resolveBatch)
	r.Post("/shops/{shopID}/token-weights/rebuild", h.rebuildWeights)
}

// resolveBatch runs the resolver over a request list and, for the misses,
// builds substitution questions. Products offered earlier in the same
// conversation are read from redis and excluded, and the new offers are
// recorded, so later turns never repeat a suggestion.
func (h *ResolveHandler) resolveBatch(w http.ResponseWriter, r *http.Request) {
	var req ResolveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ShopID <= 0 || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	batch, err := h.Resolver.ResolveBatch(ctx, req.ShopID, req.Items)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := ResolveResp{Found: batch.Found, NotFound: batch.NotFound}
	if len(batch.NotFound) > 0 {
		offered := h.offeredProducts(ctx, req.ShopID, req.CustomerID)
		questions, byIndex, err := h.Finder.BuildQuestions(ctx, req.ShopID, batch.NotFound, h.AltLimit, offered)
		if err != nil {
			h.Log.Warnw("building alternative questions failed", "shop_id", req.ShopID, "error", err)
		} else {
			resp.AltQuestions = questions
			resp.Alternatives = byIndex
			h.recordOffered(ctx, req.ShopID, req.CustomerID, byIndex)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ResolveHandler) rebuildWeights(w http.ResponseWriter, r *http.Request) {
	shopID, err := strconv.ParseInt(chi.URLParam(r, "shopID"), 10, 64)
	if err != nil || shopID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid shop id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := h.Weights.Rebuild(ctx, shopID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

func (h *ResolveHandler) offeredProducts(ctx context.Context, shopID int64, customerID string) []int64 {
	if customerID == "" {
		return nil
	}
	key := fmt.Sprintf(redisx.KeyOfferedProducts, shopID, customerID)
	members, err := h.Redis.SMembers(ctx, key).Result()
	if err != nil {
		return nil
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if id, err := strconv.ParseInt(m, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (h *ResolveHandler) recordOffered(ctx context.Context, shopID int64, customerID string, byIndex map[int][]catalog.Product) {
	if customerID == "" {
		return
	}
	var members []any
	for _, alts := range byIndex {
		for _, p := range alts {
			members = append(members, strconv.FormatInt(p.ID, 10))
		}
	}
	if len(members) == 0 {
		return
	}
	key := fmt.Sprintf(redisx.KeyOfferedProducts, shopID, customerID)
	_ = h.Redis.SAdd(ctx, key, members...).Err()
	_ = h.Redis.Expire(ctx, key, redisx.TTLOffered).Err()
}
