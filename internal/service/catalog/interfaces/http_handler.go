// internal/service/catalog/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"dianping/internal/service/catalog/application"
	"dianping/internal/service/catalog/domain"
)

// ShopHandler 封装了 catalog 服务的 HTTP 处理器
type ShopHandler struct {
	service *application.ShopService
}

func NewShopHandler(service *application.ShopService) *ShopHandler {
	return &ShopHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ShopHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/shop", h.queryShopHandler)
}

func (h *ShopHandler) queryShopHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid shop id", http.StatusBadRequest)
		return
	}

	var shop *domain.Shop
	if r.URL.Query().Get("hot") == "true" {
		shop, err = h.service.QueryHotShopByID(r.Context(), id)
	} else {
		shop, err = h.service.QueryShopByID(r.Context(), id)
	}
	if errors.Is(err, domain.ErrShopNotFound) {
		http.Error(w, "shop not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("shop_id", id).Msg("query shop failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(shop)
}
