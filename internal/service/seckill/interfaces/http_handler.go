// internal/service/seckill/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"dianping/internal/service/seckill/application"
	"dianping/internal/service/seckill/domain"
)

const serviceName = "seckill-service"

// SeckillHandler 封装了 seckill 服务的 HTTP 处理器。
// 路由和参数解析都很薄：鉴权、会话属于外围系统，这里只认
// 上游网关注入的 X-User-Id。
type SeckillHandler struct {
	service *application.SeckillService
}

// NewSeckillHandler 创建一个新的 HTTP 处理器实例
func NewSeckillHandler(service *application.SeckillService) *SeckillHandler {
	return &SeckillHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *SeckillHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/voucher/seckill", h.seckillHandler)
}

type seckillResponse struct {
	OrderID int64  `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *SeckillHandler) seckillHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "seckill.SeckillHandler")
	defer span.End()

	voucherID, err := strconv.ParseInt(r.URL.Query().Get("voucher_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, seckillResponse{Error: "invalid voucher_id"})
		return
	}
	userID, err := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, seckillResponse{Error: "missing user identity"})
		return
	}
	span.SetAttributes(
		attribute.Int64("voucher.id", voucherID),
		attribute.Int64("user.id", userID),
	)

	orderID, err := h.service.Reserve(ctx, voucherID, userID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, seckillResponse{OrderID: orderID})
	case errors.Is(err, domain.ErrStockExhausted):
		writeJSON(w, http.StatusGone, seckillResponse{Error: "stock exhausted"})
	case errors.Is(err, domain.ErrAlreadyPurchased):
		writeJSON(w, http.StatusConflict, seckillResponse{Error: "already purchased"})
	case errors.Is(err, domain.ErrSaleNotStarted):
		writeJSON(w, http.StatusForbidden, seckillResponse{Error: "sale has not started"})
	case errors.Is(err, domain.ErrSaleEnded):
		writeJSON(w, http.StatusForbidden, seckillResponse{Error: "sale has ended"})
	case errors.Is(err, domain.ErrVoucherNotFound):
		writeJSON(w, http.StatusNotFound, seckillResponse{Error: "voucher not found"})
	default:
		log.Error().Err(err).Int64("voucher_id", voucherID).Msg("reserve failed")
		writeJSON(w, http.StatusInternalServerError, seckillResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
