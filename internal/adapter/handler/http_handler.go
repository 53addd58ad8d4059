package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/port"
)

// statusClientClosedRequest is the nginx convention for a caller that went away.
const statusClientClosedRequest = 499

type HTTPHandler struct {
	orders port.OrderPlacer
	logger *slog.Logger
}

type PlaceOrderHTTPRequest struct {
	CustomerID string                `json:"customer_id"`
	Products   []LineItemHTTPRequest `json:"products"`
}

type LineItemHTTPRequest struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type OrderHTTPResponse struct {
	ID         string                 `json:"id"`
	CustomerID string                 `json:"customer_id"`
	Status     string                 `json:"status"`
	Products   []LineItemHTTPResponse `json:"products"`
	Total      decimal.Decimal        `json:"total"`
	CreatedAt  time.Time              `json:"created_at"`
}

type LineItemHTTPResponse struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type ErrorHTTPResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message"`
	ProductIDs []string `json:"product_ids,omitempty"`
	Retryable  bool     `json:"retryable,omitempty"`
}

func NewHTTPHandler(orders port.OrderPlacer, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPHandler{orders: orders, logger: logger}
}

// Router mounts the handler's routes on a gorilla/mux router.
func (h *HTTPHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/api/orders", h.PlaceOrder).Methods(http.MethodPost)
	return r
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid_request", Message: "invalid request body"})
		return
	}

	items := make([]domain.RequestedLineItem, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, domain.RequestedLineItem{ProductID: p.ID, Quantity: p.Quantity})
	}

	order, err := h.orders.PlaceOrder(r.Context(), req.CustomerID, items)
	if err != nil {
		status, body := errorResponse(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "place order", "customer_id", req.CustomerID, "error", err)
		}
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func errorResponse(err error) (int, ErrorHTTPResponse) {
	body := ErrorHTTPResponse{Message: err.Error(), Retryable: domain.IsRetryable(err)}

	var notFound *domain.ProductNotFoundError
	var insufficient *domain.InsufficientStockError
	var exhausted *domain.StockExhaustedError

	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		body.Error = "invalid_request"
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrCustomerNotFound):
		body.Error = "customer_not_found"
		return http.StatusNotFound, body
	case errors.Is(err, domain.ErrCatalogEmpty):
		body.Error = "catalog_empty"
		return http.StatusNotFound, body
	case errors.As(err, &notFound):
		body.Error = "product_not_found"
		body.ProductIDs = notFound.ProductIDs
		return http.StatusNotFound, body
	case errors.As(err, &insufficient):
		body.Error = "insufficient_stock"
		for _, s := range insufficient.Shortfalls {
			body.ProductIDs = append(body.ProductIDs, s.ProductID)
		}
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, domain.ErrInventoryUpdateFailed):
		body.Error = "inventory_update_failed"
		return http.StatusConflict, body
	case errors.As(err, &exhausted):
		body.Error = "stock_exhausted"
		body.ProductIDs = exhausted.ProductIDs
		return http.StatusConflict, body
	case errors.Is(err, context.Canceled):
		body.Error = "request_cancelled"
		return statusClientClosedRequest, body
	case errors.Is(err, context.DeadlineExceeded):
		body.Error = "timeout"
		return http.StatusGatewayTimeout, body
	default:
		return http.StatusInternalServerError, ErrorHTTPResponse{Error: "internal", Message: "internal error"}
	}
}

func toOrderResponse(o *domain.Order) OrderHTTPResponse {
	resp := OrderHTTPResponse{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Status:     string(o.Status),
		Total:      o.Total(),
		CreatedAt:  o.CreatedAt,
		Products:   make([]LineItemHTTPResponse, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		resp.Products = append(resp.Products, LineItemHTTPResponse{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
