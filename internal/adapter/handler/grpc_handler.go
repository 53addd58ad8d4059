package handler

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/port"
)

const placeOrderMethod = "/orders.OrderService/PlaceOrder"

type PlaceOrderRequest struct {
	CustomerID string          `json:"customer_id"`
	Items      []LineItemInput `json:"items"`
}

type LineItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type PlaceOrderResponse struct {
	OrderID       string          `json:"order_id"`
	CustomerID    string          `json:"customer_id"`
	Items         []LineItemOut   `json:"items"`
	Total         decimal.Decimal `json:"total"`
	CreatedAtUnix int64           `json:"created_at_unix"`
}

type LineItemOut struct {
	ProductID string          `json:"product_id"`
	Quantity  int32           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderServiceServer is the server API for orders.OrderService.
type OrderServiceServer interface {
	PlaceOrder(context.Context, *PlaceOrderRequest) (*PlaceOrderResponse, error)
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: "orders.OrderService",
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PlaceOrder",
			Handler:    placeOrderHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

func placeOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PlaceOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).PlaceOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: placeOrderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).PlaceOrder(ctx, req.(*PlaceOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type GRPCHandler struct {
	orders port.OrderPlacer
}

func NewGRPCHandler(orders port.OrderPlacer) *GRPCHandler {
	return &GRPCHandler{orders: orders}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	items := make([]domain.RequestedLineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.RequestedLineItem{ProductID: item.ProductID, Quantity: int(item.Quantity)})
	}

	order, err := h.orders.PlaceOrder(ctx, req.CustomerID, items)
	if err != nil {
		return nil, grpcError(err)
	}

	resp := &PlaceOrderResponse{
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Total:         order.Total(),
		CreatedAtUnix: order.CreatedAt.Unix(),
		Items:         make([]LineItemOut, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, LineItemOut{ProductID: item.ProductID, Quantity: int32(item.Quantity), Price: item.Price})
	}
	return resp, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrCustomerNotFound),
		errors.Is(err, domain.ErrCatalogEmpty),
		errors.Is(err, domain.ErrProductNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.IsRetryable(err):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// OrderServiceClient calls orders.OrderService using the JSON codec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*PlaceOrderResponse, error) {
	out := new(PlaceOrderResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, placeOrderMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

var _ OrderServiceServer = (*GRPCHandler)(nil)
