package observability

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/port"
)

const tracerName = "github.com/rl1809/order-placement/internal/adapter/observability"

// Placement outcomes recorded on the orders.placed counter.
const (
	OutcomePlaced   = "placed"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
)

// Service decorates an order placer with a span, a counter and logs per call.
type Service struct {
	inner  port.OrderPlacer
	tracer trace.Tracer
	logger *slog.Logger
	meter  metric.Meter
	placed metric.Int64Counter
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(tr trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tr
	}
}

func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		s.meter = m
	}
}

func New(inner port.OrderPlacer, opts ...Option) *Service {
	s := &Service{
		inner:  inner,
		tracer: nooptrace.NewTracerProvider().Tracer(tracerName),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.meter != nil {
		counter, err := s.meter.Int64Counter("orders.placed", metric.WithDescription("Order placement attempts by outcome"))
		if err != nil {
			s.logger.Warn("orders.placed counter disabled", slog.String("error", err.Error()))
		} else {
			s.placed = counter
		}
	}
	return s
}

func (s *Service) PlaceOrder(ctx context.Context, customerID string, items []domain.RequestedLineItem) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.PlaceOrder", trace.WithAttributes(
		attribute.String("customer.id", customerID),
		attribute.Int("order.line_count", len(items)),
	))
	defer span.End()

	order, err := s.inner.PlaceOrder(ctx, customerID, items)
	outcome := Outcome(err)
	s.record(ctx, outcome)
	span.SetAttributes(attribute.String("order.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		level := slog.LevelWarn
		if outcome == OutcomeFailed {
			level = slog.LevelError
		}
		s.logger.LogAttrs(ctx, level, "order not placed",
			slog.String("customer_id", customerID),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	s.logger.LogAttrs(ctx, slog.LevelInfo, "order placed",
		slog.String("order_id", order.ID),
		slog.String("customer_id", customerID),
		slog.String("total", order.Total().String()),
	)
	return order, nil
}

func (s *Service) record(ctx context.Context, outcome string) {
	if s.placed != nil {
		s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// Outcome classifies a placement result for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomePlaced
	case domain.IsRetryable(err):
		return OutcomeConflict
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrCustomerNotFound),
		errors.Is(err, domain.ErrCatalogEmpty),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrInsufficientStock):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

var _ port.OrderPlacer = (*Service)(nil)
