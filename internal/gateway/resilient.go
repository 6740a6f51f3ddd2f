package gateway

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/metrics"
	"github.com/kentramx/kentramx-sub001/pkg/resilience"
)

// CircuitName is the breaker shared by every payment gateway call.
const CircuitName = "stripe"

const tracerName = "github.com/kentramx/kentramx-sub001/internal/gateway"

type ResilientParams struct {
	Gateway        PaymentGateway
	Breakers       *resilience.BreakerRegistry
	Retry          resilience.RetryPolicy
	Metrics        *metrics.ResilienceMetrics
	Logger         *logger.Logger
	TracerProvider trace.TracerProvider
}

// Resilient decorates a PaymentGateway with breaker(retry(call)) and a span
// per logical call. Retries stay inside one breaker attempt.
type Resilient struct {
	next    PaymentGateway
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryPolicy
	metrics *metrics.ResilienceMetrics
	logg    *logger.Logger
	tracer  trace.Tracer
}

func NewResilient(params ResilientParams) (*Resilient, error) {
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Breakers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "breaker registry required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	provider := params.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	policy := params.Retry
	if policy.IsRetryable == nil {
		policy.IsRetryable = IsRetryable
	}
	return &Resilient{
		next:    params.Gateway,
		breaker: params.Breakers.Get(CircuitName),
		retry:   policy,
		metrics: params.Metrics,
		logg:    params.Logger,
		tracer:  provider.Tracer(tracerName),
	}, nil
}

// BreakerObserver feeds circuit transitions into metrics and logs.
func BreakerObserver(m *metrics.ResilienceMetrics, logg *logger.Logger) resilience.StateChangeFunc {
	return func(name string, from, to resilience.State) {
		m.ObserveTransition(name, string(from), string(to), stateValue(to))
		if logg == nil {
			return
		}
		ctx := logg.WithFields(context.Background(), map[string]any{
			"circuit": name,
			"from":    string(from),
			"to":      string(to),
		})
		if to == resilience.StateOpen {
			logg.Warn(ctx, "circuit.opened")
			return
		}
		logg.Info(ctx, "circuit.transition")
	}
}

func stateValue(s resilience.State) float64 {
	switch s {
	case resilience.StateOpen:
		return metrics.CircuitOpen
	case resilience.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

func (r *Resilient) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	return call(ctx, r, "create_customer", nil, func(ctx context.Context) (string, error) {
		return r.next.CreateCustomer(ctx, params)
	})
}

func (r *Resilient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	attrs := []attribute.KeyValue{attribute.String("gateway.price_id", params.PriceID)}
	return call(ctx, r, "create_checkout_session", attrs, func(ctx context.Context) (*CheckoutSession, error) {
		return r.next.CreateCheckoutSession(ctx, params)
	})
}

func (r *Resilient) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	attrs := []attribute.KeyValue{attribute.String("gateway.subscription_id", id)}
	return call(ctx, r, "get_subscription", attrs, func(ctx context.Context) (*Subscription, error) {
		return r.next.GetSubscription(ctx, id)
	})
}

func (r *Resilient) UpdateSubscription(ctx context.Context, id string, params UpdateParams) (*Subscription, error) {
	attrs := []attribute.KeyValue{
		attribute.String("gateway.subscription_id", id),
		attribute.String("gateway.price_id", params.PriceID),
	}
	return call(ctx, r, "update_subscription", attrs, func(ctx context.Context) (*Subscription, error) {
		return r.next.UpdateSubscription(ctx, id, params)
	})
}

func (r *Resilient) PreviewInvoice(ctx context.Context, params PreviewParams) (*InvoicePreview, error) {
	attrs := []attribute.KeyValue{
		attribute.String("gateway.subscription_id", params.SubscriptionID),
		attribute.String("gateway.price_id", params.PriceID),
	}
	return call(ctx, r, "preview_invoice", attrs, func(ctx context.Context) (*InvoicePreview, error) {
		return r.next.PreviewInvoice(ctx, params)
	})
}

func (r *Resilient) GetPrice(ctx context.Context, id string) (*Price, error) {
	attrs := []attribute.KeyValue{attribute.String("gateway.price_id", id)}
	return call(ctx, r, "get_price", attrs, func(ctx context.Context) (*Price, error) {
		return r.next.GetPrice(ctx, id)
	})
}

func call[T any](ctx context.Context, r *Resilient, op string, attrs []attribute.KeyValue, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := r.tracer.Start(ctx, "gateway."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(append(attrs, attribute.String("gateway.operation", op))...)

	policy := r.retry
	attempts := 1
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts++
		r.metrics.IncRetry(op)
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.Int64("delay_ms", delay.Milliseconds()),
		))
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"operation": op,
			"attempt":   attempt,
			"delay_ms":  delay.Milliseconds(),
			"error":     err.Error(),
		})
		r.logg.Warn(logCtx, "gateway.retry")
	}

	result, err := resilience.ExecuteValue(ctx, r.breaker, func(ctx context.Context) (T, error) {
		return resilience.Retry(ctx, policy, fn)
	})
	span.SetAttributes(attribute.Int("gateway.attempts", attempts))
	if err == nil {
		r.metrics.IncCall(op, "ok")
		span.SetStatus(codes.Ok, "")
		return result, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	var zero T
	if errors.Is(err, resilience.ErrCircuitOpen) {
		r.metrics.IncCall(op, "rejected")
		return zero, pkgerrors.Wrap(pkgerrors.CodeCircuitOpen, err, "payment provider circuit open")
	}
	r.metrics.IncCall(op, "error")
	return zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway "+op+" failed")
}
