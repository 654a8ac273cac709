// Package worker provides async sale processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/processor"
)

// Worker consumes sale events from the EventBus and runs them through
// the commission pipeline. Lets the HTTP surface acknowledge webhooks
// fast while processing happens off the request path.
type Worker struct {
	bus       domain.EventBus
	processor *processor.Processor

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async sale worker.
func NewWorker(bus domain.EventBus, proc *processor.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		processor: proc,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the sale-received topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicSaleReceived, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("sale worker started", "topic", domain.TopicSaleReceived)
	return nil
}

// Stop unsubscribes and cancels in-flight processing.
func (w *Worker) Stop() {
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.subscriptions = nil
	w.cancel()
	slog.Info("sale worker stopped")
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.SaleRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse sale message",
			"message_id", msg.ID,
			"error", err,
		)
		// Malformed payloads are not retryable.
		return nil
	}

	result, err := w.processor.ProcessSale(ctx, &req)
	if err != nil {
		slog.Error("async sale processing failed",
			"message_id", msg.ID,
			"reseller_id", req.ResellerID,
			"error", err,
		)
		return err
	}

	slog.Info("async sale processed",
		"message_id", msg.ID,
		"commission_id", result.Commission.ID,
		"created", result.Created,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}
