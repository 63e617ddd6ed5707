// Package worker is a polling consumer for rowq queues.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rowqueue/rowq/pkg/client"
)

// HandlerFunc processes a message and returns an error if processing failed.
// Returning nil means success (the message is deleted). Returning an error
// leaves the lease to expire, after which the message is redelivered.
type HandlerFunc func(ctx context.Context, msg *client.Message) error

// Worker polls queues and dispatches messages to registered handlers.
type Worker struct {
	client    *client.Client
	handlers  map[string]HandlerFunc
	pollDelay time.Duration
	batchSize int
	lease     time.Duration
	log       *slog.Logger
}

// Config for creating a new worker.
type Config struct {
	BaseURL   string        // rowq server URL
	PollDelay time.Duration // Time between polling attempts (default: 1s)
	BatchSize int           // Max messages to fetch per poll (default: 10)
	Lease     time.Duration // Lease duration per receive (default: queue default)
	Logger    *slog.Logger
}

// New creates a new Worker with the given configuration.
func New(cfg Config) *Worker {
	if cfg.PollDelay == 0 {
		cfg.PollDelay = 1 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Worker{
		client:    client.New(cfg.BaseURL),
		handlers:  make(map[string]HandlerFunc),
		pollDelay: cfg.PollDelay,
		batchSize: cfg.BatchSize,
		lease:     cfg.Lease,
		log:       cfg.Logger,
	}
}

// Handle registers a handler function for a specific queue.
func (w *Worker) Handle(queue string, handler HandlerFunc) {
	w.handlers[queue] = handler
	w.log.Info("registered handler", "queue", queue)
}

// Run starts the worker and blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	w.log.Info("worker starting", "queues", len(w.handlers))

	for queue, handler := range w.handlers {
		go w.pollQueue(ctx, queue, handler)
	}

	<-ctx.Done()
	w.log.Info("worker shutting down")
	return nil
}

// pollQueue continuously polls a queue and processes messages.
func (w *Worker) pollQueue(ctx context.Context, queue string, handler HandlerFunc) {
	ticker := time.NewTicker(w.pollDelay)
	defer ticker.Stop()

	w.log.Info("started polling", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("stopped polling", "queue", queue)
			return

		case <-ticker.C:
			messages, err := w.client.Receive(ctx, queue, w.batchSize, w.lease)
			if err != nil {
				w.log.Error("receive failed", "queue", queue, "error", err)
				continue
			}
			if len(messages) == 0 {
				continue
			}

			w.log.Debug("received batch", "queue", queue, "count", len(messages))

			for _, msg := range messages {
				w.processMessage(ctx, msg, handler)
			}
		}
	}
}

// processMessage handles a single message with panic recovery. A message
// whose handler fails or panics keeps its lease; it becomes receivable again
// once the lease expires.
func (w *Worker) processMessage(ctx context.Context, msg *client.Message, handler HandlerFunc) {
	handlerCtx := ctx
	if msg.LeaseExpiresAt != nil {
		var cancel context.CancelFunc
		handlerCtx, cancel = context.WithDeadline(ctx, *msg.LeaseExpiresAt)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("panic processing message", "id", msg.ID, "queue", msg.Queue, "panic", r)
		}
	}()

	if err := handler(handlerCtx, msg); err != nil {
		w.log.Warn("handler failed, lease left to expire",
			"id", msg.ID, "queue", msg.Queue, "error", err)
		return
	}

	if msg.Handle == nil {
		w.log.Error("received message without handle", "id", msg.ID, "queue", msg.Queue)
		return
	}
	ok, err := w.client.DeleteMessage(ctx, *msg.Handle)
	if err != nil {
		w.log.Error("delete failed", "id", msg.ID, "error", err)
		return
	}
	if !ok {
		// Lease expired before we finished; another consumer owns it now.
		w.log.Warn("handle no longer current", "id", msg.ID, "queue", msg.Queue)
		return
	}

	w.log.Debug("processed message", "id", msg.ID, "queue", msg.Queue)
}
