package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Queues created counter
	QueuesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowq_queues_created_total",
			Help: "Total number of queues created",
		},
	)

	// Messages sent counter
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowq_messages_sent_total",
			Help: "Total number of messages sent",
		},
		[]string{"queue"},
	)

	// Messages received (leased) counter
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowq_messages_received_total",
			Help: "Total number of messages leased to consumers",
		},
		[]string{"queue"},
	)

	// Messages deleted (acknowledged) counter
	MessagesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowq_messages_deleted_total",
			Help: "Total number of messages deleted by handle",
		},
	)

	// Receive batch size distribution
	ReceiveBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rowq_receive_batch_size",
			Help:    "Number of messages returned per receive call",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	// Per-queue depth gauge, published by the monitor
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rowq_queue_depth",
			Help: "Messages currently stored per queue, leased or not",
		},
		[]string{"queue"},
	)

	// Monitor errors counter
	MonitorErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowq_monitor_errors_total",
			Help: "Total number of depth monitor errors",
		},
	)
)
