package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Mark triggers.
const (
	TriggerOpen    = "open"
	TriggerLive    = "live"
	TriggerClose   = "close"
	TriggerDismiss = "dismiss"
)

var (
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages sent, by result",
		},
		[]string{"result"},
	)

	MarkViewedBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_mark_viewed_batches_total",
			Help: "Mark-viewed batches issued, by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	MarkViewedMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_mark_viewed_messages_total",
			Help: "Message ids included in mark-viewed batches, by trigger",
		},
		[]string{"trigger"},
	)

	ActiveSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_subscriptions_active",
			Help: "Live store subscriptions currently registered, by query",
		},
		[]string{"query"},
	)

	SubscriptionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_subscription_errors_total",
			Help: "Errors delivered to live store subscriptions, by query",
		},
		[]string{"query"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_websocket_connections_active",
			Help: "Current number of event stream connections",
		},
	)
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveMark records one mark-viewed batch of n ids.
func ObserveMark(trigger string, n int, err error) {
	MarkViewedBatchesTotal.WithLabelValues(trigger, result(err)).Inc()
	MarkViewedMessagesTotal.WithLabelValues(trigger).Add(float64(n))
}

// ObserveSend records one send attempt.
func ObserveSend(err error) {
	MessagesSentTotal.WithLabelValues(result(err)).Inc()
}
