package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/creatorlane/billing-service/pkg/logger"
)

// BillingMetrics интерфейс для метрик биллингового ядра
type BillingMetrics interface {
	IncSubscriptionCreated(kind string)
	IncSubscriptionStatusChange(status string)
	IncWebhookEvent(eventType, result string)
	IncReconciliationRun()
	AddReconciliationMismatches(issue string, count int)
	ObserveGatewayLatency(operation string, d time.Duration)
	IncGatewayError(operation, kind string)
}

type billingMetrics struct {
	log                      *logger.Logger
	subscriptionsCreated     *prometheus.CounterVec
	subscriptionStatusTotal  *prometheus.CounterVec
	webhookEventsTotal       *prometheus.CounterVec
	reconciliationRunsTotal  prometheus.Counter
	reconciliationMismatches *prometheus.CounterVec
	gatewayLatency           *prometheus.HistogramVec
	gatewayErrorsTotal       *prometheus.CounterVec
}

// NewBillingMetrics создает метрики биллинга и регистрирует их в registry
func NewBillingMetrics(registry *prometheus.Registry, log *logger.Logger) BillingMetrics {
	subscriptionsCreated := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_subscriptions_created_total",
			Help: "The total number of created subscriptions",
		},
		[]string{"kind"},
	)

	subscriptionStatusTotal := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_subscription_status_changes_total",
			Help: "The total number of subscription status transitions",
		},
		[]string{"status"},
	)

	webhookEventsTotal := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "The total number of processed webhook events by result",
		},
		[]string{"type", "result"},
	)

	reconciliationRunsTotal := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "billing_reconciliation_runs_total",
			Help: "The total number of reconciliation sweeps",
		},
	)

	reconciliationMismatches := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_reconciliation_mismatches_total",
			Help: "The total number of mismatches found during reconciliation",
		},
		[]string{"issue"},
	)

	gatewayLatency := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_gateway_request_duration_seconds",
			Help:    "Payment gateway request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	gatewayErrorsTotal := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_gateway_errors_total",
			Help: "The total number of payment gateway errors by class",
		},
		[]string{"operation", "kind"},
	)

	return &billingMetrics{
		log:                      log,
		subscriptionsCreated:     subscriptionsCreated,
		subscriptionStatusTotal:  subscriptionStatusTotal,
		webhookEventsTotal:       webhookEventsTotal,
		reconciliationRunsTotal:  reconciliationRunsTotal,
		reconciliationMismatches: reconciliationMismatches,
		gatewayLatency:           gatewayLatency,
		gatewayErrorsTotal:       gatewayErrorsTotal,
	}
}

// IncSubscriptionCreated увеличивает счетчик созданных подписок
func (m *billingMetrics) IncSubscriptionCreated(kind string) {
	m.subscriptionsCreated.WithLabelValues(kind).Inc()
}

// IncSubscriptionStatusChange увеличивает счетчик переходов статуса
func (m *billingMetrics) IncSubscriptionStatusChange(status string) {
	m.subscriptionStatusTotal.WithLabelValues(status).Inc()
}

// IncWebhookEvent увеличивает счетчик событий вебхуков
func (m *billingMetrics) IncWebhookEvent(eventType, result string) {
	m.webhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

// IncReconciliationRun увеличивает счетчик прогонов сверки
func (m *billingMetrics) IncReconciliationRun() {
	m.reconciliationRunsTotal.Inc()
}

// AddReconciliationMismatches добавляет найденные расхождения
func (m *billingMetrics) AddReconciliationMismatches(issue string, count int) {
	m.reconciliationMismatches.WithLabelValues(issue).Add(float64(count))
}

// ObserveGatewayLatency записывает длительность запроса к процессору
func (m *billingMetrics) ObserveGatewayLatency(operation string, d time.Duration) {
	m.gatewayLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// IncGatewayError увеличивает счетчик ошибок платежного шлюза
func (m *billingMetrics) IncGatewayError(operation, kind string) {
	m.gatewayErrorsTotal.WithLabelValues(operation, kind).Inc()
}
