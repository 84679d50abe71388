package metrics

import "time"

// NoOpBillingMetrics пустая реализация метрик для тестов и отладки
type NoOpBillingMetrics struct{}

func NewNoOpBillingMetrics() *NoOpBillingMetrics { return &NoOpBillingMetrics{} }

func (NoOpBillingMetrics) IncSubscriptionCreated(string)               {}
func (NoOpBillingMetrics) IncSubscriptionStatusChange(string)          {}
func (NoOpBillingMetrics) IncWebhookEvent(string, string)              {}
func (NoOpBillingMetrics) IncReconciliationRun()                       {}
func (NoOpBillingMetrics) AddReconciliationMismatches(string, int)     {}
func (NoOpBillingMetrics) ObserveGatewayLatency(string, time.Duration) {}
func (NoOpBillingMetrics) IncGatewayError(string, string)              {}
