// internal/pkg/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lensmart/internal/pkg/apperr"
)

var (
	// Transitions 统计状态机的每次流转尝试及其结果（成功或错误码）
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Name:      "transitions_total",
		Help:      "State transition attempts by entity, action and outcome.",
	}, []string{"entity", "action", "outcome"})

	ConflictRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Name:      "conflict_retries_total",
		Help:      "Transactions retried after lock contention.",
	}, []string{"operation"})

	TxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marketplace",
		Name:      "tx_duration_seconds",
		Help:      "Duration of coordinator transactions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// ObserveTx 记录一次事务耗时
func ObserveTx(operation string, start time.Time) {
	TxDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Outcome 把错误折算为指标标签
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.CodeOf(err))
}

// RecordTransition 记录一次状态流转尝试
func RecordTransition(entity, action string, err error) {
	Transitions.WithLabelValues(entity, action, Outcome(err)).Inc()
}
