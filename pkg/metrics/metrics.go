package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tickflow"

var (
	QueuePushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_pushed_total",
		Help:      "Total ticks pushed into the handoff queue.",
	})
	QueuePoppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_popped_total",
		Help:      "Total ticks popped from the handoff queue.",
	})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Ticks currently waiting in the handoff queue.",
	})

	TicksGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_generated_total",
		Help:      "Total ticks generated per symbol.",
	}, []string{"symbol"})

	SinkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_writes_total",
		Help:      "Sink write attempts partitioned by result.",
	}, []string{"sink", "status"}) // status: ok/error

	SinkWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sink_write_seconds",
		Help:      "Sink write latency.",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16), // 50us ~ 1.6s
	}, []string{"sink"})

	// 0=waiting 1=running 2=stopped 3=failed
	ConsumerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "consumer_state",
		Help:      "Consumer state (0 waiting, 1 running, 2 stopped, 3 failed).",
	})
)
