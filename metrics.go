package transactions

import "github.com/prometheus/client_golang/prometheus"

var (
	transactionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "featuretxn",
		Subsystem: "engine",
		Name:      "created_total",
		Help:      "The total number of created transactions.",
	})

	transactionsDisposed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "featuretxn",
		Subsystem: "engine",
		Name:      "disposed_total",
		Help:      "The total number of disposed transactions.",
	})

	transactionsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "featuretxn",
		Subsystem: "engine",
		Name:      "expired_total",
		Help:      "The total number of transactions disposed by the cleaner.",
	})

	submissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "featuretxn",
			Subsystem: "engine",
			Name:      "submissions_total",
			Help:      "Counter of operation submissions by result.",
		}, []string{"result"})

	commitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "featuretxn",
			Subsystem: "engine",
			Name:      "commits_total",
			Help:      "Counter of commit calls by result.",
		}, []string{"result"})

	operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "featuretxn",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Counter of operations executed against record stores.",
		}, []string{"action", "result"})

	commitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "featuretxn",
			Subsystem: "engine",
			Name:      "commit_duration_seconds",
			Help:      "Bucketed histogram of commit processing time (s).",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 13),
		}, []string{"result"})
)

func init() {
	prometheus.MustRegister(transactionsCreated)
	prometheus.MustRegister(transactionsDisposed)
	prometheus.MustRegister(transactionsExpired)
	prometheus.MustRegister(submissionCounter)
	prometheus.MustRegister(commitCounter)
	prometheus.MustRegister(operationCounter)
	prometheus.MustRegister(commitDuration)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return classifyError(err).String()
}
