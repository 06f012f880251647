package encoding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tokenization metrics
	tokenizationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quill_tokenization_duration_seconds",
		Help:    "Time spent segmenting text",
		Buckets: prometheus.DefBuckets,
	}, []string{"language", "path"})

	tokensPerSecond = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quill_tokenization_throughput",
		Help: "Batch tokenization throughput in tokens/second",
	}, []string{"language"})

	// Encoding metrics
	sequencesEncoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_sequences_encoded_total",
		Help: "Total number of sequences encoded by the batch path",
	}, []string{"language"})

	tokensEncoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_tokens_encoded_total",
		Help: "Total number of tokens encoded by the batch path",
	}, []string{"language"})

	unknownTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_unknown_tokens_total",
		Help: "Total number of tokens mapped to the unknown index",
	}, []string{"language"})

	encodersBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_encoders_total",
		Help: "Encoder construction attempts by outcome",
	}, []string{"backend", "result"})
)
