package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-quill/internal/cache"
	"github.com/23skdu/longbow-quill/internal/client"
)

var (
	sequencesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quill_sequences_processed_total",
		Help: "The total number of sequences encoded by the service",
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quill_request_duration_seconds",
		Help:    "Time spent processing requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	requestsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_requests_rejected_total",
		Help: "Requests rejected by admission control",
	}, []string{"reason"})

	forwardErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quill_forward_errors_total",
		Help: "Encoded batches that could not be forwarded to Longbow",
	})
)

const cborContentType = "application/cbor"

var errTooLarge = errors.New("batch exceeds max concurrent sequences")

// Encoder is the part of encoding.Encoder the service needs.
type Encoder interface {
	BatchEncode(ctx context.Context, texts []string) ([][]int64, error)
	BatchDecode(vectors [][]int64) ([]string, error)
	Vocab() []string
	Language() string
	Backend() string
}

// Forwarder ships encoded record batches to Longbow.
type Forwarder interface {
	Forward(ctx context.Context, record arrow.RecordBatch) error
}

type Server struct {
	encoder       Encoder
	forwarder     Forwarder
	cache         cache.VectorCache
	alloc         memory.Allocator
	builder       *client.RecordBatchBuilder
	sem           *semaphore.Weighted
	maxConcurrent int64
}

// NewServer creates the encode service. forwarder and vc may be nil.
func NewServer(enc Encoder, forwarder Forwarder, vc cache.VectorCache, maxConcurrent int64) *Server {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	alloc := memory.NewGoAllocator()
	return &Server{
		encoder:       enc,
		forwarder:     forwarder,
		cache:         vc,
		alloc:         alloc,
		builder:       client.NewRecordBatchBuilder(alloc),
		sem:           semaphore.NewWeighted(maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// Handler returns the HTTP routes of the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/encode", s.withRequestID(s.handleEncode))
	mux.HandleFunc("/encode/arrow", s.withRequestID(s.handleEncodeArrow))
	mux.HandleFunc("/decode", s.withRequestID(s.handleDecode))
	mux.HandleFunc("/vocab", s.handleVocab)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

var tracer = otel.Tracer("quill-server")

type requestIDKey struct{}

// withRequestID tags the request with X-Request-ID, generating one when the
// client did not send it, and attaches a logger carrying it.
func (s *Server) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		logger := log.With().Str("request_id", id).Logger()
		ctx := logger.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
		next(w, r.WithContext(ctx))
	}
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		span.SetAttributes(attribute.String("request_id", id))
	}
	return ctx, span
}

func observe(route string) func() {
	start := time.Now()
	return func() { requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds()) }
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "handleEncode")
	defer span.End()
	defer observe("encode")()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var texts []string
	if err := cbor.NewDecoder(r.Body).Decode(&texts); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int("sequence_count", len(texts)))

	vectors, err := s.encode(ctx, texts)
	if err != nil {
		span.RecordError(err)
		s.writeEncodeError(ctx, w, err)
		return
	}

	if s.forwarder != nil && len(vectors) > 0 {
		s.forward(ctx, texts, vectors)
	}

	w.Header().Set("Content-Type", cborContentType)
	if err := cbor.NewEncoder(w).Encode(vectors); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to write encode response")
	}
}

func (s *Server) writeEncodeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errTooLarge):
		requestsRejected.WithLabelValues("too_large").Inc()
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		requestsRejected.WithLabelValues("busy").Inc()
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to acquire semaphore")
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("Encode failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// encode admits texts against the semaphore and encodes them, serving
// repeated texts from the cache.
func (s *Server) encode(ctx context.Context, texts []string) ([][]int64, error) {
	vectors := make([][]int64, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}

	weight := int64(len(texts))
	if weight > s.maxConcurrent {
		return nil, fmt.Errorf("%w: %d > %d", errTooLarge, weight, s.maxConcurrent)
	}
	if err := s.sem.Acquire(ctx, weight); err != nil {
		return nil, err
	}
	defer s.sem.Release(weight)

	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		if s.cache != nil {
			if v, ok := s.cache.Get(text); ok {
				vectors[i] = v
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		batch := make([]string, len(missing))
		for j, i := range missing {
			batch[j] = texts[i]
		}
		encoded, err := s.encoder.BatchEncode(ctx, batch)
		if err != nil {
			return nil, err
		}
		for j, i := range missing {
			vectors[i] = encoded[j]
			if s.cache != nil {
				s.cache.Put(texts[i], encoded[j])
			}
		}
	}

	sequencesProcessed.Add(float64(len(texts)))
	return vectors, nil
}

// buildRecord converts an encoded batch to Arrow, logging failures. It
// returns nil when there is nothing to send.
func (s *Server) buildRecord(ctx context.Context, texts []string, vectors [][]int64) arrow.RecordBatch {
	rec, err := s.builder.BuildRecordBatch(texts, vectors)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int("sequence_count", len(texts)).Msg("Failed to build record batch")
		return nil
	}
	return rec
}

func (s *Server) forward(ctx context.Context, texts []string, vectors [][]int64) {
	rec := s.buildRecord(ctx, texts, vectors)
	if rec == nil {
		return
	}
	defer rec.Release()
	if err := s.forwarder.Forward(ctx, rec); err != nil {
		forwardErrors.Inc()
		zerolog.Ctx(ctx).Error().Err(err).Msg("Error forwarding batch to Longbow")
	}
}

// handleEncodeArrow reads an Arrow IPC stream of texts and answers with a
// stream of {text, ids} records.
func (s *Server) handleEncodeArrow(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "handleEncodeArrow")
	defer span.End()
	defer observe("encode_arrow")()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reader, err := ipc.NewReader(r.Body, ipc.WithAllocator(s.alloc))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create IPC reader: %v", err), http.StatusBadRequest)
		return
	}
	defer reader.Release()

	var writer *ipc.Writer
	totalProcessed := 0
	for reader.Next() {
		texts, err := client.TextsFromRecord(reader.Record())
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Skipping batch without text column")
			continue
		}
		vectors, err := s.encode(ctx, texts)
		if err != nil {
			span.RecordError(err)
			if writer == nil {
				s.writeEncodeError(ctx, w, err)
				return
			}
			zerolog.Ctx(ctx).Error().Err(err).Msg("Aborting Arrow stream")
			break
		}
		rec := s.buildRecord(ctx, texts, vectors)
		if rec == nil {
			continue
		}
		if writer == nil {
			w.Header().Set("Content-Type", "application/vnd.apache.arrow.stream")
			writer = ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(s.alloc))
		}
		werr := writer.Write(rec)
		if s.forwarder != nil {
			if err := s.forwarder.Forward(ctx, rec); err != nil {
				forwardErrors.Inc()
				zerolog.Ctx(ctx).Error().Err(err).Msg("Error forwarding batch to Longbow")
			}
		}
		rec.Release()
		if werr != nil {
			zerolog.Ctx(ctx).Error().Err(werr).Msg("Failed to write Arrow batch")
			break
		}
		totalProcessed += len(texts)
	}
	span.SetAttributes(attribute.Int("sequence_count", totalProcessed))

	if err := reader.Err(); err != nil && writer == nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Error reading Arrow stream")
		http.Error(w, "Stream error", http.StatusBadRequest)
		return
	}
	if writer == nil {
		// No batches: answer with an empty stream that still carries the schema.
		w.Header().Set("Content-Type", "application/vnd.apache.arrow.stream")
		writer = ipc.NewWriter(w, ipc.WithSchema(client.EncodedSchema(true)))
	}
	if err := writer.Close(); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to close Arrow stream")
	}
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "handleDecode")
	defer span.End()
	defer observe("decode")()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var vectors [][]int64
	if err := cbor.NewDecoder(r.Body).Decode(&vectors); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return
	}
	texts, err := s.encoder.BatchDecode(vectors)
	if err != nil {
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", cborContentType)
	if err := cbor.NewEncoder(w).Encode(texts); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to write decode response")
	}
}

func (s *Server) handleVocab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", cborContentType)
	w.Header().Set("X-Quill-Language", s.encoder.Language())
	w.Header().Set("X-Quill-Backend", s.encoder.Backend())
	_ = cbor.NewEncoder(w).Encode(s.encoder.Vocab())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
