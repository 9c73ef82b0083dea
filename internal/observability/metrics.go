package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values shared by callers.
const (
	OutcomeCacheHit = "cache_hit"
	OutcomeComputed = "computed"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"

	StoreStored   = "stored"
	StoreDegraded = "degraded"

	DigestCallIncluded = "included"
	DigestCallSkipped  = "skipped"

	IngestStored   = "stored"
	IngestDegraded = "degraded"
	IngestRequeued = "requeued"
	IngestSkipped  = "skipped"
	IngestRejected = "rejected"
)

var (
	analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callintel_analysis_total",
			Help: "Single-call analysis requests by outcome.",
		},
		[]string{"outcome"},
	)

	digestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callintel_digest_total",
			Help: "Digest requests by outcome.",
		},
		[]string{"outcome"},
	)

	digestCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callintel_digest_calls_total",
			Help: "Calls selected for digests, by whether they made it into the batch.",
		},
		[]string{"result"},
	)

	generatorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callintel_generator_duration_seconds",
			Help:    "Latency of text-generation calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120},
		},
		[]string{"operation", "outcome"},
	)

	transcriptStores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callintel_transcript_store_total",
			Help: "Transcript store attempts by status.",
		},
		[]string{"status"},
	)

	searchScanned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "callintel_search_scanned_candidates",
			Help:    "Candidate transcripts read per keyword search.",
			Buckets: []float64{0, 10, 20, 50, 100, 200, 300, 500, 1000},
		},
	)

	ingestMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callintel_ingest_messages_total",
			Help: "Ingest queue messages by handling result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(analysisTotal, digestTotal, digestCalls, generatorLatency, transcriptStores, searchScanned, ingestMessages)
}

// ObserveAnalysis counts one single-call analysis request.
func ObserveAnalysis(outcome string) { analysisTotal.WithLabelValues(outcome).Inc() }

// ObserveDigest counts one digest request.
func ObserveDigest(outcome string) { digestTotal.WithLabelValues(outcome).Inc() }

// ObserveDigestCall counts one selected call.
func ObserveDigestCall(result string) { digestCalls.WithLabelValues(result).Inc() }

// ObserveGenerator records the latency of one text-generation call. Its
// signature matches llm.AnthropicClient.WithObserver.
func ObserveGenerator(operation, outcome string, d time.Duration) {
	generatorLatency.WithLabelValues(operation, outcome).Observe(d.Seconds())
}

// ObserveTranscriptStore counts one store attempt.
func ObserveTranscriptStore(status string) { transcriptStores.WithLabelValues(status).Inc() }

// ObserveSearchScanned records how many candidates a search read.
func ObserveSearchScanned(n int) { searchScanned.Observe(float64(n)) }

// ObserveIngest counts one consumed ingest message.
func ObserveIngest(result string) { ingestMessages.WithLabelValues(result).Inc() }
