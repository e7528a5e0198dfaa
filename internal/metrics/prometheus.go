package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docanalyzer_evaluation_duration_seconds",
			Help:    "Single requirement evaluation duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docanalyzer_verdicts_total",
			Help: "Total verdicts produced by status",
		},
		[]string{"status"},
	)

	EvaluationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docanalyzer_evaluation_failures_total",
			Help: "Evaluations that exhausted the judgement retry budget",
		},
	)

	CitationsRepaired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docanalyzer_citations_repaired_total",
			Help: "Citations rewritten to the closest document span",
		},
	)

	CitationsUnverifiable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docanalyzer_citations_unverifiable_total",
			Help: "Citations with no acceptable match in the document",
		},
	)

	ConsensusRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docanalyzer_consensus_runs_total",
			Help: "Second-opinion outcomes for high risk verdicts",
		},
		[]string{"outcome"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docanalyzer_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	RetrievalCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docanalyzer_retrieval_candidates",
			Help:    "Fused evidence candidates per retrieval",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	RetrievalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docanalyzer_retrieval_failures_total",
			Help: "Retrieval strategy failures",
		},
		[]string{"strategy"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docanalyzer_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docanalyzer_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docanalyzer_documents_processed_total",
			Help: "Total documents ingested",
		},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docanalyzer_chunks_indexed_total",
			Help: "Total document chunks written to the indexes",
		},
	)

	DocumentEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docanalyzer_document_evaluations_total",
			Help: "Whole-document evaluation outcomes",
		},
		[]string{"status"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docanalyzer_queue_depth",
			Help: "Evaluations waiting in the queue",
		},
	)

	RunsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docanalyzer_runs_recorded_total",
			Help: "Run records written for repeatability analysis",
		},
	)
)

func Init() {
	prometheus.MustRegister(EvaluationDuration)
	prometheus.MustRegister(VerdictsTotal)
	prometheus.MustRegister(EvaluationFailures)
	prometheus.MustRegister(CitationsRepaired)
	prometheus.MustRegister(CitationsUnverifiable)
	prometheus.MustRegister(ConsensusRuns)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(RetrievalCandidates)
	prometheus.MustRegister(RetrievalFailures)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(ChunksIndexed)
	prometheus.MustRegister(DocumentEvaluations)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(RunsRecorded)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
