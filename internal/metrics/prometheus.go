package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grammar_coach_evaluation_duration_seconds",
			Help:    "Evaluation pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grammar_coach_evaluations_total",
			Help: "Total number of evaluations processed",
		},
		[]string{"status"},
	)

	TranscriptionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grammar_coach_transcription_failures_total",
			Help: "Speech-to-text calls degraded to an empty transcript",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grammar_coach_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)
)

func Register() {
	prometheus.MustRegister(
		EvaluationDuration,
		EvaluationsTotal,
		TranscriptionFailures,
		LLMTokensUsed,
	)
}

// Handler exposes the prometheus endpoint through fiber.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
