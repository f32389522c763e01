package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grammar-coach/backend/internal/audit"
	"github.com/grammar-coach/backend/internal/catalog"
	"github.com/grammar-coach/backend/internal/metrics"
	"github.com/grammar-coach/backend/internal/prompt"
	"github.com/grammar-coach/backend/pkg/logger"
)

// ErrNoTranscript means neither typed text nor a resolvable transcript
// from audio was available. Handlers map it to a 400.
var ErrNoTranscript = errors.New("no speech or text found")

// Transcriber converts audio bytes to text, failing open to "".
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) string
}

// Evaluator sends a prompt to the remote model and returns the raw reply.
type Evaluator interface {
	Evaluate(ctx context.Context, prompt string) (string, error)
}

// AuditSink records one row per completed evaluation.
type AuditSink interface {
	Append(rec audit.Record) error
}

// Engine runs the evaluation pipeline for one request: transcript
// resolution, prompt construction, remote evaluation, reconciliation,
// audit logging.
type Engine struct {
	catalog     *catalog.Catalog
	prompts     *prompt.Builder
	transcriber Transcriber
	evaluator   Evaluator
	audit       AuditSink
}

type Request struct {
	LearnerID string
	GrammarID int
	Text      string
	Audio     []byte
}

func NewEngine(cat *catalog.Catalog, prompts *prompt.Builder, transcriber Transcriber, evaluator Evaluator, auditSink AuditSink) *Engine {
	return &Engine{
		catalog:     cat,
		prompts:     prompts,
		transcriber: transcriber,
		evaluator:   evaluator,
		audit:       auditSink,
	}
}

// Evaluate resolves the transcript, runs the remote evaluation and
// returns the response payload. A malformed model reply is not an error:
// it comes back as an error-shaped payload and is logged like any other
// completion. Only a missing transcript or a failed remote call error out.
func (e *Engine) Evaluate(ctx context.Context, req Request) (map[string]any, error) {
	start := time.Now()
	evaluationID := uuid.New().String()

	transcript := strings.TrimSpace(req.Text)
	source := "text"
	if transcript == "" && len(req.Audio) > 0 {
		source = "audio"
		transcript = e.transcriber.Transcribe(ctx, req.Audio)
	}
	if transcript == "" {
		return nil, ErrNoTranscript
	}

	logger.Info("Evaluating sentence",
		zap.String("evaluation_id", evaluationID),
		zap.String("learner_id", req.LearnerID),
		zap.String("source", source),
		zap.Int("grammar_id", req.GrammarID),
	)

	raw, err := e.evaluator.Evaluate(ctx, e.prompts.Build(transcript, req.GrammarID))
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to evaluate sentence: %w", err)
	}

	result := Reconcile(raw)
	status := "ok"
	if result.Malformed() {
		status = "malformed"
		logger.Warn("Model reply was not valid JSON",
			zap.String("evaluation_id", evaluationID),
			zap.Int("raw_length", len(raw)),
		)
	}

	payload := result.Payload()
	payload["transcript"] = transcript

	// The key is always present; an unresolvable id yields an explicit null.
	var selectedLabel any
	if point, ok := e.catalog.FindByID(req.GrammarID); ok {
		selectedLabel = point.Title
	}
	payload["selected_grammar_label"] = selectedLabel

	rec := audit.Record{
		LearnerID:     req.LearnerID,
		Timestamp:     time.Now(),
		Transcript:    transcript,
		Correction:    stringField(payload, "corrected"),
		Explanation:   stringField(payload, "explanation"),
		Score:         numberField(payload, "score"),
		MatchedLabel:  stringField(payload, "matched_grammar_label"),
		SelectedLabel: stringField(payload, "selected_grammar_label"),
	}
	if err := e.audit.Append(rec); err != nil {
		// The computed result still stands when the log write fails.
		logger.Error("Failed to append audit record",
			zap.String("evaluation_id", evaluationID),
			zap.Error(err),
		)
	}

	metrics.EvaluationsTotal.WithLabelValues(status).Inc()
	metrics.EvaluationDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())

	logger.Info("Evaluation completed",
		zap.String("evaluation_id", evaluationID),
		zap.String("status", status),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()),
	)

	return payload, nil
}

func stringField(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

// numberField renders a JSON number without a trailing fraction, so a
// score of 90 logs as "90" rather than "90.000000".
func numberField(payload map[string]any, key string) string {
	if f, ok := payload[key].(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}
