package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grammar-coach/backend/internal/audit"
	"github.com/grammar-coach/backend/internal/catalog"
	"github.com/grammar-coach/backend/internal/evaluation"
	"github.com/grammar-coach/backend/internal/prompt"
)

type stubTranscriber struct {
	transcript string
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audio []byte) string {
	if len(audio) == 0 {
		return ""
	}
	return s.transcript
}

type stubEvaluator struct {
	reply string
	err   error
}

func (s *stubEvaluator) Evaluate(ctx context.Context, prompt string) (string, error) {
	return s.reply, s.err
}

type testServer struct {
	app       *fiber.App
	auditPath string
}

func newTestServer(t *testing.T, transcriber *stubTranscriber, evaluator *stubEvaluator) *testServer {
	t.Helper()

	cat := catalog.New([]catalog.GrammarPoint{
		{ID: 1, Title: "Articles", Rule: "Use a/an.", Example: "An apple."},
		{ID: 2, Title: "Past simple", Rule: "Add -ed.", Example: "He walked."},
	})

	auditPath := filepath.Join(t.TempDir(), "learner_logs.csv")
	engine := evaluation.NewEngine(cat, prompt.NewBuilder(cat), transcriber, evaluator, audit.NewLogger(auditPath))

	h := NewGrammarHandler(cat, engine)

	app := fiber.New()
	api := app.Group("/api")
	api.Get("/grammar-points", h.ListGrammarPoints)
	api.Post("/text", h.CheckText)
	api.Post("/grammar", h.CheckGrammar)

	return &testServer{app: app, auditPath: auditPath}
}

func postForm(t *testing.T, app *fiber.App, path string, fields map[string]string, audio []byte) (int, map[string]any) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if audio != nil {
		part, err := w.CreateFormFile("audio", "clip.webm")
		require.NoError(t, err)
		_, err = part.Write(audio)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	return resp.StatusCode, payload
}

func auditLineCount(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return bytes.Count(data, []byte("\n"))
}

func TestListGrammarPoints(t *testing.T) {
	srv := newTestServer(t, &stubTranscriber{}, &stubEvaluator{})

	req := httptest.NewRequest("GET", "/api/grammar-points", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var points []catalog.GrammarPoint
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&points))
	require.Len(t, points, 2)
	assert.Equal(t, "Articles", points[0].Title)
}

func TestCheckTextHappyPath(t *testing.T) {
	srv := newTestServer(t, &stubTranscriber{}, &stubEvaluator{
		reply: `{"corrected": "She walks.", "score": 80, "grammar_ok": false}`,
	})

	status, payload := postForm(t, srv.app, "/api/text", map[string]string{
		"learner_id": "42",
		"grammar_id": "2",
		"typed":      "she walk",
	}, nil)

	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "She walks.", payload["corrected"])
	assert.Equal(t, "she walk", payload["transcript"])
	assert.Equal(t, "Past simple", payload["selected_grammar_label"])

	// Header plus exactly one record.
	assert.Equal(t, 2, auditLineCount(t, srv.auditPath))
}

func TestCheckTextValidation(t *testing.T) {
	srv := newTestServer(t, &stubTranscriber{}, &stubEvaluator{reply: `{}`})

	cases := []struct {
		name   string
		fields map[string]string
		want   string
	}{
		{"missing learner id", map[string]string{"grammar_id": "1", "typed": "hi"}, "Learner ID (numbers only) is required."},
		{"non-numeric learner id", map[string]string{"learner_id": "abc", "grammar_id": "1", "typed": "hi"}, "Learner ID (numbers only) is required."},
		{"missing grammar id", map[string]string{"learner_id": "42", "typed": "hi"}, "Grammar point selection is required."},
		{"empty typed", map[string]string{"learner_id": "42", "grammar_id": "1", "typed": "   "}, "No text provided."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := postForm(t, srv.app, "/api/text", tc.fields, nil)
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Equal(t, tc.want, payload["error"])
		})
	}

	// Rejected requests leave no audit trail.
	assert.Equal(t, 0, auditLineCount(t, srv.auditPath))
}

func TestCheckGrammarTypedWins(t *testing.T) {
	srv := newTestServer(t, &stubTranscriber{transcript: "should not be used"}, &stubEvaluator{
		reply: `{"score": 95}`,
	})

	status, payload := postForm(t, srv.app, "/api/grammar", map[string]string{
		"learner_id": "42",
		"grammar_id": "1",
		"typed":      "he went home",
	}, nil)

	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "he went home", payload["transcript"])
}

func TestCheckGrammarAudioFallback(t *testing.T) {
	srv := newTestServer(t, &stubTranscriber{transcript: "he went home"}, &stubEvaluator{
		reply: `{"score": 95}`,
	})

	status, payload := postForm(t, srv.app, "/api/grammar", map[string]string{
		"learner_id": "42",
		"grammar_id": "1",
	}, []byte{0x1a, 0x45, 0xdf, 0xa3})

	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "he went home", payload["transcript"])
	assert.Equal(t, 2, auditLineCount(t, srv.auditPath))
}

func TestCheckGrammarNoSpeechOrText(t *testing.T) {
	srv := newTestServer(t, &stubTranscriber{}, &stubEvaluator{reply: `{}`})

	status, payload := postForm(t, srv.app, "/api/grammar", map[string]string{
		"learner_id": "42",
		"grammar_id": "1",
	}, nil)

	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "No speech or text found.", payload["error"])
	assert.Equal(t, 0, auditLineCount(t, srv.auditPath))
}

func TestCheckGrammarRemoteFailure(t *testing.T) {
	srv := newTestServer(t, &stubTranscriber{}, &stubEvaluator{err: assert.AnError})

	status, payload := postForm(t, srv.app, "/api/grammar", map[string]string{
		"learner_id": "42",
		"grammar_id": "1",
		"typed":      "hi",
	}, nil)

	require.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "Failed to evaluate sentence", payload["error"])
	assert.Equal(t, 0, auditLineCount(t, srv.auditPath))
}

func TestCheckGrammarMalformedModelOutputIsOK(t *testing.T) {
	srv := newTestServer(t, &stubTranscriber{}, &stubEvaluator{reply: "sorry, I cannot help"})

	status, payload := postForm(t, srv.app, "/api/grammar", map[string]string{
		"learner_id": "42",
		"grammar_id": "1",
		"typed":      "hi",
	}, nil)

	// Malformed model output is data, not a service failure.
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Invalid response", payload["error"])
	assert.Equal(t, "sorry, I cannot help", payload["raw"])
	assert.Equal(t, 2, auditLineCount(t, srv.auditPath))
}
