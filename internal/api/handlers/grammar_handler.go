package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/grammar-coach/backend/internal/catalog"
	"github.com/grammar-coach/backend/internal/evaluation"
	"github.com/grammar-coach/backend/pkg/logger"
)

type GrammarHandler struct {
	catalog *catalog.Catalog
	engine  *evaluation.Engine
}

func NewGrammarHandler(cat *catalog.Catalog, engine *evaluation.Engine) *GrammarHandler {
	return &GrammarHandler{
		catalog: cat,
		engine:  engine,
	}
}

func (h *GrammarHandler) ListGrammarPoints(c *fiber.Ctx) error {
	return c.JSON(h.catalog.Points())
}

// CheckText evaluates a typed sentence. Validation is the strict
// variant: digits-only learner and grammar ids, non-empty text.
func (h *GrammarHandler) CheckText(c *fiber.Ctx) error {
	learnerID, grammarID, errResp := parseIdentity(c)
	if errResp != nil {
		return errResp(c)
	}

	typed := strings.TrimSpace(c.FormValue("typed"))
	if typed == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No text provided.",
		})
	}

	payload, err := h.engine.Evaluate(c.Context(), evaluation.Request{
		LearnerID: learnerID,
		GrammarID: grammarID,
		Text:      typed,
	})
	return h.respond(c, payload, err)
}

// CheckGrammar evaluates typed text when present, otherwise the
// transcript of an uploaded audio file.
func (h *GrammarHandler) CheckGrammar(c *fiber.Ctx) error {
	learnerID, grammarID, errResp := parseIdentity(c)
	if errResp != nil {
		return errResp(c)
	}

	typed := strings.TrimSpace(c.FormValue("typed"))

	var audio []byte
	if typed == "" {
		if fileHeader, err := c.FormFile("audio"); err == nil {
			audio, err = readUpload(fileHeader)
			if err != nil {
				// Same fail-open stance as transcription itself.
				logger.Warn("Failed to read audio upload", zap.Error(err))
			}
		}
	}

	payload, err := h.engine.Evaluate(c.Context(), evaluation.Request{
		LearnerID: learnerID,
		GrammarID: grammarID,
		Text:      typed,
		Audio:     audio,
	})
	return h.respond(c, payload, err)
}

func (h *GrammarHandler) respond(c *fiber.Ctx, payload map[string]any, err error) error {
	if errors.Is(err, evaluation.ErrNoTranscript) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No speech or text found.",
		})
	}
	if err != nil {
		logger.Error("Evaluation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to evaluate sentence",
		})
	}
	return c.JSON(payload)
}

func parseIdentity(c *fiber.Ctx) (string, int, func(*fiber.Ctx) error) {
	learnerID := strings.TrimSpace(c.FormValue("learner_id"))
	if !isDigits(learnerID) {
		return "", 0, badRequest("Learner ID (numbers only) is required.")
	}

	grammarRaw := strings.TrimSpace(c.FormValue("grammar_id"))
	if !isDigits(grammarRaw) {
		return "", 0, badRequest("Grammar point selection is required.")
	}
	grammarID, err := strconv.Atoi(grammarRaw)
	if err != nil {
		return "", 0, badRequest("Grammar point selection is required.")
	}

	return learnerID, grammarID, nil
}

func badRequest(msg string) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": msg,
		})
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
