package audit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

var header = []string{
	"learner_id",
	"timestamp",
	"transcript",
	"correction",
	"explanation",
	"score",
	"grammar_point",
	"selected_point",
}

// Record is one evaluation outcome. Fields the model did not supply stay
// empty; error-shaped evaluations are logged too.
type Record struct {
	LearnerID     string
	Timestamp     time.Time
	Transcript    string
	Correction    string
	Explanation   string
	Score         string
	MatchedLabel  string
	SelectedLabel string
}

// Logger appends evaluation records to a CSV file, writing the header
// row when it creates the file. Appends are serialized with a mutex so
// concurrent requests never interleave rows.
type Logger struct {
	mu   sync.Mutex
	path string
}

func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

func (l *Logger) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, statErr := os.Stat(l.path)
	writeHeader := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write audit header: %w", err)
		}
	}

	row := []string{
		rec.LearnerID,
		rec.Timestamp.Format("2006-01-02T15:04:05"),
		rec.Transcript,
		rec.Correction,
		rec.Explanation,
		rec.Score,
		rec.MatchedLabel,
		rec.SelectedLabel,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush audit log: %w", err)
	}
	return nil
}
