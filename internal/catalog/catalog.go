package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/grammar-coach/backend/pkg/logger"
)

// GrammarPoint is one catalogued rule of correct usage. Points are loaded
// once at startup and never mutated.
type GrammarPoint struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Rule    string `json:"rule"`
	Example string `json:"example"`
}

// Catalog holds the grammar points in file order. Safe for concurrent
// reads after Load.
type Catalog struct {
	points []GrammarPoint
	minID  int
	maxID  int
}

// Load reads the grammar-point file. A missing or malformed file is a
// startup error; the caller is expected to treat it as fatal.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grammar catalog %s: %w", path, err)
	}

	var points []GrammarPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("failed to parse grammar catalog %s: %w", path, err)
	}

	logger.Info("Grammar catalog loaded",
		zap.String("path", path),
		zap.Int("points", len(points)),
	)

	return New(points), nil
}

// New builds a catalog from already-decoded points, keeping their order.
func New(points []GrammarPoint) *Catalog {
	c := &Catalog{points: points}
	for i, p := range points {
		if i == 0 || p.ID < c.minID {
			c.minID = p.ID
		}
		if p.ID > c.maxID {
			c.maxID = p.ID
		}
	}
	return c
}

// Points returns the catalog in file order.
func (c *Catalog) Points() []GrammarPoint {
	return c.points
}

// FindByID scans for a grammar point by id. The catalog holds tens of
// entries, so a linear scan is fine.
func (c *Catalog) FindByID(id int) (GrammarPoint, bool) {
	for _, p := range c.points {
		if p.ID == id {
			return p, true
		}
	}
	return GrammarPoint{}, false
}

// IDRange returns the smallest and largest id in the catalog.
func (c *Catalog) IDRange() (int, int) {
	return c.minID, c.maxID
}

func (c *Catalog) Len() int {
	return len(c.points)
}
