package history

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
)

// Turn is one prior question and answer exchange.
type Turn struct {
	Query   string
	Answer  string
	Sources []string
	AskedAt time.Time
}

// Selector keeps the session's past turns and picks the ones relevant
// to a new query. It implements core.HistorySelector.
type Selector struct {
	mu     sync.RWMutex
	turns  []Turn
	index  bleve.Index
	maxK   int
	logger *log.Logger
}

type turnDoc struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

func NewSelector(logger *log.Logger) (*Selector, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "[HISTORY] ", log.LstdFlags)
	}
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("open history index: %w", err)
	}
	return &Selector{index: index, maxK: 3, logger: logger}, nil
}

// Record appends a completed turn and indexes it for later recall.
func (s *Selector) Record(turn Turn) error {
	if turn.AskedAt.IsZero() {
		turn.AskedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strconv.Itoa(len(s.turns))
	s.turns = append(s.turns, turn)
	return s.index.Index(id, turnDoc{Query: turn.Query, Answer: turn.Answer})
}

// Select renders the turns relevant to query, once for the planning
// prompt and once for the synthesis prompt. With no history both
// contexts are empty.
func (s *Selector) Select(ctx context.Context, query string) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return "", "", nil
	}

	relevant := s.relevantLocked(query)
	if len(relevant) == 0 {
		// no textual overlap, fall back to the most recent exchange
		relevant = []Turn{s.turns[len(s.turns)-1]}
	}

	var planning, answer strings.Builder
	planning.WriteString("Previous conversation turns:\n")
	answer.WriteString("Earlier in this conversation:\n")
	for _, t := range relevant {
		fmt.Fprintf(&planning, "- Q: %s\n  A: %s\n", t.Query, clip(t.Answer, 200))
		fmt.Fprintf(&answer, "Q: %s\nA: %s\n", t.Query, clip(t.Answer, 500))
		if len(t.Sources) > 0 {
			fmt.Fprintf(&answer, "Sources: %s\n", strings.Join(t.Sources, ", "))
		}
	}
	return planning.String(), answer.String(), nil
}

func (s *Selector) relevantLocked(query string) []Turn {
	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, s.maxK, 0, false)
	res, err := s.index.Search(req)
	if err != nil {
		s.logger.Printf("history search failed: %v", err)
		return nil
	}
	var out []Turn
	for _, hit := range res.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(s.turns) {
			continue
		}
		out = append(out, s.turns[i])
	}
	return out
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
