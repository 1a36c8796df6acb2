package core

// RunStats accumulates token usage and cost across one run's stage
// calls. The orchestrator owns one per run; stages add to it. Access
// is single-threaded (stages run sequentially), so no lock is needed.
type RunStats struct {
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	ModelsUsed   []string
}

// Add records one completion request's usage. Safe on a nil receiver
// so stages can be called without an accumulator in tests.
func (s *RunStats) Add(inputTokens, outputTokens int64, cost float64, model string) {
	if s == nil {
		return
	}
	s.InputTokens += inputTokens
	s.OutputTokens += outputTokens
	s.Cost += cost
	for _, m := range s.ModelsUsed {
		if m == model {
			return
		}
	}
	s.ModelsUsed = append(s.ModelsUsed, model)
}

// TotalTokens returns combined input and output tokens
func (s *RunStats) TotalTokens() int64 {
	if s == nil {
		return 0
	}
	return s.InputTokens + s.OutputTokens
}
