package llmcall

// Stats aggregates a set of calls.
type Stats struct {
	Calls        int `json:"calls" yaml:"calls"`
	Failed       int `json:"failed" yaml:"failed"`
	Mock         int `json:"mock" yaml:"mock"`
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`
	LatencyMs    int `json:"latency_ms" yaml:"latency_ms"`
}

// Summarize totals calls.
func Summarize(calls []Call) Stats {
	var s Stats
	for _, c := range calls {
		s.Calls++
		if !c.Success {
			s.Failed++
		}
		if c.Mock {
			s.Mock++
		}
		s.InputTokens += c.InputTokens
		s.OutputTokens += c.OutputTokens
		s.LatencyMs += c.LatencyMs
	}
	return s
}

// CountByPromptKey counts calls per prompt key. Calls without a key are
// counted under "".
func CountByPromptKey(calls []Call) map[string]int {
	counts := make(map[string]int)
	for _, c := range calls {
		counts[c.PromptKey]++
	}
	return counts
}
