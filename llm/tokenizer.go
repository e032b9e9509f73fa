package llm

import (
	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts prompt tokens for budget logging. It uses the
// cl100k_base BPE when available and falls back to a bytes/4 heuristic,
// since local models tokenize differently anyway and an estimate is all
// the callers need.
type Estimator struct {
	enc *tiktoken.Tiktoken
}

// NewEstimator never fails; an unavailable encoding just selects the
// heuristic.
func NewEstimator() *Estimator {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Estimator{}
	}
	return &Estimator{enc: enc}
}

// Count estimates the token count of text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if e != nil && e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// Truncate caps text at roughly maxTokens, cutting on a byte boundary of
// the heuristic when no encoding is available.
func (e *Estimator) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if e != nil && e.enc != nil {
		tokens := e.enc.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text
		}
		return e.enc.Decode(tokens[:maxTokens])
	}
	maxBytes := maxTokens * 4
	if len(text) <= maxBytes {
		return text
	}
	return text[:maxBytes]
}
