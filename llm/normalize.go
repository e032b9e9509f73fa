package llm

import (
	"regexp"
	"strings"
)

var (
	reasoningRE    = regexp.MustCompile(`(?s)<think>.*?</think>`)
	genericFenceRE = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_+-]*\n)?(.*?)```")
)

// StripReasoning removes <think>...</think> blocks some models emit
// before their answer.
func StripReasoning(text string) string {
	return strings.TrimSpace(reasoningRE.ReplaceAllString(text, ""))
}

// ExtractFenced pulls code out of model output: the first fence tagged
// with lang wins, then the first fence of any language, then the raw
// trimmed text. The last fallback keeps a model that forgot its fences
// from derailing a run.
func ExtractFenced(text, lang string) string {
	if lang != "" {
		re := regexp.MustCompile("(?s)```" + regexp.QuoteMeta(lang) + "\n(.*?)```")
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	if m := genericFenceRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}
