package orchestrator

import (
	"strings"

	"ChainAgent/internal/llm"
)

// CompletionPredicate decides whether a model response ends the turn.
type CompletionPredicate func(resp *llm.ChatResponse) bool

// StructuralCompletion is the default: the turn is over exactly when the
// model stops requesting tool calls. The response content is the answer.
func StructuralCompletion(resp *llm.ChatResponse) bool {
	return len(resp.ToolCalls) == 0
}

// KeywordCompletion also ends the turn when the response contains one of the
// given phrases, even with tool calls pending. Kept for callers migrating
// from phrase-sniffing models; the structural signal remains authoritative
// for everyone else.
func KeywordCompletion(phrases ...string) CompletionPredicate {
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return func(resp *llm.ChatResponse) bool {
		if StructuralCompletion(resp) {
			return true
		}
		content := strings.ToLower(resp.Content)
		for _, p := range lowered {
			if p != "" && strings.Contains(content, p) {
				return true
			}
		}
		return false
	}
}
