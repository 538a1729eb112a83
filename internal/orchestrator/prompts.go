package orchestrator

import (
	"fmt"
	"strings"

	"ChainAgent/internal/knowledge"
)

const basePrompt = `You are a blockchain assistant. You answer questions about
accounts, balances, gas and transactions on the configured networks, using
the tools available to you. Quote on-chain values exactly as the tools return
them and name the network you queried. If a tool fails, explain what you
could not retrieve instead of guessing.`

func buildSystemPrompt(snippets []knowledge.Snippet, walletAddress, chain string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	if walletAddress != "" {
		fmt.Fprintf(&b, "\n\nThe user is authenticated as wallet %s", walletAddress)
		if chain != "" {
			fmt.Fprintf(&b, " on %s", chain)
		}
		b.WriteString(".")
	}
	if len(snippets) > 0 {
		b.WriteString("\n\nBackground:")
		for _, s := range snippets {
			fmt.Fprintf(&b, "\n- %s: %s", s.Title, s.Content)
		}
	}
	return b.String()
}

// correctiveFollowUp tells the model which calls failed and which succeeded
// so it can rephrase, retry differently, or answer with what it has.
func correctiveFollowUp(results []ToolCallSummary) string {
	var failed, succeeded []string
	for _, r := range results {
		if r.ok {
			succeeded = append(succeeded, r.Name)
		} else {
			failed = append(failed, fmt.Sprintf("%s (%s)", r.Name, r.Result))
		}
	}
	var b strings.Builder
	b.WriteString("Some tool calls failed: ")
	b.WriteString(strings.Join(failed, "; "))
	b.WriteString(".")
	if len(succeeded) > 0 {
		fmt.Fprintf(&b, " These succeeded and their results are above: %s.", strings.Join(succeeded, ", "))
	}
	b.WriteString(" Adjust your approach or answer with the information you already have.")
	return b.String()
}

// continueFollowUp nudges the model after a fully successful tool batch:
// either keep working or commit to a final answer.
const continueFollowUp = "All tool calls succeeded and their results are above. " +
	"Continue with any remaining work, or give your final answer."

// exhaustedFallback is the best-effort answer when the iteration budget runs
// out before the model produces a final response.
func exhaustedFallback(summaries []ToolCallSummary) string {
	var b strings.Builder
	b.WriteString("I could not finish answering within the allowed number of steps.")
	if len(summaries) > 0 {
		b.WriteString(" Here is what I gathered:")
		for _, s := range summaries {
			if s.ok {
				fmt.Fprintf(&b, "\n- %s: %s", s.Name, s.Result)
			} else {
				fmt.Fprintf(&b, "\n- %s failed: %s", s.Name, s.Result)
			}
		}
	}
	b.WriteString("\nPlease narrow the question and try again.")
	return b.String()
}
