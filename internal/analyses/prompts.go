package analyses

import (
	"encoding/json"
	"fmt"
	"strings"

	"proposal-backend/internal/llm"
)

const analystSystem = "You are a rigorous policy analyst. Respond with JSON only, no prose outside the JSON."

func extractRequest(proposalText string) llm.Request {
	return llm.Request{
		System: analystSystem,
		Prompt: fmt.Sprintf(`Extract the distinct factual or policy claims from this proposal.

Proposal:
%s

Respond as {"statements": ["claim", ...]} with at least one claim.`, proposalText),
		Temperature: 0.2,
	}
}

func impactsRequest(proposalText, statement string) llm.Request {
	return llm.Request{
		System: analystSystem,
		Prompt: fmt.Sprintf(`Given this proposal:
%s

List the likely downstream impacts of the following claim. Include at least one impact.

Claim: %s

Respond as {"impacts": ["impact", ...]}.`, proposalText, statement),
		Temperature: 0.5,
	}
}

func categorizeRequest(impacts []Impact) llm.Request {
	var b strings.Builder
	for i, impact := range impacts {
		fmt.Fprintf(&b, "%d. %s\n", i, impact.Text)
	}
	return llm.Request{
		System: analystSystem,
		Prompt: fmt.Sprintf(`Group these numbered impacts into named categories (for example "economic", "social", "environmental"). Assign every index to exactly one category.

Impacts:
%s
Respond as {"categories": {"category name": [0, 2], ...}}.`, b.String()),
		Temperature: 0.2,
	}
}

func researchRequest(category string, impacts []Impact) llm.Request {
	var b strings.Builder
	for _, impact := range impacts {
		fmt.Fprintf(&b, "- %s\n", impact.Text)
	}
	return llm.Request{
		System: analystSystem,
		Prompt: fmt.Sprintf(`Summarize the relevant evidence and context for these "%s" impacts of a policy proposal.

Impacts:
%s
Respond as {"findings": "short research summary"}.`, category, b.String()),
		Temperature: 0.3,
	}
}

func scoreRequest(category, findings string) llm.Request {
	return llm.Request{
		System: analystSystem,
		Prompt: fmt.Sprintf(`Given this research about the "%s" impacts of a proposal, score the net effect from -1 (strongly negative) to 1 (strongly positive).

Research:
%s

Respond as {"score": 0.0}.`, category, findings),
		Temperature: 0.1,
	}
}

func summarizeRequest(state AnalysisState) llm.Request {
	var b strings.Builder
	for category, score := range state.Scores {
		fmt.Fprintf(&b, "- %s: score %.2f. %s\n", category, score, state.Findings[category])
	}
	return llm.Request{
		System: analystSystem,
		Prompt: fmt.Sprintf(`Write a concise overall assessment of this proposal based on the per-category findings.

Proposal:
%s

Findings:
%s
Respond as {"summary": "assessment text"}.`, state.ProposalText, b.String()),
		Temperature: 0.4,
	}
}

// decodeJSONContent unmarshals a model response into out, tolerating markdown
// code fences around the JSON body.
func decodeJSONContent(content string, out any) error {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if err := json.Unmarshal([]byte(trimmed), out); err != nil {
		return fmt.Errorf("model response is not valid JSON: %w", err)
	}
	return nil
}
