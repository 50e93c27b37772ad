package ai

import (
	"strings"

	"github.com/KaramelBytes/edalens/internal/utils"
)

// SystemPrompt frames the model as a data analyst writing for the dashboard.
const SystemPrompt = "You are a data analyst. You receive a summary of a tabular dataset " +
	"(schema, statistics, correlations and the first rows). Write a concise analysis in markdown: " +
	"key patterns, data quality issues, notable relationships and suggested next steps. " +
	"Only state what the summary supports."

// DefaultContextTokens bounds the dataset summary placed in a prompt.
const DefaultContextTokens = 3000

// BuildPrompt joins the dataset summary and an optional user question. The
// summary is truncated to roughly budget tokens.
func BuildPrompt(summary, question string, budget int) string {
	if budget <= 0 {
		budget = DefaultContextTokens
	}
	ctx := strings.TrimSpace(summary)
	if utils.CountTokens(ctx) > budget {
		ctx = utils.TruncateToTokenLimit(ctx, budget) + "\n[summary truncated]"
	}
	var b strings.Builder
	b.WriteString(ctx)
	b.WriteString("\n\n[TASK]\n")
	if q := strings.TrimSpace(question); q != "" {
		b.WriteString(q)
	} else {
		b.WriteString("Describe the dataset and the most relevant findings for a business audience.")
	}
	b.WriteString("\n")
	return b.String()
}
