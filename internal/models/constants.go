package models

const (
	ContextSeparator = "\n\n---\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	// NoEvidenceMarker is sent to the generator in place of excerpts when
	// retrieval found nothing for the question.
	NoEvidenceMarker = "[NO EVIDENCE FOUND: no indexed filing or news passage matched this question]"

	MetricNetIncome = "net_income"
	MetricRevenue   = "revenue"
)

var (
	AnalystSystemPrompt = "You answer financial queries based on provided context."

	RAGPromptTemplate = `You are a financial analyst assistant for %s. Use the following document excerpts to answer the question.
If the excerpts do not contain the answer, say so plainly.
Excerpts:
%s

Question: %s
`

	NewsPromptTemplate = `You are an equity research assistant. %s's most recent revenue (%s) was %s.
The mean sentiment of the news excerpts below is %.2f on a scale from -1 (negative) to 1 (positive).
Below are a few recent news excerpts relevant to %s:

%s

Question: %s
`

	SummaryPromptTemplate = `You are an equity research assistant. Summarize the financial document below.
Reply in exactly this format:
Summary: <one-sentence executive summary>
- <key highlight>
- <key highlight>
- <key highlight>

Document:
"""
%s
"""
`
)
