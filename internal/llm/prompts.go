package llm

import "fmt"

const boundarySystemPrompt = `You analyze bundled bank statement PDFs. Reply with JSON only, no prose.`

// boundaryPrompt asks for statement boundaries within page-joined text.
func boundaryPrompt(text string, totalPages int) string {
	return fmt.Sprintf(`The following text was extracted from a %d-page PDF that may contain
one or more concatenated bank statements. Page breaks are marked as
"--- Page N ---".

Identify each individual statement's page range. Respond with JSON:
{
  "total_statements": <int>,
  "confidence": <0.0-1.0>,
  "analysis": "<short explanation>",
  "boundaries": [
    {"start_page": <int>, "end_page": <int>, "account_number": "<string or empty>",
     "bank_name": "<string or empty>", "confidence": <0.0-1.0>, "reasoning": "<short>"}
  ]
}

Pages are 1-based and every boundary must lie within 1..%d.

Document text:
%s`, totalPages, totalPages, text)
}

const metadataSystemPrompt = `You extract bank statement metadata. Reply with JSON only, no prose.`

// metadataPrompt asks for statement metadata for one segment.
func metadataPrompt(text string, startPage, endPage int) string {
	return fmt.Sprintf(`The following text covers pages %d-%d of a bank statement. Extract its
metadata. Respond with JSON:
{
  "bank_name": "<string or empty>",
  "account_number": "<string or empty>",
  "statement_period": "<YYYY-MM-DD or YYYY-MM-DD_YYYY-MM-DD or empty>",
  "statement_date": "<YYYY-MM-DD or empty>",
  "customer_name": "<string or empty>",
  "confidence": <0.0-1.0>
}

Statement text:
%s`, startPage, endPage, text)
}

// probePrompt is the trivial prompt used by availability checks.
const probePrompt = `Reply with the single word: ok`
