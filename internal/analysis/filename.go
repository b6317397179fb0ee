// -----------------------------------------------------------------------
// Filename Builder - deterministic output names from statement metadata
// -----------------------------------------------------------------------

package analysis

import (
	"fmt"
	"strings"

	"github.com/madeinoz67/bank-statement-separator/internal/bankdata"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

const (
	// maxBankSegment caps the normalized bank segment of a filename.
	maxBankSegment = 10

	pdfExtension = ".pdf"
)

// bankNoiseWords are dropped from bank names before normalization.
var bankNoiseWords = map[string]bool{
	"bank":        true,
	"banking":     true,
	"corporation": true,
}

// BuildFilename composes the output filename for one statement segment:
// <bank>-<last4>-<date>.pdf, with a "-p<startPage>" disambiguation suffix
// whenever any component fell back to its unknown default. The result is
// clamped to maxLen, sacrificing the bank/date body before the suffix and
// extension. The same metadata and boundary always produce the same name.
func BuildFilename(metadata models.StatementMetadata, boundary models.Boundary, maxLen int) string {
	bank := NormalizeBankName(metadata.BankName)
	last4 := Last4(metadata.AccountNumber)
	date := statementDate(metadata)

	suffix := ""
	if bank == models.UnknownBank || last4 == models.UnknownLast4 || date == models.UnknownDate {
		suffix = fmt.Sprintf("-p%d", boundary.StartPage)
	}

	base := fmt.Sprintf("%s-%s-%s", bank, last4, date)
	name := base + suffix + pdfExtension

	if maxLen > 0 && len(name) > maxLen {
		keep := maxLen - len(suffix) - len(pdfExtension)
		if keep < 1 {
			keep = 1
		}
		if keep > len(base) {
			keep = len(base)
		}
		name = base[:keep] + suffix + pdfExtension
	}

	return name
}

// Title derives the DMS document title from a filename: the name without
// its extension.
func Title(filename string) string {
	return strings.TrimSuffix(filename, pdfExtension)
}

// NormalizeBankName reduces a bank name to a compact filename segment:
// lowercase, generic banking words removed, non-alphanumerics stripped,
// truncated to ten characters. Empty input yields the unknown default.
func NormalizeBankName(bankName string) string {
	lower := strings.ToLower(strings.TrimSpace(bankName))
	if lower == "" || lower == models.UnknownBank {
		return models.UnknownBank
	}

	var kept []string
	for _, word := range strings.Fields(lower) {
		if bankNoiseWords[word] {
			continue
		}
		kept = append(kept, word)
	}

	var b strings.Builder
	for _, word := range kept {
		for _, r := range word {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			}
		}
	}

	name := b.String()
	if name == "" {
		return models.UnknownBank
	}
	if len(name) > maxBankSegment {
		name = name[:maxBankSegment]
	}
	return name
}

// statementDate picks the date segment: the statement period's end date
// wins, then a parseable statement date, then the unknown default.
func statementDate(metadata models.StatementMetadata) string {
	if end, ok := bankdata.PeriodEnd(metadata.StatementPeriod); ok {
		return end
	}
	if t, ok := bankdata.ParseDate(metadata.StatementDate); ok {
		return t.Format("2006-01-02")
	}
	return models.UnknownDate
}
