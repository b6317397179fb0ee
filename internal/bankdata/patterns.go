// -----------------------------------------------------------------------
// Shared bank statement patterns: institutions, account numbers, dates
// -----------------------------------------------------------------------

package bankdata

import (
	"regexp"
	"strings"
	"time"
)

// KnownInstitutions lists bank names recognized by the fallback extractor
// and the hallucination detector. Matching is case-insensitive substring.
var KnownInstitutions = []string{
	"westpac",
	"commonwealth bank",
	"anz",
	"national australia bank",
	"nab",
	"macquarie",
	"bendigo bank",
	"suncorp",
	"bank of queensland",
	"ing",
	"chase",
	"jpmorgan",
	"wells fargo",
	"bank of america",
	"citibank",
	"citi",
	"capital one",
	"us bank",
	"pnc bank",
	"td bank",
	"hsbc",
	"barclays",
	"lloyds",
	"natwest",
	"santander",
	"royal bank of canada",
	"scotiabank",
	"bmo",
	"deutsche bank",
	"ubs",
}

// accountPatterns match account number presentations commonly found in
// statements. Order matters: more specific labels first.
var accountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)account\s*(?:number|no\.?|#)?[:\s]+(\d[\d\s\-]{6,}\d)`),
	regexp.MustCompile(`(?i)acct\.?\s*(?:number|no\.?|#)?[:\s]+(\d[\d\s\-]{6,}\d)`),
	regexp.MustCompile(`(?i)\bBSB[:\s]+\d{3}[\s\-]?\d{3}[,\s]+(?:account|acct)[:\s]*(\d[\d\s\-]{4,}\d)`),
	regexp.MustCompile(`\b(\d{4}[\s\-]\d{4}[\s\-]\d{4}[\s\-]\d{4})\b`),
	regexp.MustCompile(`\b(\d{8,20})\b`),
}

// AccountMatch is one account number occurrence within a text.
type AccountMatch struct {
	Number   string // digits only
	Position int    // byte offset of the match
}

// NormalizeAccountNumber strips separators, keeping digits only.
func NormalizeAccountNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FindAccountNumbers scans text for account number candidates. Matches
// normalize to at least minDigits digits; shorter hits are discarded.
func FindAccountNumbers(text string, minDigits int) []AccountMatch {
	seen := make(map[int]bool)
	var matches []AccountMatch

	for _, pattern := range accountPatterns {
		for _, loc := range pattern.FindAllStringSubmatchIndex(text, -1) {
			if len(loc) < 4 || loc[2] < 0 {
				continue
			}
			raw := text[loc[2]:loc[3]]
			number := NormalizeAccountNumber(raw)
			if len(number) < minDigits {
				continue
			}
			if seen[loc[2]] {
				continue
			}
			seen[loc[2]] = true
			matches = append(matches, AccountMatch{Number: number, Position: loc[2]})
		}
	}

	return matches
}

// FindInstitution returns the first known institution mentioned in the
// text, or "" when none is found. Matching is on whole words so short
// names like "ing" never match inside larger words.
func FindInstitution(text string) string {
	normalized := normalizeWords(text)
	for _, name := range KnownInstitutions {
		if strings.Contains(normalized, " "+name+" ") {
			return name
		}
	}
	return ""
}

// IsKnownInstitution reports whether the candidate names (part of) a known
// institution.
func IsKnownInstitution(candidate string) bool {
	normalized := normalizeWords(candidate)
	if strings.TrimSpace(normalized) == "" {
		return false
	}
	for _, name := range KnownInstitutions {
		padded := " " + name + " "
		if strings.Contains(normalized, padded) || strings.Contains(padded, normalized) {
			return true
		}
	}
	return false
}

// normalizeWords lowercases and reduces text to space-delimited
// alphanumeric words, padded for whole-word containment checks.
func normalizeWords(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return " " + strings.Join(strings.Fields(b.String()), " ") + " "
}

// dateLayouts accepted by ParseDate, most specific first.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006/01/02",
}

// ParseDate parses a statement date in any tolerated layout.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// PeriodEnd extracts the authoritative end date from a statement period.
// Periods are either a single date or "<start>_<end>" / "<start> to <end>"
// ranges; the end date wins. Returns the date formatted as ISO, or false.
func PeriodEnd(period string) (string, bool) {
	period = strings.TrimSpace(period)
	if period == "" {
		return "", false
	}

	candidate := period
	if idx := strings.LastIndex(period, "_"); idx >= 0 {
		candidate = period[idx+1:]
	} else if idx := strings.LastIndex(strings.ToLower(period), " to "); idx >= 0 {
		candidate = period[idx+4:]
	}

	if t, ok := ParseDate(candidate); ok {
		return t.Format("2006-01-02"), true
	}
	return "", false
}

// datePattern finds ISO-style dates inside free text.
var datePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

// FindDates returns all ISO dates present in a text, in order.
func FindDates(text string) []string {
	return datePattern.FindAllString(text, -1)
}
