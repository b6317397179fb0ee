package models

// Boundary is a contiguous page range describing one statement within a
// bundled source PDF. StartPage and EndPage are 1-based and inclusive.
type Boundary struct {
	StartPage     int     `json:"start_page"`
	EndPage       int     `json:"end_page"`
	AccountNumber string  `json:"account_number,omitempty"`
	BankName      string  `json:"bank_name,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
	Reasoning     string  `json:"reasoning,omitempty"`
}

// PageRun returns the number of pages the boundary covers.
func (b Boundary) PageRun() int {
	return b.EndPage - b.StartPage + 1
}

// SameRange reports whether two boundaries cover identical pages for the
// same account. Duplicate boundaries are defined by this triple.
func (b Boundary) SameRange(other Boundary) bool {
	return b.StartPage == other.StartPage &&
		b.EndPage == other.EndPage &&
		b.AccountNumber == other.AccountNumber
}

// StatementMetadata carries the per-boundary fields used for naming and
// upload. Missing fields hold the documented defaults rather than empty
// strings so downstream consumers never re-derive them.
type StatementMetadata struct {
	BankName        string  `json:"bank_name"`
	AccountNumber   string  `json:"account_number"`
	AccountLast4    string  `json:"account_last4"`
	StatementPeriod string  `json:"statement_period"`
	StatementDate   string  `json:"statement_date"`
	CustomerName    string  `json:"customer_name,omitempty"`
	Confidence      float64 `json:"confidence"`
}

// Metadata defaults applied when extraction cannot determine a field.
const (
	UnknownBank  = "unknown"
	UnknownLast4 = "0000"
	UnknownDate  = "unknown-date"
)
