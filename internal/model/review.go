package model

// Pagination defaults.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// SortOrder is the direction of a sorted query.
type SortOrder string

// Sort order constants.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps limit and offset into usable values.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// FlaggedFilter selects flagged lines awaiting review.
// SortBy is one of created_at, description, confidence, hs_code, invoice_number.
type FlaggedFilter struct {
	SortBy    string
	SortOrder SortOrder
	Page
}

// HistoryFilter selects classification history rows.
type HistoryFilter struct {
	LineID    string
	UserID    string
	SortOrder SortOrder
	Page
}

// FlaggedLine is a line in the review queue with its invoice context.
type FlaggedLine struct {
	InvoiceNumber string
	OwnerID       string
	InvoiceLine
}

// ReviewStats summarizes the review queue and review activity.
type ReviewStats struct {
	TotalLines        int
	FlaggedLines      int
	AutoLines         int
	ManualLines       int
	FailedLines       int
	UnclassifiedLines int
	ApprovedCount     int
	AdjustedCount     int
	ReviewedToday     int
}
