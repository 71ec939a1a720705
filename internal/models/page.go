package models

// QueryParams selects one page of the scan.
type QueryParams struct {
	Query string
	Start int
	Rows  int
}

// Next returns the parameters of the following page.
func (p QueryParams) Next() QueryParams {
	p.Start += p.Rows
	return p
}

// PageResult is one fetched page. It is not retained past the iteration that used it.
type PageResult struct {
	TotalFound int
	Documents  []*Document
}

// StatusOK is the status code the index reports on success.
const StatusOK = 0

// Status is the index reply to an update or control request.
type Status struct {
	Code int
	// FailedIDs lists documents the index rejected individually, when it reports them.
	FailedIDs []string
}

func (s Status) OK() bool {
	return s.Code == StatusOK && len(s.FailedIDs) == 0
}

// RunState is owned by the driver. Processed and Pages only grow.
type RunState struct {
	// Processed counts documents handled by this run.
	Processed int
	// Position is the absolute cursor: start offset plus Processed.
	Position          int
	Pages             int
	TotalDocuments    int
	EndOfIndexReached bool
	Commits           int
	WriteFailures     int
	CommitFailures    int
}

// Percent reports progress against TotalDocuments, 0 when the total is unknown.
func (s RunState) Percent() float64 {
	if s.TotalDocuments <= 0 {
		return 0
	}
	return float64(s.Position) / float64(s.TotalDocuments) * 100
}
