package model

// ResultSet is the decoded response of a query: result metadata, rows and stats.
type ResultSet struct {
	Fields []string
	Rows   []ResultRow
	Stats  *ResultSetStats
}

// ResultSetStats holds the optional plan and aggregate statistics of a query.
type ResultSetStats struct {
	QueryPlan  *QueryPlan
	QueryStats *QueryStats
}

// QueryPlan is the flat list of plan nodes returned by the server.
// The root record comes first and every child appears after its parent.
type QueryPlan struct {
	PlanNodes []PlanNodeRecord
}

// PlanNodeRecord is one entry of a query plan.
type PlanNodeRecord struct {
	// Index is nil exactly for the root record.
	Index       *int
	Kind        string
	DisplayName string
	ChildLinks  []ChildLink
}

// ChildLink references a child plan node by index.
type ChildLink struct {
	ChildIndex int
	Type       string
	Variable   string
}

// QueryStats carries the sparse aggregate statistics of a query.
type QueryStats struct {
	Properties []Property
}

// Property is a key with an optional value.
type Property struct {
	Key   string
	Value *string
}

// ResultRow is one row of a result set. Cells hold JSON-shaped values and may be
// composite ([]any).
type ResultRow struct {
	Entry []any
}

// IntPtr returns a pointer to i.
func IntPtr(i int) *int {
	return &i
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
