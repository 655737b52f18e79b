package stats

import "github.com/mickamy/spxplain/internal/model"

// Unknown is shown for statistics the server did not report.
const Unknown = "Unknown"

// Field is one labelled statistic.
type Field struct {
	Label string
	Value string
}

// Row is the fixed set of aggregate statistics, in display order.
type Row []Field

// Labels returns the labels of r in order.
func (r Row) Labels() []string {
	out := make([]string, 0, len(r))
	for _, f := range r {
		out = append(out, f.Label)
	}
	return out
}

// Map returns r keyed by label.
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r))
	for _, f := range r {
		out[f.Label] = f.Value
	}
	return out
}

var aggregateKeys = []struct {
	label string
	key   string
}{
	{label: "total_elapsed_time", key: "elapsed_time"},
	{label: "cpu_time", key: "cpu_time"},
	{label: "rows_returned", key: "rows_returned"},
	{label: "rows_scanned", key: "rows_scanned"},
}

// Lookup returns the value of the first property named key. It returns def when
// no property matches or the first match carries no value.
func Lookup(props []model.Property, key, def string) string {
	for _, p := range props {
		if p.Key != key {
			continue
		}
		if p.Value == nil {
			return def
		}
		return *p.Value
	}
	return def
}

// Aggregate extracts the aggregate statistics shown after a query.
// Missing statistics resolve to unknown, or to Unknown when unknown is empty.
func Aggregate(props []model.Property, unknown string) Row {
	if unknown == "" {
		unknown = Unknown
	}
	row := make(Row, 0, len(aggregateKeys))
	for _, k := range aggregateKeys {
		row = append(row, Field{Label: k.label, Value: Lookup(props, k.key, unknown)})
	}
	return row
}

// HasAggregateStats reports whether rs carries query statistics.
func HasAggregateStats(rs *model.ResultSet) bool {
	return rs != nil && rs.Stats != nil && rs.Stats.QueryStats != nil
}

// HasQueryPlan reports whether rs carries a query plan.
func HasQueryPlan(rs *model.ResultSet) bool {
	return rs != nil && rs.Stats != nil && rs.Stats.QueryPlan != nil
}
