// Package display prints query plans, aggregate statistics and result rows.
package display

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mickamy/spxplain/internal/model"
	"github.com/mickamy/spxplain/internal/plantree"
	"github.com/mickamy/spxplain/internal/render/table"
	"github.com/mickamy/spxplain/internal/render/tree"
	"github.com/mickamy/spxplain/internal/stats"
)

// AggregateStatsFormat is the table layout of the aggregate statistics.
const AggregateStatsFormat = "table[box](total_elapsed_time, cpu_time, rows_returned, rows_scanned)"

// Plan prints the query plan as a tree. Nothing is written if the plan is malformed.
func Plan(w io.Writer, plan *model.QueryPlan) error {
	if plan == nil {
		return errors.New("display: missing query plan")
	}
	root, err := plantree.Build(plan.PlanNodes)
	if err != nil {
		return fmt.Errorf("display: build plan tree: %w", err)
	}
	return tree.Render(w, root)
}

// AggregateStats prints the elapsed time, CPU time and row counts of a query.
// Statistics the server did not report show as unknown.
func AggregateStats(w io.Writer, qs *model.QueryStats, unknown string) error {
	if qs == nil {
		return errors.New("display: missing query stats")
	}
	row := stats.Aggregate(qs.Properties, unknown)
	return table.Print(w, []map[string]any{row.Map()}, AggregateStatsFormat)
}

// ResultsFormat builds the table layout for the given result fields. Each
// column takes the cell at its position and joins composite values.
func ResultsFormat(fields []string) string {
	columns := make([]string, 0, len(fields))
	for i, f := range fields {
		columns = append(columns, fmt.Sprintf("row.slice(%d).join():label=%s", i, strconv.Quote(f)))
	}
	return "table(" + strings.Join(columns, ",") + ")"
}

// Results prints the result rows under the given field names.
func Results(w io.Writer, fields []string, rows []model.ResultRow) error {
	if len(fields) == 0 {
		return errors.New("display: result has no fields")
	}
	records := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		records = append(records, map[string]any{"row": r.Entry})
	}
	return table.Print(w, records, ResultsFormat(fields))
}

// Sections selects the parts of a result set to print.
type Sections struct {
	Rows  bool
	Stats bool
	Plan  bool
}

// Available returns the sections rs carries.
func Available(rs *model.ResultSet) Sections {
	if rs == nil {
		return Sections{}
	}
	return Sections{
		Rows:  len(rs.Fields) > 0,
		Stats: stats.HasAggregateStats(rs),
		Plan:  stats.HasQueryPlan(rs),
	}
}

// ResultSet prints the selected sections of rs: rows, then statistics, then plan.
// The plan tree is built before anything is written.
func ResultSet(w io.Writer, rs *model.ResultSet, sections Sections, unknown string) error {
	if rs == nil {
		return errors.New("display: empty result")
	}

	var root *plantree.Node
	if sections.Plan {
		if !stats.HasQueryPlan(rs) {
			return errors.New("display: result has no query plan")
		}
		var err error
		root, err = plantree.Build(rs.Stats.QueryPlan.PlanNodes)
		if err != nil {
			return fmt.Errorf("display: build plan tree: %w", err)
		}
	}
	if sections.Stats && !stats.HasAggregateStats(rs) {
		return errors.New("display: result has no query stats")
	}

	if sections.Rows {
		if err := Results(w, rs.Fields, rs.Rows); err != nil {
			return err
		}
	}
	if sections.Stats {
		if err := AggregateStats(w, rs.Stats.QueryStats, unknown); err != nil {
			return err
		}
	}
	if root != nil {
		return tree.Render(w, root)
	}
	return nil
}
