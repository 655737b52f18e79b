package parser

import (
	"fmt"
	"sort"

	sppb "cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mickamy/spxplain/internal/model"
)

// FromResultSet converts a Spanner result set proto.
func FromResultSet(rs *sppb.ResultSet) *model.ResultSet {
	out := &model.ResultSet{Fields: FromMetadata(rs.GetMetadata())}
	for _, row := range rs.GetRows() {
		out.Rows = append(out.Rows, FromListValue(row))
	}
	if st := rs.GetStats(); st != nil {
		out.Stats = &model.ResultSetStats{QueryPlan: FromQueryPlan(st.GetQueryPlan())}
		if st.GetQueryStats() != nil {
			out.Stats.QueryStats = FromQueryStats(st.GetQueryStats().AsMap())
		}
	}
	return out
}

// FromMetadata returns the field names of a result.
func FromMetadata(meta *sppb.ResultSetMetadata) []string {
	fields := meta.GetRowType().GetFields()
	if len(fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.GetName())
	}
	return names
}

// FromQueryPlan converts plan nodes. The node at index 0 is the root and loses its index.
func FromQueryPlan(qp *sppb.QueryPlan) *model.QueryPlan {
	if qp == nil {
		return nil
	}
	plan := &model.QueryPlan{PlanNodes: make([]model.PlanNodeRecord, 0, len(qp.GetPlanNodes()))}
	for _, node := range qp.GetPlanNodes() {
		record := model.PlanNodeRecord{
			Kind:        node.GetKind().String(),
			DisplayName: node.GetDisplayName(),
		}
		if node.GetIndex() != 0 {
			record.Index = model.IntPtr(int(node.GetIndex()))
		}
		for _, link := range node.GetChildLinks() {
			record.ChildLinks = append(record.ChildLinks, model.ChildLink{
				ChildIndex: int(link.GetChildIndex()),
				Type:       link.GetType(),
				Variable:   link.GetVariable(),
			})
		}
		plan.PlanNodes = append(plan.PlanNodes, record)
	}
	return plan
}

// FromQueryStats converts the statistics map reported by the client, sorted by key.
// Nil values become properties without a value.
func FromQueryStats(m map[string]any) *model.QueryStats {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	qs := &model.QueryStats{Properties: make([]model.Property, 0, len(keys))}
	for _, k := range keys {
		prop := model.Property{Key: k}
		switch v := m[k].(type) {
		case nil:
		case string:
			prop.Value = model.StringPtr(v)
		default:
			prop.Value = model.StringPtr(fmt.Sprint(v))
		}
		qs.Properties = append(qs.Properties, prop)
	}
	return qs
}

// FromListValue converts one result row.
func FromListValue(row *structpb.ListValue) model.ResultRow {
	values := row.GetValues()
	entry := make([]any, 0, len(values))
	for _, v := range values {
		entry = append(entry, CellValue(v))
	}
	return model.ResultRow{Entry: entry}
}

// CellValue converts a Spanner cell to its JSON shape. NULL becomes nil.
func CellValue(v *structpb.Value) any {
	if v == nil {
		return nil
	}
	return v.AsInterface()
}
