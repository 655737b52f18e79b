package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mickamy/spxplain/internal/model"
)

// ParsePostgres reads a PostgreSQL EXPLAIN (FORMAT JSON) document and flattens the
// nested plan into plan node records. The root comes first without an index and
// every other node is indexed by its pre-order position.
func ParsePostgres(r io.Reader) (*model.ResultSet, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode explain json: %w", err)
	}

	entry, err := pickFirstEntry(payload)
	if err != nil {
		return nil, err
	}

	planMapVal, ok := entry["Plan"]
	if !ok {
		return nil, errors.New("explain json: missing Plan root")
	}
	planMap, err := asObject(planMapVal)
	if err != nil {
		return nil, fmt.Errorf("explain json: invalid Plan node: %w", err)
	}

	f := &flattener{}
	if err := f.visit(planMap, "0"); err != nil {
		return nil, err
	}

	return &model.ResultSet{
		Stats: &model.ResultSetStats{
			QueryPlan:  &model.QueryPlan{PlanNodes: f.records},
			QueryStats: &model.QueryStats{Properties: postgresStats(entry, planMap, f)},
		},
	}, nil
}

func pickFirstEntry(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return nil, errors.New("explain json: empty payload")
		}
		obj, err := asObject(v[0])
		if err != nil {
			return nil, fmt.Errorf("explain json: invalid entry: %w", err)
		}
		return obj, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("explain json: unexpected top-level type %T", payload)
	}
}

type flattener struct {
	records     []model.PlanNodeRecord
	scannedRows float64
	sawScan     bool
}

func (f *flattener) visit(data map[string]any, path string) error {
	pos := len(f.records)
	record := model.PlanNodeRecord{
		Kind:        "RELATIONAL",
		DisplayName: postgresLabel(data),
	}
	if pos > 0 {
		record.Index = model.IntPtr(pos)
	}
	f.records = append(f.records, record)

	if nodeType := asString(data["Node Type"]); strings.Contains(nodeType, "Scan") {
		if rows, ok := data["Actual Rows"]; ok {
			f.sawScan = true
			f.scannedRows += asFloat(rows) * loops(data)
		}
	}

	for i, childVal := range asSlice(data["Plans"]) {
		childMap, err := asObject(childVal)
		if err != nil {
			return fmt.Errorf("parse child plan (%s.%d): %w", path, i, err)
		}
		f.records[pos].ChildLinks = append(f.records[pos].ChildLinks, model.ChildLink{
			ChildIndex: len(f.records),
			Type:       asString(childMap["Parent Relationship"]),
		})
		if err := f.visit(childMap, fmt.Sprintf("%s.%d", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func postgresLabel(data map[string]any) string {
	label := asString(data["Node Type"])
	if label == "" {
		label = "Unknown"
	}
	if join := asString(data["Join Type"]); join != "" && strings.HasSuffix(label, "Join") {
		label = join + " " + label
	}
	if idx := asString(data["Index Name"]); idx != "" {
		label += " using " + idx
	}
	if rel := asString(data["Relation Name"]); rel != "" {
		label += " on " + rel
		if alias := asString(data["Alias"]); alias != "" && alias != rel {
			label += " " + alias
		}
	}
	return label
}

func loops(data map[string]any) float64 {
	l := asFloat(data["Actual Loops"])
	if l <= 0 {
		return 1
	}
	return l
}

func postgresStats(entry, root map[string]any, f *flattener) []model.Property {
	var props []model.Property
	if v, ok := entry["Execution Time"]; ok {
		props = append(props, model.Property{Key: "elapsed_time", Value: model.StringPtr(fmt.Sprintf("%.3f ms", asFloat(v)))})
	}
	if v, ok := entry["Planning Time"]; ok {
		props = append(props, model.Property{Key: "planning_time", Value: model.StringPtr(fmt.Sprintf("%.3f ms", asFloat(v)))})
	}
	if v, ok := root["Actual Rows"]; ok {
		props = append(props, model.Property{Key: "rows_returned", Value: model.StringPtr(fmt.Sprintf("%.0f", asFloat(v)*loops(root)))})
	}
	if f.sawScan {
		props = append(props, model.Property{Key: "rows_scanned", Value: model.StringPtr(fmt.Sprintf("%.0f", f.scannedRows))})
	}
	return props
}
