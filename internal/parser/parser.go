package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mickamy/spxplain/internal/model"
)

// ParseResponse reads a query response document:
//
//	{
//	  "metadata": {"rowType": {"fields": [{"name": "SingerId"}]}},
//	  "rows": [{"entry": ["1"]}],
//	  "stats": {
//	    "queryPlan": {"planNodes": [...]},
//	    "queryStats": {"additionalProperties": [{"key": "elapsed_time", "value": "1 msecs"}]}
//	  }
//	}
//
// A document holding queryPlan or queryStats at the top level is read as the stats object.
func ParseResponse(r io.Reader) (*model.ResultSet, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response json: %w", err)
	}
	doc, err := asObject(payload)
	if err != nil {
		return nil, fmt.Errorf("response json: %w", err)
	}

	rs := &model.ResultSet{}

	if meta, ok := doc["metadata"]; ok {
		fields, err := parseFields(meta)
		if err != nil {
			return nil, err
		}
		rs.Fields = fields
	}

	for i, rowVal := range asSlice(doc["rows"]) {
		row, err := parseRow(rowVal)
		if err != nil {
			return nil, fmt.Errorf("response json: row %d: %w", i, err)
		}
		rs.Rows = append(rs.Rows, row)
	}

	statsVal, ok := doc["stats"]
	if !ok && isStatsObject(doc) {
		statsVal, ok = doc, true
	}
	if ok && statsVal != nil {
		statsObj, err := asObject(statsVal)
		if err != nil {
			return nil, fmt.Errorf("response json: invalid stats: %w", err)
		}
		stats, err := parseStats(statsObj)
		if err != nil {
			return nil, err
		}
		rs.Stats = stats
	}

	return rs, nil
}

func isStatsObject(doc map[string]any) bool {
	for _, key := range []string{"queryPlan", "queryStats", "planNodes", "additionalProperties"} {
		if _, ok := doc[key]; ok {
			return true
		}
	}
	return false
}

func parseFields(val any) ([]string, error) {
	meta, err := asObject(val)
	if err != nil {
		return nil, fmt.Errorf("response json: invalid metadata: %w", err)
	}
	rowTypeVal, ok := meta["rowType"]
	if !ok {
		return nil, nil
	}
	rowType, err := asObject(rowTypeVal)
	if err != nil {
		return nil, fmt.Errorf("response json: invalid rowType: %w", err)
	}

	var fields []string
	for i, fieldVal := range asSlice(rowType["fields"]) {
		field, err := asObject(fieldVal)
		if err != nil {
			return nil, fmt.Errorf("response json: field %d: %w", i, err)
		}
		fields = append(fields, asString(field["name"]))
	}
	return fields, nil
}

func parseRow(val any) (model.ResultRow, error) {
	switch v := val.(type) {
	case []any:
		return model.ResultRow{Entry: v}, nil
	case map[string]any:
		return model.ResultRow{Entry: asSlice(v["entry"])}, nil
	default:
		return model.ResultRow{}, fmt.Errorf("expected object or array, got %T", val)
	}
}

func parseStats(obj map[string]any) (*model.ResultSetStats, error) {
	stats := &model.ResultSetStats{}

	planVal, hasPlan := obj["queryPlan"]
	if !hasPlan {
		if nodes, ok := obj["planNodes"]; ok {
			planVal, hasPlan = map[string]any{"planNodes": nodes}, true
		}
	}
	if hasPlan && planVal != nil {
		plan, err := parseQueryPlan(planVal)
		if err != nil {
			return nil, err
		}
		stats.QueryPlan = plan
	}

	statsVal, hasStats := obj["queryStats"]
	if !hasStats {
		if props, ok := obj["additionalProperties"]; ok {
			statsVal, hasStats = map[string]any{"additionalProperties": props}, true
		}
	}
	if hasStats && statsVal != nil {
		qs, err := parseQueryStats(statsVal)
		if err != nil {
			return nil, err
		}
		stats.QueryStats = qs
	}

	return stats, nil
}

func parseQueryPlan(val any) (*model.QueryPlan, error) {
	obj, err := asObject(val)
	if err != nil {
		return nil, fmt.Errorf("response json: invalid queryPlan: %w", err)
	}

	plan := &model.QueryPlan{}
	for i, nodeVal := range asSlice(obj["planNodes"]) {
		nodeObj, err := asObject(nodeVal)
		if err != nil {
			return nil, fmt.Errorf("response json: plan node %d: %w", i, err)
		}
		node, err := parsePlanNode(nodeObj)
		if err != nil {
			return nil, fmt.Errorf("response json: plan node %d: %w", i, err)
		}
		plan.PlanNodes = append(plan.PlanNodes, node)
	}
	return plan, nil
}

func parsePlanNode(data map[string]any) (model.PlanNodeRecord, error) {
	node := model.PlanNodeRecord{
		Kind:        asString(data["kind"]),
		DisplayName: asString(data["displayName"]),
	}

	if raw, ok := data["index"]; ok && raw != nil {
		index, err := asIndex(raw)
		if err != nil {
			return node, fmt.Errorf("index: %w", err)
		}
		node.Index = &index
	}

	for i, linkVal := range asSlice(data["childLinks"]) {
		link, err := asObject(linkVal)
		if err != nil {
			return node, fmt.Errorf("child link %d: %w", i, err)
		}
		raw, ok := link["childIndex"]
		if !ok || raw == nil {
			return node, fmt.Errorf("child link %d: missing childIndex", i)
		}
		childIndex, err := asIndex(raw)
		if err != nil {
			return node, fmt.Errorf("child link %d: childIndex: %w", i, err)
		}
		node.ChildLinks = append(node.ChildLinks, model.ChildLink{
			ChildIndex: childIndex,
			Type:       asString(link["type"]),
			Variable:   asString(link["variable"]),
		})
	}
	return node, nil
}

func parseQueryStats(val any) (*model.QueryStats, error) {
	obj, err := asObject(val)
	if err != nil {
		return nil, fmt.Errorf("response json: invalid queryStats: %w", err)
	}

	qs := &model.QueryStats{}
	if list, ok := obj["additionalProperties"]; ok {
		for i, propVal := range asSlice(list) {
			prop, err := asObject(propVal)
			if err != nil {
				return nil, fmt.Errorf("response json: property %d: %w", i, err)
			}
			qs.Properties = append(qs.Properties, model.Property{
				Key:   asString(prop["key"]),
				Value: asOptionalString(prop["value"]),
			})
		}
		return qs, nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		qs.Properties = append(qs.Properties, model.Property{Key: k, Value: asOptionalString(obj[k])})
	}
	return qs, nil
}

func asObject(val any) (map[string]any, error) {
	if val == nil {
		return nil, errors.New("nil object")
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", val)
	}
	return obj, nil
}

func asSlice(val any) []any {
	if val == nil {
		return nil
	}
	switch v := val.(type) {
	case []any:
		return v
	default:
		return nil
	}
}

func asString(val any) string {
	if val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// asOptionalString keeps the difference between a missing value and an empty one.
// Wrapped values such as {"string_value": "1"} are unwrapped; other objects
// and lists are kept as JSON.
func asOptionalString(val any) *string {
	switch v := val.(type) {
	case nil:
		return nil
	case map[string]any:
		for _, key := range []string{"string_value", "stringValue"} {
			if inner, ok := v[key]; ok {
				return asOptionalString(inner)
			}
		}
		return encodeValue(v)
	case []any:
		return encodeValue(v)
	default:
		s := asString(v)
		return &s
	}
}

// encodeValue renders composite values as compact JSON.
func encodeValue(val any) *string {
	data, err := json.Marshal(val)
	if err != nil {
		s := fmt.Sprint(val)
		return &s
	}
	s := string(data)
	return &s
}

func asIndex(val any) (int, error) {
	var (
		n   int64
		err error
	)
	switch v := val.(type) {
	case json.Number:
		n, err = v.Int64()
	case string:
		// int32 fields may arrive quoted
		n, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		n = int64(v)
	case int:
		n = int64(v)
	default:
		return 0, fmt.Errorf("unexpected type %T", val)
	}
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("out of range: %d", n)
	}
	return int(n), nil
}

func asFloat(val any) float64 {
	if val == nil {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		if v == "" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
