package parser_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/spxplain/internal/model"
	"github.com/mickamy/spxplain/internal/parser"
	"github.com/mickamy/spxplain/internal/plantree"
	"github.com/mickamy/spxplain/internal/render/tree"
	"github.com/mickamy/spxplain/internal/stats"
	"github.com/mickamy/spxplain/test"
)

func TestParseSampleResponse(t *testing.T) {
	rs := test.LoadSampleResponse(t, "singers_profile.json")

	assert.Equal(t, []string{"SingerId", "FirstName", "AlbumTitles"}, rs.Fields)
	require.Len(t, rs.Rows, 3)
	assert.Equal(t, []any{"Total Junk", "Go, Go, Go"}, rs.Rows[0].Entry[2])
	assert.Nil(t, rs.Rows[2].Entry[2])

	require.True(t, stats.HasQueryPlan(rs))
	nodes := rs.Stats.QueryPlan.PlanNodes
	require.Len(t, nodes, 12)
	assert.Nil(t, nodes[0].Index)
	require.NotNil(t, nodes[1].Index)
	assert.Equal(t, 1, *nodes[1].Index)
	assert.Equal(t, []model.ChildLink{{ChildIndex: 1}, {ChildIndex: 11, Type: "Split Range"}}, nodes[0].ChildLinks)

	require.True(t, stats.HasAggregateStats(rs))
	props := rs.Stats.QueryStats.Properties
	assert.Equal(t, "1.22 msecs", stats.Lookup(props, "elapsed_time", stats.Unknown))
	assert.Equal(t, stats.Unknown, stats.Lookup(props, "cpu_time", stats.Unknown))

	root, err := plantree.Build(nodes)
	require.NoError(t, err)
	assert.Equal(t, len(nodes), root.Len())
}

func TestParseSampleRendersTree(t *testing.T) {
	rs := test.LoadSampleResponse(t, "singers_profile.json")
	root, err := plantree.Build(rs.Stats.QueryPlan.PlanNodes)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tree.Render(&buf, root))
	want := strings.Join([]string{
		" RELATIONAL Distributed Union",
		`    +- RELATIONAL Distributed Union`,
		`    |   \- RELATIONAL Serialize Result`,
		`    |       +- RELATIONAL Scan`,
		`    |       |   +- SCALAR Reference`,
		`    |       |   +- SCALAR Reference`,
		`    |       |   +- SCALAR Reference`,
		`    |       |   \- SCALAR Reference`,
		`    |       +- SCALAR Reference`,
		`    |       +- SCALAR Reference`,
		`    |       \- SCALAR Array Subquery`,
		`    \- SCALAR Constant`,
	}, "\n") + "\n"
	assert.Equal(t, want, buf.String())
}

func TestParseResponseVariants(t *testing.T) {
	t.Run("stats at top level", func(t *testing.T) {
		rs, err := parser.ParseResponse(strings.NewReader(`{
			"queryPlan": {"planNodes": [{"kind": "Root", "displayName": "X"}]},
			"queryStats": {"elapsed_time": "5ms", "cpu_time": null}
		}`))
		require.NoError(t, err)
		require.NotNil(t, rs.Stats)
		require.Len(t, rs.Stats.QueryPlan.PlanNodes, 1)
		assert.Equal(t, []model.Property{
			{Key: "cpu_time"},
			{Key: "elapsed_time", Value: model.StringPtr("5ms")},
		}, rs.Stats.QueryStats.Properties)
	})

	t.Run("bare property list", func(t *testing.T) {
		rs, err := parser.ParseResponse(strings.NewReader(`{
			"additionalProperties": [{"key": "elapsed_time", "value": {"string_value": "5ms"}}, {"key": "cpu_time"}]
		}`))
		require.NoError(t, err)
		require.True(t, stats.HasAggregateStats(rs))
		assert.Equal(t, []model.Property{
			{Key: "elapsed_time", Value: model.StringPtr("5ms")},
			{Key: "cpu_time"},
		}, rs.Stats.QueryStats.Properties)
		assert.False(t, stats.HasQueryPlan(rs))
	})

	t.Run("composite property values", func(t *testing.T) {
		rs, err := parser.ParseResponse(strings.NewReader(`{
			"queryStats": {"additionalProperties": [
				{"key": "optimizer", "value": {"version": 6, "package": "latest"}},
				{"key": "tables", "value": ["Singers", "Albums"]},
				{"key": "rows_scanned", "value": 3}
			]}
		}`))
		require.NoError(t, err)
		props := rs.Stats.QueryStats.Properties
		assert.Equal(t, `{"package":"latest","version":6}`, stats.Lookup(props, "optimizer", stats.Unknown))
		assert.Equal(t, `["Singers","Albums"]`, stats.Lookup(props, "tables", stats.Unknown))
		assert.Equal(t, "3", stats.Lookup(props, "rows_scanned", stats.Unknown))
	})

	t.Run("array rows and quoted index", func(t *testing.T) {
		rs, err := parser.ParseResponse(strings.NewReader(`{
			"rows": [["1", 2.5, true]],
			"stats": {"queryPlan": {"planNodes": [
				{"kind": "R", "displayName": "X", "childLinks": [{"childIndex": "1"}]},
				{"index": "1", "kind": "A", "displayName": "Y"}
			]}}
		}`))
		require.NoError(t, err)
		assert.Equal(t, []any{"1", json.Number("2.5"), true}, rs.Rows[0].Entry)
		assert.Equal(t, 1, rs.Stats.QueryPlan.PlanNodes[0].ChildLinks[0].ChildIndex)
		assert.Nil(t, rs.Fields)
	})
}

func TestParseResponseErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"not json":           `{`,
		"array":              `[1, 2]`,
		"negative index":     `{"queryPlan": {"planNodes": [{"index": -1}]}}`,
		"fractional index":   `{"queryPlan": {"planNodes": [{"index": 1.5}]}}`,
		"missing childIndex": `{"queryPlan": {"planNodes": [{"childLinks": [{}]}]}}`,
		"bad node":           `{"queryPlan": {"planNodes": ["x"]}}`,
		"bad row":            `{"rows": ["x"]}`,
		"bad metadata":       `{"metadata": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parser.ParseResponse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestEncodeResponseRoundTrip(t *testing.T) {
	rs := test.LoadSampleResponse(t, "singers_profile.json")

	var buf bytes.Buffer
	require.NoError(t, parser.EncodeResponse(&buf, rs))
	assert.NotContains(t, buf.String(), `"index": 0`)

	again, err := parser.ParseResponse(&buf)
	require.NoError(t, err)
	assert.Equal(t, rs, again)
}
