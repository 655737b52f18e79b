package diff_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/spxplain/internal/config"
	"github.com/mickamy/spxplain/internal/diff"
	"github.com/mickamy/spxplain/internal/model"
	"github.com/mickamy/spxplain/test"
)

func response(elapsed string, nodes ...model.PlanNodeRecord) *model.ResultSet {
	rs := &model.ResultSet{Stats: &model.ResultSetStats{
		QueryStats: &model.QueryStats{Properties: []model.Property{
			{Key: "elapsed_time", Value: model.StringPtr(elapsed)},
			{Key: "rows_scanned", Value: model.StringPtr("3")},
		}},
	}}
	if len(nodes) > 0 {
		rs.Stats.QueryPlan = &model.QueryPlan{PlanNodes: nodes}
	}
	return rs
}

func TestCompareStatsAndOperators(t *testing.T) {
	base := response("2 msecs",
		model.PlanNodeRecord{Kind: "RELATIONAL", DisplayName: "Union", ChildLinks: []model.ChildLink{{ChildIndex: 1}}},
		model.PlanNodeRecord{Index: model.IntPtr(1), Kind: "RELATIONAL", DisplayName: "Table Scan"},
	)
	target := response("1 msecs",
		model.PlanNodeRecord{Kind: "RELATIONAL", DisplayName: "Union", ChildLinks: []model.ChildLink{{ChildIndex: 1}}},
		model.PlanNodeRecord{Index: model.IntPtr(1), Kind: "RELATIONAL", DisplayName: "Index Scan"},
	)

	report, err := diff.Compare(base, target, diff.Options{})
	require.NoError(t, err)

	require.Len(t, report.Stats, 4)
	elapsed := report.Stats[0]
	assert.Equal(t, "total_elapsed_time", elapsed.Label)
	assert.True(t, elapsed.Comparable)
	assert.InDelta(t, -1, elapsed.Delta, 1e-9)
	assert.InDelta(t, -50, elapsed.Percent, 1e-9)

	cpu := report.Stats[1]
	assert.False(t, cpu.Comparable)
	assert.Equal(t, "Unknown", cpu.Base)

	assert.Equal(t, []diff.StatDelta{elapsed}, report.Changed())
	assert.Equal(t, []diff.Operator{{Signature: "RELATIONAL · Index Scan", Base: 0, Target: 1}}, report.Added)
	assert.Equal(t, []diff.Operator{{Signature: "RELATIONAL · Table Scan", Base: 1, Target: 0}}, report.Removed)

	md := report.Markdown()
	assert.Contains(t, md, "| total_elapsed_time | 2 msecs | 1 msecs | -1 | -50.0% |")
	assert.Contains(t, md, "| cpu_time | Unknown | Unknown | - | - |")
	assert.Contains(t, md, "| RELATIONAL · Index Scan | 0 | 1 |")
}

func TestCompareSamplesAndJSON(t *testing.T) {
	base := test.LoadSampleResponse(t, "singers_profile.json")

	report, err := diff.Compare(base, base, diff.Options{MaxItems: 1})
	require.NoError(t, err)
	assert.Empty(t, report.Added)
	assert.Empty(t, report.Removed)
	assert.Empty(t, report.Changed())

	out, err := report.JSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Contains(t, decoded, "stats")
}

func TestCompareUnitsMustMatch(t *testing.T) {
	report, err := diff.Compare(response("2 msecs"), response("1 secs"), diff.Options{})
	require.NoError(t, err)
	assert.False(t, report.Stats[0].Comparable)
	assert.True(t, report.Stats[3].Comparable)
}

func TestCompareErrors(t *testing.T) {
	empty := &model.ResultSet{}
	_, err := diff.Compare(empty, response("1 msecs"), diff.Options{})
	require.ErrorContains(t, err, "base")

	malformed := response("1 msecs", model.PlanNodeRecord{Kind: "R", DisplayName: "X", ChildLinks: []model.ChildLink{{ChildIndex: 9}}})
	_, err = diff.Compare(response("1 msecs"), malformed, diff.Options{})
	require.ErrorContains(t, err, "malformed plan")
}

func TestCompareThresholds(t *testing.T) {
	scan := func(name string, index int) model.PlanNodeRecord {
		return model.PlanNodeRecord{Index: model.IntPtr(index), Kind: "RELATIONAL", DisplayName: name}
	}
	root := model.PlanNodeRecord{Kind: "RELATIONAL", DisplayName: "Union", ChildLinks: []model.ChildLink{{ChildIndex: 1}, {ChildIndex: 2}}}
	base := response("2 msecs", root, scan("A", 1), scan("B", 2))
	target := response("1 msecs", root, scan("C", 1), scan("D", 2))

	report, err := diff.Compare(base, target, diff.Options{MinPercentChange: 60})
	require.NoError(t, err)
	assert.Empty(t, report.Changed())
	assert.Len(t, report.Added, 2, "zero MaxItems lists every operator")
	assert.Len(t, report.Removed, 2)

	report, err = diff.Compare(base, target, diff.Options{MaxItems: 1})
	require.NoError(t, err)
	assert.Len(t, report.Changed(), 1)
	assert.Equal(t, []diff.Operator{{Signature: "RELATIONAL · C", Target: 1}}, report.Added)

	_, err = diff.Compare(base, target, diff.Options{MaxItems: -1})
	require.ErrorContains(t, err, "negative")
}

func TestDefaultOptionsFollowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Diff.MinPercentChange = 20
	cfg.Diff.MaxItems = 3
	config.Use(cfg)
	t.Cleanup(func() { config.Use(config.Default()) })

	assert.Equal(t, diff.Options{MinPercentChange: 20, MaxItems: 3}, diff.DefaultOptions())
}
