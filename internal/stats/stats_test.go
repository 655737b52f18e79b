package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mickamy/spxplain/internal/model"
	"github.com/mickamy/spxplain/internal/stats"
)

func TestLookup(t *testing.T) {
	props := []model.Property{
		{Key: "elapsed_time", Value: model.StringPtr("5ms")},
		{Key: "cpu_time"},
		{Key: "rows_returned", Value: model.StringPtr("1")},
		{Key: "rows_returned", Value: model.StringPtr("2")},
		{Key: "query_text", Value: model.StringPtr("")},
	}

	tests := []struct {
		key  string
		want string
	}{
		{key: "elapsed_time", want: "5ms"},
		{key: "cpu_time", want: stats.Unknown},
		{key: "rows_scanned", want: stats.Unknown},
		{key: "rows_returned", want: "1"},
		{key: "query_text", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, stats.Lookup(props, tt.key, stats.Unknown))
		})
	}
}

func TestLookupValuelessFirstMatchWins(t *testing.T) {
	props := []model.Property{
		{Key: "cpu_time"},
		{Key: "cpu_time", Value: model.StringPtr("3ms")},
	}
	assert.Equal(t, "n/a", stats.Lookup(props, "cpu_time", "n/a"))
	assert.Equal(t, "n/a", stats.Lookup(nil, "cpu_time", "n/a"))
}

func TestAggregate(t *testing.T) {
	props := []model.Property{
		{Key: "rows_scanned", Value: model.StringPtr("100")},
		{Key: "elapsed_time", Value: model.StringPtr("1.2 msecs")},
		{Key: "cpu_time"},
	}

	row := stats.Aggregate(props, "")
	assert.Equal(t, []string{"total_elapsed_time", "cpu_time", "rows_returned", "rows_scanned"}, row.Labels())
	assert.Equal(t, map[string]any{
		"total_elapsed_time": "1.2 msecs",
		"cpu_time":           stats.Unknown,
		"rows_returned":      stats.Unknown,
		"rows_scanned":       "100",
	}, row.Map())

	custom := stats.Aggregate(nil, "-")
	for _, f := range custom {
		assert.Equal(t, "-", f.Value)
	}
}

func TestHasAggregateStats(t *testing.T) {
	assert.False(t, stats.HasAggregateStats(nil))
	assert.False(t, stats.HasAggregateStats(&model.ResultSet{}))
	assert.False(t, stats.HasAggregateStats(&model.ResultSet{Stats: &model.ResultSetStats{}}))
	assert.True(t, stats.HasAggregateStats(&model.ResultSet{Stats: &model.ResultSetStats{QueryStats: &model.QueryStats{}}}))

	assert.False(t, stats.HasQueryPlan(&model.ResultSet{Stats: &model.ResultSetStats{}}))
	assert.True(t, stats.HasQueryPlan(&model.ResultSet{Stats: &model.ResultSetStats{QueryPlan: &model.QueryPlan{}}}))
}
