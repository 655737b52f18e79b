package runner

import (
	"context"
	"testing"

	"cloud.google.com/go/spanner"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabasePath(t *testing.T) {
	path, err := DatabasePath("my-project", " test-instance ", "example-db")
	require.NoError(t, err)
	assert.Equal(t, "projects/my-project/instances/test-instance/databases/example-db", path)

	_, err = DatabasePath("my-project", "", "example-db")
	require.Error(t, err)
}

func TestQueryValidatesInput(t *testing.T) {
	ctx := context.Background()
	opts := SpannerOptions{Logger: zerolog.Nop()}

	_, err := Query(ctx, "projects/p/instances/i/databases/d", "  ", opts)
	require.ErrorContains(t, err, "empty sql")

	_, err = Query(ctx, "", "SELECT 1", opts)
	require.ErrorContains(t, err, "empty database")

	opts.Mode = "fast"
	_, err = Query(ctx, "projects/p/instances/i/databases/d", "SELECT 1", opts)
	require.ErrorContains(t, err, "unknown query mode")
}

func TestExplainValidatesInput(t *testing.T) {
	ctx := context.Background()

	_, err := Explain(ctx, "", "SELECT 1", Options{Logger: zerolog.Nop()})
	require.ErrorContains(t, err, "empty DSN")

	_, err = Explain(ctx, "postgres://localhost/db", "", Options{Logger: zerolog.Nop()})
	require.ErrorContains(t, err, "empty sql")

	_, err = Explain(ctx, "postgres://%zz", "SELECT 1", Options{Logger: zerolog.Nop()})
	require.ErrorContains(t, err, "parse DSN")
}

func TestExplainStatement(t *testing.T) {
	tests := map[string]string{
		"SELECT 1":            "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) SELECT 1",
		"  SELECT * FROM t; ": "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) SELECT * FROM t",
	}
	for in, want := range tests {
		got, err := ExplainStatement(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ExplainStatement(" ; ")
	require.ErrorContains(t, err, "empty sql")
}

func TestRowEntry(t *testing.T) {
	row, err := spanner.NewRow(
		[]string{"SingerId", "FirstName", "Tags", "Missing"},
		[]any{int64(7), "Marc", []string{"rock", "pop"}, spanner.NullString{}},
	)
	require.NoError(t, err)

	entry, err := rowEntry(row)
	require.NoError(t, err)
	assert.Equal(t, []any{"7", "Marc", []any{"rock", "pop"}, nil}, entry)
}
