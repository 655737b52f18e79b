package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/spanner"
	"github.com/rs/zerolog"

	"github.com/mickamy/spxplain/internal/config"
	"github.com/mickamy/spxplain/internal/model"
	"github.com/mickamy/spxplain/internal/parser"
)

// SpannerOptions customises how a Spanner query is executed.
type SpannerOptions struct {
	// Mode is NORMAL, PLAN or PROFILE.
	Mode    string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// DatabasePath builds the fully qualified name of a Spanner database.
func DatabasePath(project, instance, database string) (string, error) {
	project, instance, database = strings.TrimSpace(project), strings.TrimSpace(instance), strings.TrimSpace(database)
	if project == "" || instance == "" || database == "" {
		return "", fmt.Errorf("runner: project, instance and database are required")
	}
	return fmt.Sprintf("projects/%s/instances/%s/databases/%s", project, instance, database), nil
}

// Query runs sqlStatement against the Spanner database in a single-use read-only
// transaction. PLAN mode only returns the query plan; PROFILE mode returns rows,
// plan and statistics.
func Query(ctx context.Context, database, sqlStatement string, opts SpannerOptions) (*model.ResultSet, error) {
	query := strings.TrimSpace(sqlStatement)
	if query == "" {
		return nil, fmt.Errorf("runner: empty sql statement")
	}
	mode := strings.ToUpper(strings.TrimSpace(opts.Mode))
	if mode == "" {
		mode = config.QueryModeNormal
	}
	switch mode {
	case config.QueryModeNormal, config.QueryModePlan, config.QueryModeProfile:
	default:
		return nil, fmt.Errorf("runner: unknown query mode %q", opts.Mode)
	}
	if strings.TrimSpace(database) == "" {
		return nil, fmt.Errorf("runner: empty database")
	}

	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	log := opts.Logger.With().Str("source", "spanner").Str("database", database).Str("mode", mode).Logger()
	log.Debug().Msg("connecting")

	client, err := spanner.NewClient(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("runner: connect: %w", err)
	}
	defer client.Close()

	stmt := spanner.NewStatement(query)
	tx := client.Single()
	defer tx.Close()

	start := time.Now()
	if mode == config.QueryModePlan {
		plan, err := tx.AnalyzeQuery(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("runner: analyze query: %w", err)
		}
		rs := &model.ResultSet{Stats: &model.ResultSetStats{QueryPlan: parser.FromQueryPlan(plan)}}
		log.Debug().Dur("took", time.Since(start)).Int("plan_nodes", len(plan.GetPlanNodes())).Msg("query analyzed")
		return rs, nil
	}

	var iter *spanner.RowIterator
	if mode == config.QueryModeProfile {
		iter = tx.QueryWithStats(ctx, stmt)
	} else {
		iter = tx.Query(ctx, stmt)
	}

	rs := &model.ResultSet{}
	err = iter.Do(func(row *spanner.Row) error {
		entry, err := rowEntry(row)
		if err != nil {
			return err
		}
		rs.Rows = append(rs.Rows, model.ResultRow{Entry: entry})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("runner: query: %w", err)
	}

	rs.Fields = parser.FromMetadata(iter.Metadata)
	if mode == config.QueryModeProfile {
		rs.Stats = &model.ResultSetStats{
			QueryPlan:  parser.FromQueryPlan(iter.QueryPlan),
			QueryStats: parser.FromQueryStats(iter.QueryStats),
		}
	}
	log.Debug().Dur("took", time.Since(start)).Int("rows", len(rs.Rows)).Int("fields", len(rs.Fields)).Msg("query finished")
	return rs, nil
}

func rowEntry(row *spanner.Row) ([]any, error) {
	entry := make([]any, 0, row.Size())
	for i := 0; i < row.Size(); i++ {
		var col spanner.GenericColumnValue
		if err := row.Column(i, &col); err != nil {
			return nil, fmt.Errorf("decode column %d: %w", i, err)
		}
		entry = append(entry, parser.CellValue(col.Value))
	}
	return entry, nil
}
