package runner

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/mickamy/spxplain/internal/model"
	"github.com/mickamy/spxplain/internal/parser"
)

// Options customises how a PostgreSQL plan is collected.
type Options struct {
	Timeout time.Duration
	Logger  zerolog.Logger
}

const applicationName = "spxplain"

// ExplainStatement wraps sqlStatement in EXPLAIN with the options needed for a
// plan carrying actual row counts and timings.
func ExplainStatement(sqlStatement string) (string, error) {
	query := strings.TrimSpace(sqlStatement)
	query = strings.TrimSpace(strings.TrimSuffix(query, ";"))
	if query == "" {
		return "", fmt.Errorf("runner: empty sql statement")
	}
	return "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) " + query, nil
}

// Explain runs sqlStatement under EXPLAIN ANALYZE against PostgreSQL and
// returns the plan flattened into plan node records, with the execution
// statistics attached.
func Explain(ctx context.Context, dsn, sqlStatement string, opts Options) (*model.ResultSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("runner: empty DSN")
	}
	explainSQL, err := ExplainStatement(sqlStatement)
	if err != nil {
		return nil, err
	}

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("runner: parse DSN: %w", err)
	}
	if _, ok := cfg.RuntimeParams["application_name"]; !ok {
		cfg.RuntimeParams["application_name"] = applicationName
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	log := opts.Logger.With().Str("source", "postgres").Str("host", cfg.Host).Str("database", cfg.Database).Logger()
	log.Debug().Dur("timeout", opts.Timeout).Msg("connecting")

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("runner: connect: %w", err)
	}
	defer func() {
		_ = conn.Close(context.WithoutCancel(ctx))
	}()

	start := time.Now()
	var payload []byte
	if err := conn.QueryRow(ctx, explainSQL).Scan(&payload); err != nil {
		return nil, fmt.Errorf("runner: explain: %w", err)
	}

	rs, err := parser.ParsePostgres(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	log.Debug().
		Dur("took", time.Since(start)).
		Int("bytes", len(payload)).
		Int("plan_nodes", len(rs.Stats.QueryPlan.PlanNodes)).
		Msg("explain finished")
	return rs, nil
}
