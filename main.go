package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mickamy/spxplain/internal/config"
	"github.com/mickamy/spxplain/internal/diff"
	"github.com/mickamy/spxplain/internal/display"
	"github.com/mickamy/spxplain/internal/logging"
	"github.com/mickamy/spxplain/internal/model"
	"github.com/mickamy/spxplain/internal/parser"
	"github.com/mickamy/spxplain/internal/runner"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	logLevel   string
	logger     zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "spxplain",
		Short: "Render Spanner query plans, statistics and results",
		Long: `spxplain renders query execution plans as indented trees and prints
aggregate query statistics and result rows as tables.

Plans come from a saved query response, a live Cloud Spanner query, or a
PostgreSQL EXPLAIN run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to configuration file (YAML or JSON). Falls back to $SPXPLAIN_CONFIG")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(a.reportCmd(), a.queryCmd(), a.pgCmd(), a.diffCmd(), versionCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	path := strings.TrimSpace(a.configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("SPXPLAIN_CONFIG"))
	}
	if err := config.Apply(path); err != nil {
		return err
	}
	level := a.logLevel
	if level == "" {
		level = config.Active().LogLevel
	}
	a.logger = logging.New(level, cmd.ErrOrStderr())
	return nil
}

func (a *app) reportCmd() *cobra.Command {
	var (
		input     string
		showPlan  bool
		showStats bool
		showRows  bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a saved query response",
		Example: `  spxplain report --input result.json
  gcloud spanner databases execute-sql db --sql "SELECT 1" --query-mode=PROFILE --format=json | spxplain report --plan`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := readResponse(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			sections := display.Available(rs)
			if showPlan || showStats || showRows {
				sections = display.Sections{Rows: showRows, Stats: showStats, Plan: showPlan}
			}
			a.logger.Debug().
				Int("rows", len(rs.Rows)).
				Bool("plan", sections.Plan).
				Bool("stats", sections.Stats).
				Msg("rendering report")
			return display.ResultSet(cmd.OutOrStdout(), rs, sections, config.Active().Display.Unknown)
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "Path to the response JSON (- for stdin)")
	cmd.Flags().BoolVar(&showPlan, "plan", false, "Show the query plan")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Show aggregate query statistics")
	cmd.Flags().BoolVar(&showRows, "rows", false, "Show result rows")
	return cmd
}

func (a *app) queryCmd() *cobra.Command {
	var (
		sqlPath   string
		inlineSQL string
		project   string
		instance  string
		database  string
		queryMode string
		outPath   string
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a query against Cloud Spanner and render the response",
		Example: `  spxplain query --project p --instance i --database d --query "SELECT 1" --query-mode PROFILE
  SPANNER_EMULATOR_HOST=localhost:9010 spxplain query --sql query.sql --query-mode PLAN`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Active()
			sqlText, err := readSQL(sqlPath, inlineSQL)
			if err != nil {
				return err
			}
			dbPath, err := runner.DatabasePath(
				orDefault(project, cfg.Spanner.Project),
				orDefault(instance, cfg.Spanner.Instance),
				orDefault(database, cfg.Spanner.Database),
			)
			if err != nil {
				return err
			}
			mode := orDefault(queryMode, cfg.Spanner.QueryMode)
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.Spanner.Timeout
			}

			rs, err := runner.Query(cmd.Context(), dbPath, sqlText, runner.SpannerOptions{
				Mode:    mode,
				Timeout: timeout,
				Logger:  a.logger,
			})
			if err != nil {
				return err
			}
			if outPath != "" {
				return writeResponse(outPath, rs)
			}
			return display.ResultSet(cmd.OutOrStdout(), rs, display.Available(rs), cfg.Display.Unknown)
		},
	}
	cmd.Flags().StringVar(&sqlPath, "sql", "", "Path to the SQL file to run")
	cmd.Flags().StringVar(&inlineSQL, "query", "", "Inline SQL string to run")
	cmd.Flags().StringVar(&project, "project", "", "Google Cloud project (default from config)")
	cmd.Flags().StringVar(&instance, "instance", "", "Spanner instance (default from config)")
	cmd.Flags().StringVar(&database, "database", "", "Spanner database (default from config)")
	cmd.Flags().StringVar(&queryMode, "query-mode", "", "Query mode: NORMAL, PLAN or PROFILE (default from config)")
	cmd.Flags().Duration("timeout", 0, "Optional execution timeout, e.g. 45s")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the response JSON to this path instead of rendering it")
	return cmd
}

func (a *app) pgCmd() *cobra.Command {
	var (
		urlFlag   string
		sqlPath   string
		inlineSQL string
		input     string
	)
	cmd := &cobra.Command{
		Use:   "pg",
		Short: "Run EXPLAIN ANALYZE on PostgreSQL and render the plan tree",
		Example: `  spxplain pg --url postgres://localhost/db --query "SELECT * FROM pgbench_accounts"
  spxplain pg --input explain.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Active()

			var rs *model.ResultSet
			if input != "" {
				file, err := openInput(cmd.InOrStdin(), input)
				if err != nil {
					return err
				}
				defer func() {
					_ = file.Close()
				}()
				if rs, err = parser.ParsePostgres(file); err != nil {
					return err
				}
			} else {
				sqlText, err := readSQL(sqlPath, inlineSQL)
				if err != nil {
					return err
				}
				connection := orDefault(urlFlag, orDefault(os.Getenv("DATABASE_URL"), cfg.Postgres.URL))
				if connection == "" {
					return fmt.Errorf("--url is required or set $DATABASE_URL")
				}
				timeout, err := cmd.Flags().GetDuration("timeout")
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("timeout") {
					timeout = cfg.Postgres.Timeout
				}
				rs, err = runner.Explain(cmd.Context(), connection, sqlText, runner.Options{
					Timeout: timeout,
					Logger:  a.logger,
				})
				if err != nil {
					return err
				}
			}

			return display.ResultSet(cmd.OutOrStdout(), rs, display.Sections{Stats: true, Plan: true}, cfg.Display.Unknown)
		},
	}
	cmd.Flags().StringVar(&urlFlag, "url", "", "PostgreSQL connection string; defaults to $DATABASE_URL")
	cmd.Flags().StringVar(&sqlPath, "sql", "", "Path to the SQL file to EXPLAIN")
	cmd.Flags().StringVar(&inlineSQL, "query", "", "Inline SQL string to EXPLAIN")
	cmd.Flags().StringVar(&input, "input", "", "Render a saved EXPLAIN JSON document instead of connecting (- for stdin)")
	cmd.Flags().Duration("timeout", 0, "Optional execution timeout, e.g. 45s")
	return cmd
}

func (a *app) diffCmd() *cobra.Command {
	var (
		basePath   string
		targetPath string
		format     string
		minPercent float64
		maxItems   int
	)
	cmd := &cobra.Command{
		Use:     "diff",
		Short:   "Compare the plans and statistics of two saved query responses",
		Example: `  spxplain diff --base before.json --target after.json --format json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if basePath == "" || targetPath == "" {
				return errors.New("--base and --target are required")
			}
			if basePath == "-" && targetPath == "-" {
				return errors.New("only one of --base or --target may read stdin")
			}
			base, err := readResponse(cmd.InOrStdin(), basePath)
			if err != nil {
				return fmt.Errorf("base: %w", err)
			}
			target, err := readResponse(cmd.InOrStdin(), targetPath)
			if err != nil {
				return fmt.Errorf("target: %w", err)
			}

			opts := diff.DefaultOptions()
			if cmd.Flags().Changed("min-percent") {
				opts.MinPercentChange = minPercent
			}
			if cmd.Flags().Changed("max-items") {
				opts.MaxItems = maxItems
			}
			report, err := diff.Compare(base, target, opts)
			if err != nil {
				return err
			}
			a.logger.Debug().
				Int("added", len(report.Added)).
				Int("removed", len(report.Removed)).
				Int("changed", len(report.Changed())).
				Msg("diff computed")

			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "", "markdown", "md":
				_, err = io.WriteString(out, report.Markdown())
				return err
			case "json":
				data, err := report.JSON()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			default:
				return fmt.Errorf("unknown format %q (expected markdown or json)", format)
			}
		},
	}
	cmd.Flags().StringVar(&basePath, "base", "", "Baseline response JSON (- for stdin)")
	cmd.Flags().StringVar(&targetPath, "target", "", "Response JSON to compare against the baseline (- for stdin)")
	cmd.Flags().StringVar(&format, "format", "markdown", "Output format: markdown or json")
	cmd.Flags().Float64Var(&minPercent, "min-percent", 0, "Minimum percent change to report (default from config)")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "Maximum operators listed per section, 0 for all (default from config)")
	return cmd
}

func versionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show CLI version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, meta := resolveVersion()
			out := cmd.OutOrStdout()
			switch {
			case short:
				_, err := fmt.Fprintln(out, v)
				return err
			case meta != "":
				_, err := fmt.Fprintf(out, "spxplain %s (%s)\n", v, meta)
				return err
			default:
				_, err := fmt.Fprintf(out, "spxplain %s\n", v)
				return err
			}
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}

func resolveVersion() (string, string) {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "dev"
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v, ""
	}
	if (v == "dev" || v == "(devel)") && info.Main.Version != "" && info.Main.Version != "(devel)" &&
		!strings.HasPrefix(info.Main.Version, "v0.0.0-") {
		v = info.Main.Version
	}

	var commit, buildTime string
	var dirty bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			commit = setting.Value
		case "vcs.time":
			buildTime = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}

	var details []string
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		if dirty {
			commit += "*"
		}
		details = append(details, "commit "+commit)
	}
	if buildTime != "" {
		details = append(details, "built "+buildTime)
	}
	return v, strings.Join(details, ", ")
}

func readSQL(path, inline string) (string, error) {
	switch {
	case path != "" && inline != "":
		return "", errors.New("specify only one of --sql or --query")
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read sql file: %w", err)
		}
		return string(data), nil
	case inline != "":
		return inline, nil
	default:
		return "", errors.New("--sql or --query is required")
	}
}

func openInput(stdin io.Reader, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return file, nil
}

func readResponse(stdin io.Reader, path string) (*model.ResultSet, error) {
	in, err := openInput(stdin, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = in.Close()
	}()
	return parser.ParseResponse(in)
}

func writeResponse(path string, rs *model.ResultSet) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := parser.EncodeResponse(file, rs); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
