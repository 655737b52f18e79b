package diff

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mickamy/spxplain/internal/config"
	"github.com/mickamy/spxplain/internal/model"
	"github.com/mickamy/spxplain/internal/plantree"
	"github.com/mickamy/spxplain/internal/stats"
)

// Options configures the diff sensitivity. A zero MaxItems lists every operator.
type Options struct {
	MinPercentChange float64
	MaxItems         int
}

// DefaultOptions returns the thresholds of the active configuration.
func DefaultOptions() Options {
	cfg := config.Active().Diff
	return Options{
		MinPercentChange: cfg.MinPercentChange,
		MaxItems:         cfg.MaxItems,
	}
}

// Report summarises the delta between two query responses.
type Report struct {
	Stats   []StatDelta `json:"stats"`
	Added   []Operator  `json:"added"`
	Removed []Operator  `json:"removed"`
	Options Options     `json:"-"`
}

// StatDelta compares one aggregate statistic.
type StatDelta struct {
	Label   string  `json:"label"`
	Base    string  `json:"base"`
	Target  string  `json:"target"`
	Delta   float64 `json:"delta,omitempty"`
	Percent float64 `json:"percent,omitempty"`
	// Comparable is false when either side is missing or the units differ.
	Comparable bool `json:"comparable"`
}

// Operator counts plan nodes sharing a signature.
type Operator struct {
	Signature string `json:"signature"`
	Base      int    `json:"base"`
	Target    int    `json:"target"`
}

// Compare builds a diff report for two query responses. Each response must
// carry a query plan or query statistics.
func Compare(base, target *model.ResultSet, opts Options) (*Report, error) {
	if !stats.HasQueryPlan(base) && !stats.HasAggregateStats(base) {
		return nil, fmt.Errorf("diff: base has neither plan nor statistics")
	}
	if !stats.HasQueryPlan(target) && !stats.HasAggregateStats(target) {
		return nil, fmt.Errorf("diff: target has neither plan nor statistics")
	}
	if opts.MinPercentChange < 0 || opts.MaxItems < 0 {
		return nil, fmt.Errorf("diff: thresholds must not be negative")
	}

	baseOps, err := operators(base)
	if err != nil {
		return nil, fmt.Errorf("diff: base: %w", err)
	}
	targetOps, err := operators(target)
	if err != nil {
		return nil, fmt.Errorf("diff: target: %w", err)
	}

	report := &Report{Options: opts}
	for _, sig := range unionKeys(baseOps, targetOps) {
		op := Operator{Signature: sig, Base: baseOps[sig], Target: targetOps[sig]}
		switch {
		case op.Target > op.Base:
			report.Added = append(report.Added, op)
		case op.Target < op.Base:
			report.Removed = append(report.Removed, op)
		}
	}
	if opts.MaxItems > 0 {
		if len(report.Added) > opts.MaxItems {
			report.Added = report.Added[:opts.MaxItems]
		}
		if len(report.Removed) > opts.MaxItems {
			report.Removed = report.Removed[:opts.MaxItems]
		}
	}

	baseStats := stats.Aggregate(properties(base), stats.Unknown)
	targetStats := stats.Aggregate(properties(target), stats.Unknown)
	for i, field := range baseStats {
		report.Stats = append(report.Stats, compareStat(field.Label, field.Value, targetStats[i].Value))
	}
	return report, nil
}

// Changed lists statistics whose change reaches the configured threshold.
func (r *Report) Changed() []StatDelta {
	var out []StatDelta
	for _, s := range r.Stats {
		if s.Comparable && math.Abs(s.Percent) >= r.Options.MinPercentChange && s.Delta != 0 {
			out = append(out, s)
		}
	}
	return out
}

// Markdown renders the report as a Markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# spxplain diff\n\n")
	b.WriteString("## Statistics\n")
	b.WriteString("| Statistic | Base | Target | Δ | Δ % |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for _, s := range r.Stats {
		if !s.Comparable {
			_, _ = fmt.Fprintf(&b, "| %s | %s | %s | - | - |\n", s.Label, s.Base, s.Target)
			continue
		}
		_, _ = fmt.Fprintf(&b, "| %s | %s | %s | %+g | %+.1f%% |\n", s.Label, s.Base, s.Target, s.Delta, s.Percent)
	}

	b.WriteString("\n### Notable changes\n")
	changed := r.Changed()
	if len(changed) == 0 {
		b.WriteString("- None above threshold\n")
	}
	for _, s := range changed {
		icon := "⚠️"
		if s.Delta < 0 {
			icon = "✅"
		}
		_, _ = fmt.Fprintf(&b, "- %s %s %s → %s (%+.1f%%)\n", icon, s.Label, s.Base, s.Target, s.Percent)
	}

	writeOperators(&b, "Added operators", r.Added)
	writeOperators(&b, "Removed operators", r.Removed)
	return b.String()
}

// JSON marshals the diff report into an indented JSON document.
func (r *Report) JSON() ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("nil report")
	}
	type alias Report
	return json.MarshalIndent((*alias)(r), "", "  ")
}

func writeOperators(b *strings.Builder, title string, ops []Operator) {
	_, _ = fmt.Fprintf(b, "\n### %s\n", title)
	if len(ops) == 0 {
		b.WriteString("- None\n")
		return
	}
	b.WriteString("| Operator | Base | Target |\n")
	b.WriteString("|---|---:|---:|\n")
	for _, op := range ops {
		_, _ = fmt.Fprintf(b, "| %s | %d | %d |\n", op.Signature, op.Base, op.Target)
	}
}

func compareStat(label, base, target string) StatDelta {
	d := StatDelta{Label: label, Base: base, Target: target}
	baseNum, baseUnit, okBase := measure(base)
	targetNum, targetUnit, okTarget := measure(target)
	if !okBase || !okTarget || baseUnit != targetUnit {
		return d
	}
	d.Comparable = true
	d.Delta = targetNum - baseNum
	d.Percent = percentChange(baseNum, targetNum)
	return d
}

// measure splits values such as "1.22 msecs" or "100002" into number and unit.
func measure(value string) (float64, string, bool) {
	fields := strings.Fields(value)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, "", false
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", ""), 64)
	if err != nil {
		return 0, "", false
	}
	unit := ""
	if len(fields) == 2 {
		unit = fields[1]
	}
	return n, unit, true
}

func properties(rs *model.ResultSet) []model.Property {
	if !stats.HasAggregateStats(rs) {
		return nil
	}
	return rs.Stats.QueryStats.Properties
}

func operators(rs *model.ResultSet) (map[string]int, error) {
	result := map[string]int{}
	if !stats.HasQueryPlan(rs) {
		return result, nil
	}
	root, err := plantree.Build(rs.Stats.QueryPlan.PlanNodes)
	if err != nil {
		return nil, err
	}
	stack := []*plantree.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		result[signature(n)]++
		stack = append(stack, n.Children...)
	}
	return result, nil
}

func signature(node *plantree.Node) string {
	return node.Record.Kind + " · " + node.Record.DisplayName
}

func unionKeys(base, target map[string]int) []string {
	seen := map[string]struct{}{}
	for k := range base {
		seen[k] = struct{}{}
	}
	for k := range target {
		seen[k] = struct{}{}
	}
	all := make([]string, 0, len(seen))
	for k := range seen {
		all = append(all, k)
	}
	sort.Strings(all)
	return all
}

func percentChange(base, target float64) float64 {
	const eps = 1e-9
	if math.Abs(base) <= eps {
		if math.Abs(target) <= eps {
			return 0
		}
		if target > 0 {
			return 100
		}
		return -100
	}
	return (target - base) / base * 100
}
