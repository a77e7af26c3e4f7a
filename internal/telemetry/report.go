package telemetry

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Summary returns a brief one-line summary of the snapshot.
func (m SessionMetrics) Summary() string {
	return fmt.Sprintf("Calls: %d | Tokens: %d in / %d out | Cost: $%.4f | Cache: %d hit / %d miss",
		m.Calls, m.InputTokens, m.OutputTokens, m.CostUSD, m.CacheHits, m.CacheMisses)
}

// Detailed returns a multi-line report with per-family and per-stage breakdowns.
func (m SessionMetrics) Detailed() string {
	var sb strings.Builder

	sb.WriteString("=== Session Metrics ===\n\n")

	sb.WriteString("Totals:\n")
	sb.WriteString(fmt.Sprintf("  Calls:         %d\n", m.Calls))
	sb.WriteString(fmt.Sprintf("  Input Tokens:  %d\n", m.InputTokens))
	sb.WriteString(fmt.Sprintf("  Output Tokens: %d\n", m.OutputTokens))
	sb.WriteString(fmt.Sprintf("  Cost:          $%.6f\n", m.CostUSD))
	sb.WriteString(fmt.Sprintf("  Tier Shifts:   %d\n", m.TierShifts))
	if m.UnknownRates > 0 {
		sb.WriteString(fmt.Sprintf("  Unknown Rates: %d\n", m.UnknownRates))
	}
	sb.WriteString("\n")

	sb.WriteString("Cache:\n")
	sb.WriteString(fmt.Sprintf("  Hits:   %d\n", m.CacheHits))
	sb.WriteString(fmt.Sprintf("  Misses: %d\n", m.CacheMisses))
	if total := m.CacheHits + m.CacheMisses; total > 0 {
		sb.WriteString(fmt.Sprintf("  Rate:   %.1f%%\n", float64(m.CacheHits)/float64(total)*100))
	}
	sb.WriteString("\n")

	if len(m.Families) > 0 {
		sb.WriteString("Families:\n")
		for _, name := range sortedKeys(m.Families) {
			fu := m.Families[name]
			ctx := "n/a"
			if g, ok := m.ContextGauges[name]; ok && g.Valid {
				ctx = fmt.Sprintf("%.1f%%", g.Value*100)
			}
			sb.WriteString(fmt.Sprintf("  %-24s %4d calls  %8d in  %8d out  $%.6f  ctx %s\n",
				name, fu.Calls, fu.InputTokens, fu.OutputTokens, fu.CostUSD, ctx))
		}
		sb.WriteString("\n")
	}

	if len(m.Stages) > 0 {
		sb.WriteString("Stages:\n")
		for _, name := range sortedKeys(m.Stages) {
			st := m.Stages[name]
			sb.WriteString(fmt.Sprintf("  %-24s %4d  %s\n",
				name, st.Count, st.Elapsed.Round(time.Millisecond)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Session started %s (%s ago)\n",
		m.SessionStart.Format(time.RFC3339),
		time.Since(m.SessionStart).Round(time.Second)))

	return sb.String()
}

// WriteCSV writes the snapshot as CSV rows: one "total" row, one row per
// family, and one row per stage.
func (m SessionMetrics) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"kind", "name", "calls", "input_tokens", "output_tokens", "cost_usd", "elapsed_ms"}
	if err := cw.Write(header); err != nil {
		return err
	}

	total := []string{
		"total", "",
		strconv.FormatInt(m.Calls, 10),
		strconv.FormatInt(m.InputTokens, 10),
		strconv.FormatInt(m.OutputTokens, 10),
		strconv.FormatFloat(m.CostUSD, 'f', 6, 64),
		"",
	}
	if err := cw.Write(total); err != nil {
		return err
	}

	for _, name := range sortedKeys(m.Families) {
		fu := m.Families[name]
		row := []string{
			"family", name,
			strconv.FormatInt(fu.Calls, 10),
			strconv.FormatInt(fu.InputTokens, 10),
			strconv.FormatInt(fu.OutputTokens, 10),
			strconv.FormatFloat(fu.CostUSD, 'f', 6, 64),
			"",
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(m.Stages) {
		st := m.Stages[name]
		row := []string{
			"stage", name,
			strconv.FormatInt(st.Count, 10),
			"", "", "",
			strconv.FormatInt(st.Elapsed.Milliseconds(), 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
