package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/relay/pkg/models"
	"github.com/pario-ai/relay/pkg/selector"
)

// formatResult formats a routed result as text.
func formatResult(res *models.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backend: %s\n", res.Backend)
	fmt.Fprintf(&b, "Units:   %d\n", res.Units)
	fmt.Fprintf(&b, "Cost:    $%.6f\n", res.Cost)
	fmt.Fprintf(&b, "Latency: %s\n\n", res.Latency.Round(time.Millisecond))
	b.WriteString(res.Text)
	return b.String()
}

// formatHealth formats probe results in the canonical backend order.
func formatHealth(health map[models.BackendID]bool) string {
	if len(health) == 0 {
		return "No backends configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %s\n", "Backend", "Status")
	b.WriteString(strings.Repeat("-", 20) + "\n")
	for _, id := range models.AllBackends {
		ok, present := health[id]
		if !present {
			continue
		}
		status := "unhealthy"
		if ok {
			status = "healthy"
		}
		fmt.Fprintf(&b, "%-10s %s\n", id, status)
	}
	return b.String()
}

// formatMetrics formats backend metrics as a text table.
func formatMetrics(all []models.BackendMetrics) string {
	if len(all) == 0 {
		return "No backends configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-10s %8s %8s %8s %12s %7s\n",
		"Backend", "Health", "Attempts", "Success", "Failed", "Cost", "Avail")
	b.WriteString(strings.Repeat("-", 69) + "\n")
	for _, m := range all {
		fmt.Fprintf(&b, "%-10s %-10s %8d %8d %8d %12.6f %6.1f%%\n",
			m.ID, m.Health, m.Attempts, m.Successes, m.Failures, m.TotalCost, m.Availability()*100)
	}
	return b.String()
}

// formatOrder formats a strategy's backend order.
func formatOrder(strategy selector.Strategy, order []models.BackendID) string {
	if len(order) == 0 {
		return "No backends configured."
	}
	names := make([]string, len(order))
	for i, id := range order {
		names[i] = string(id)
	}
	return fmt.Sprintf("Strategy %s selects %s\nOrder: %s\n", strategy, order[0], strings.Join(names, " → "))
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}

// formatAuditEntries formats audit entries as a text table.
func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-10s %-10s %-22s %10s %8s\n",
		"Time", "Outcome", "Backend", "Attempted", "Cost", "Latency")
	b.WriteString(strings.Repeat("-", 86) + "\n")
	for _, e := range entries {
		attempted := make([]string, len(e.Attempted))
		for i, id := range e.Attempted {
			attempted[i] = string(id)
		}
		backend := string(e.Backend)
		if backend == "" {
			backend = "-"
		}
		fmt.Fprintf(&b, "%-20s %-10s %-10s %-22s %10.6f %6dms\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Outcome, backend, strings.Join(attempted, ","), e.Cost, e.LatencyMs)
	}
	return b.String()
}
