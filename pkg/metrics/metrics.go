// pkg/metrics/metrics.go
package metrics

import (
	"sort"
	"time"

	"github.com/lucid-vigil/warden/pkg/events"
)

// TypeCount pairs an event type with its frequency.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// SecurityMetrics is a derived view over a buffer snapshot. It is
// recomputed per query and never persisted on its own.
type SecurityMetrics struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Buffered    int            `json:"buffered"`
	Last24Hours int            `json:"last_24_hours"`
	Last7Days   int            `json:"last_7_days"`
	Last30Days  int            `json:"last_30_days"`
	ByType      map[string]int `json:"by_type"`
	BySeverity  map[string]int `json:"by_severity"`
	TopTypes    []TypeCount    `json:"top_types"`
}

// Compute aggregates a point-in-time snapshot of the event buffer.
// topN limits the TopTypes ranking (0 means all).
func Compute(snapshot []events.SecurityEvent, now time.Time, topN int) SecurityMetrics {
	m := SecurityMetrics{
		GeneratedAt: now,
		Buffered:    len(snapshot),
		ByType:      make(map[string]int),
		BySeverity:  make(map[string]int),
	}

	day := now.Add(-24 * time.Hour)
	week := now.Add(-7 * 24 * time.Hour)
	month := now.Add(-30 * 24 * time.Hour)

	for _, ev := range snapshot {
		m.ByType[string(ev.Type)]++
		m.BySeverity[ev.Severity.String()]++

		if !ev.Timestamp.Before(month) {
			m.Last30Days++
			if !ev.Timestamp.Before(week) {
				m.Last7Days++
				if !ev.Timestamp.Before(day) {
					m.Last24Hours++
				}
			}
		}
	}

	m.TopTypes = make([]TypeCount, 0, len(m.ByType))
	for typ, count := range m.ByType {
		m.TopTypes = append(m.TopTypes, TypeCount{Type: typ, Count: count})
	}
	sort.Slice(m.TopTypes, func(i, j int) bool {
		if m.TopTypes[i].Count != m.TopTypes[j].Count {
			return m.TopTypes[i].Count > m.TopTypes[j].Count
		}
		return m.TopTypes[i].Type < m.TopTypes[j].Type
	})
	if topN > 0 && len(m.TopTypes) > topN {
		m.TopTypes = m.TopTypes[:topN]
	}
	return m
}
