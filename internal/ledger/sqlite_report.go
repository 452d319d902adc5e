package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/tally/internal/types"
)

// WindowTotals sums fact magnitudes per subject inside [start, end], both
// bounds inclusive and taken in UTC. Subjects whose window sum is exactly
// zero are excluded. Order: total descending, subject id ascending.
func (s *SQLiteStore) WindowTotals(ctx context.Context, start, end time.Time, limit int) ([]types.WeeklyEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.subject_id, COALESCE(u.label, ''), SUM(f.magnitude) AS total
		FROM facts f
		LEFT JOIN users u ON u.subject_id = f.subject_id
		WHERE f.created_at >= ? AND f.created_at <= ?
		GROUP BY f.subject_id
		HAVING total <> 0
		ORDER BY total DESC, f.subject_id ASC
		LIMIT ?
	`, start.UTC().Format(timeFormat), end.UTC().Format(timeFormat), limit)
	if err != nil {
		return nil, storageErr("query window totals", err)
	}
	defer rows.Close()

	entries := make([]types.WeeklyEntry, 0)
	for rows.Next() {
		var e types.WeeklyEntry
		if err := rows.Scan(&e.SubjectID, &e.Label, &e.Total); err != nil {
			return nil, fmt.Errorf("scan window total: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// WindowBreakdown sums fact magnitudes per (subject, kind) inside
// [start, end], keyed by subject. Zero per-kind sums are excluded.
func (s *SQLiteStore) WindowBreakdown(ctx context.Context, start, end time.Time) (map[int64][]types.KindTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, kind, SUM(magnitude) AS total
		FROM facts
		WHERE created_at >= ? AND created_at <= ?
		GROUP BY subject_id, kind
		HAVING total <> 0
		ORDER BY subject_id ASC, kind ASC
	`, start.UTC().Format(timeFormat), end.UTC().Format(timeFormat))
	if err != nil {
		return nil, storageErr("query window breakdown", err)
	}
	defer rows.Close()

	breakdown := make(map[int64][]types.KindTotal)
	for rows.Next() {
		var subjectID int64
		var kind string
		var total int64
		if err := rows.Scan(&subjectID, &kind, &total); err != nil {
			return nil, fmt.Errorf("scan window breakdown: %w", err)
		}
		breakdown[subjectID] = append(breakdown[subjectID], types.KindTotal{
			Kind:  types.ActionKind(kind),
			Total: total,
		})
	}
	return breakdown, rows.Err()
}
