// Package report computes the time-windowed aggregate views: the rolling
// weekly leaderboard with per-kind breakdown and the all-time top list.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hyperengineering/tally/internal/ledger"
	"github.com/hyperengineering/tally/internal/types"
)

// DefaultLimit caps leaderboard rows when the caller does not specify one.
const DefaultLimit = 15

// WeekStart returns local civil midnight of the most recent Monday in loc.
// The result carries loc; callers convert to UTC before querying storage so
// the boundary is independent of the engine's own timezone handling.
func WeekStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	// Monday-based day index: Monday=0 ... Sunday=6.
	daysSinceMonday := (int(local.Weekday()) + 6) % 7
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, -daysSinceMonday)
}

// Engine answers report queries against the ledger. The clock and the
// reference timezone are injected at construction.
type Engine struct {
	ledger ledger.Ledger
	clock  clockwork.Clock
	loc    *time.Location
	limit  int
}

// NewEngine creates an Engine. limit <= 0 falls back to DefaultLimit.
func NewEngine(l ledger.Ledger, clock clockwork.Clock, loc *time.Location, limit int) *Engine {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Engine{ledger: l, clock: clock, loc: loc, limit: limit}
}

// Weekly reports the current week: most recent Monday 00:00 civil time in
// the reference timezone through now. An empty Entries slice means no one
// scored; it is never an error.
func (e *Engine) Weekly(ctx context.Context) (types.WeeklyReport, error) {
	return e.WeeklyAt(ctx, e.clock.Now())
}

// WeeklyAt reports the week containing the given instant, bounded at that
// instant. Exposed separately so offline tooling can pin the query time.
func (e *Engine) WeeklyAt(ctx context.Context, now time.Time) (types.WeeklyReport, error) {
	start := WeekStart(now, e.loc)

	entries, err := e.ledger.WindowTotals(ctx, start.UTC(), now.UTC(), e.limit)
	if err != nil {
		return types.WeeklyReport{}, fmt.Errorf("window totals: %w", err)
	}

	breakdown, err := e.ledger.WindowBreakdown(ctx, start.UTC(), now.UTC())
	if err != nil {
		return types.WeeklyReport{}, fmt.Errorf("window breakdown: %w", err)
	}
	for i := range entries {
		entries[i].Breakdown = breakdown[entries[i].SubjectID]
	}

	return types.WeeklyReport{
		WeekStart: start,
		Now:       now,
		Entries:   entries,
	}, nil
}

// AllTime returns the all-time leaderboard from the cached balances,
// descending, top limit rows.
func (e *Engine) AllTime(ctx context.Context, limit int) ([]types.BalanceEntry, error) {
	if limit <= 0 {
		limit = e.limit
	}
	entries, err := e.ledger.TopBalances(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("top balances: %w", err)
	}
	return entries, nil
}
