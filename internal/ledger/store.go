// Package ledger implements the engagement ledger: an append-only fact
// store with a cached per-subject balance projection and the once-gate
// claim table, all on a single SQLite database.
package ledger

import (
	"context"
	"time"

	"github.com/hyperengineering/tally/internal/types"
)

// Outcome reports what an apply did with a fact.
type Outcome int

const (
	// Applied means the fact was inserted and the balance updated.
	Applied Outcome = iota
	// Duplicate means the fact's unique tuple already exists; nothing was
	// mutated. This is the expected result of a redelivered observation,
	// not an error.
	Duplicate
	// Gated means the once-gate already holds a claim for the scope;
	// nothing was mutated.
	Gated
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Gated:
		return "gated"
	default:
		return "applied"
	}
}

// Ledger is the fact store plus its derived balance projection. Apply is
// the only mutation path for balances; the uniqueness tuple on facts is the
// exactly-once enforcement point.
type Ledger interface {
	UpsertUser(ctx context.Context, subjectID int64, label string) error
	Apply(ctx context.Context, fact types.Fact) (Outcome, error)
	Balance(ctx context.Context, subjectID int64) (int64, error)
	TopBalances(ctx context.Context, limit int) ([]types.BalanceEntry, error)
	WindowTotals(ctx context.Context, start, end time.Time, limit int) ([]types.WeeklyEntry, error)
	WindowBreakdown(ctx context.Context, start, end time.Time) (map[int64][]types.KindTotal, error)
	Stats(ctx context.Context) (*types.LedgerStats, error)
	Close() error
}

// OnceGate records first-action claims. The claim table is independent of
// the fact uniqueness constraint on purpose: the gate blocks business-rule
// farming (award, revoke, award again), the constraint blocks raw
// redelivery.
type OnceGate interface {
	// ApplyClaimed claims (fact.SubjectID, key) and applies fact in one
	// transaction. Gated means a prior claim exists and nothing was
	// mutated; concurrent calls for the same key yield exactly one
	// Applied. The claim never outlives a failed apply, so on error the
	// identical observation may be retried.
	ApplyClaimed(ctx context.Context, key string, fact types.Fact) (Outcome, error)
}
