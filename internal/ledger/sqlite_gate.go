package ledger

import (
	"context"

	"github.com/hyperengineering/tally/internal/types"
)

// ApplyClaimed claims the once-gate for (fact.SubjectID, key) and applies
// fact in the same transaction. INSERT OR IGNORE against the composite
// primary key makes the check-and-set atomic: under concurrent claims for
// the same key the storage engine admits exactly one insert, and only that
// caller's fact is written.
//
// The claim commits only together with the fact and the balance update. A
// storage failure between them rolls all three back, so the identical
// observation can be redelivered and still earn the award. Claims are
// written once and kept forever; a later revoke does not remove them, so
// award/revoke cycling on the same scope cannot be farmed.
func (s *SQLiteStore) ApplyClaimed(ctx context.Context, key string, fact types.Fact) (Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Gated, storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO once_gate (subject_id, scope, claimed_at)
		VALUES (?, ?, ?)
	`, fact.SubjectID, key, fact.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return Gated, storageErr("claim once-gate", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Gated, storageErr("claim once-gate rows affected", err)
	}
	if affected == 0 {
		return Gated, nil
	}

	outcome, err := applyInTx(ctx, tx, fact)
	if err != nil {
		return Gated, err
	}
	if outcome == Duplicate {
		// A fresh claim over an already recorded fact. Roll the claim back
		// with the rest so the anomaly stays visible on redelivery.
		return Duplicate, nil
	}

	if err := tx.Commit(); err != nil {
		return Gated, storageErr("commit transaction", err)
	}
	return Applied, nil
}
