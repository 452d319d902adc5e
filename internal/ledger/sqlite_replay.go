package ledger

import (
	"context"
	"fmt"
)

// Divergence is one subject whose cached balance does not match the sum of
// its facts. Any divergence indicates a logic defect: Apply is the only
// balance mutation path and runs in the same transaction as the insert.
type Divergence struct {
	SubjectID int64
	Cached    int64
	Replayed  int64
}

// ReplayBalances re-derives every subject's balance from the facts table
// alone, ignoring the cached projection. Subjects with no facts are absent
// from the result.
func (s *SQLiteStore) ReplayBalances(ctx context.Context) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, SUM(magnitude)
		FROM facts
		GROUP BY subject_id
	`)
	if err != nil {
		return nil, storageErr("replay balances", err)
	}
	defer rows.Close()

	balances := make(map[int64]int64)
	for rows.Next() {
		var subjectID, total int64
		if err := rows.Scan(&subjectID, &total); err != nil {
			return nil, fmt.Errorf("scan replayed balance: %w", err)
		}
		balances[subjectID] = total
	}
	return balances, rows.Err()
}

// VerifyBalances compares the cached projection against a full replay and
// returns every divergent subject. An empty result means the central
// consistency invariant holds.
func (s *SQLiteStore) VerifyBalances(ctx context.Context) ([]Divergence, error) {
	replayed, err := s.ReplayBalances(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT subject_id, balance FROM users`)
	if err != nil {
		return nil, storageErr("query cached balances", err)
	}
	defer rows.Close()

	var divergences []Divergence
	seen := make(map[int64]struct{})
	for rows.Next() {
		var subjectID, cached int64
		if err := rows.Scan(&subjectID, &cached); err != nil {
			return nil, fmt.Errorf("scan cached balance: %w", err)
		}
		seen[subjectID] = struct{}{}
		if replayed[subjectID] != cached {
			divergences = append(divergences, Divergence{
				SubjectID: subjectID,
				Cached:    cached,
				Replayed:  replayed[subjectID],
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Facts for a subject with no user row would also be a defect.
	for subjectID, total := range replayed {
		if _, ok := seen[subjectID]; !ok {
			divergences = append(divergences, Divergence{
				SubjectID: subjectID,
				Replayed:  total,
			})
		}
	}
	return divergences, nil
}
