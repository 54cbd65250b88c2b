package spese

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IsNeutralDescription reports whether the operation description contains any
// of the neutral keywords, case-insensitively. Neutral transactions (internal
// transfers and the like) are excluded from every total.
func IsNeutralDescription(operazione string, keywords []string) bool {
	desc := strings.ToLower(normalizeCell(operazione))
	if desc == "" {
		return false
	}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

// Classify computes the derived flags for a newly ingested record. The
// excluded flag always starts false; only the user toggles it later.
func Classify(rec RawRecord, keywords []string) (isNeutral, isExcluded bool) {
	return IsNeutralDescription(rec.Operazione, keywords), false
}

// ReclassifyAll recomputes is_neutral for every persisted transaction against
// an explicit snapshot of the keyword list. It is invoked synchronously on
// every keyword mutation. The single UPDATE at the end makes the scan
// idempotent: rerunning with the same snapshot is a no-op, and an interrupted
// run is fully repaired by the next one.
func ReclassifyAll(ctx context.Context, pool *pgxpool.Pool, keywords []string) error {
	rows, err := pool.Query(ctx, `SELECT id, operazione FROM spese_transactions`)
	if err != nil {
		return fmt.Errorf("reclassify scan failed: %w", err)
	}
	neutralIDs := make([]int64, 0)
	for rows.Next() {
		var id int64
		var operazione string
		if err := rows.Scan(&id, &operazione); err != nil {
			rows.Close()
			return err
		}
		if IsNeutralDescription(operazione, keywords) {
			neutralIDs = append(neutralIDs, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `UPDATE spese_transactions SET is_neutral = (id = ANY($1))`, neutralIDs)
	if err != nil {
		return fmt.Errorf("reclassify update failed: %w", err)
	}
	return nil
}
