package store

import (
	"context"
	"fmt"

	"github.com/agildata/fieldbase/internal/types"
)

// Counts returns the number of rows in each entity table.
func (s *SQLiteStore) Counts(ctx context.Context) (map[types.Kind]int, error) {
	counts := make(map[types.Kind]int, len(types.Kinds()))
	for _, kind := range types.Kinds() {
		var n int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", kind)
		if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", kind, err)
		}
		counts[kind] = n
	}
	return counts, nil
}
