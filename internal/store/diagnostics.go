package store

import (
	"context"
)

// Diagnostics summarizes storage health for the admin surface.
type Diagnostics struct {
	JournalMode       string `json:"journal_mode"`
	Instances         int    `json:"instances"`
	Boards            int    `json:"boards"`
	CompletionRecords int    `json:"completion_records"`
}

// Diagnostics collects row counts and journal mode.
func (s *SQLiteStore) Diagnostics(ctx context.Context) (Diagnostics, error) {
	var d Diagnostics

	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&d.JournalMode); err != nil {
		return Diagnostics{}, storageErr("read journal mode", err)
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM game_instances", &d.Instances},
		{"SELECT COUNT(*) FROM boards", &d.Boards},
		{"SELECT COUNT(*) FROM completion_records", &d.CompletionRecords},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Diagnostics{}, storageErr("count rows", err)
		}
	}

	return d, nil
}
