package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pritam/bingocraft/internal/board"
	"github.com/pritam/bingocraft/internal/engine"
)

// timeFormat pins the on-disk representation of timestamps. SQLite has no
// native time type; RFC 3339 keeps values sortable and portable.
const timeFormat = time.RFC3339Nano

// SQLiteStore implements engine.Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at path and runs migrations.
func New(path string, busyTimeout time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS boards (
			id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			rows INTEGER NOT NULL,
			cols INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS board_cells (
			board_id TEXT NOT NULL REFERENCES boards(id),
			cell_index INTEGER NOT NULL,
			objective_id TEXT NOT NULL,
			category TEXT NOT NULL,
			label TEXT NOT NULL,
			PRIMARY KEY (board_id, cell_index)
		)`,
		`CREATE TABLE IF NOT EXISTS game_instances (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL REFERENCES boards(id),
			state TEXT NOT NULL,
			win_rule TEXT NOT NULL,
			winner_team_id TEXT NOT NULL DEFAULT '',
			abort_reason TEXT NOT NULL DEFAULT '',
			create_time TEXT NOT NULL,
			start_time TEXT,
			end_time TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_instances_state ON game_instances(state)`,
		`CREATE TABLE IF NOT EXISTS teams (
			id TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL REFERENCES game_instances(id),
			name TEXT NOT NULL,
			position INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_teams_instance ON teams(instance_id)`,
		`CREATE TABLE IF NOT EXISTS team_members (
			team_id TEXT NOT NULL REFERENCES teams(id),
			player_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (team_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS completion_records (
			instance_id TEXT NOT NULL REFERENCES game_instances(id),
			team_id TEXT NOT NULL,
			objective_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			PRIMARY KEY (instance_id, team_id, objective_id)
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// SaveInstance writes the full instance snapshot in one transaction.
// Board rows are written once and never updated; team rows are rewritten
// because membership may change while a game is active.
func (s *SQLiteStore) SaveInstance(ctx context.Context, snap engine.InstanceSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := saveBoard(ctx, tx, &snap.Board); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO game_instances
		(id, board_id, state, win_rule, winner_team_id, abort_reason, create_time, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			winner_team_id = excluded.winner_team_id,
			abort_reason = excluded.abort_reason,
			start_time = excluded.start_time,
			end_time = excluded.end_time`,
		snap.ID, snap.Board.ID, snap.State.String(), string(snap.WinRule),
		snap.Winner, snap.AbortReason,
		formatTime(snap.CreateTime), formatTimePtr(snap.StartTime), formatTimePtr(snap.EndTime),
	)
	if err != nil {
		return storageErr("upsert instance", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM team_members WHERE team_id IN (SELECT id FROM teams WHERE instance_id = ?)`,
		snap.ID); err != nil {
		return storageErr("clear team members", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM teams WHERE instance_id = ?`, snap.ID); err != nil {
		return storageErr("clear teams", err)
	}

	for pos, team := range snap.Teams {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO teams (id, instance_id, name, position) VALUES (?, ?, ?, ?)`,
			team.ID, snap.ID, team.Name, pos); err != nil {
			return storageErr("insert team", err)
		}
		for mpos, player := range team.Members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO team_members (team_id, player_id, position) VALUES (?, ?, ?)`,
				team.ID, player, mpos); err != nil {
				return storageErr("insert team member", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit instance", err)
	}
	return nil
}

func saveBoard(ctx context.Context, tx *sql.Tx, b *board.Board) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO boards (id, seed, rows, cols, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		b.ID, b.Seed, b.Rows, b.Cols, formatTime(b.CreatedAt))
	if err != nil {
		return storageErr("insert board", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return storageErr("insert board", err)
	}
	if inserted == 0 {
		// Board already persisted; boards are immutable.
		return nil
	}

	for _, cell := range b.Cells {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO board_cells (board_id, cell_index, objective_id, category, label)
			 VALUES (?, ?, ?, ?, ?)`,
			b.ID, cell.Index, cell.ObjectiveID, cell.Category, cell.Label); err != nil {
			return storageErr("insert board cell", err)
		}
	}
	return nil
}

// AppendCompletion durably records a completed objective. Appending an
// identical (team, objective) pair again is a no-op, which makes retries
// under at-least-once delivery safe.
func (s *SQLiteStore) AppendCompletion(ctx context.Context, instanceID string, rec engine.CompletionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completion_records (instance_id, team_id, objective_id, player_id, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(instance_id, team_id, objective_id) DO NOTHING`,
		instanceID, rec.TeamID, rec.ObjectiveID, rec.PlayerID, formatTime(rec.CompletedAt))
	if err != nil {
		return storageErr("append completion", err)
	}
	return nil
}

// LoadInstance reconstructs a full instance snapshot by id.
func (s *SQLiteStore) LoadInstance(ctx context.Context, id string) (engine.InstanceSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, board_id, state, win_rule, winner_team_id, abort_reason, create_time, start_time, end_time
		FROM game_instances WHERE id = ?`, id)

	snap, boardID, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.InstanceSnapshot{}, fmt.Errorf("%w: %s", engine.ErrInstanceNotFound, id)
		}
		return engine.InstanceSnapshot{}, storageErr("load instance", err)
	}

	if err := s.fillInstance(ctx, &snap, boardID); err != nil {
		return engine.InstanceSnapshot{}, err
	}
	return snap, nil
}

// ListActiveInstances returns every instance that has not reached a
// terminal state, for crash recovery at startup.
func (s *SQLiteStore) ListActiveInstances(ctx context.Context) ([]engine.InstanceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, board_id, state, win_rule, winner_team_id, abort_reason, create_time, start_time, end_time
		FROM game_instances WHERE state IN ('PENDING', 'ACTIVE')
		ORDER BY create_time`)
	if err != nil {
		return nil, storageErr("list active instances", err)
	}
	defer rows.Close()

	type pending struct {
		snap    engine.InstanceSnapshot
		boardID string
	}
	var found []pending

	for rows.Next() {
		snap, boardID, err := scanInstance(rows)
		if err != nil {
			return nil, storageErr("scan instance", err)
		}
		found = append(found, pending{snap: snap, boardID: boardID})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate instances", err)
	}

	snapshots := make([]engine.InstanceSnapshot, 0, len(found))
	for _, p := range found {
		if err := s.fillInstance(ctx, &p.snap, p.boardID); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, p.snap)
	}
	return snapshots, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (engine.InstanceSnapshot, string, error) {
	var snap engine.InstanceSnapshot
	var boardID, state, winRule, createTime string
	var startTime, endTime sql.NullString

	err := row.Scan(&snap.ID, &boardID, &state, &winRule, &snap.Winner, &snap.AbortReason,
		&createTime, &startTime, &endTime)
	if err != nil {
		return engine.InstanceSnapshot{}, "", err
	}

	parsed, ok := engine.ParseInstanceState(state)
	if !ok {
		return engine.InstanceSnapshot{}, "", fmt.Errorf("unknown stored state %q", state)
	}
	snap.State = parsed
	snap.StateName = parsed.String()
	snap.WinRule = engine.WinRule(winRule)

	if snap.CreateTime, err = parseTime(createTime); err != nil {
		return engine.InstanceSnapshot{}, "", err
	}
	if snap.StartTime, err = parseTimePtr(startTime); err != nil {
		return engine.InstanceSnapshot{}, "", err
	}
	if snap.EndTime, err = parseTimePtr(endTime); err != nil {
		return engine.InstanceSnapshot{}, "", err
	}

	return snap, boardID, nil
}

func (s *SQLiteStore) fillInstance(ctx context.Context, snap *engine.InstanceSnapshot, boardID string) error {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return err
	}
	snap.Board = b

	teams, err := s.loadTeams(ctx, snap.ID)
	if err != nil {
		return err
	}
	snap.Teams = teams

	records, err := s.loadCompletions(ctx, snap.ID)
	if err != nil {
		return err
	}
	snap.Records = records

	return nil
}

func (s *SQLiteStore) loadBoard(ctx context.Context, boardID string) (board.Board, error) {
	var b board.Board
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, seed, rows, cols, created_at FROM boards WHERE id = ?`, boardID).
		Scan(&b.ID, &b.Seed, &b.Rows, &b.Cols, &createdAt)
	if err != nil {
		return board.Board{}, storageErr("load board", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return board.Board{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT cell_index, objective_id, category, label FROM board_cells
		 WHERE board_id = ? ORDER BY cell_index`, boardID)
	if err != nil {
		return board.Board{}, storageErr("load board cells", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cell board.Cell
		if err := rows.Scan(&cell.Index, &cell.ObjectiveID, &cell.Category, &cell.Label); err != nil {
			return board.Board{}, storageErr("scan board cell", err)
		}
		b.Cells = append(b.Cells, cell)
	}
	if err := rows.Err(); err != nil {
		return board.Board{}, storageErr("iterate board cells", err)
	}

	return b, nil
}

func (s *SQLiteStore) loadTeams(ctx context.Context, instanceID string) ([]engine.TeamSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM teams WHERE instance_id = ? ORDER BY position`, instanceID)
	if err != nil {
		return nil, storageErr("load teams", err)
	}
	defer rows.Close()

	var teams []engine.TeamSnapshot
	for rows.Next() {
		var t engine.TeamSnapshot
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, storageErr("scan team", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate teams", err)
	}

	for i := range teams {
		memberRows, err := s.db.QueryContext(ctx,
			`SELECT player_id FROM team_members WHERE team_id = ? ORDER BY position`, teams[i].ID)
		if err != nil {
			return nil, storageErr("load team members", err)
		}
		for memberRows.Next() {
			var player string
			if err := memberRows.Scan(&player); err != nil {
				memberRows.Close()
				return nil, storageErr("scan team member", err)
			}
			teams[i].Members = append(teams[i].Members, player)
		}
		if err := memberRows.Err(); err != nil {
			memberRows.Close()
			return nil, storageErr("iterate team members", err)
		}
		memberRows.Close()
	}

	return teams, nil
}

func (s *SQLiteStore) loadCompletions(ctx context.Context, instanceID string) ([]engine.CompletionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT team_id, objective_id, player_id, completed_at FROM completion_records
		 WHERE instance_id = ? ORDER BY team_id, objective_id`, instanceID)
	if err != nil {
		return nil, storageErr("load completions", err)
	}
	defer rows.Close()

	var records []engine.CompletionRecord
	for rows.Next() {
		var rec engine.CompletionRecord
		var completedAt string
		if err := rows.Scan(&rec.TeamID, &rec.ObjectiveID, &rec.PlayerID, &completedAt); err != nil {
			return nil, storageErr("scan completion", err)
		}
		if rec.CompletedAt, err = parseTime(completedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate completions", err)
	}

	return records, nil
}

// storageErr wraps a low-level database failure as retryable storage
// unavailability for the engine.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", engine.ErrStorageUnavailable, op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
