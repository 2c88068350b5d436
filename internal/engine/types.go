package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pritam/bingocraft/internal/board"
)

// InstanceState represents the lifecycle state of a game instance.
type InstanceState int

const (
	InstanceStatePending InstanceState = iota
	InstanceStateActive
	InstanceStateCompleted
	InstanceStateAborted
)

func (s InstanceState) String() string {
	switch s {
	case InstanceStatePending:
		return "PENDING"
	case InstanceStateActive:
		return "ACTIVE"
	case InstanceStateCompleted:
		return "COMPLETED"
	case InstanceStateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further mutation is legal in this state.
func (s InstanceState) Terminal() bool {
	return s == InstanceStateCompleted || s == InstanceStateAborted
}

// ParseInstanceState converts a stored state string back to its value.
func ParseInstanceState(s string) (InstanceState, bool) {
	switch s {
	case "PENDING":
		return InstanceStatePending, true
	case "ACTIVE":
		return InstanceStateActive, true
	case "COMPLETED":
		return InstanceStateCompleted, true
	case "ABORTED":
		return InstanceStateAborted, true
	default:
		return 0, false
	}
}

// WinRule selects the win condition evaluated for an instance. Chosen at
// creation and immutable for the instance's lifetime.
type WinRule string

const (
	// WinRuleFullBoard requires every cell on the board.
	WinRuleFullBoard WinRule = "FULL_BOARD"
	// WinRuleLine requires any complete row, column, or diagonal.
	WinRuleLine WinRule = "LINE"
)

// Valid reports whether the rule is a known win rule.
func (r WinRule) Valid() bool {
	return r == WinRuleFullBoard || r == WinRuleLine
}

// Team is a named group of players competing on one board.
type Team struct {
	ID      string
	Name    string
	Members []string
}

// HasMember reports whether the player is on this team.
func (t *Team) HasMember(playerID string) bool {
	for _, m := range t.Members {
		if m == playerID {
			return true
		}
	}
	return false
}

// CompletionRecord is durable proof that a team satisfied one objective.
// At most one record exists per (team, objective) pair on an instance.
type CompletionRecord struct {
	TeamID      string    `json:"team_id"`
	ObjectiveID string    `json:"objective_id"`
	PlayerID    string    `json:"player_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type recordKey struct {
	teamID      string
	objectiveID string
}

// GameInstance is one running (or finished) bingo game. All mutation goes
// through the engine, which serializes it per instance via mu.
type GameInstance struct {
	ID          string
	Board       *board.Board
	Teams       map[string]*Team
	TeamOrder   []string
	Records     map[recordKey]CompletionRecord
	State       InstanceState
	WinRule     WinRule
	Winner      string
	AbortReason string
	CreateTime  time.Time
	StartTime   *time.Time
	EndTime     *time.Time

	mu sync.Mutex
}

// TeamSnapshot captures team data for external use.
type TeamSnapshot struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// InstanceSnapshot captures a consistent view of a game instance.
type InstanceSnapshot struct {
	ID          string             `json:"id"`
	Board       board.Board        `json:"board"`
	Teams       []TeamSnapshot     `json:"teams"`
	Records     []CompletionRecord `json:"records"`
	State       InstanceState      `json:"-"`
	StateName   string             `json:"state"`
	WinRule     WinRule            `json:"win_rule"`
	Winner      string             `json:"winner,omitempty"`
	AbortReason string             `json:"abort_reason,omitempty"`
	CreateTime  time.Time          `json:"create_time"`
	StartTime   *time.Time         `json:"start_time,omitempty"`
	EndTime     *time.Time         `json:"end_time,omitempty"`
}

// Team returns the snapshot of the team with the given id.
func (s InstanceSnapshot) Team(teamID string) (TeamSnapshot, bool) {
	for _, t := range s.Teams {
		if t.ID == teamID {
			return t, true
		}
	}
	return TeamSnapshot{}, false
}

// CompletedCount returns how many objectives the team has completed.
func (s InstanceSnapshot) CompletedCount(teamID string) int {
	count := 0
	for _, rec := range s.Records {
		if rec.TeamID == teamID {
			count++
		}
	}
	return count
}

// Store is the durable persistence boundary consumed by the engine.
// Implementations must make AppendCompletion idempotent: appending an
// identical (team, objective) pair twice leaves exactly one record.
type Store interface {
	SaveInstance(ctx context.Context, snapshot InstanceSnapshot) error
	LoadInstance(ctx context.Context, id string) (InstanceSnapshot, error)
	ListActiveInstances(ctx context.Context) ([]InstanceSnapshot, error)
	AppendCompletion(ctx context.Context, instanceID string, rec CompletionRecord) error
}

func cloneTime(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	cp := *src
	return &cp
}
