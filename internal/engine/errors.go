package engine

import "errors"

var (
	// ErrInstanceNotFound is returned when no instance exists with the
	// requested id.
	ErrInstanceNotFound = errors.New("game instance not found")

	// ErrDuplicateTeam is returned when a player appears on more than one
	// team in a create request.
	ErrDuplicateTeam = errors.New("player assigned to multiple teams")

	// ErrInvalidState is returned when an operation is not legal in the
	// instance's current state.
	ErrInvalidState = errors.New("operation not allowed in current instance state")

	// ErrInstanceTerminal is returned when a mutation targets a completed
	// or aborted instance.
	ErrInstanceTerminal = errors.New("game instance already finished")

	// ErrUnknownTeam is returned when an event names a team that is not
	// registered on the instance.
	ErrUnknownTeam = errors.New("team not registered on instance")

	// ErrPlayerConflict is returned when activating an instance whose
	// roster shares a player with another Active instance. Player-to-game
	// routing requires each player to be in at most one Active game.
	ErrPlayerConflict = errors.New("player already active in another game")

	// ErrStorageUnavailable is returned when the persistence layer fails
	// or times out. The failed operation is safe to retry: completion
	// writes are idempotent, so a retry never double-counts.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
