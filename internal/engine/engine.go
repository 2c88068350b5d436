package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pritam/bingocraft/internal/board"
	"github.com/pritam/bingocraft/internal/catalog"
	"github.com/pritam/bingocraft/internal/notify"
)

// Engine owns all live game instances. It ingests objective events from
// the host, updates completion state, evaluates win conditions, and
// persists every state-affecting mutation before applying it in memory.
//
// Mutations on the same instance are mutually exclusive; different
// instances never contend with each other.
type Engine struct {
	store        Store
	catalog      *catalog.Catalog
	sink         notify.Sink
	logger       *zap.Logger
	writeTimeout time.Duration

	mu        sync.RWMutex
	instances map[string]*GameInstance

	// activateMu serializes activations so two instances sharing a player
	// can never pass the conflict check concurrently.
	activateMu sync.Mutex
}

// TeamSpec describes one team in a create request.
type TeamSpec struct {
	Name    string
	Members []string
}

// CreateParams carries everything needed to create a game instance.
type CreateParams struct {
	Seed    int64
	Rows    int
	Cols    int
	WinRule WinRule
	Teams   []TeamSpec
}

// New creates an engine backed by the given store and catalog.
// Notifications go to sink; writeTimeout bounds every store operation so
// a stalled database can never hang the host's event dispatch.
func New(store Store, cat *catalog.Catalog, sink notify.Sink, writeTimeout time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		store:        store,
		catalog:      cat,
		sink:         sink,
		logger:       logger,
		writeTimeout: writeTimeout,
		instances:    make(map[string]*GameInstance),
	}
}

// Restore reloads all unfinished instances from the store. Called once at
// startup so games survive a server restart.
func (e *Engine) Restore(ctx context.Context) error {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()

	snapshots, err := e.store.ListActiveInstances(ctx)
	if err != nil {
		return fmt.Errorf("failed to list unfinished instances: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, snap := range snapshots {
		inst := instanceFromSnapshot(snap)
		e.instances[inst.ID] = inst
		e.logger.Info("game instance restored",
			zap.String("instance_id", inst.ID),
			zap.String("state", inst.State.String()),
			zap.Int("teams", len(inst.Teams)),
			zap.Int("completions", len(inst.Records)),
		)
	}

	return nil
}

// CreateInstance generates a board and registers a new Pending instance.
// The instance is persisted before it is visible to callers.
func (e *Engine) CreateInstance(ctx context.Context, params CreateParams) (InstanceSnapshot, error) {
	if params.WinRule == "" {
		params.WinRule = WinRuleFullBoard
	}
	if !params.WinRule.Valid() {
		return InstanceSnapshot{}, fmt.Errorf("unknown win rule %q", params.WinRule)
	}
	if len(params.Teams) == 0 {
		return InstanceSnapshot{}, fmt.Errorf("at least one team is required")
	}

	seen := make(map[string]string)
	for _, spec := range params.Teams {
		if len(spec.Members) == 0 {
			return InstanceSnapshot{}, fmt.Errorf("team %q has no members", spec.Name)
		}
		for _, player := range spec.Members {
			if other, dup := seen[player]; dup {
				return InstanceSnapshot{}, fmt.Errorf("%w: player %q on %q and %q",
					ErrDuplicateTeam, player, other, spec.Name)
			}
			seen[player] = spec.Name
		}
	}

	b, err := board.Generate(e.catalog, params.Seed, params.Rows, params.Cols)
	if err != nil {
		return InstanceSnapshot{}, err
	}

	inst := &GameInstance{
		ID:         uuid.New().String(),
		Board:      b,
		Teams:      make(map[string]*Team, len(params.Teams)),
		TeamOrder:  make([]string, 0, len(params.Teams)),
		Records:    make(map[recordKey]CompletionRecord),
		State:      InstanceStatePending,
		WinRule:    params.WinRule,
		CreateTime: time.Now().UTC(),
	}

	for _, spec := range params.Teams {
		team := &Team{
			ID:      uuid.New().String(),
			Name:    spec.Name,
			Members: append([]string(nil), spec.Members...),
		}
		inst.Teams[team.ID] = team
		inst.TeamOrder = append(inst.TeamOrder, team.ID)
	}

	snap := snapshotInstance(inst)

	saveCtx, cancel := e.storeContext(ctx)
	err = e.store.SaveInstance(saveCtx, snap)
	cancel()
	if err != nil {
		return InstanceSnapshot{}, fmt.Errorf("failed to persist new instance: %w", err)
	}

	e.mu.Lock()
	e.instances[inst.ID] = inst
	e.mu.Unlock()

	e.logger.Info("game instance created",
		zap.String("instance_id", inst.ID),
		zap.Int64("seed", b.Seed),
		zap.String("win_rule", string(inst.WinRule)),
		zap.Int("teams", len(inst.Teams)),
	)

	return snap, nil
}

// Activate transitions a Pending instance to Active. Objective events
// are only accepted while Active. Activation fails with
// ErrPlayerConflict when any roster member is already on a team in
// another Active instance; a player must resolve to at most one game.
func (e *Engine) Activate(ctx context.Context, instanceID string) error {
	inst, err := e.instance(instanceID)
	if err != nil {
		return err
	}

	e.activateMu.Lock()
	defer e.activateMu.Unlock()

	if player, otherID, conflict := e.activePlayerConflict(inst); conflict {
		return fmt.Errorf("%w: player %q is on an active team in instance %s",
			ErrPlayerConflict, player, otherID)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.State != InstanceStatePending {
		return fmt.Errorf("%w: cannot activate %s instance", ErrInvalidState, inst.State)
	}

	now := time.Now().UTC()
	snap := snapshotInstance(inst)
	snap.State = InstanceStateActive
	snap.StateName = InstanceStateActive.String()
	snap.StartTime = &now

	saveCtx, cancel := e.storeContext(ctx)
	err = e.store.SaveInstance(saveCtx, snap)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to persist activation: %w", err)
	}

	inst.State = InstanceStateActive
	inst.StartTime = &now

	e.logger.Info("game instance activated", zap.String("instance_id", inst.ID))
	return nil
}

// RecordObjectiveEvent is the hot path. It marks every uncompleted board
// cell matching the event's category as completed for the team, in one
// logical step, then re-evaluates the team's win condition.
//
// Re-delivery of an already-applied event is a silent no-op. Each
// completion is written through the store before it is applied in
// memory, so the caller never observes the two diverging; a storage
// failure mid-event surfaces ErrStorageUnavailable and the identical
// retry finishes the remaining cells without double-counting.
func (e *Engine) RecordObjectiveEvent(ctx context.Context, instanceID, teamID, category, playerID string, eventTime time.Time) error {
	inst, err := e.instance(instanceID)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.State.Terminal() {
		return fmt.Errorf("%w: instance is %s", ErrInstanceTerminal, inst.State)
	}
	if inst.State != InstanceStateActive {
		return fmt.Errorf("%w: instance is %s", ErrInvalidState, inst.State)
	}

	team, ok := inst.Teams[teamID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTeam, teamID)
	}

	if eventTime.IsZero() {
		eventTime = time.Now().UTC()
	}

	for _, idx := range inst.Board.CellsByCategory(category) {
		cell := inst.Board.Cells[idx]
		key := recordKey{teamID: teamID, objectiveID: cell.ObjectiveID}
		if _, done := inst.Records[key]; done {
			continue
		}

		rec := CompletionRecord{
			TeamID:      teamID,
			ObjectiveID: cell.ObjectiveID,
			PlayerID:    playerID,
			CompletedAt: eventTime,
		}

		appendCtx, cancel := e.storeContext(ctx)
		err = e.store.AppendCompletion(appendCtx, inst.ID, rec)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to persist completion of %s: %w", cell.ObjectiveID, err)
		}

		inst.Records[key] = rec

		e.logger.Debug("objective completed",
			zap.String("instance_id", inst.ID),
			zap.String("team_id", teamID),
			zap.String("objective_id", cell.ObjectiveID),
			zap.String("player_id", playerID),
		)

		e.sink.Notify(notify.Notification{
			Kind:        notify.KindObjectiveCompleted,
			InstanceID:  inst.ID,
			TeamID:      teamID,
			PlayerID:    playerID,
			ObjectiveID: cell.ObjectiveID,
			Message:     fmt.Sprintf("%s completed %q", team.Name, cell.Label),
			At:          eventTime,
		})
	}

	// Win evaluation runs even when the event completed nothing new: if a
	// win transition previously failed to persist, the next delivery for
	// the team finishes it.
	if !evaluateWin(inst.WinRule, inst.Board, inst.completedSet(teamID)) {
		return nil
	}

	now := time.Now().UTC()
	snap := snapshotInstance(inst)
	snap.State = InstanceStateCompleted
	snap.StateName = InstanceStateCompleted.String()
	snap.Winner = teamID
	snap.EndTime = &now

	saveCtx, cancel := e.storeContext(ctx)
	err = e.store.SaveInstance(saveCtx, snap)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to persist win: %w", err)
	}

	inst.State = InstanceStateCompleted
	inst.Winner = teamID
	inst.EndTime = &now

	e.logger.Info("game instance completed",
		zap.String("instance_id", inst.ID),
		zap.String("winner_team_id", teamID),
		zap.String("winner_team", team.Name),
	)

	// The Completed transition is one-way, so this fires exactly once per
	// instance.
	e.sink.Notify(notify.Notification{
		Kind:       notify.KindTeamWon,
		InstanceID: inst.ID,
		TeamID:     teamID,
		Message:    fmt.Sprintf("%s wins the game!", team.Name),
		At:         now,
	})

	return nil
}

// Abort cancels a Pending or Active instance. Aborting an already
// finished instance is a no-op.
func (e *Engine) Abort(ctx context.Context, instanceID, reason string) error {
	inst, err := e.instance(instanceID)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.State.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	snap := snapshotInstance(inst)
	snap.State = InstanceStateAborted
	snap.StateName = InstanceStateAborted.String()
	snap.AbortReason = reason
	snap.EndTime = &now

	saveCtx, cancel := e.storeContext(ctx)
	err = e.store.SaveInstance(saveCtx, snap)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to persist abort: %w", err)
	}

	inst.State = InstanceStateAborted
	inst.AbortReason = reason
	inst.EndTime = &now

	e.logger.Info("game instance aborted",
		zap.String("instance_id", inst.ID),
		zap.String("reason", reason),
	)

	e.sink.Notify(notify.Notification{
		Kind:       notify.KindGameAborted,
		InstanceID: inst.ID,
		Message:    fmt.Sprintf("Game aborted: %s", reason),
		At:         now,
	})

	return nil
}

// Snapshot returns a consistent copy of the instance's current state.
func (e *Engine) Snapshot(instanceID string) (InstanceSnapshot, error) {
	inst, err := e.instance(instanceID)
	if err != nil {
		return InstanceSnapshot{}, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	return snapshotInstance(inst), nil
}

// Instances returns snapshots of all known instances, newest first.
func (e *Engine) Instances() []InstanceSnapshot {
	e.mu.RLock()
	all := make([]*GameInstance, 0, len(e.instances))
	for _, inst := range e.instances {
		all = append(all, inst)
	}
	e.mu.RUnlock()

	snapshots := make([]InstanceSnapshot, 0, len(all))
	for _, inst := range all {
		inst.mu.Lock()
		snapshots = append(snapshots, snapshotInstance(inst))
		inst.mu.Unlock()
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreateTime.After(snapshots[j].CreateTime)
	})
	return snapshots
}

// ResolvePlayer finds the Active instance and team a player belongs to.
// Most host events reference players that are not in any bingo game; the
// boolean result lets the adapter drop those cheaply.
func (e *Engine) ResolvePlayer(playerID string) (instanceID, teamID string, ok bool) {
	e.mu.RLock()
	all := make([]*GameInstance, 0, len(e.instances))
	for _, inst := range e.instances {
		all = append(all, inst)
	}
	e.mu.RUnlock()

	for _, inst := range all {
		inst.mu.Lock()
		if inst.State == InstanceStateActive {
			for id, team := range inst.Teams {
				if team.HasMember(playerID) {
					inst.mu.Unlock()
					return inst.ID, id, true
				}
			}
		}
		inst.mu.Unlock()
	}

	return "", "", false
}

func (e *Engine) instance(instanceID string) (*GameInstance, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	inst, ok := e.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}
	return inst, nil
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.writeTimeout)
}

// activePlayerConflict reports whether any roster member of inst is
// already on a team in a different Active instance. Rosters are fixed at
// creation, so the member set read here cannot change before the caller
// finishes activating. Caller holds activateMu.
func (e *Engine) activePlayerConflict(inst *GameInstance) (player, otherInstanceID string, conflict bool) {
	inst.mu.Lock()
	members := make(map[string]bool)
	for _, team := range inst.Teams {
		for _, m := range team.Members {
			members[m] = true
		}
	}
	inst.mu.Unlock()

	e.mu.RLock()
	others := make([]*GameInstance, 0, len(e.instances))
	for _, other := range e.instances {
		if other != inst {
			others = append(others, other)
		}
	}
	e.mu.RUnlock()

	for _, other := range others {
		other.mu.Lock()
		if other.State == InstanceStateActive {
			for _, team := range other.Teams {
				for _, m := range team.Members {
					if members[m] {
						other.mu.Unlock()
						return m, other.ID, true
					}
				}
			}
		}
		other.mu.Unlock()
	}

	return "", "", false
}

// completedSet returns the objective ids the team has completed.
// Caller holds the instance lock.
func (inst *GameInstance) completedSet(teamID string) map[string]bool {
	completed := make(map[string]bool)
	for key := range inst.Records {
		if key.teamID == teamID {
			completed[key.objectiveID] = true
		}
	}
	return completed
}

// snapshotInstance builds a consistent copy. Caller holds the instance
// lock (or exclusively owns the instance, as during create/restore).
func snapshotInstance(inst *GameInstance) InstanceSnapshot {
	teams := make([]TeamSnapshot, 0, len(inst.TeamOrder))
	for _, id := range inst.TeamOrder {
		if team, ok := inst.Teams[id]; ok {
			teams = append(teams, TeamSnapshot{
				ID:      team.ID,
				Name:    team.Name,
				Members: append([]string(nil), team.Members...),
			})
		}
	}

	records := make([]CompletionRecord, 0, len(inst.Records))
	for _, rec := range inst.Records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].TeamID != records[j].TeamID {
			return records[i].TeamID < records[j].TeamID
		}
		return records[i].ObjectiveID < records[j].ObjectiveID
	})

	return InstanceSnapshot{
		ID:          inst.ID,
		Board:       *inst.Board,
		Teams:       teams,
		Records:     records,
		State:       inst.State,
		StateName:   inst.State.String(),
		WinRule:     inst.WinRule,
		Winner:      inst.Winner,
		AbortReason: inst.AbortReason,
		CreateTime:  inst.CreateTime,
		StartTime:   cloneTime(inst.StartTime),
		EndTime:     cloneTime(inst.EndTime),
	}
}

// instanceFromSnapshot rebuilds the in-memory representation of a
// persisted instance.
func instanceFromSnapshot(snap InstanceSnapshot) *GameInstance {
	b := snap.Board
	inst := &GameInstance{
		ID:          snap.ID,
		Board:       &b,
		Teams:       make(map[string]*Team, len(snap.Teams)),
		TeamOrder:   make([]string, 0, len(snap.Teams)),
		Records:     make(map[recordKey]CompletionRecord, len(snap.Records)),
		State:       snap.State,
		WinRule:     snap.WinRule,
		Winner:      snap.Winner,
		AbortReason: snap.AbortReason,
		CreateTime:  snap.CreateTime,
		StartTime:   cloneTime(snap.StartTime),
		EndTime:     cloneTime(snap.EndTime),
	}

	for _, t := range snap.Teams {
		inst.Teams[t.ID] = &Team{
			ID:      t.ID,
			Name:    t.Name,
			Members: append([]string(nil), t.Members...),
		}
		inst.TeamOrder = append(inst.TeamOrder, t.ID)
	}

	for _, rec := range snap.Records {
		inst.Records[recordKey{teamID: rec.TeamID, objectiveID: rec.ObjectiveID}] = rec
	}

	return inst
}
