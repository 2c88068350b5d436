package adapter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pritam/bingocraft/internal/engine"
)

// Adapter translates raw host events into objective events and pushes
// them into the game engine. It sits on the host's event-dispatch
// threads, so it never returns an error upward: anything that goes wrong
// is logged and the host carries on.
type Adapter struct {
	engine *engine.Engine
	logger *zap.Logger
}

// New creates an adapter feeding the given engine.
func New(eng *engine.Engine, logger *zap.Logger) *Adapter {
	return &Adapter{engine: eng, logger: logger}
}

// Translate maps a host event onto the objective events it implies.
// Returns nil when the event is irrelevant: unknown type, or the acting
// player is not on a team in any Active instance. A detailed event
// yields two categories, the bare type and the detail-qualified form, so
// "kill a zombie" satisfies both "kill any mob" and "kill a zombie"
// objectives.
func (a *Adapter) Translate(ev HostEvent) []ObjectiveEvent {
	if !ev.Type.Known() || ev.PlayerID == "" {
		return nil
	}

	instanceID, teamID, ok := a.engine.ResolvePlayer(ev.PlayerID)
	if !ok {
		return nil
	}

	events := []ObjectiveEvent{{
		InstanceID: instanceID,
		TeamID:     teamID,
		Category:   string(ev.Type),
		PlayerID:   ev.PlayerID,
		OccurredAt: ev.OccurredAt,
	}}

	if ev.Detail != "" {
		events = append(events, ObjectiveEvent{
			InstanceID: instanceID,
			TeamID:     teamID,
			Category:   fmt.Sprintf("%s:%s", ev.Type, ev.Detail),
			PlayerID:   ev.PlayerID,
			OccurredAt: ev.OccurredAt,
		})
	}

	return events
}

// HandleHostEvent translates the event and records the result.
// Engine rejections are expected here (a game may have just finished
// under the event's feet) and are logged at debug; storage trouble is
// the only outcome worth a real log line.
func (a *Adapter) HandleHostEvent(ctx context.Context, ev HostEvent) {
	for _, objEv := range a.Translate(ev) {
		err := a.engine.RecordObjectiveEvent(ctx, objEv.InstanceID, objEv.TeamID,
			objEv.Category, objEv.PlayerID, objEv.OccurredAt)
		if err == nil {
			continue
		}

		switch {
		case errors.Is(err, engine.ErrStorageUnavailable):
			a.logger.Error("failed to record objective event",
				zap.String("instance_id", objEv.InstanceID),
				zap.String("category", objEv.Category),
				zap.Error(err),
			)
		default:
			a.logger.Debug("objective event rejected",
				zap.String("instance_id", objEv.InstanceID),
				zap.String("category", objEv.Category),
				zap.Error(err),
			)
		}
	}
}
